package service

import (
	"context"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AcceptDelivery assigns the delivery to the first rider that gets the row lock.
// Later riders get ErrDeliveryUnavailable.
func (s *fulfillmentService) AcceptDelivery(ctx context.Context, deliveryID, riderID uuid.UUID) (*models.Delivery, error) {
	var out *models.Delivery
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		d, err := tx.Deliveries.LockByID(ctx, deliveryID)
		if err != nil {
			return err
		}
		if d == nil {
			return ErrDeliveryNotFound
		}
		if d.Status != models.DeliveryStatusPendingAcceptance || d.RiderID != nil {
			return ErrDeliveryUnavailable
		}
		rider, err := tx.Riders.LockByID(ctx, riderID)
		if err != nil {
			return err
		}
		if rider == nil {
			return ErrRiderNotFound
		}
		if !rider.IsOnline || rider.IsBusy {
			return ErrRiderUnavailable
		}

		now := s.now()
		if err := tx.Deliveries.UpdateFields(ctx, d.ID, map[string]any{
			"status":      models.DeliveryStatusAccepted,
			"rider_id":    riderID,
			"accepted_at": now,
		}); err != nil {
			return err
		}
		if err := tx.Riders.SetBusy(ctx, riderID, true); err != nil {
			return err
		}
		d.Status = models.DeliveryStatusAccepted
		d.RiderID = &riderID
		d.AcceptedAt = &now
		out = d

		ord, err := tx.Orders.GetByID(ctx, d.OrderID)
		if err != nil || ord == nil {
			return err
		}
		return enqueueNotify(ctx, tx, "rider-assigned:"+d.ID.String(), customerNote(ord.ID, ord.CustomerID, NotifyRiderAssigned,
			map[string]any{"rider_id": riderID.String(), "rider_name": rider.Name}))
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("delivery accepted", zap.Stringer("delivery_id", deliveryID), zap.Stringer("rider_id", riderID))
	return out, nil
}

// AdvanceDeliveryStatus moves an accepted delivery forward and drives the order with it.
func (s *fulfillmentService) AdvanceDeliveryStatus(ctx context.Context, deliveryID, riderID uuid.UUID, next models.DeliveryStatus) (*models.Delivery, error) {
	switch next {
	case models.DeliveryStatusAtStore, models.DeliveryStatusPickedUp, models.DeliveryStatusDelivered:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}
	pre, err := s.repo.Deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if pre == nil {
		return nil, ErrDeliveryNotFound
	}

	var out *models.Delivery
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		ord, err := tx.Orders.LockByID(ctx, pre.OrderID)
		if err != nil {
			return err
		}
		if ord == nil {
			return ErrOrderNotFound
		}
		d, err := tx.Deliveries.LockByID(ctx, deliveryID)
		if err != nil {
			return err
		}
		if d == nil {
			return ErrDeliveryNotFound
		}
		if d.RiderID == nil || *d.RiderID != riderID {
			return ErrNotAssignedRider
		}
		if !d.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, next)
		}

		now := s.now()
		fields := map[string]any{"status": next}
		switch next {
		case models.DeliveryStatusAtStore:
			fields["at_store_at"] = now
			d.AtStoreAt = &now
		case models.DeliveryStatusPickedUp:
			if ord.Status != models.OrderStatusReadyForPickup {
				return ErrOrderNotReady
			}
			fields["picked_up_at"] = now
			d.PickedUpAt = &now
			if err := s.moveOrder(ctx, tx, ord, models.OrderStatusOutForDelivery, nil); err != nil {
				return err
			}
		case models.DeliveryStatusDelivered:
			fields["delivered_at"] = now
			d.DeliveredAt = &now
			if err := s.settleDelivered(ctx, tx, ord, riderID); err != nil {
				return err
			}
		}
		if err := tx.Deliveries.UpdateFields(ctx, d.ID, fields); err != nil {
			return err
		}
		d.Status = next
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("delivery advanced", zap.Stringer("delivery_id", deliveryID), zap.String("status", string(next)))
	return out, nil
}

func (s *fulfillmentService) moveOrder(ctx context.Context, tx *repository.Repository, ord *models.Order, next models.OrderStatus, extra map[string]any) error {
	if !ord.CanTransitionTo(next) {
		return fmt.Errorf("%w: order %s -> %s", ErrInvalidTransition, ord.Status, next)
	}
	fields := map[string]any{"status": next}
	for k, v := range extra {
		fields[k] = v
	}
	if err := tx.Orders.UpdateFields(ctx, ord.ID, fields); err != nil {
		return err
	}
	ord.Status = next

	typ := NotifyOrderOutForDelivery
	if next == models.OrderStatusDelivered {
		typ = NotifyOrderDelivered
	}
	return enqueueNotify(ctx, tx, fmt.Sprintf("%s:%s", next, ord.ID), customerNote(ord.ID, ord.CustomerID, typ, nil))
}

// settleDelivered completes the order, collects cash for COD and frees the rider.
func (s *fulfillmentService) settleDelivered(ctx context.Context, tx *repository.Repository, ord *models.Order, riderID uuid.UUID) error {
	var extra map[string]any
	if ord.PaymentMethod == models.PaymentMethodCOD {
		pay, err := tx.Payments.LockByOrder(ctx, ord.ID)
		if err != nil {
			return err
		}
		if pay != nil {
			if err := tx.Payments.UpdateStatus(ctx, pay.ID, models.PaymentStatusSuccessful); err != nil {
				return err
			}
		}
		if err := tx.Riders.AddCash(ctx, riderID, ord.FinalTotal); err != nil {
			return err
		}
		extra = map[string]any{"payment_status": models.PaymentStatusSuccessful}
	}
	if err := s.moveOrder(ctx, tx, ord, models.OrderStatusDelivered, extra); err != nil {
		return err
	}
	return tx.Riders.SetBusy(ctx, riderID, false)
}

func (s *fulfillmentService) RateDelivery(ctx context.Context, deliveryID, customerID uuid.UUID, rating int) (*models.Delivery, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	var out *models.Delivery
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		d, err := tx.Deliveries.LockByID(ctx, deliveryID)
		if err != nil {
			return err
		}
		if d == nil {
			return ErrDeliveryNotFound
		}
		ord, err := tx.Orders.GetByID(ctx, d.OrderID)
		if err != nil {
			return err
		}
		if ord == nil || ord.CustomerID != customerID {
			return ErrForbidden
		}
		if d.Status != models.DeliveryStatusDelivered {
			return ErrNotDelivered
		}
		if d.Rating != nil {
			return ErrAlreadyRated
		}
		r := int16(rating)
		if err := tx.Deliveries.UpdateFields(ctx, d.ID, map[string]any{"rating": r}); err != nil {
			return err
		}
		d.Rating = &r
		out = d
		return nil
	})
	return out, err
}

// UpdateRiderLocation stores the rider's position and presence, refreshes the geo
// index and broadcasts the position to the order the rider is carrying.
func (s *fulfillmentService) UpdateRiderLocation(ctx context.Context, riderID uuid.UUID, lat, lng float64, online bool) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return ErrInvalidCoordinates
	}
	rider, err := s.repo.Riders.GetByID(ctx, riderID)
	if err != nil {
		return err
	}
	if rider == nil {
		return ErrRiderNotFound
	}
	now := s.now()
	if err := s.repo.Riders.UpdateFields(ctx, riderID, map[string]any{
		"latitude":            lat,
		"longitude":           lng,
		"is_online":           online,
		"location_updated_at": now,
	}); err != nil {
		return err
	}

	if s.locator != nil {
		if err := s.locator.UpdatePosition(ctx, riderID, lat, lng, online); err != nil {
			s.log.Warn("failed to update rider geo index", zap.Stringer("rider_id", riderID), zap.Error(err))
		}
	}

	if s.notifier == nil {
		return nil
	}
	d, err := s.repo.Deliveries.ActiveForRider(ctx, riderID)
	if err != nil {
		return err
	}
	if d == nil {
		return nil
	}
	if err := s.notifier.BroadcastOrder(ctx, d.OrderID, map[string]any{
		"type":        "RIDER_LOCATION",
		"delivery_id": d.ID.String(),
		"rider_id":    riderID.String(),
		"lat":         lat,
		"lng":         lng,
		"at":          now,
	}); err != nil {
		s.log.Warn("failed to broadcast rider location", zap.Stringer("order_id", d.OrderID), zap.Error(err))
	}
	return nil
}
