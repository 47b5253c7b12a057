package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PaymentConfirmation struct {
	Successful    bool
	TransactionID string
	Amount        decimal.Decimal
}

type IssueResolution string

const (
	ResolveRetry  IssueResolution = "RETRY"
	ResolveCancel IssueResolution = "CANCEL"
)

type CancellationResult struct {
	Order        *models.Order
	RefundAmount decimal.Decimal
	RefundQueued bool
}

type FulfillmentService interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ConfirmOrder(ctx context.Context, orderID uuid.UUID, pay PaymentConfirmation) (*models.Order, error)

	RequestNextUnit(ctx context.Context, workerID uuid.UUID) (*models.PickUnit, error)
	ListWorkerQueue(ctx context.Context, workerID uuid.UUID) ([]models.PickUnit, error)
	CompletePickUnit(ctx context.Context, unitID, workerID uuid.UUID) (*models.PickUnit, error)
	ReportIssue(ctx context.Context, unitID, workerID uuid.UUID, note string) (*models.PickUnit, error)
	ResolveIssue(ctx context.Context, unitID uuid.UUID, res IssueResolution) (*models.PickUnit, error)

	AcceptDelivery(ctx context.Context, deliveryID, riderID uuid.UUID) (*models.Delivery, error)
	AdvanceDeliveryStatus(ctx context.Context, deliveryID, riderID uuid.UUID, next models.DeliveryStatus) (*models.Delivery, error)
	RateDelivery(ctx context.Context, deliveryID, customerID uuid.UUID, rating int) (*models.Delivery, error)
	UpdateRiderLocation(ctx context.Context, riderID uuid.UUID, lat, lng float64, online bool) error

	CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*CancellationResult, error)
	CancelOrderLine(ctx context.Context, orderID, lineID uuid.UUID, qty int32) (*CancellationResult, error)

	ReceiveStock(ctx context.Context, summaryID, locationID uuid.UUID, qty int32) (*models.InventorySummary, error)
	AuditLedger(ctx context.Context) ([]models.LedgerMismatch, error)
}

type DeliveryDispatcher interface {
	Dispatch(ctx context.Context, deliveryID uuid.UUID) (int, error)
}

type Options struct {
	TaxRate     decimal.Decimal
	CancelGrace time.Duration
}

type fulfillmentService struct {
	repo       *repository.Repository
	ledger     *Ledger
	dispatcher DeliveryDispatcher
	notifier   Notifier
	locator    RiderLocator
	opts       Options
	log        *zap.Logger
	now        func() time.Time
}

func NewFulfillmentService(
	repo *repository.Repository,
	ledger *Ledger,
	dispatcher DeliveryDispatcher,
	notifier Notifier,
	locator RiderLocator,
	opts Options,
	log *zap.Logger,
) FulfillmentService {
	return &fulfillmentService{
		repo:       repo,
		ledger:     ledger,
		dispatcher: dispatcher,
		notifier:   notifier,
		locator:    locator,
		opts:       opts,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *fulfillmentService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	p, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	ord, err := s.repo.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, ErrOrderNotFound
	}
	switch p.Role {
	case RoleCustomer:
		if ord.CustomerID != p.UserID {
			return nil, ErrOrderNotFound
		}
	case RoleStaff:
		if !p.IsStaffOf(ord.StoreID) {
			return nil, ErrForbidden
		}
	case RoleRider:
		d, err := s.repo.Deliveries.GetByOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if d == nil || d.RiderID == nil || *d.RiderID != p.UserID {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}
	return ord, nil
}

// ConfirmOrder turns a paid (or cash-on-delivery) order into reserved pick work.
// An order already past PENDING is returned unchanged.
func (s *fulfillmentService) ConfirmOrder(ctx context.Context, orderID uuid.UUID, pay PaymentConfirmation) (*models.Order, error) {
	var (
		out       *models.Order
		unchanged bool
	)
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		ord, err := tx.Orders.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if ord == nil {
			return ErrOrderNotFound
		}
		if ord.Status != models.OrderStatusPending {
			out, unchanged = ord, true
			return nil
		}
		if ord.PaymentMethod.Prepaid() {
			if !pay.Successful {
				return ErrPaymentNotConfirmed
			}
			if !pay.Amount.IsZero() && !pay.Amount.Equal(ord.FinalTotal) {
				return fmt.Errorf("%w: paid %s, total %s", ErrAmountMismatch, pay.Amount.StringFixed(2), ord.FinalTotal.StringFixed(2))
			}
		}
		if len(ord.Lines) == 0 {
			return fmt.Errorf("%w: order has no lines", ErrValidation)
		}
		now := s.now()

		payment, err := s.recordPayment(ctx, tx, ord, pay)
		if err != nil {
			return err
		}

		if _, err := s.reserveLines(ctx, tx, ord); err != nil {
			return err
		}
		if err := s.pushAssign(ctx, tx, ord, now); err != nil {
			return err
		}

		if ord.CouponID != nil {
			ok, err := tx.Coupons.IncrementUsage(ctx, *ord.CouponID)
			if err != nil {
				return err
			}
			if !ok {
				s.log.Warn("coupon usage limit reached at confirmation",
					zap.Stringer("order_id", ord.ID), zap.Stringer("coupon_id", *ord.CouponID))
			}
		}

		if err := tx.Deliveries.Create(ctx, &models.Delivery{
			OrderID: ord.ID,
			Status:  models.DeliveryStatusAwaitingPrep,
		}); err != nil {
			return fmt.Errorf("create delivery: %w", err)
		}

		if err := tx.Orders.UpdateFields(ctx, ord.ID, map[string]any{
			"status":         models.OrderStatusConfirmed,
			"payment_status": payment.Status,
			"confirmed_at":   now,
		}); err != nil {
			return err
		}
		if err := enqueueNotify(ctx, tx, "confirmed:"+ord.ID.String(),
			customerNote(ord.ID, ord.CustomerID, NotifyOrderConfirmed, nil)); err != nil {
			return err
		}

		out, err = tx.Orders.GetByID(ctx, ord.ID)
		return err
	})

	switch {
	case err == nil:
		if !unchanged {
			s.log.Info("order confirmed", zap.Stringer("order_id", orderID), zap.Int("lines", len(out.Lines)))
		}
		return out, nil
	case isAllocationFailure(err):
		if ferr := s.failOrder(ctx, orderID, pay, err); ferr != nil {
			s.log.Error("failed to mark order FAILED after allocation failure",
				zap.Stringer("order_id", orderID), zap.Error(ferr))
		}
		return nil, err
	default:
		return nil, err
	}
}

func isAllocationFailure(err error) bool {
	return errors.Is(err, ErrInsufficientStock) || errors.Is(err, ErrLedgerDesync) || errors.Is(err, ErrItemNotFound)
}

func (s *fulfillmentService) recordPayment(ctx context.Context, tx *repository.Repository, ord *models.Order, pay PaymentConfirmation) (*models.Payment, error) {
	p := &models.Payment{
		OrderID: ord.ID,
		Method:  ord.PaymentMethod,
		Status:  models.PaymentStatusPending,
		Amount:  ord.FinalTotal,
	}
	if ord.PaymentMethod.Prepaid() {
		p.Status = models.PaymentStatusSuccessful
	}
	if pay.TransactionID != "" {
		txID := pay.TransactionID
		p.TransactionID = &txID
	}
	if err := tx.Payments.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	return p, nil
}

// reserveLines locks the summaries in id order and creates the pick units of every line.
func (s *fulfillmentService) reserveLines(ctx context.Context, tx *repository.Repository, ord *models.Order) (int, error) {
	ids := make([]uuid.UUID, 0, len(ord.Lines))
	for _, l := range ord.Lines {
		if !slices.Contains(ids, l.SummaryID) {
			ids = append(ids, l.SummaryID)
		}
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })

	summaries := make(map[uuid.UUID]*models.InventorySummary, len(ids))
	for _, id := range ids {
		sum, err := tx.Stock.LockSummary(ctx, id)
		if err != nil {
			return 0, err
		}
		if sum == nil {
			return 0, fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		summaries[id] = sum
	}

	created := 0
	for _, line := range ord.Lines {
		planned, err := s.allocateLine(ctx, tx, summaries[line.SummaryID], ord, line)
		if err != nil {
			return 0, err
		}
		// created per line so a later line of the same item sees this reservation
		if err := tx.PickUnits.CreateBatch(ctx, planned); err != nil {
			return 0, fmt.Errorf("create pick units: %w", err)
		}
		created += len(planned)
	}
	return created, nil
}

// pushAssign hands every unassigned unit of the order to the store's least recently
// assigned picker. No eligible picker leaves the units in the pull queue.
func (s *fulfillmentService) pushAssign(ctx context.Context, tx *repository.Repository, ord *models.Order, now time.Time) error {
	w, err := tx.Workers.LockNextEligible(ctx, ord.StoreID)
	if err != nil {
		return err
	}
	if w == nil {
		s.log.Info("no eligible picker, units left for pull", zap.Stringer("order_id", ord.ID))
		return nil
	}
	n, err := tx.PickUnits.AssignOpen(ctx, ord.ID, w.ID, now)
	if err != nil {
		return err
	}
	if err := tx.Workers.TouchAssigned(ctx, w.ID, now); err != nil {
		return err
	}
	return enqueueNotify(ctx, tx, fmt.Sprintf("assigned:%s:%s", ord.ID, w.ID), Notification{
		RecipientType: RecipientWorker,
		RecipientID:   w.ID,
		Type:          NotifyWorkAssigned,
		Payload:       map[string]any{"order_id": ord.ID.String(), "units": n},
	})
}

// failOrder marks a still-PENDING order FAILED and refunds anything collected.
func (s *fulfillmentService) failOrder(ctx context.Context, orderID uuid.UUID, pay PaymentConfirmation, cause error) error {
	return s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		ord, err := tx.Orders.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if ord == nil || !ord.CanTransitionTo(models.OrderStatusFailed) {
			return nil
		}
		reason := cause.Error()
		fields := map[string]any{
			"status":        models.OrderStatusFailed,
			"cancel_reason": reason,
		}
		if ord.PaymentMethod.Prepaid() && pay.Successful {
			p, err := s.recordPayment(ctx, tx, ord, pay)
			if err != nil {
				return err
			}
			if _, err := enqueueRefund(ctx, tx, ord, p, p.Refundable(), false); err != nil {
				return err
			}
			fields["payment_status"] = p.Status
		}
		if err := tx.Orders.UpdateFields(ctx, ord.ID, fields); err != nil {
			return err
		}
		s.log.Warn("order failed", zap.Stringer("order_id", ord.ID), zap.Error(cause))
		return enqueueNotify(ctx, tx, "failed:"+ord.ID.String(),
			customerNote(ord.ID, ord.CustomerID, NotifyOrderFailed, map[string]any{"reason": reason}))
	})
}

// CompletePickUnit deducts the picked stock and advances the order.
func (s *fulfillmentService) CompletePickUnit(ctx context.Context, unitID, workerID uuid.UUID) (*models.PickUnit, error) {
	pre, err := s.repo.PickUnits.GetByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if pre == nil {
		return nil, ErrPickUnitNotFound
	}

	var (
		out   *models.PickUnit
		ready *uuid.UUID
	)
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		ord, err := tx.Orders.LockByID(ctx, pre.OrderID)
		if err != nil {
			return err
		}
		if ord == nil {
			return ErrOrderNotFound
		}
		if _, err := tx.Deliveries.LockByOrder(ctx, ord.ID); err != nil {
			return err
		}
		unit, err := tx.PickUnits.LockByID(ctx, unitID)
		if err != nil {
			return err
		}
		if unit == nil {
			return ErrPickUnitNotFound
		}
		if unit.Status != models.PickUnitPending {
			return ErrUnitNotPending
		}
		if unit.WorkerID == nil || *unit.WorkerID != workerID {
			return ErrNotAssignedWorker
		}
		if ord.Status != models.OrderStatusConfirmed && ord.Status != models.OrderStatusPreparing {
			return fmt.Errorf("%w: order is %s", ErrInvalidTransition, ord.Status)
		}

		if err := s.ledger.AdjustGranular(ctx, tx, unit.SummaryID, unit.LocationID, -unit.Quantity); err != nil {
			return err
		}
		now := s.now()
		if err := tx.PickUnits.UpdateFields(ctx, unit.ID, map[string]any{
			"status":       models.PickUnitCompleted,
			"completed_at": now,
		}); err != nil {
			return err
		}
		unit.Status = models.PickUnitCompleted
		unit.CompletedAt = &now

		if ord.Status == models.OrderStatusConfirmed {
			if err := tx.Orders.UpdateFields(ctx, ord.ID, map[string]any{"status": models.OrderStatusPreparing}); err != nil {
				return err
			}
			ord.Status = models.OrderStatusPreparing
		}
		ready, err = s.checkReadiness(ctx, tx, ord)
		out = unit
		return err
	})
	if err != nil {
		return nil, err
	}
	s.dispatchAfterCommit(ctx, ready)
	return out, nil
}

// checkReadiness moves an order with no open pick work to READY_FOR_PICKUP and opens
// its delivery for acceptance. It returns the delivery to dispatch, if any.
func (s *fulfillmentService) checkReadiness(ctx context.Context, tx *repository.Repository, ord *models.Order) (*uuid.UUID, error) {
	if ord.Status != models.OrderStatusConfirmed && ord.Status != models.OrderStatusPreparing {
		return nil, nil
	}
	open, err := tx.PickUnits.CountOpen(ctx, ord.ID)
	if err != nil {
		return nil, err
	}
	if open > 0 {
		return nil, nil
	}
	if err := tx.Orders.UpdateFields(ctx, ord.ID, map[string]any{"status": models.OrderStatusReadyForPickup}); err != nil {
		return nil, err
	}
	ord.Status = models.OrderStatusReadyForPickup

	d, err := tx.Deliveries.LockByOrder(ctx, ord.ID)
	if err != nil {
		return nil, err
	}
	if d == nil || !d.CanTransitionTo(models.DeliveryStatusPendingAcceptance) {
		return nil, nil
	}
	if err := tx.Deliveries.UpdateFields(ctx, d.ID, map[string]any{
		"status":        models.DeliveryStatusPendingAcceptance,
		"pending_since": s.now(),
	}); err != nil {
		return nil, err
	}
	if err := enqueueNotify(ctx, tx, "ready:"+ord.ID.String(),
		customerNote(ord.ID, ord.CustomerID, NotifyOrderReady, nil)); err != nil {
		return nil, err
	}
	s.log.Info("order ready for pickup", zap.Stringer("order_id", ord.ID), zap.Stringer("delivery_id", d.ID))
	return &d.ID, nil
}

// dispatchAfterCommit never fails the caller; the retry sweep covers missed offers.
func (s *fulfillmentService) dispatchAfterCommit(ctx context.Context, deliveryID *uuid.UUID) {
	if deliveryID == nil || s.dispatcher == nil {
		return
	}
	if _, err := s.dispatcher.Dispatch(ctx, *deliveryID); err != nil {
		s.log.Warn("dispatch failed, retry sweep will pick it up",
			zap.Stringer("delivery_id", *deliveryID), zap.Error(err))
	}
}

func (s *fulfillmentService) ReceiveStock(ctx context.Context, summaryID, locationID uuid.UUID, qty int32) (*models.InventorySummary, error) {
	p, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	sum, err := s.repo.Stock.GetSummary(ctx, summaryID)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		return nil, ErrItemNotFound
	}
	if !p.IsStaffOf(sum.StoreID) {
		return nil, ErrForbidden
	}
	return s.ledger.ReceiveStock(ctx, summaryID, locationID, qty)
}

func (s *fulfillmentService) AuditLedger(ctx context.Context) ([]models.LedgerMismatch, error) {
	p, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	if p.Role != RoleStaff || !p.IsManager {
		return nil, ErrForbidden
	}
	list, err := s.ledger.Audit(ctx)
	if errors.Is(err, ErrLedgerDesync) {
		return list, nil
	}
	return list, err
}
