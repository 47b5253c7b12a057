package service

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxReasonLen = 500

// CancelOrder cancels the whole order and unwinds stock, delivery and payment.
// Customers may cancel only within the grace window after confirmation; store
// staff may cancel any time before the order leaves the store.
func (s *fulfillmentService) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*CancellationResult, error) {
	p, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	reason = sanitizeReason(reason)

	var res *CancellationResult
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		ord, err := tx.Orders.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if ord == nil {
			return ErrOrderNotFound
		}
		switch {
		case p.Role == RoleCustomer && ord.CustomerID == p.UserID:
			if s.graceExpired(ord) {
				return ErrCancellationWindowClosed
			}
		case p.IsStaffOf(ord.StoreID):
		default:
			return ErrForbidden
		}
		if ord.Status == models.OrderStatusCancelled {
			return ErrAlreadyCancelled
		}
		if !ord.Status.Cancellable() {
			return fmt.Errorf("%w: order is %s", ErrNotCancellable, ord.Status)
		}
		res, err = s.cancelLocked(ctx, tx, ord, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res.Order, err = s.repo.Orders.GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	s.log.Info("order cancelled",
		zap.Stringer("order_id", orderID),
		zap.String("by", string(p.Role)),
		zap.String("refund", res.RefundAmount.StringFixed(2)),
	)
	return res, nil
}

func (s *fulfillmentService) graceExpired(ord *models.Order) bool {
	if s.opts.CancelGrace <= 0 || ord.ConfirmedAt == nil {
		return false
	}
	return s.now().After(ord.ConfirmedAt.Add(s.opts.CancelGrace))
}

func sanitizeReason(r string) string {
	r = strings.TrimSpace(r)
	if len(r) > maxReasonLen {
		r = r[:maxReasonLen]
	}
	return r
}

type stockKey struct {
	summaryID  uuid.UUID
	locationID uuid.UUID
}

// cancelLocked runs the full cancellation. The caller holds the order lock.
func (s *fulfillmentService) cancelLocked(ctx context.Context, tx *repository.Repository, ord *models.Order, reason string) (*CancellationResult, error) {
	now := s.now()
	res := &CancellationResult{Order: ord, RefundAmount: decimal.Zero}

	d, err := tx.Deliveries.LockByOrder(ctx, ord.ID)
	if err != nil {
		return nil, err
	}
	units, err := tx.PickUnits.LockByOrder(ctx, ord.ID)
	if err != nil {
		return nil, err
	}

	restock := map[stockKey]int32{}
	for _, u := range units {
		switch {
		case u.Open():
			if err := tx.PickUnits.UpdateFields(ctx, u.ID, map[string]any{"status": models.PickUnitCancelled}); err != nil {
				return nil, err
			}
		case u.Status == models.PickUnitCompleted:
			restock[stockKey{u.SummaryID, u.LocationID}] += u.Quantity
		}
	}
	keys := make([]stockKey, 0, len(restock))
	for k := range restock {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b stockKey) int {
		return cmp.Or(bytes.Compare(a.summaryID[:], b.summaryID[:]), bytes.Compare(a.locationID[:], b.locationID[:]))
	})
	for _, k := range keys {
		if err := s.ledger.AdjustGranular(ctx, tx, k.summaryID, k.locationID, restock[k]); err != nil {
			return nil, err
		}
	}

	if d != nil && !d.Status.Terminal() {
		if err := tx.Deliveries.UpdateFields(ctx, d.ID, map[string]any{
			"status":       models.DeliveryStatusCancelled,
			"cancelled_at": now,
		}); err != nil {
			return nil, err
		}
		if d.RiderID != nil {
			if err := tx.Riders.SetBusy(ctx, *d.RiderID, false); err != nil {
				return nil, err
			}
			if err := enqueueNotify(ctx, tx, "delivery-cancelled:"+d.ID.String(), Notification{
				RecipientType: RecipientRider,
				RecipientID:   *d.RiderID,
				Type:          NotifyDeliveryCancelled,
				Payload:       map[string]any{"delivery_id": d.ID.String(), "order_id": ord.ID.String()},
			}); err != nil {
				return nil, err
			}
		}
	}

	fields := map[string]any{
		"status":       models.OrderStatusCancelled,
		"cancelled_at": now,
	}
	if reason != "" {
		fields["cancel_reason"] = reason
	}

	pay, err := tx.Payments.LockByOrder(ctx, ord.ID)
	if err != nil {
		return nil, err
	}
	if refundable(pay) {
		amount := pay.Refundable()
		queued, err := enqueueRefund(ctx, tx, ord, pay, amount, amount.LessThan(pay.Amount))
		if err != nil {
			return nil, err
		}
		if queued {
			res.RefundAmount = amount
			res.RefundQueued = true
		}
		fields["payment_status"] = models.PaymentStatusRefundInitiated
	}

	if err := tx.Orders.UpdateFields(ctx, ord.ID, fields); err != nil {
		return nil, err
	}
	ord.Status = models.OrderStatusCancelled
	ord.CancelledAt = &now

	if err := enqueueNotify(ctx, tx, "cancelled:"+ord.ID.String(), customerNote(ord.ID, ord.CustomerID, NotifyOrderCancelled,
		map[string]any{"refund_amount": res.RefundAmount.StringFixed(2)})); err != nil {
		return nil, err
	}
	return res, nil
}

func refundable(p *models.Payment) bool {
	if p == nil || !p.Method.Prepaid() {
		return false
	}
	switch p.Status {
	case models.PaymentStatusSuccessful, models.PaymentStatusRefundInitiated, models.PaymentStatusPartiallyRefunded:
		return p.Refundable().IsPositive()
	}
	return false
}

// CancelOrderLine removes qty units of one line that have not been picked yet and
// refunds the difference in the order total.
func (s *fulfillmentService) CancelOrderLine(ctx context.Context, orderID, lineID uuid.UUID, qty int32) (*CancellationResult, error) {
	if qty <= 0 {
		return nil, ErrQuantityInvalid
	}
	p, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}

	var (
		res   *CancellationResult
		ready *uuid.UUID
	)
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		ord, err := tx.Orders.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if ord == nil {
			return ErrOrderNotFound
		}
		if !p.IsManagerOf(ord.StoreID) {
			return ErrForbidden
		}
		if !ord.Status.Cancellable() {
			return fmt.Errorf("%w: order is %s", ErrNotCancellable, ord.Status)
		}
		if ord.Status == models.OrderStatusPending {
			return fmt.Errorf("%w: order is not confirmed yet", ErrNotCancellable)
		}
		line := findLine(ord.Lines, lineID)
		if line == nil {
			return ErrOrderLineNotFound
		}
		if qty > line.Quantity {
			return fmt.Errorf("%w: line has %d, asked to cancel %d", ErrQuantityInvalid, line.Quantity, qty)
		}
		if _, err := tx.Deliveries.LockByOrder(ctx, ord.ID); err != nil {
			return err
		}

		res, err = s.cancelLineLocked(ctx, tx, ord, *line, qty, true)
		if err != nil {
			return err
		}
		ready, err = s.checkReadiness(ctx, tx, ord)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res.Order, err = s.repo.Orders.GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	s.log.Info("order line cancelled",
		zap.Stringer("order_id", orderID),
		zap.Stringer("line_id", lineID),
		zap.Int32("quantity", qty),
		zap.String("refund", res.RefundAmount.StringFixed(2)),
	)
	s.dispatchAfterCommit(ctx, ready)
	return res, nil
}

// cancelLineLocked reduces a line by qty and recomputes the order financials. With
// reduceUnits the line's PENDING pick units shrink by the same quantity, largest
// first; units already picked cannot be cancelled. The caller holds the order lock.
func (s *fulfillmentService) cancelLineLocked(ctx context.Context, tx *repository.Repository, ord *models.Order, line models.OrderLine, qty int32, reduceUnits bool) (*CancellationResult, error) {
	if reduceUnits {
		if err := s.shrinkPendingUnits(ctx, tx, ord.ID, line.ID, qty); err != nil {
			return nil, err
		}
	}

	if left := line.Quantity - qty; left > 0 {
		if err := tx.Orders.UpdateLineQuantity(ctx, line.ID, left); err != nil {
			return nil, err
		}
	} else if err := tx.Orders.DeleteLine(ctx, line.ID); err != nil {
		return nil, err
	}

	lines, err := tx.Orders.ListLines(ctx, ord.ID)
	if err != nil {
		return nil, err
	}
	ord.Lines = lines
	if len(lines) == 0 {
		return s.cancelLocked(ctx, tx, ord, "all items cancelled")
	}

	var coupon *models.Coupon
	if ord.CouponID != nil {
		if coupon, err = tx.Coupons.GetByID(ctx, *ord.CouponID); err != nil {
			return nil, err
		}
	}
	b := ComputeBreakdown(lines, coupon, s.opts.TaxRate, ord.DeliveryFee, ord.Tip)
	res := &CancellationResult{Order: ord, RefundAmount: decimal.Zero}
	fields := map[string]any{
		"item_subtotal":   b.Subtotal,
		"discount_amount": b.Discount,
		"tax_amount":      b.Tax,
		"final_total":     b.Final,
	}

	pay, err := tx.Payments.LockByOrder(ctx, ord.ID)
	if err != nil {
		return nil, err
	}
	if pay != nil && !pay.Method.Prepaid() {
		// COD amount tracks the order total until collected
		if err := tx.Payments.UpdateAmount(ctx, pay.ID, b.Final); err != nil {
			return nil, err
		}
	}
	if refundable(pay) {
		amount := RefundDelta(ord.FinalTotal, b.Final, pay.Refundable())
		queued, err := enqueueRefund(ctx, tx, ord, pay, amount, true)
		if err != nil {
			return nil, err
		}
		if queued {
			res.RefundAmount = amount
			res.RefundQueued = true
			fields["payment_status"] = models.PaymentStatusRefundInitiated
		}
	}

	if err := tx.Orders.UpdateFields(ctx, ord.ID, fields); err != nil {
		return nil, err
	}
	ord.ItemSubtotal, ord.DiscountAmount, ord.TaxAmount, ord.FinalTotal = b.Subtotal, b.Discount, b.Tax, b.Final

	if err := enqueueNotify(ctx, tx, fmt.Sprintf("updated:%s:%s:%s", ord.ID, line.ID, b.Final.StringFixed(2)),
		customerNote(ord.ID, ord.CustomerID, NotifyOrderUpdated, map[string]any{
			"line_id":       line.ID.String(),
			"cancelled_qty": qty,
			"final_total":   b.Final.StringFixed(2),
			"refund_amount": res.RefundAmount.StringFixed(2),
		})); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *fulfillmentService) shrinkPendingUnits(ctx context.Context, tx *repository.Repository, orderID, lineID uuid.UUID, qty int32) error {
	units, err := tx.PickUnits.LockByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	var pending []models.PickUnit
	var capacity, inIssue int32
	for _, u := range units {
		if !u.Open() || u.OrderLineID == nil || *u.OrderLineID != lineID {
			continue
		}
		if u.Status == models.PickUnitIssue {
			inIssue += u.Quantity
			continue
		}
		pending = append(pending, u)
		capacity += u.Quantity
	}
	if short := qty - capacity; short > 0 {
		if short <= inIssue {
			return fmt.Errorf("%w: %d of %d units", ErrPickIssueOpen, short, qty)
		}
		return fmt.Errorf("%w: %d of %d units are no longer pending", ErrAlreadyPicked, short, qty)
	}
	slices.SortStableFunc(pending, func(a, b models.PickUnit) int { return cmp.Compare(b.Quantity, a.Quantity) })

	remaining := qty
	for _, u := range pending {
		if remaining == 0 {
			break
		}
		if u.Quantity <= remaining {
			if err := tx.PickUnits.UpdateFields(ctx, u.ID, map[string]any{"status": models.PickUnitCancelled}); err != nil {
				return err
			}
			remaining -= u.Quantity
			continue
		}
		if err := tx.PickUnits.UpdateFields(ctx, u.ID, map[string]any{"quantity": u.Quantity - remaining}); err != nil {
			return err
		}
		remaining = 0
	}
	return nil
}
