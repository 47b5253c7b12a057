package service

import (
	"context"
	"encoding/json"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func enqueueNotify(ctx context.Context, tx *repository.Repository, key string, n Notification) error {
	body, err := json.Marshal(models.NotifyPayload{
		RecipientType: string(n.RecipientType),
		RecipientID:   n.RecipientID,
		Type:          n.Type,
		Data:          n.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal notify payload: %w", err)
	}
	_, err = tx.Jobs.Enqueue(ctx, &models.Job{
		Kind:           models.JobKindNotify,
		IdempotencyKey: "notify:" + key,
		Payload:        body,
		Status:         models.JobStatusPending,
	})
	return err
}

// enqueueRefund commits amount against the payment and queues the gateway call. The
// key is derived from the cumulative refunded total so each commitment is unique.
func enqueueRefund(ctx context.Context, tx *repository.Repository, order *models.Order, p *models.Payment, amount decimal.Decimal, partial bool) (bool, error) {
	if !amount.IsPositive() {
		return false, nil
	}
	ok, err := tx.Payments.CommitRefund(ctx, p.ID, amount, models.PaymentStatusRefundInitiated)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: refund of %s exceeds refundable amount on payment %s", ErrInvariant, amount.StringFixed(2), p.ID)
	}

	txID := ""
	if p.TransactionID != nil {
		txID = *p.TransactionID
	}
	cumulative := p.RefundedAmount.Add(amount)
	key := fmt.Sprintf("refund:%s:%s", p.ID, cumulative.StringFixed(2))
	body, err := json.Marshal(models.RefundPayload{
		OrderID:       order.ID,
		PaymentID:     p.ID,
		TransactionID: txID,
		AmountMinor:   toMinor(amount),
		Partial:       partial,
	})
	if err != nil {
		return false, fmt.Errorf("marshal refund payload: %w", err)
	}
	if _, err := tx.Jobs.Enqueue(ctx, &models.Job{
		Kind:           models.JobKindRefund,
		IdempotencyKey: key,
		Payload:        body,
		Status:         models.JobStatusPending,
	}); err != nil {
		return false, err
	}
	p.RefundedAmount = cumulative
	p.Status = models.PaymentStatusRefundInitiated
	return true, nil
}

func toMinor(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func customerNote(orderID uuid.UUID, customerID uuid.UUID, typ string, payload map[string]any) Notification {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["order_id"] = orderID.String()
	return Notification{
		RecipientType: RecipientCustomer,
		RecipientID:   customerID,
		Type:          typ,
		Payload:       payload,
	}
}
