package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"
	"fulfillment-service/internal/service"

	"go.uber.org/zap"
)

// RefundHandler calls the gateway and, once the last open refund of a payment
// succeeds, settles the payment and order status.
func RefundHandler(repo *repository.Repository, gateway service.PaymentGateway, log *zap.Logger) Handler {
	return func(ctx context.Context, job models.Job) error {
		var p models.RefundPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("%w: decode refund payload: %v", service.ErrPermanent, err)
		}
		err := gateway.Refund(ctx, service.RefundRequest{
			TransactionID:  p.TransactionID,
			AmountMinor:    p.AmountMinor,
			Partial:        p.Partial,
			IdempotencyKey: job.IdempotencyKey,
		})
		if errors.Is(err, service.ErrAlreadyRefunded) {
			log.Info("refund already applied by gateway", zap.String("key", job.IdempotencyKey))
			err = nil
		}
		if err != nil {
			return err
		}

		return repo.WithTx(ctx, func(tx *repository.Repository) error {
			pay, err := tx.Payments.LockByOrder(ctx, p.OrderID)
			if err != nil || pay == nil {
				return err
			}
			open, err := tx.Jobs.OpenRefunds(ctx, pay.ID, job.ID)
			if err != nil {
				return err
			}
			if open > 0 {
				return nil
			}
			status := models.PaymentStatusPartiallyRefunded
			if pay.RefundedAmount.GreaterThanOrEqual(pay.Amount) {
				status = models.PaymentStatusRefunded
			}
			if err := tx.Payments.UpdateStatus(ctx, pay.ID, status); err != nil {
				return err
			}
			log.Info("refund completed",
				zap.Stringer("order_id", p.OrderID),
				zap.Int64("amount_minor", p.AmountMinor),
				zap.String("payment_status", string(status)),
			)
			return tx.Orders.UpdateFields(ctx, p.OrderID, map[string]any{"payment_status": status})
		})
	}
}

func NotifyHandler(notifier service.Notifier) Handler {
	return func(ctx context.Context, job models.Job) error {
		var p models.NotifyPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("%w: decode notify payload: %v", service.ErrPermanent, err)
		}
		return notifier.Notify(ctx, service.Notification{
			RecipientType: service.RecipientType(p.RecipientType),
			RecipientID:   p.RecipientID,
			Type:          p.Type,
			Payload:       p.Data,
		})
	}
}
