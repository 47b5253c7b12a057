package repository

import (
	"context"
	"errors"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepo interface {
	// Upsert creates the order's payment or returns the existing one.
	Upsert(ctx context.Context, p *models.Payment) error
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	LockByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus) error
	// UpdateAmount rewrites the amount to collect; only for payments not yet collected.
	UpdateAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	// CommitRefund raises refunded_amount by amount if it stays within the collected amount.
	CommitRefund(ctx context.Context, id uuid.UUID, amount decimal.Decimal, status models.PaymentStatus) (bool, error)
}

type paymentRepo struct{ db *gorm.DB }

func NewPaymentRepo(db *gorm.DB) PaymentRepo { return &paymentRepo{db: db} }

func (r *paymentRepo) Upsert(ctx context.Context, p *models.Payment) error {
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(p)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return r.db.WithContext(ctx).Take(p, "order_id = ?", p.OrderID).Error
	}
	return nil
}

func (r *paymentRepo) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).Take(&p, "order_id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}

func (r *paymentRepo) LockByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).Clauses(forUpdate()).Take(&p, "order_id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus) error {
	return r.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).Update("status", status).Error
}

func (r *paymentRepo) UpdateAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).Update("amount", amount).Error
}

func (r *paymentRepo) CommitRefund(ctx context.Context, id uuid.UUID, amount decimal.Decimal, status models.PaymentStatus) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE payments
SET refunded_amount = refunded_amount + @amt,
    status = @status
WHERE id = @id
  AND refunded_amount + @amt <= amount
`, map[string]any{
		"id":     id,
		"amt":    amount,
		"status": status,
	})
	return tx.RowsAffected > 0, tx.Error
}
