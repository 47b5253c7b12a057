package repository

import (
	"context"
	"errors"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CouponRepo interface {
	Create(ctx context.Context, c *models.Coupon) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	// IncrementUsage bumps used_count unless the usage limit is reached.
	IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error)
}

type couponRepo struct{ db *gorm.DB }

func NewCouponRepo(db *gorm.DB) CouponRepo { return &couponRepo{db: db} }

func (r *couponRepo) Create(ctx context.Context, c *models.Coupon) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *couponRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var c models.Coupon
	err := r.db.WithContext(ctx).Take(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &c, err
}

func (r *couponRepo) IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE coupons
SET used_count = used_count + 1
WHERE id = ?
  AND (usage_limit IS NULL OR used_count < usage_limit)
`, id)
	return tx.RowsAffected > 0, tx.Error
}
