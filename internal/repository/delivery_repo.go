package repository

import (
	"context"
	"errors"
	"time"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeliveryRepo interface {
	Create(ctx context.Context, d *models.Delivery) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
	LockByOrder(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error)
	// ActiveForRider returns the delivery the rider currently carries, if any.
	ActiveForRider(ctx context.Context, riderID uuid.UUID) (*models.Delivery, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	// ClaimStale picks unaccepted deliveries whose last dispatch is older than before,
	// marks them retried and returns them.
	ClaimStale(ctx context.Context, before, now time.Time, limit int) ([]models.Delivery, error)
}

type deliveryRepo struct{ db *gorm.DB }

func NewDeliveryRepo(db *gorm.DB) DeliveryRepo { return &deliveryRepo{db: db} }

func (r *deliveryRepo) Create(ctx context.Context, d *models.Delivery) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *deliveryRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	var d models.Delivery
	err := r.db.WithContext(ctx).Take(&d, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &d, err
}

func (r *deliveryRepo) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error) {
	var d models.Delivery
	err := r.db.WithContext(ctx).Take(&d, "order_id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &d, err
}

func (r *deliveryRepo) LockByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	var d models.Delivery
	err := r.db.WithContext(ctx).Clauses(forUpdate()).Take(&d, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &d, err
}

func (r *deliveryRepo) LockByOrder(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error) {
	var d models.Delivery
	err := r.db.WithContext(ctx).Clauses(forUpdate()).Take(&d, "order_id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &d, err
}

func (r *deliveryRepo) ActiveForRider(ctx context.Context, riderID uuid.UUID) (*models.Delivery, error) {
	var d models.Delivery
	err := r.db.WithContext(ctx).
		Where("rider_id = ? AND status IN ?", riderID, []models.DeliveryStatus{
			models.DeliveryStatusAccepted, models.DeliveryStatusAtStore, models.DeliveryStatusPickedUp,
		}).
		Order("accepted_at DESC").
		Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &d, err
}

func (r *deliveryRepo) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Delivery{}).Where("id = ?", id).Updates(fields).Error
}

func (r *deliveryRepo) ClaimStale(ctx context.Context, before, now time.Time, limit int) ([]models.Delivery, error) {
	if limit <= 0 {
		limit = 100
	}
	var list []models.Delivery
	err := r.db.WithContext(ctx).
		Clauses(skipLocked()).
		Where("status = ? AND rider_id IS NULL", models.DeliveryStatusPendingAcceptance).
		Where("COALESCE(last_retried_at, pending_since) < ?", before).
		Order("COALESCE(last_retried_at, pending_since)").
		Limit(limit).
		Find(&list).Error
	if err != nil || len(list) == 0 {
		return list, err
	}

	ids := make([]uuid.UUID, 0, len(list))
	for _, d := range list {
		ids = append(ids, d.ID)
	}
	if err := r.db.WithContext(ctx).Model(&models.Delivery{}).Where("id IN ?", ids).Updates(map[string]any{
		"last_retried_at":   now,
		"dispatch_attempts": gorm.Expr("dispatch_attempts + 1"),
	}).Error; err != nil {
		return nil, err
	}
	for i := range list {
		list[i].LastRetriedAt = &now
		list[i].DispatchAttempts++
	}
	return list, nil
}
