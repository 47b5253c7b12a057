package repository

import (
	"context"
	"errors"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderRepo interface {
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// LockByID takes the order row lock and loads the lines.
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error

	ListLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error)
	UpdateLineQuantity(ctx context.Context, lineID uuid.UUID, qty int32) error
	DeleteLine(ctx context.Context, lineID uuid.UUID) error
}

type orderRepo struct{ db *gorm.DB }

func NewOrderRepo(db *gorm.DB) OrderRepo { return &orderRepo{db: db} }

func (r *orderRepo) Create(ctx context.Context, o *models.Order) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var ord models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") }).
		Take(&ord, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &ord, err
}

func (r *orderRepo) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var ord models.Order
	err := r.db.WithContext(ctx).Clauses(forUpdate()).Take(&ord, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	lines, err := r.ListLines(ctx, id)
	if err != nil {
		return nil, err
	}
	ord.Lines = lines
	return &ord, nil
}

func (r *orderRepo) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(fields).Error
}

func (r *orderRepo) ListLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at, id").Find(&lines).Error
	return lines, err
}

func (r *orderRepo) UpdateLineQuantity(ctx context.Context, lineID uuid.UUID, qty int32) error {
	return r.db.WithContext(ctx).Model(&models.OrderLine{}).Where("id = ?", lineID).Update("quantity", qty).Error
}

func (r *orderRepo) DeleteLine(ctx context.Context, lineID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.OrderLine{}, "id = ?", lineID).Error
}
