package repository

import (
	"context"
	"errors"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StoreRepo interface {
	Create(ctx context.Context, s *models.Store) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
}

type storeRepo struct{ db *gorm.DB }

func NewStoreRepo(db *gorm.DB) StoreRepo { return &storeRepo{db: db} }

func (r *storeRepo) Create(ctx context.Context, s *models.Store) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *storeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var s models.Store
	err := r.db.WithContext(ctx).Take(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &s, err
}
