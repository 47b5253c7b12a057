package repository

import (
	"context"
	"errors"
	"time"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WorkerRepo interface {
	Create(ctx context.Context, w *models.Worker) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Worker, error)
	// LockNextEligible locks the picker of the store that was assigned work least recently.
	// Pickers locked by another assignment are skipped; when all are locked it waits.
	LockNextEligible(ctx context.Context, storeID uuid.UUID) (*models.Worker, error)
	TouchAssigned(ctx context.Context, id uuid.UUID, at time.Time) error
}

type workerRepo struct{ db *gorm.DB }

func NewWorkerRepo(db *gorm.DB) WorkerRepo { return &workerRepo{db: db} }

func (r *workerRepo) Create(ctx context.Context, w *models.Worker) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *workerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Worker, error) {
	var w models.Worker
	err := r.db.WithContext(ctx).Take(&w, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &w, err
}

func (r *workerRepo) LockNextEligible(ctx context.Context, storeID uuid.UUID) (*models.Worker, error) {
	w, err := r.nextEligible(ctx, storeID, skipLocked())
	if w != nil || err != nil {
		return w, err
	}
	return r.nextEligible(ctx, storeID, forUpdate())
}

func (r *workerRepo) nextEligible(ctx context.Context, storeID uuid.UUID, lock clause.Locking) (*models.Worker, error) {
	var w models.Worker
	err := r.db.WithContext(ctx).
		Clauses(lock).
		Where("store_id = ? AND can_pick", storeID).
		Order("last_assigned_at ASC NULLS FIRST, id").
		Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &w, err
}

func (r *workerRepo) TouchAssigned(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Worker{}).Where("id = ?", id).Update("last_assigned_at", at).Error
}
