package repository

import (
	"context"
	"errors"
	"time"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PickUnitRepo interface {
	CreateBatch(ctx context.Context, units []models.PickUnit) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PickUnit, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.PickUnit, error)
	// LockByOrder locks every unit of the order in a stable order.
	LockByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PickUnit, error)
	ListByWorker(ctx context.Context, workerID uuid.UUID, status models.PickUnitStatus) ([]models.PickUnit, error)
	CountOpen(ctx context.Context, orderID uuid.UUID) (int64, error)

	AssignOpen(ctx context.Context, orderID, workerID uuid.UUID, at time.Time) (int64, error)
	// ClaimNext hands the oldest unassigned pending unit of the store to the worker,
	// skipping rows another transaction is claiming.
	ClaimNext(ctx context.Context, storeID, workerID uuid.UUID, at time.Time) (*models.PickUnit, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
}

type pickUnitRepo struct{ db *gorm.DB }

func NewPickUnitRepo(db *gorm.DB) PickUnitRepo { return &pickUnitRepo{db: db} }

func (r *pickUnitRepo) CreateBatch(ctx context.Context, units []models.PickUnit) error {
	if len(units) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&units).Error
}

func (r *pickUnitRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PickUnit, error) {
	var u models.PickUnit
	err := r.db.WithContext(ctx).Take(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &u, err
}

func (r *pickUnitRepo) LockByID(ctx context.Context, id uuid.UUID) (*models.PickUnit, error) {
	var u models.PickUnit
	err := r.db.WithContext(ctx).Clauses(forUpdate()).Take(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &u, err
}

func (r *pickUnitRepo) LockByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PickUnit, error) {
	var list []models.PickUnit
	err := r.db.WithContext(ctx).
		Clauses(forUpdate()).
		Where("order_id = ?", orderID).
		Order("created_at, id").
		Find(&list).Error
	return list, err
}

func (r *pickUnitRepo) ListByWorker(ctx context.Context, workerID uuid.UUID, status models.PickUnitStatus) ([]models.PickUnit, error) {
	var list []models.PickUnit
	err := r.db.WithContext(ctx).
		Where("worker_id = ? AND status = ?", workerID, status).
		Order("assigned_at, created_at").
		Find(&list).Error
	return list, err
}

func (r *pickUnitRepo) CountOpen(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&models.PickUnit{}).
		Where("order_id = ? AND status IN ?", orderID, []models.PickUnitStatus{models.PickUnitPending, models.PickUnitIssue}).
		Count(&cnt).Error
	return cnt, err
}

func (r *pickUnitRepo) AssignOpen(ctx context.Context, orderID, workerID uuid.UUID, at time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.PickUnit{}).
		Where("order_id = ? AND status = ? AND worker_id IS NULL", orderID, models.PickUnitPending).
		Updates(map[string]any{"worker_id": workerID, "assigned_at": at})
	return tx.RowsAffected, tx.Error
}

func (r *pickUnitRepo) ClaimNext(ctx context.Context, storeID, workerID uuid.UUID, at time.Time) (*models.PickUnit, error) {
	var u models.PickUnit
	err := r.db.WithContext(ctx).
		Clauses(skipLocked()).
		Where("store_id = ? AND status = ? AND worker_id IS NULL", storeID, models.PickUnitPending).
		Order("created_at, id").
		Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.UpdateFields(ctx, u.ID, map[string]any{"worker_id": workerID, "assigned_at": at}); err != nil {
		return nil, err
	}
	u.WorkerID = &workerID
	u.AssignedAt = &at
	return &u, nil
}

func (r *pickUnitRepo) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.PickUnit{}).Where("id = ?", id).Updates(fields).Error
}
