package repository

import (
	"context"
	"time"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type JobRepo interface {
	// Enqueue inserts the job unless one with the same idempotency key exists.
	Enqueue(ctx context.Context, j *models.Job) (bool, error)
	// Claim marks up to limit ready jobs as PROCESSING for owner. PROCESSING rows whose
	// lock is older than staleBefore are reclaimed.
	Claim(ctx context.Context, owner string, now, staleBefore time.Time, limit int) ([]models.Job, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, next time.Time) error
	MarkDead(ctx context.Context, id uuid.UUID, errMsg string) error
	// OpenRefunds counts unfinished refund jobs of the payment other than exclude.
	OpenRefunds(ctx context.Context, paymentID, exclude uuid.UUID) (int64, error)
}

type jobRepo struct{ db *gorm.DB }

func NewJobRepo(db *gorm.DB) JobRepo { return &jobRepo{db: db} }

func (r *jobRepo) Enqueue(ctx context.Context, j *models.Job) (bool, error) {
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "idempotency_key"}}, DoNothing: true}).
		Create(j)
	return tx.RowsAffected > 0, tx.Error
}

func (r *jobRepo) Claim(ctx context.Context, owner string, now, staleBefore time.Time, limit int) ([]models.Job, error) {
	var claimed []models.Job
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where(`(status IN ? AND next_attempt_at <= ?) OR (status = ? AND locked_at <= ?)`,
				[]models.JobStatus{models.JobStatusPending, models.JobStatusFailed}, now,
				models.JobStatusProcessing, staleBefore).
			Order("next_attempt_at, created_at").
			Limit(limit).
			Clauses(skipLocked()).
			Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(claimed))
		for _, j := range claimed {
			ids = append(ids, j.ID)
		}
		if err := tx.Model(&models.Job{}).Where("id IN ?", ids).Updates(map[string]any{
			"status":    models.JobStatusProcessing,
			"locked_at": now,
			"locked_by": owner,
			"attempts":  gorm.Expr("attempts + 1"),
		}).Error; err != nil {
			return err
		}
		for i := range claimed {
			claimed[i].Status = models.JobStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &owner
			claimed[i].Attempts++
		}
		return nil
	})
	return claimed, err
}

func (r *jobRepo) MarkDone(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":     models.JobStatusDone,
		"last_error": nil,
		"locked_at":  nil,
		"locked_by":  nil,
	}).Error
}

func (r *jobRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, next time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":          models.JobStatusFailed,
		"last_error":      errMsg,
		"next_attempt_at": next,
		"locked_at":       nil,
		"locked_by":       nil,
	}).Error
}

func (r *jobRepo) MarkDead(ctx context.Context, id uuid.UUID, errMsg string) error {
	return r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":     models.JobStatusDead,
		"last_error": errMsg,
		"locked_at":  nil,
		"locked_by":  nil,
	}).Error
}

func (r *jobRepo) OpenRefunds(ctx context.Context, paymentID, exclude uuid.UUID) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("kind = ? AND id <> ? AND payload->>'payment_id' = ?", models.JobKindRefund, exclude, paymentID.String()).
		Where("status IN ?", []models.JobStatus{models.JobStatusPending, models.JobStatusProcessing, models.JobStatusFailed}).
		Count(&cnt).Error
	return cnt, err
}
