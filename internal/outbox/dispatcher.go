package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"
	"fulfillment-service/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler executes one job. Errors wrapping service.ErrPermanent are not retried.
type Handler func(ctx context.Context, job models.Job) error

// Dispatcher drains the jobs table at least once per job with exponential backoff.
type Dispatcher struct {
	repo         *repository.Repository
	log          *zap.Logger
	handlers     map[models.JobKind]Handler
	DispatcherID string

	BatchSize      int
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	now func() time.Time
}

func NewDispatcher(repo *repository.Repository, log *zap.Logger, maxAttempts int) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 20
	}
	return &Dispatcher{
		repo:           repo,
		log:            log,
		handlers:       map[models.JobKind]Handler{},
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		LockTimeout:    time.Minute,
		MaxAttempts:    maxAttempts,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     10 * time.Minute,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) Handle(kind models.JobKind, h Handler) {
	d.handlers[kind] = h
}

// Backoff is the delay before retry number attempt+1: initial, doubling, capped at max.
func Backoff(initial, max time.Duration, attempt int) time.Duration {
	b := initial
	for i := 1; i < attempt; i++ {
		b *= 2
		if b >= max {
			return max
		}
	}
	return min(b, max)
}

// DispatchOnce claims one batch and runs it. It returns how many jobs were processed.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	now := d.now()
	jobs, err := d.repo.Jobs.Claim(ctx, d.DispatcherID, now, now.Add(-d.LockTimeout), d.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim jobs: %w", err)
	}
	for _, job := range jobs {
		d.run(ctx, job)
	}
	return len(jobs), nil
}

func (d *Dispatcher) run(ctx context.Context, job models.Job) {
	h, ok := d.handlers[job.Kind]
	if !ok {
		d.markDead(ctx, job, fmt.Sprintf("no handler for job kind %s", job.Kind))
		return
	}
	err := h(ctx, job)
	if err == nil {
		if err := d.repo.Jobs.MarkDone(ctx, job.ID); err != nil {
			d.log.Error("failed to mark job done", zap.Stringer("job_id", job.ID), zap.Error(err))
		}
		return
	}
	if errors.Is(err, service.ErrPermanent) || int(job.Attempts) >= d.MaxAttempts {
		d.markDead(ctx, job, err.Error())
		return
	}

	next := d.now().Add(Backoff(d.InitialBackoff, d.MaxBackoff, int(job.Attempts)))
	if merr := d.repo.Jobs.MarkFailed(ctx, job.ID, err.Error(), next); merr != nil {
		d.log.Error("failed to mark job failed", zap.Stringer("job_id", job.ID), zap.Error(merr))
	}
	d.log.Warn("job failed, will retry",
		zap.Stringer("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Int32("attempt", job.Attempts),
		zap.Time("next_attempt_at", next),
		zap.Error(err),
	)
}

func (d *Dispatcher) markDead(ctx context.Context, job models.Job, msg string) {
	if err := d.repo.Jobs.MarkDead(ctx, job.ID, msg); err != nil {
		d.log.Error("failed to mark job dead", zap.Stringer("job_id", job.ID), zap.Error(err))
	}
	d.log.Error("job moved to DEAD",
		zap.String("severity", "critical"),
		zap.Stringer("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("key", job.IdempotencyKey),
		zap.Int32("attempts", job.Attempts),
		zap.String("error", msg),
	)
}
