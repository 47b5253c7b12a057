package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sweepLockKey = "fulfillment:dispatch-retry-sweep"

type DispatchOptions struct {
	RadiusKm       float64
	TopN           int
	RetryThreshold time.Duration
	SweepBatch     int
	// SweepLockTTL bounds how long one instance may hold the sweep lock.
	SweepLockTTL time.Duration
}

func DefaultDispatchOptions() DispatchOptions {
	return DispatchOptions{
		RadiusKm:       5,
		TopN:           5,
		RetryThreshold: time.Minute,
		SweepBatch:     100,
		SweepLockTTL:   50 * time.Second,
	}
}

// Dispatcher offers ready deliveries to nearby riders.
type Dispatcher struct {
	repo    *repository.Repository
	locator RiderLocator
	locker  Locker
	opts    DispatchOptions
	log     *zap.Logger
	now     func() time.Time
}

// NewDispatcher builds a dispatcher. locker may be nil, in which case every instance
// sweeps and SKIP LOCKED keeps them apart.
func NewDispatcher(repo *repository.Repository, locator RiderLocator, locker Locker, opts DispatchOptions, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:    repo,
		locator: locator,
		locker:  locker,
		opts:    opts,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch queues a delivery offer for each of the closest available riders and
// returns how many were offered. Finding nobody is not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, deliveryID uuid.UUID) (int, error) {
	del, err := d.repo.Deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return 0, err
	}
	if del == nil {
		return 0, ErrDeliveryNotFound
	}
	if del.Status != models.DeliveryStatusPendingAcceptance || del.RiderID != nil {
		return 0, ErrDeliveryUnavailable
	}
	ord, err := d.repo.Orders.GetByID(ctx, del.OrderID)
	if err != nil {
		return 0, err
	}
	if ord == nil {
		return 0, ErrOrderNotFound
	}
	store, err := d.repo.Stores.GetByID(ctx, ord.StoreID)
	if err != nil {
		return 0, err
	}
	if store == nil {
		return 0, fmt.Errorf("%w: store %s", ErrNotFound, ord.StoreID)
	}

	riders, err := d.locator.Nearby(ctx, store.Latitude, store.Longitude, d.opts.RadiusKm, d.opts.TopN)
	if err != nil {
		return 0, fmt.Errorf("find riders: %w", err)
	}
	if len(riders) == 0 {
		d.log.Warn("no riders available for delivery",
			zap.Stringer("delivery_id", del.ID),
			zap.Stringer("store_id", store.ID),
			zap.Float64("radius_km", d.opts.RadiusKm),
		)
		return 0, nil
	}

	err = d.repo.WithTx(ctx, func(tx *repository.Repository) error {
		for _, r := range riders {
			key := fmt.Sprintf("offer:%s:%s:%d", del.ID, r.RiderID, del.DispatchAttempts)
			if err := enqueueNotify(ctx, tx, key, Notification{
				RecipientType: RecipientRider,
				RecipientID:   r.RiderID,
				Type:          NotifyDeliveryOffer,
				Payload: map[string]any{
					"delivery_id": del.ID.String(),
					"order_id":    ord.ID.String(),
					"store_id":    store.ID.String(),
					"distance_km": r.DistanceKm,
				},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	d.log.Info("delivery offered",
		zap.Stringer("delivery_id", del.ID),
		zap.Int("riders", len(riders)),
		zap.Int32("attempt", del.DispatchAttempts),
	)
	return len(riders), nil
}

// RetrySweep re-dispatches deliveries nobody accepted within the retry threshold.
// It returns how many deliveries were swept.
func (d *Dispatcher) RetrySweep(ctx context.Context) (int, error) {
	if d.locker != nil {
		release, err := d.locker.Obtain(ctx, sweepLockKey, d.opts.SweepLockTTL)
		if errors.Is(err, ErrLockNotObtained) {
			d.log.Debug("retry sweep running elsewhere")
			return 0, nil
		}
		if err != nil {
			// without the lock SKIP LOCKED still keeps instances from double-claiming
			d.log.Warn("sweep lock unavailable, sweeping anyway", zap.Error(err))
		} else {
			defer func() {
				if err := release(context.Background()); err != nil {
					d.log.Warn("failed to release sweep lock", zap.Error(err))
				}
			}()
		}
	}

	now := d.now()
	var stale []models.Delivery
	err := d.repo.WithTx(ctx, func(tx *repository.Repository) error {
		var err error
		stale, err = tx.Deliveries.ClaimStale(ctx, now.Add(-d.opts.RetryThreshold), now, d.opts.SweepBatch)
		return err
	})
	if err != nil {
		return 0, err
	}

	for _, del := range stale {
		if _, err := d.Dispatch(ctx, del.ID); err != nil && !errors.Is(err, ErrDeliveryUnavailable) {
			d.log.Warn("re-dispatch failed", zap.Stringer("delivery_id", del.ID), zap.Error(err))
		}
	}
	if len(stale) > 0 {
		d.log.Info("retry sweep finished", zap.Int("deliveries", len(stale)))
	}
	return len(stale), nil
}
