package service

import (
	"context"
	"errors"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger owns every write to granular stock and keeps the summary projection in step.
type Ledger struct {
	repo *repository.Repository
	log  *zap.Logger
}

func NewLedger(repo *repository.Repository, log *zap.Logger) *Ledger {
	return &Ledger{repo: repo, log: log}
}

// AdjustGranular applies delta to the (summary, location) record inside tx and
// recomputes the summary. The record is created at 0 when missing.
// Lock order is summary, then record.
func (l *Ledger) AdjustGranular(ctx context.Context, tx *repository.Repository, summaryID, locationID uuid.UUID, delta int32) error {
	if delta == 0 {
		return nil
	}
	sum, err := tx.Stock.LockSummary(ctx, summaryID)
	if err != nil {
		return fmt.Errorf("lock summary: %w", err)
	}
	if sum == nil {
		return fmt.Errorf("%w: %s", ErrItemNotFound, summaryID)
	}
	if err := tx.Stock.EnsureRecord(ctx, summaryID, locationID); err != nil {
		return fmt.Errorf("ensure stock record: %w", err)
	}
	ok, err := tx.Stock.AdjustRecord(ctx, summaryID, locationID, delta)
	if err != nil {
		return fmt.Errorf("adjust stock record: %w", err)
	}
	if !ok {
		l.log.Error("granular stock would go negative",
			zap.String("severity", "critical"),
			zap.Stringer("summary_id", summaryID),
			zap.Stringer("location_id", locationID),
			zap.Int32("delta", delta),
		)
		return fmt.Errorf("%w: summary %s location %s delta %d", ErrNegativeStock, summaryID, locationID, delta)
	}
	if err := tx.Stock.RecomputeSummary(ctx, summaryID); err != nil {
		return fmt.Errorf("recompute summary: %w", err)
	}
	return nil
}

func (l *Ledger) ReceiveStock(ctx context.Context, summaryID, locationID uuid.UUID, qty int32) (*models.InventorySummary, error) {
	if qty <= 0 {
		return nil, ErrQuantityInvalid
	}
	sum, err := l.repo.Stock.GetSummary(ctx, summaryID)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		return nil, ErrItemNotFound
	}
	loc, err := l.repo.Stock.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, ErrLocationNotFound
	}
	if loc.StoreID != sum.StoreID {
		return nil, ErrLocationStore
	}

	err = l.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := l.AdjustGranular(ctx, tx, summaryID, locationID, qty); err != nil {
			return err
		}
		sum, err = tx.Stock.GetSummary(ctx, summaryID)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("stock received",
		zap.Stringer("summary_id", summaryID),
		zap.String("location", loc.Code),
		zap.Int32("quantity", qty),
		zap.Int32("stock_quantity", sum.StockQuantity),
	)
	return sum, nil
}

// Audit reports summaries whose cached quantity disagrees with granular stock. It never
// corrects them.
func (l *Ledger) Audit(ctx context.Context) ([]models.LedgerMismatch, error) {
	list, err := l.repo.Stock.Audit(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range list {
		l.log.Error("ledger mismatch",
			zap.String("severity", "critical"),
			zap.Stringer("summary_id", m.SummaryID),
			zap.Stringer("store_id", m.StoreID),
			zap.Stringer("item_id", m.ItemID),
			zap.Int32("stock_quantity", m.StockQuantity),
			zap.Int32("granular_total", m.GranularTotal),
		)
	}
	if len(list) > 0 {
		return list, fmt.Errorf("%w: %d summaries out of step", ErrLedgerDesync, len(list))
	}
	return list, nil
}

// Rebuild rewrites every summary from granular stock and returns how many changed.
func (l *Ledger) Rebuild(ctx context.Context) (int64, error) {
	n, err := l.repo.Stock.RebuildSummaries(ctx)
	if err != nil {
		return 0, err
	}
	l.log.Warn("inventory summaries rebuilt from granular stock", zap.Int64("changed", n))
	return n, nil
}

// AuditAll runs Audit for the periodic scheduler. A desync is already logged as
// critical, so only the count is returned.
func (l *Ledger) AuditAll(ctx context.Context) (int, error) {
	list, err := l.Audit(ctx)
	if err != nil && !errors.Is(err, ErrLedgerDesync) {
		return 0, err
	}
	return len(list), nil
}
