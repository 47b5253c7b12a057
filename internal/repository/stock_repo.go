package repository

import (
	"context"
	"errors"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StockRepo interface {
	GetSummary(ctx context.Context, id uuid.UUID) (*models.InventorySummary, error)
	LockSummary(ctx context.Context, id uuid.UUID) (*models.InventorySummary, error)
	CreateSummary(ctx context.Context, s *models.InventorySummary) error

	GetLocation(ctx context.Context, id uuid.UUID) (*models.StockLocation, error)
	CreateLocation(ctx context.Context, l *models.StockLocation) error

	// ReservedQuantity sums the quantity held by PENDING and ISSUE pick units of the summary.
	ReservedQuantity(ctx context.Context, summaryID uuid.UUID) (int32, error)
	// ListAllocatable returns the summary's granular records with their reservations,
	// ordered by location code ascending.
	ListAllocatable(ctx context.Context, summaryID uuid.UUID) ([]models.AllocatableRecord, error)

	EnsureRecord(ctx context.Context, summaryID, locationID uuid.UUID) error
	// AdjustRecord: quantity += delta, only if the result stays >= 0.
	AdjustRecord(ctx context.Context, summaryID, locationID uuid.UUID, delta int32) (bool, error)
	RecomputeSummary(ctx context.Context, summaryID uuid.UUID) error

	Audit(ctx context.Context) ([]models.LedgerMismatch, error)
	RebuildSummaries(ctx context.Context) (int64, error)
}

type stockRepo struct{ db *gorm.DB }

func NewStockRepo(db *gorm.DB) StockRepo { return &stockRepo{db: db} }

func (r *stockRepo) GetSummary(ctx context.Context, id uuid.UUID) (*models.InventorySummary, error) {
	var s models.InventorySummary
	err := r.db.WithContext(ctx).Take(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &s, err
}

func (r *stockRepo) LockSummary(ctx context.Context, id uuid.UUID) (*models.InventorySummary, error) {
	var s models.InventorySummary
	err := r.db.WithContext(ctx).Clauses(forUpdate()).Take(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &s, err
}

func (r *stockRepo) CreateSummary(ctx context.Context, s *models.InventorySummary) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *stockRepo) GetLocation(ctx context.Context, id uuid.UUID) (*models.StockLocation, error) {
	var l models.StockLocation
	err := r.db.WithContext(ctx).Take(&l, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &l, err
}

func (r *stockRepo) CreateLocation(ctx context.Context, l *models.StockLocation) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *stockRepo) ReservedQuantity(ctx context.Context, summaryID uuid.UUID) (int32, error) {
	var reserved int32
	err := r.db.WithContext(ctx).Raw(`
SELECT COALESCE(SUM(quantity), 0)
FROM pick_units
WHERE summary_id = ? AND status IN ?
`, summaryID, []models.PickUnitStatus{models.PickUnitPending, models.PickUnitIssue}).Scan(&reserved).Error
	return reserved, err
}

func (r *stockRepo) ListAllocatable(ctx context.Context, summaryID uuid.UUID) ([]models.AllocatableRecord, error) {
	var list []models.AllocatableRecord
	err := r.db.WithContext(ctx).Raw(`
SELECT sr.id AS record_id,
       sr.location_id,
       sl.code AS location_code,
       sr.quantity,
       COALESCE(pu.reserved, 0) AS reserved
FROM stock_records sr
JOIN stock_locations sl ON sl.id = sr.location_id
LEFT JOIN (
    SELECT location_id, SUM(quantity) AS reserved
    FROM pick_units
    WHERE summary_id = @sid AND status IN ('PENDING','ISSUE')
    GROUP BY location_id
) pu ON pu.location_id = sr.location_id
WHERE sr.summary_id = @sid
  AND sr.quantity - COALESCE(pu.reserved, 0) > 0
ORDER BY sl.code ASC
`, map[string]any{"sid": summaryID}).Scan(&list).Error
	return list, err
}

func (r *stockRepo) EnsureRecord(ctx context.Context, summaryID, locationID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "summary_id"}, {Name: "location_id"}},
			DoNothing: true,
		}).
		Create(&models.StockRecord{SummaryID: summaryID, LocationID: locationID}).Error
}

func (r *stockRepo) AdjustRecord(ctx context.Context, summaryID, locationID uuid.UUID, delta int32) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE stock_records
SET quantity = quantity + @delta,
    updated_at = now()
WHERE summary_id = @sid
  AND location_id = @lid
  AND quantity + @delta >= 0
`, map[string]any{
		"sid":   summaryID,
		"lid":   locationID,
		"delta": delta,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *stockRepo) RecomputeSummary(ctx context.Context, summaryID uuid.UUID) error {
	return r.db.WithContext(ctx).Exec(`
UPDATE inventory_summaries s
SET stock_quantity = t.total,
    is_available   = t.total > 0
FROM (
    SELECT COALESCE(SUM(quantity), 0)::int AS total
    FROM stock_records
    WHERE summary_id = @sid
) t
WHERE s.id = @sid
`, map[string]any{"sid": summaryID}).Error
}

func (r *stockRepo) Audit(ctx context.Context) ([]models.LedgerMismatch, error) {
	var list []models.LedgerMismatch
	err := r.db.WithContext(ctx).Raw(`
SELECT s.id AS summary_id,
       s.store_id,
       s.item_id,
       s.stock_quantity,
       COALESCE(SUM(sr.quantity), 0)::int AS granular_total
FROM inventory_summaries s
LEFT JOIN stock_records sr ON sr.summary_id = s.id
GROUP BY s.id, s.store_id, s.item_id, s.stock_quantity
HAVING s.stock_quantity <> COALESCE(SUM(sr.quantity), 0)
ORDER BY s.store_id, s.item_id
`).Scan(&list).Error
	return list, err
}

func (r *stockRepo) RebuildSummaries(ctx context.Context) (int64, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE inventory_summaries s
SET stock_quantity = t.total,
    is_available   = t.total > 0
FROM (
    SELECT s2.id, COALESCE(SUM(sr.quantity), 0)::int AS total
    FROM inventory_summaries s2
    LEFT JOIN stock_records sr ON sr.summary_id = s2.id
    GROUP BY s2.id
) t
WHERE s.id = t.id
  AND (s.stock_quantity <> t.total OR s.is_available <> (t.total > 0))
`)
	return tx.RowsAffected, tx.Error
}
