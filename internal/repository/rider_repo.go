package repository

import (
	"context"
	"errors"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RiderRepo interface {
	Create(ctx context.Context, rd *models.Rider) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Rider, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Rider, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	SetBusy(ctx context.Context, id uuid.UUID, busy bool) error
	AddCash(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error

	// FindNearby returns online, idle riders within radiusKm of the point, closest first.
	FindNearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]models.RiderCandidate, error)
	// ListOnline returns every online rider with its last known position.
	ListOnline(ctx context.Context) ([]models.Rider, error)
	// FilterAvailable keeps the ids of riders that are online and idle.
	FilterAvailable(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}

type riderRepo struct{ db *gorm.DB }

func NewRiderRepo(db *gorm.DB) RiderRepo { return &riderRepo{db: db} }

func (r *riderRepo) Create(ctx context.Context, rd *models.Rider) error {
	return r.db.WithContext(ctx).Create(rd).Error
}

func (r *riderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Rider, error) {
	var rd models.Rider
	err := r.db.WithContext(ctx).Take(&rd, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &rd, err
}

func (r *riderRepo) LockByID(ctx context.Context, id uuid.UUID) (*models.Rider, error) {
	var rd models.Rider
	err := r.db.WithContext(ctx).Clauses(forUpdate()).Take(&rd, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &rd, err
}

func (r *riderRepo) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Rider{}).Where("id = ?", id).Updates(fields).Error
}

func (r *riderRepo) SetBusy(ctx context.Context, id uuid.UUID, busy bool) error {
	return r.db.WithContext(ctx).Model(&models.Rider{}).Where("id = ?", id).Update("is_busy", busy).Error
}

func (r *riderRepo) AddCash(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).Exec(`
UPDATE riders
SET cash_on_hand = cash_on_hand + @amt
WHERE id = @id
`, map[string]any{"id": id, "amt": amount}).Error
}

func (r *riderRepo) FindNearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]models.RiderCandidate, error) {
	var list []models.RiderCandidate
	err := r.db.WithContext(ctx).Raw(`
SELECT id AS rider_id, distance_km
FROM (
    SELECT id,
           2 * 6371.0088 * asin(sqrt(LEAST(1.0,
               power(sin(radians(latitude - @lat) / 2), 2) +
               cos(radians(@lat)) * cos(radians(latitude)) *
               power(sin(radians(longitude - @lng) / 2), 2)
           ))) AS distance_km
    FROM riders
    WHERE is_online AND NOT is_busy
) r
WHERE distance_km <= @radius
ORDER BY distance_km, id
LIMIT @limit
`, map[string]any{
		"lat":    lat,
		"lng":    lng,
		"radius": radiusKm,
		"limit":  limit,
	}).Scan(&list).Error
	return list, err
}

func (r *riderRepo) ListOnline(ctx context.Context) ([]models.Rider, error) {
	var list []models.Rider
	err := r.db.WithContext(ctx).Where("is_online").Order("id").Find(&list).Error
	return list, err
}

func (r *riderRepo) FilterAvailable(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var found []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Rider{}).
		Where("id IN ? AND is_online AND NOT is_busy", ids).
		Pluck("id", &found).Error
	for _, id := range found {
		out[id] = true
	}
	return out, err
}
