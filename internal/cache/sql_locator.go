package cache

import (
	"context"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
)

// SQLRiderLocator answers rider searches straight from PostgreSQL. It is used when
// Redis is disabled; positions are already persisted by the service.
type SQLRiderLocator struct {
	riders repository.RiderRepo
}

func NewSQLRiderLocator(riders repository.RiderRepo) *SQLRiderLocator {
	return &SQLRiderLocator{riders: riders}
}

func (l *SQLRiderLocator) Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]models.RiderCandidate, error) {
	return l.riders.FindNearby(ctx, lat, lng, radiusKm, limit)
}

func (l *SQLRiderLocator) UpdatePosition(context.Context, uuid.UUID, float64, float64, bool) error {
	return nil
}
