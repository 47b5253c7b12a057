package cache

import (
	"context"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const ridersGeoKey = "geo:riders"

// RiderGeoIndex keeps online riders in a Redis GEO set. The set only knows
// positions, so candidates are filtered against the database for presence and load.
type RiderGeoIndex struct {
	redis  *RedisClient
	riders repository.RiderRepo
	log    *zap.Logger
}

func NewRiderGeoIndex(rc *RedisClient, riders repository.RiderRepo, log *zap.Logger) *RiderGeoIndex {
	return &RiderGeoIndex{redis: rc, riders: riders, log: log}
}

func (g *RiderGeoIndex) UpdatePosition(ctx context.Context, riderID uuid.UUID, lat, lng float64, online bool) error {
	if !online {
		return g.redis.client.ZRem(ctx, ridersGeoKey, riderID.String()).Err()
	}
	return g.redis.client.GeoAdd(ctx, ridersGeoKey, &redis.GeoLocation{
		Name:      riderID.String(),
		Longitude: lng,
		Latitude:  lat,
	}).Err()
}

// Seed rebuilds the set from the riders table.
func (g *RiderGeoIndex) Seed(ctx context.Context) (int, error) {
	riders, err := g.riders.ListOnline(ctx)
	if err != nil {
		return 0, fmt.Errorf("list online riders: %w", err)
	}
	_, err = g.redis.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, ridersGeoKey)
		for _, rd := range riders {
			pipe.GeoAdd(ctx, ridersGeoKey, &redis.GeoLocation{
				Name:      rd.ID.String(),
				Longitude: rd.Longitude,
				Latitude:  rd.Latitude,
			})
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("seed rider geo set: %w", err)
	}
	g.log.Info("rider geo set seeded", zap.Int("riders", len(riders)))
	return len(riders), nil
}

// Nearby widens the search until limit available riders are found or the radius
// holds no more members. Busy riders stay in the set while they deliver.
func (g *RiderGeoIndex) Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]models.RiderCandidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	for count := limit * 4; ; count *= 2 {
		locs, err := g.redis.client.GeoSearchLocation(ctx, ridersGeoKey, &redis.GeoSearchLocationQuery{
			GeoSearchQuery: redis.GeoSearchQuery{
				Longitude:  lng,
				Latitude:   lat,
				Radius:     radiusKm,
				RadiusUnit: "km",
				Sort:       "ASC",
				Count:      count,
			},
			WithDist: true,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("geosearch riders: %w", err)
		}
		out, err := g.available(ctx, locs, limit)
		if err != nil {
			return nil, err
		}
		if len(out) == limit || len(locs) < count {
			return out, nil
		}
	}
}

func (g *RiderGeoIndex) available(ctx context.Context, locs []redis.GeoLocation, limit int) ([]models.RiderCandidate, error) {
	ids := make([]uuid.UUID, 0, len(locs))
	dist := make(map[uuid.UUID]float64, len(locs))
	for _, l := range locs {
		id, err := uuid.Parse(l.Name)
		if err != nil {
			g.log.Warn("dropping malformed geo member", zap.String("member", l.Name))
			g.redis.client.ZRem(ctx, ridersGeoKey, l.Name)
			continue
		}
		ids = append(ids, id)
		dist[id] = l.Dist
	}
	available, err := g.riders.FilterAvailable(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.RiderCandidate, 0, limit)
	for _, id := range ids {
		if !available[id] {
			continue
		}
		out = append(out, models.RiderCandidate{RiderID: id, DistanceKm: dist[id]})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
