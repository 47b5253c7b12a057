package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment-service/internal/service"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisClient backs the rider geo index and the dispatch sweep lock.
type RedisClient struct {
	client *redis.Client
	locker *redislock.Client
	log    *zap.Logger
}

func NewRedisClient(ctx context.Context, addr, password string, db int, log *zap.Logger) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	log.Info("redis connected", zap.String("addr", addr), zap.Int("db", db))

	return &RedisClient{client: rdb, locker: redislock.New(rdb), log: log}, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Obtain takes a best-effort distributed lock. Another holder yields
// service.ErrLockNotObtained.
func (r *RedisClient) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := r.locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, service.ErrLockNotObtained
	}
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}, nil
}
