package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hwlab/inventory/internal/core/domain"
)

const (
	availabilityKeyPrefix = "availability:"
	idempotencyKeyPrefix  = "request:"
	idempotencyKeyTTL     = 24 * time.Hour
	availabilitySnapTTL   = 30 * time.Second
)

// RedisAdapter caches availability snapshots and deduplicates requests. It is
// never the source of truth: snapshots carry a short TTL and are dropped
// after every committed mutation, so reads fall back to MySQL.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *RedisAdapter) ClearIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

func (r *RedisAdapter) GetAvailability(ctx context.Context, hardwareName string) (*domain.Availability, bool, error) {
	raw, err := r.client.Get(ctx, availabilityKeyPrefix+hardwareName).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var av domain.Availability
	if err := json.Unmarshal(raw, &av); err != nil {
		// Treat a corrupt entry as a miss; the next write replaces it.
		return nil, false, nil
	}
	return &av, true, nil
}

func (r *RedisAdapter) SetAvailability(ctx context.Context, av domain.Availability) error {
	raw, err := json.Marshal(av)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, availabilityKeyPrefix+av.HardwareName, raw, availabilitySnapTTL).Err()
}

func (r *RedisAdapter) InvalidateAvailability(ctx context.Context, hardwareName string) error {
	return r.client.Del(ctx, availabilityKeyPrefix+hardwareName).Err()
}
