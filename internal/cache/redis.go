package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by a shared Redis deployment.
type RedisStore struct {
	client redis.UniversalClient
	owned  bool
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. Close does not close it.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheRequestsTotal.WithLabelValues(BackendRedis, "miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.CacheRequestsTotal.WithLabelValues(BackendRedis, "error").Inc()
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	metrics.CacheRequestsTotal.WithLabelValues(BackendRedis, "hit").Inc()
	return raw, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}
