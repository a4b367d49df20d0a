package cache

import (
	"context"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/metrics"
)

// MemoryStore is an in-process Store. Values are copied on the way in and
// out so callers cannot mutate cached bytes.
type MemoryStore struct {
	lru *ShardedLRU[[]byte]
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{lru: NewShardedLRU[[]byte](capacity, 0)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.lru.Get(key)
	if !ok {
		metrics.CacheRequestsTotal.WithLabelValues(BackendMemory, "miss").Inc()
		return nil, false, nil
	}
	metrics.CacheRequestsTotal.WithLabelValues(BackendMemory, "hit").Inc()
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.lru.PutWithTTL(key, append([]byte(nil), value...), ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.lru.Delete(k)
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Stats returns hit and miss counts.
func (m *MemoryStore) Stats() (hits, misses int64) {
	return m.lru.Stats()
}
