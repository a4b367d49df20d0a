package cache

import (
	"time"

	"github.com/cespare/xxhash/v2"
)

const defaultShardCount = 16

// ShardedLRU spreads string keys over independent LRU shards selected by
// xxhash, so concurrent callers rarely contend on one mutex.
type ShardedLRU[V any] struct {
	shards []*LRU[string, V]
}

func NewShardedLRU[V any](totalCapacity int, ttl time.Duration) *ShardedLRU[V] {
	return NewShardedLRUWithCount[V](totalCapacity, ttl, defaultShardCount)
}

func NewShardedLRUWithCount[V any](totalCapacity int, ttl time.Duration, shardCount int) *ShardedLRU[V] {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	perShard := totalCapacity / shardCount
	if perShard < 1 {
		perShard = 1
	}

	shards := make([]*LRU[string, V], shardCount)
	for i := range shards {
		shards[i] = NewLRU[string, V](perShard, ttl)
	}
	return &ShardedLRU[V]{shards: shards}
}

func (s *ShardedLRU[V]) shard(key string) *LRU[string, V] {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

func (s *ShardedLRU[V]) Get(key string) (V, bool) {
	return s.shard(key).Get(key)
}

func (s *ShardedLRU[V]) Put(key string, value V) {
	s.shard(key).Put(key, value)
}

func (s *ShardedLRU[V]) PutWithTTL(key string, value V, ttl time.Duration) {
	s.shard(key).PutWithTTL(key, value, ttl)
}

func (s *ShardedLRU[V]) Delete(key string) {
	s.shard(key).Delete(key)
}

// Len returns the total number of items across all shards.
func (s *ShardedLRU[V]) Len() int {
	total := 0
	for _, sh := range s.shards {
		total += sh.Len()
	}
	return total
}

// Stats aggregates hit and miss counts across all shards.
func (s *ShardedLRU[V]) Stats() (hits, misses int64) {
	for _, sh := range s.shards {
		h, m := sh.Stats()
		hits += h
		misses += m
	}
	return
}

func (s *ShardedLRU[V]) setNow(fn func() time.Time) {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.nowFn = fn
		sh.mu.Unlock()
	}
}
