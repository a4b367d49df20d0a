package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Options selects and sizes a cache backend.
type Options struct {
	Backend        string
	RedisURL       string
	MemoryCapacity int
}

// New builds the configured backend. A redis backend owns its client and
// closes it on Close.
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(opts.MemoryCapacity), nil
	case BackendRedis:
		redisOpts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return &RedisStore{client: client, owned: true}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
