// Package tokenmeta resolves token symbol and decimals from chain state.
// Results, including failures, are kept in process for its lifetime since
// a token's decimals never change.
package tokenmeta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emperorhan/bridgescope-indexer/internal/cache"
	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCapacity bounds each in-process cache.
const DefaultCapacity = 50_000

// ErrUnsupportedChain is returned by Resolve for a chain without a reader.
var ErrUnsupportedChain = errors.New("tokenmeta: no reader for chain")

type Metadata struct {
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Reader reads metadata for one chain.
type Reader interface {
	Metadata(ctx context.Context, address string) (*Metadata, error)
}

// NameReader optionally resolves a human-readable contract name.
type NameReader interface {
	DisplayName(ctx context.Context, address string) (string, error)
}

// entry is a cached outcome. A nil meta records a failed read.
type entry struct {
	meta *Metadata
}

type Resolver struct {
	readers map[model.Chain]Reader
	meta    *lru.Cache[string, entry]
	names   *lru.Cache[string, string]
	shared  cache.Store
	group   singleflight.Group
	logger  *slog.Logger
}

type Option func(*Resolver)

// WithSharedCache adds a second tier shared between processes. Only
// successful reads are written to it.
func WithSharedCache(s cache.Store) Option {
	return func(r *Resolver) { r.shared = s }
}

func NewResolver(readers map[model.Chain]Reader, logger *slog.Logger, opts ...Option) (*Resolver, error) {
	meta, err := lru.New[string, entry](DefaultCapacity)
	if err != nil {
		return nil, fmt.Errorf("create metadata cache: %w", err)
	}
	names, err := lru.New[string, string](DefaultCapacity)
	if err != nil {
		return nil, fmt.Errorf("create name cache: %w", err)
	}
	r := &Resolver{
		readers: readers,
		meta:    meta,
		names:   names,
		logger:  logger.With("component", "tokenmeta"),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

func cacheKey(chain model.Chain, address string) string {
	return string(chain) + ":" + strings.ToLower(strings.TrimSpace(address))
}

// Resolve returns the token's metadata, or nil when it cannot be read. A
// failed read is remembered and never retried within the process; callers
// apply their chain default.
func (r *Resolver) Resolve(ctx context.Context, chain model.Chain, address string) (*Metadata, error) {
	reader, ok := r.readers[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, chain)
	}
	if strings.TrimSpace(address) == "" {
		return nil, nil
	}
	key := cacheKey(chain, address)
	if e, ok := r.meta.Get(key); ok {
		metrics.TokenMetadataLookups.WithLabelValues(string(chain), "memory").Inc()
		return copyMeta(e.meta), nil
	}

	v, _, _ := r.group.Do(key, func() (interface{}, error) {
		if e, ok := r.meta.Get(key); ok {
			return e.meta, nil
		}
		if meta := r.fromShared(ctx, address); meta != nil {
			metrics.TokenMetadataLookups.WithLabelValues(string(chain), "shared").Inc()
			r.meta.Add(key, entry{meta: meta})
			return meta, nil
		}

		meta, err := reader.Metadata(ctx, address)
		if err != nil {
			if ctx.Err() != nil {
				// Cancelled reads are not cached.
				return (*Metadata)(nil), nil
			}
			metrics.TokenMetadataLookups.WithLabelValues(string(chain), "failed").Inc()
			r.logger.Warn("token metadata read failed", "chain", chain, "token", address, "error", err)
			r.meta.Add(key, entry{})
			return (*Metadata)(nil), nil
		}
		metrics.TokenMetadataLookups.WithLabelValues(string(chain), "chain").Inc()
		r.meta.Add(key, entry{meta: meta})
		r.toShared(ctx, address, meta)
		return meta, nil
	})
	return copyMeta(v.(*Metadata)), nil
}

// Decimals returns the resolved decimals or fallback.
func (r *Resolver) Decimals(ctx context.Context, chain model.Chain, address string, fallback int) int {
	meta, err := r.Resolve(ctx, chain, address)
	if err != nil || meta == nil {
		return fallback
	}
	return meta.Decimals
}

// DisplayName returns the contract's name(), falling back to symbol(). An
// empty string means neither could be read; that outcome is cached too.
func (r *Resolver) DisplayName(ctx context.Context, chain model.Chain, address string) string {
	nr, ok := r.readers[chain].(NameReader)
	if !ok || strings.TrimSpace(address) == "" {
		return ""
	}
	key := cacheKey(chain, address)
	if name, ok := r.names.Get(key); ok {
		return name
	}
	name, err := nr.DisplayName(ctx, address)
	if err != nil {
		r.logger.Debug("contract name read failed", "chain", chain, "address", address, "error", err)
		name = ""
	}
	r.names.Add(key, name)
	return name
}

func (r *Resolver) fromShared(ctx context.Context, address string) *Metadata {
	if r.shared == nil {
		return nil
	}
	meta, ok, err := cache.GetJSON[Metadata](ctx, r.shared, cache.TokenMetadataKey(address))
	if err != nil {
		r.logger.Warn("token metadata cache read failed", "token", address, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &meta
}

func (r *Resolver) toShared(ctx context.Context, address string, meta *Metadata) {
	if r.shared == nil {
		return
	}
	if err := cache.SetJSON(ctx, r.shared, cache.TokenMetadataKey(address), meta, cache.TTLTokenMetadata); err != nil {
		r.logger.Warn("token metadata cache write failed", "token", address, "error", err)
	}
}

func copyMeta(m *Metadata) *Metadata {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
