// Package pricing resolves USD prices for bridged tokens through a cache,
// the persisted price history and finally the external pricing service.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/cache"
	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/metrics"
	"github.com/emperorhan/bridgescope-indexer/internal/registry"
	"github.com/emperorhan/bridgescope-indexer/internal/store"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	// RecentWindow bounds how old a stored observation may be to count as
	// the current price.
	RecentWindow = 5 * time.Minute
	// StoreWindow is the half-width of the stored-history lookup around a
	// historical timestamp.
	StoreWindow = 30 * time.Minute
	// ProviderWindow is the half-width of the external range query.
	ProviderWindow = time.Hour
	// BatchSize is the number of concurrent lookups in BatchCurrentPrices.
	BatchSize = 10
)

// KnownTokens maps token addresses to pricing-service ids.
type KnownTokens interface {
	KnownToken(address string) (registry.KnownToken, bool)
	RegisterKnownToken(address, pricingID, symbol string)
}

type Resolver struct {
	cache    cache.Store
	prices   store.PriceRepository
	provider Provider
	known    KnownTokens
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Resolver)

// WithClock overrides the time source used for the recent window and for
// timestamping current quotes.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(c cache.Store, prices store.PriceRepository, provider Provider, known KnownTokens, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		cache:    c,
		prices:   prices,
		provider: provider,
		known:    known,
		now:      time.Now,
		logger:   logger.With("component", "pricing"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// CurrentPrice returns the latest USD price of token, or nil when no tier
// has one. Unknown tokens never reach the external service.
func (r *Resolver) CurrentPrice(ctx context.Context, token string) (*model.PriceObservation, error) {
	id := model.TokenID(token)
	key := cache.TokenPriceKey(id, nil)

	if obs := r.cached(ctx, key); obs != nil {
		metrics.PriceLookupsTotal.WithLabelValues("current", "cache").Inc()
		return obs, nil
	}

	obs, err := r.prices.LatestSince(ctx, id, r.now().Add(-RecentWindow))
	if err != nil {
		r.logger.Warn("stored price lookup failed", "token", id, "error", err)
		obs = nil
	}
	if obs != nil {
		metrics.PriceLookupsTotal.WithLabelValues("current", "store").Inc()
		r.remember(ctx, key, obs, cache.TTLCurrentPrice)
		return obs, nil
	}

	kt, ok := r.known.KnownToken(id)
	if !ok {
		metrics.PriceLookupsTotal.WithLabelValues("current", "unknown").Inc()
		return nil, nil
	}
	quotes, err := r.provider.SimplePrice(ctx, []string{kt.PricingID})
	if err != nil {
		metrics.PriceLookupsTotal.WithLabelValues("current", "error").Inc()
		return nil, fmt.Errorf("current price %s: %w", id, err)
	}
	q, ok := quotes[kt.PricingID]
	if !ok {
		metrics.PriceLookupsTotal.WithLabelValues("current", "miss").Inc()
		return nil, nil
	}

	obs = &model.PriceObservation{
		TokenID:   id,
		Timestamp: r.now().UTC().Truncate(time.Millisecond),
		PriceUSD:  q.PriceUSD,
		Source:    model.PriceSourceCoingecko,
		Volume24h: q.Volume24h,
		MarketCap: q.MarketCap,
	}
	metrics.PriceLookupsTotal.WithLabelValues("current", "provider").Inc()
	r.persist(ctx, obs)
	r.remember(ctx, key, obs, cache.TTLCurrentPrice)
	return obs, nil
}

// HistoricalPrice returns the USD price of token at ts. The stored history
// is searched within StoreWindow (earliest first), then the external
// service within ProviderWindow picking the sample closest to ts. There is
// no synthetic fallback.
func (r *Resolver) HistoricalPrice(ctx context.Context, token string, ts time.Time) (*model.PriceObservation, error) {
	id := model.TokenID(token)
	key := cache.TokenPriceKey(id, &ts)

	if obs := r.cached(ctx, key); obs != nil {
		metrics.PriceLookupsTotal.WithLabelValues("historical", "cache").Inc()
		return obs, nil
	}

	obs, err := r.prices.EarliestBetween(ctx, id, ts.Add(-StoreWindow), ts.Add(StoreWindow))
	if err != nil {
		r.logger.Warn("stored price lookup failed", "token", id, "at", ts, "error", err)
		obs = nil
	}
	if obs != nil {
		metrics.PriceLookupsTotal.WithLabelValues("historical", "store").Inc()
		r.remember(ctx, key, obs, cache.TTLHistoricalPrice)
		return obs, nil
	}

	kt, ok := r.known.KnownToken(id)
	if !ok {
		metrics.PriceLookupsTotal.WithLabelValues("historical", "unknown").Inc()
		return nil, nil
	}
	samples, err := r.provider.MarketChartRange(ctx, kt.PricingID, ts.Add(-ProviderWindow), ts.Add(ProviderWindow))
	if err != nil {
		metrics.PriceLookupsTotal.WithLabelValues("historical", "error").Inc()
		return nil, fmt.Errorf("historical price %s at %s: %w", id, ts.UTC().Format(time.RFC3339), err)
	}
	best, ok := closest(samples, ts)
	if !ok {
		metrics.PriceLookupsTotal.WithLabelValues("historical", "miss").Inc()
		return nil, nil
	}

	obs = &model.PriceObservation{
		TokenID:   id,
		Timestamp: best.Timestamp,
		PriceUSD:  best.PriceUSD,
		Source:    model.PriceSourceCoingecko,
	}
	metrics.PriceLookupsTotal.WithLabelValues("historical", "provider").Inc()
	r.persist(ctx, obs)
	r.remember(ctx, key, obs, cache.TTLHistoricalPrice)
	return obs, nil
}

// closest returns the sample with the smallest |t - ts|. Ties keep the
// earlier sample.
func closest(samples []Sample, ts time.Time) (Sample, bool) {
	if len(samples) == 0 {
		return Sample{}, false
	}
	best := samples[0]
	bestDist := absDuration(best.Timestamp.Sub(ts))
	for _, s := range samples[1:] {
		if d := absDuration(s.Timestamp.Sub(ts)); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// USDValue is a priced amount.
type USDValue struct {
	AmountUSD decimal.Decimal
	PriceUSD  decimal.Decimal
}

// CalculateUSDValue prices raw (an integer amount in the token's smallest
// unit) at ts, or at the current price when ts is nil. Any failure yields
// nil.
func (r *Resolver) CalculateUSDValue(ctx context.Context, token, raw string, decimals int, ts *time.Time) *USDValue {
	amount, err := model.NormalizeAmount(raw, decimals)
	if err != nil {
		r.logger.Warn("invalid raw amount", "token", token, "amount", raw, "error", err)
		return nil
	}

	var obs *model.PriceObservation
	if ts != nil {
		obs, err = r.HistoricalPrice(ctx, token, *ts)
	} else {
		obs, err = r.CurrentPrice(ctx, token)
	}
	if err != nil {
		r.logger.Warn("price resolution failed", "token", token, "error", err)
		return nil
	}
	if obs == nil {
		return nil
	}
	return &USDValue{AmountUSD: amount.Mul(obs.PriceUSD), PriceUSD: obs.PriceUSD}
}

// BatchCurrentPrices resolves current prices for tokens, BatchSize at a
// time. Tokens without a price are absent; keys are lowercased.
func (r *Resolver) BatchCurrentPrices(ctx context.Context, tokens []string) map[string]model.PriceObservation {
	out := make(map[string]model.PriceObservation, len(tokens))
	var mu sync.Mutex
	for start := 0; start < len(tokens); start += BatchSize {
		end := min(start+BatchSize, len(tokens))
		var g errgroup.Group
		for _, token := range tokens[start:end] {
			g.Go(func() error {
				obs, err := r.CurrentPrice(ctx, token)
				if err != nil {
					r.logger.Warn("batch price failed", "token", token, "error", err)
					return nil
				}
				if obs != nil {
					mu.Lock()
					out[model.TokenID(token)] = *obs
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	return out
}

// RegisterKnownToken makes token priceable under pricingID.
func (r *Resolver) RegisterKnownToken(token, pricingID, symbol string) {
	r.known.RegisterKnownToken(strings.ToLower(token), pricingID, symbol)
}

func (r *Resolver) cached(ctx context.Context, key string) *model.PriceObservation {
	obs, ok, err := cache.GetJSON[model.PriceObservation](ctx, r.cache, key)
	if err != nil {
		r.logger.Warn("price cache read failed", "key", key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &obs
}

func (r *Resolver) remember(ctx context.Context, key string, obs *model.PriceObservation, ttl time.Duration) {
	if err := cache.SetJSON(ctx, r.cache, key, obs, ttl); err != nil {
		r.logger.Warn("price cache write failed", "key", key, "error", err)
	}
}

func (r *Resolver) persist(ctx context.Context, obs *model.PriceObservation) {
	if err := r.prices.Insert(ctx, obs); err != nil {
		r.logger.Warn("price persist failed", "token", obs.TokenID, "error", err)
	}
}
