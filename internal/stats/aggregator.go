// Package stats rebuilds the derived daily rollups and publishes them to
// the cache the query API reads from.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/cache"
	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/metrics"
	"github.com/emperorhan/bridgescope-indexer/internal/store"
)

// Timeframe is the cache suffix used for the current day's rollups.
const Timeframe = "24h"

// Result is what one rebuild wrote.
type Result struct {
	Day    time.Time
	Global *model.GlobalStats
	Dapps  []model.DappStats
}

type Aggregator struct {
	repo   store.StatsRepository
	cache  cache.Store
	now    func() time.Time
	logger *slog.Logger
}

// NewAggregator returns an aggregator. c may be nil, in which case the
// rollups are only persisted.
func NewAggregator(repo store.StatsRepository, c cache.Store, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		repo:   repo,
		cache:  c,
		now:    time.Now,
		logger: logger.With("component", "stats"),
	}
}

// RebuildToday recomputes the rollups for the current UTC day from
// transfer rows.
func (a *Aggregator) RebuildToday(ctx context.Context) (*Result, error) {
	return a.Rebuild(ctx, a.now())
}

// Rebuild recomputes the rollups for the UTC day containing day. Rows are
// always derived from transfers, so a rebuild can be repeated at any time.
func (a *Aggregator) Rebuild(ctx context.Context, day time.Time) (*Result, error) {
	start := time.Now()
	global, perDapp, err := a.repo.RebuildDaily(ctx, day)
	if err != nil {
		metrics.StatsRebuildsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("rebuild daily stats for %s: %w", model.DayStart(day).Format(time.DateOnly), err)
	}
	metrics.StatsRebuildsTotal.WithLabelValues("ok").Inc()

	res := &Result{Day: model.DayStart(day), Global: global, Dapps: perDapp}
	if model.DayStart(day).Equal(model.DayStart(a.now())) {
		a.publish(ctx, res)
	}

	a.logger.Info("daily stats rebuilt",
		"day", res.Day.Format(time.DateOnly),
		"volume_usd", global.VolumeUSD.StringFixed(2),
		"transfers", global.TransferCount,
		"unique_users", global.UniqueUsers,
		"dapps", len(perDapp),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// publish refreshes the cached rollups for today. Cache failures only cost
// freshness and are logged.
func (a *Aggregator) publish(ctx context.Context, res *Result) {
	if a.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, a.cache, cache.GlobalStatsKey(Timeframe), res.Global, cache.TTLGlobalStats); err != nil {
		a.logger.Warn("cache global stats failed", "error", err)
	}
	for _, s := range res.Dapps {
		if err := cache.SetJSON(ctx, a.cache, cache.DappStatsKey(s.DappID, Timeframe), s, cache.TTLDappStats); err != nil {
			a.logger.Warn("cache dapp stats failed", "dapp_id", s.DappID, "error", err)
		}
	}
}
