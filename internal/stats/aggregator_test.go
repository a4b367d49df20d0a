package stats

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/cache"
	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatsRepo struct {
	days []time.Time
	err  error
}

func (f *fakeStatsRepo) RebuildDaily(_ context.Context, day time.Time) (*model.GlobalStats, []model.DappStats, error) {
	f.days = append(f.days, day)
	if f.err != nil {
		return nil, nil, f.err
	}
	start := model.DayStart(day)
	return &model.GlobalStats{
			Date:          start,
			Period:        model.PeriodDaily,
			VolumeUSD:     decimal.RequireFromString("1250.5"),
			TransferCount: 3,
			UniqueUsers:   2,
			ActiveDapps:   1,
		}, []model.DappStats{{
			DappID:        "aerodrome",
			Date:          start,
			Period:        model.PeriodDaily,
			VolumeUSD:     decimal.RequireFromString("1000"),
			TransferCount: 2,
			UniqueUsers:   1,
		}}, nil
}

func newTestAggregator(repo *fakeStatsRepo, c cache.Store, now time.Time) *Aggregator {
	a := NewAggregator(repo, c, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return now }
	return a
}

func TestRebuildToday_PublishesToCache(t *testing.T) {
	now := time.Date(2024, 6, 1, 15, 4, 5, 0, time.UTC)
	repo := &fakeStatsRepo{}
	c := cache.NewMemoryStore(100)
	a := newTestAggregator(repo, c, now)

	res, err := a.RebuildToday(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), res.Day)
	require.Len(t, repo.days, 1)
	assert.Equal(t, now, repo.days[0])

	global, ok, err := cache.GetJSON[model.GlobalStats](context.Background(), c, cache.GlobalStatsKey(Timeframe))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), global.TransferCount)
	assert.True(t, global.VolumeUSD.Equal(decimal.RequireFromString("1250.5")))

	dapp, ok, err := cache.GetJSON[model.DappStats](context.Background(), c, cache.DappStatsKey("aerodrome", Timeframe))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), dapp.TransferCount)
}

func TestRebuild_PastDayNotCached(t *testing.T) {
	now := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	c := cache.NewMemoryStore(100)
	a := newTestAggregator(&fakeStatsRepo{}, c, now)

	_, err := a.Rebuild(context.Background(), now.Add(-48*time.Hour))
	require.NoError(t, err)

	_, ok, err := c.Get(context.Background(), cache.GlobalStatsKey(Timeframe))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRebuild_RepositoryError(t *testing.T) {
	a := newTestAggregator(&fakeStatsRepo{err: errors.New("db down")}, nil, time.Now())

	res, err := a.RebuildToday(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "db down")
}

func TestRebuild_NilCache(t *testing.T) {
	a := newTestAggregator(&fakeStatsRepo{}, nil, time.Now())
	res, err := a.RebuildToday(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Dapps, 1)
}
