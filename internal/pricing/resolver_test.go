package pricing_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/cache"
	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/pricing"
	"github.com/emperorhan/bridgescope-indexer/internal/pricing/mocks"
	"github.com/emperorhan/bridgescope-indexer/internal/registry"
	"github.com/emperorhan/bridgescope-indexer/internal/store/storetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	weth    = "0x4200000000000000000000000000000000000006"
	unknown = "0x000000000000000000000000000000000000dead"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	resolver *pricing.Resolver
	provider *mocks.MockProvider
	prices   *storetest.Prices
	known    *registry.Registry
}

func newFixture(t *testing.T, seed ...model.PriceObservation) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	prices := storetest.NewPrices(seed...)
	known, err := registry.New(registry.File{KnownTokens: []registry.KnownToken{
		{Address: weth, PricingID: "weth", Symbol: "WETH"},
	}})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := pricing.NewResolver(cache.NewMemoryStore(128), prices, provider, known, logger,
		pricing.WithClock(func() time.Time { return now }))
	return &fixture{resolver: r, provider: provider, prices: prices, known: known}
}

func obs(token string, at time.Time, price string) model.PriceObservation {
	return model.PriceObservation{
		TokenID:   token,
		Timestamp: at,
		PriceUSD:  decimal.RequireFromString(price),
		Source:    model.PriceSourceCoingecko,
	}
}

func TestCurrentPrice_UnknownTokenSkipsProvider(t *testing.T) {
	f := newFixture(t)

	got, err := f.resolver.CurrentPrice(context.Background(), unknown)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCurrentPrice_ProviderThenCache(t *testing.T) {
	f := newFixture(t)
	vol := decimal.RequireFromString("1000000")
	f.provider.EXPECT().
		SimplePrice(gomock.Any(), []string{"weth"}).
		Return(map[string]pricing.Quote{"weth": {PriceUSD: decimal.RequireFromString("3500.5"), Volume24h: &vol}}, nil).
		Times(1)

	got, err := f.resolver.CurrentPrice(context.Background(), "0x4200000000000000000000000000000000000006")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "3500.5", got.PriceUSD.String())
	assert.Equal(t, weth, got.TokenID)
	assert.Equal(t, now, got.Timestamp)
	require.NotNil(t, got.Volume24h)
	assert.Equal(t, 1, f.prices.Len(), "provider result is persisted")

	again, err := f.resolver.CurrentPrice(context.Background(), weth)
	require.NoError(t, err)
	assert.True(t, got.PriceUSD.Equal(again.PriceUSD), "second call served from cache")
}

func TestCurrentPrice_RecentStoredObservation(t *testing.T) {
	f := newFixture(t,
		obs(weth, now.Add(-10*time.Minute), "3000"),
		obs(weth, now.Add(-2*time.Minute), "3100"),
	)

	got, err := f.resolver.CurrentPrice(context.Background(), weth)
	require.NoError(t, err)
	assert.Equal(t, "3100", got.PriceUSD.String())
}

func TestCurrentPrice_StaleStoreFallsThrough(t *testing.T) {
	f := newFixture(t, obs(weth, now.Add(-6*time.Minute), "3000"))
	f.provider.EXPECT().SimplePrice(gomock.Any(), gomock.Any()).
		Return(map[string]pricing.Quote{"weth": {PriceUSD: decimal.NewFromInt(3200)}}, nil)

	got, err := f.resolver.CurrentPrice(context.Background(), weth)
	require.NoError(t, err)
	assert.Equal(t, "3200", got.PriceUSD.String())
}

func TestCurrentPrice_ProviderHasNoQuote(t *testing.T) {
	f := newFixture(t)
	f.provider.EXPECT().SimplePrice(gomock.Any(), gomock.Any()).Return(map[string]pricing.Quote{}, nil)

	got, err := f.resolver.CurrentPrice(context.Background(), weth)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, f.prices.Len())
}

func TestHistoricalPrice_StoreEarliestInWindow(t *testing.T) {
	ts := now.Add(-24 * time.Hour)
	f := newFixture(t,
		obs(weth, ts.Add(10*time.Minute), "2010"),
		obs(weth, ts.Add(-20*time.Minute), "1980"),
		obs(weth, ts.Add(-40*time.Minute), "1900"),
	)

	got, err := f.resolver.HistoricalPrice(context.Background(), weth, ts)
	require.NoError(t, err)
	assert.Equal(t, "1980", got.PriceUSD.String())
}

func TestHistoricalPrice_ProviderClosestSample(t *testing.T) {
	ts := now.Add(-24 * time.Hour)
	f := newFixture(t, obs(weth, ts.Add(-45*time.Minute), "1900"))
	f.provider.EXPECT().
		MarketChartRange(gomock.Any(), "weth", ts.Add(-time.Hour), ts.Add(time.Hour)).
		Return([]pricing.Sample{
			{Timestamp: ts.Add(-50 * time.Minute), PriceUSD: decimal.NewFromInt(1950)},
			{Timestamp: ts.Add(-10 * time.Minute), PriceUSD: decimal.NewFromInt(1990)},
			{Timestamp: ts.Add(5 * time.Minute), PriceUSD: decimal.NewFromInt(2005)},
		}, nil).
		Times(1)

	got, err := f.resolver.HistoricalPrice(context.Background(), weth, ts)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2005", got.PriceUSD.String())
	assert.Equal(t, ts.Add(5*time.Minute), got.Timestamp)
	assert.Equal(t, 2, f.prices.Len())

	cached, err := f.resolver.HistoricalPrice(context.Background(), weth, ts)
	require.NoError(t, err)
	assert.Equal(t, "2005", cached.PriceUSD.String())
}

func TestHistoricalPrice_NoSyntheticFallback(t *testing.T) {
	ts := now.Add(-time.Hour)
	f := newFixture(t)
	f.provider.EXPECT().MarketChartRange(gomock.Any(), "weth", gomock.Any(), gomock.Any()).Return(nil, nil)

	got, err := f.resolver.HistoricalPrice(context.Background(), weth, ts)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = f.resolver.HistoricalPrice(context.Background(), unknown, ts)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHistoricalPrice_ProviderError(t *testing.T) {
	f := newFixture(t)
	f.provider.EXPECT().MarketChartRange(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("coingecko market_chart_range: http status 503"))

	got, err := f.resolver.HistoricalPrice(context.Background(), weth, now)
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestCalculateUSDValue(t *testing.T) {
	ts := now.Add(-time.Hour)
	f := newFixture(t, obs(weth, ts, "2"))

	v := f.resolver.CalculateUSDValue(context.Background(), weth, "1500000", 6, &ts)
	require.NotNil(t, v)
	assert.Equal(t, "3", v.AmountUSD.String())
	assert.Equal(t, "2", v.PriceUSD.String())

	assert.Nil(t, f.resolver.CalculateUSDValue(context.Background(), weth, "not-a-number", 6, &ts))
	assert.Nil(t, f.resolver.CalculateUSDValue(context.Background(), unknown, "1", 0, &ts))
}

func TestCalculateUSDValue_FailureIsNil(t *testing.T) {
	f := newFixture(t)
	f.provider.EXPECT().SimplePrice(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom"))

	assert.Nil(t, f.resolver.CalculateUSDValue(context.Background(), weth, "1", 18, nil))
}

func TestBatchCurrentPrices(t *testing.T) {
	f := newFixture(t)
	f.resolver.RegisterKnownToken("0x833589FCD6EDB6E08F4C7C32D4F71B54BDA02913", "usd-coin", "USDC")
	f.provider.EXPECT().SimplePrice(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ids []string) (map[string]pricing.Quote, error) {
			switch ids[0] {
			case "weth":
				return map[string]pricing.Quote{"weth": {PriceUSD: decimal.NewFromInt(3000)}}, nil
			case "usd-coin":
				return map[string]pricing.Quote{"usd-coin": {PriceUSD: decimal.NewFromInt(1)}}, nil
			}
			return nil, fmt.Errorf("unexpected id %s", ids[0])
		}).
		Times(2)

	tokens := []string{weth, "0x833589FCD6EDB6E08F4C7C32D4F71B54BDA02913"}
	for i := 0; i < 10; i++ {
		tokens = append(tokens, fmt.Sprintf("0x%040x", i+1))
	}

	got := f.resolver.BatchCurrentPrices(context.Background(), tokens)
	require.Len(t, got, 2)
	assert.Equal(t, "3000", got[weth].PriceUSD.String())
	assert.Equal(t, "1", got["0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"].PriceUSD.String())
}
