package pricing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/circuitbreaker"
	"github.com/emperorhan/bridgescope-indexer/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoinGecko(t *testing.T, h http.HandlerFunc, apiKey string) *CoinGecko {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewCoinGecko(CoinGeckoConfig{
		BaseURL: srv.URL + "/",
		APIKey:  apiKey,
		Breaker: circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, OpenTimeout: time.Minute}),
		Retry:   retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSimplePrice(t *testing.T) {
	c := newTestCoinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "weth,usd-coin,dead-coin", q.Get("ids"))
		assert.Equal(t, "usd", q.Get("vs_currencies"))
		assert.Equal(t, "true", q.Get("include_24hr_vol"))
		assert.Equal(t, "true", q.Get("include_market_cap"))
		assert.Equal(t, "secret", r.Header.Get(apiKeyHeader))
		_, _ = io.WriteString(w, `{
			"weth": {"usd": 3512.42, "usd_24h_vol": 1234567.5, "usd_market_cap": 99000000000},
			"usd-coin": {"usd": 0.9998},
			"dead-coin": {"usd": 0}
		}`)
	}, "secret")

	quotes, err := c.SimplePrice(context.Background(), []string{"weth", "usd-coin", "dead-coin"})
	require.NoError(t, err)
	require.Len(t, quotes, 2, "zero prices are dropped")

	weth := quotes["weth"]
	assert.Equal(t, "3512.42", weth.PriceUSD.String())
	require.NotNil(t, weth.Volume24h)
	assert.Equal(t, "1234567.5", weth.Volume24h.String())
	require.NotNil(t, weth.MarketCap)
	assert.Nil(t, quotes["usd-coin"].Volume24h)
}

func TestSimplePrice_NoIDs(t *testing.T) {
	c := newTestCoinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}, "")

	quotes, err := c.SimplePrice(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestMarketChartRange(t *testing.T) {
	from := time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)
	to := from.Add(2 * time.Hour)
	c := newTestCoinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/weth/market_chart/range", r.URL.Path)
		assert.Equal(t, "1714561200", r.URL.Query().Get("from"))
		assert.Equal(t, "1714568400", r.URL.Query().Get("to"))
		assert.Empty(t, r.Header.Get(apiKeyHeader))
		_, _ = io.WriteString(w, `{"prices": [[1714561200000, 3001.5], [1714564800000, 3010], [1714568400000]]}`)
	}, "")

	samples, err := c.MarketChartRange(context.Background(), "weth", from, to)
	require.NoError(t, err)
	require.Len(t, samples, 2, "malformed points are skipped")
	assert.Equal(t, from, samples[0].Timestamp)
	assert.Equal(t, "3001.5", samples[0].PriceUSD.String())
	assert.Equal(t, from.Add(time.Hour), samples[1].Timestamp)
}

func TestGet_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestCoinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"coin not found"}`, http.StatusNotFound)
	}, "")

	_, err := c.MarketChartRange(context.Background(), "nope", time.Now(), time.Now())
	require.Error(t, err)
	var se *retry.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, circuitbreaker.StateClosed, c.breaker.GetState())
}

func TestGet_ServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestCoinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"weth": {"usd": 3000}}`)
	}, "")

	quotes, err := c.SimplePrice(context.Background(), []string{"weth"})
	require.NoError(t, err)
	assert.Equal(t, "3000", quotes["weth"].PriceUSD.String())
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_BreakerOpensOnRepeatedFailure(t *testing.T) {
	var calls atomic.Int32
	c := newTestCoinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, "")

	_, err := c.SimplePrice(context.Background(), []string{"weth"})
	require.Error(t, err)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load(), "the third attempt is rejected by the open breaker")
}

func TestGet_MalformedBody(t *testing.T) {
	var calls atomic.Int32
	c := newTestCoinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `not json`)
	}, "")

	_, err := c.SimplePrice(context.Background(), []string{"weth"})
	require.Error(t, err)
	assert.False(t, retry.Classify(err).IsTransient())
	assert.Equal(t, int32(1), calls.Load())
}
