package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/circuitbreaker"
	"github.com/emperorhan/bridgescope-indexer/internal/metrics"
	"github.com/emperorhan/bridgescope-indexer/internal/ratelimit"
	"github.com/emperorhan/bridgescope-indexer/internal/retry"
	"github.com/shopspring/decimal"
)

const (
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

	simplePriceTimeout = 5 * time.Second
	marketChartTimeout = 10 * time.Second
	apiKeyHeader       = "x-cg-pro-api-key"
	target             = "coingecko"
)

type CoinGeckoConfig struct {
	BaseURL string
	APIKey  string
	Limiter *ratelimit.Limiter
	Breaker *circuitbreaker.Breaker
	Retry   retry.Policy
}

// CoinGecko is a Provider for the CoinGecko v3 REST API.
type CoinGecko struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	breaker    *circuitbreaker.Breaker
	retry      retry.Policy
	logger     *slog.Logger
}

var _ Provider = (*CoinGecko)(nil)

func NewCoinGecko(cfg CoinGeckoConfig, logger *slog.Logger) *CoinGecko {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCoinGeckoURL
	}
	if cfg.Breaker == nil {
		cfg.Breaker = circuitbreaker.New(circuitbreaker.Config{Name: target})
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy
	}
	return &CoinGecko{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{},
		limiter:    cfg.Limiter,
		breaker:    cfg.Breaker,
		retry:      cfg.Retry,
		logger:     logger.With("component", target),
	}
}

type simplePriceEntry struct {
	USD          *decimal.Decimal `json:"usd"`
	USD24hVol    *decimal.Decimal `json:"usd_24h_vol"`
	USDMarketCap *decimal.Decimal `json:"usd_market_cap"`
}

func (c *CoinGecko) SimplePrice(ctx context.Context, ids []string) (map[string]Quote, error) {
	if len(ids) == 0 {
		return map[string]Quote{}, nil
	}
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_vol", "true")
	q.Set("include_market_cap", "true")

	var body map[string]simplePriceEntry
	if err := c.get(ctx, "simple_price", "/simple/price", q, simplePriceTimeout, &body); err != nil {
		return nil, err
	}

	out := make(map[string]Quote, len(body))
	for id, e := range body {
		if e.USD == nil || e.USD.IsZero() {
			continue
		}
		out[id] = Quote{PriceUSD: *e.USD, Volume24h: e.USD24hVol, MarketCap: e.USDMarketCap}
	}
	return out, nil
}

type marketChartResponse struct {
	Prices [][]decimal.Decimal `json:"prices"`
}

func (c *CoinGecko) MarketChartRange(ctx context.Context, id string, from, to time.Time) ([]Sample, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))

	var body marketChartResponse
	path := "/coins/" + url.PathEscape(id) + "/market_chart/range"
	if err := c.get(ctx, "market_chart_range", path, q, marketChartTimeout, &body); err != nil {
		return nil, err
	}

	samples := make([]Sample, 0, len(body.Prices))
	for _, p := range body.Prices {
		if len(p) < 2 {
			continue
		}
		samples = append(samples, Sample{
			Timestamp: time.UnixMilli(p[0].IntPart()).UTC(),
			PriceUSD:  p[1],
		})
	}
	return samples, nil
}

func (c *CoinGecko) get(ctx context.Context, endpoint, path string, q url.Values, timeout time.Duration, out any) error {
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.breaker.Execute(func() error {
			return c.doGet(ctx, endpoint, path, q, timeout, out)
		})
	})
	if err != nil {
		metrics.PriceProviderErrors.WithLabelValues(endpoint).Inc()
		return fmt.Errorf("coingecko %s: %w", endpoint, err)
	}
	return nil
}

func (c *CoinGecko) doGet(ctx context.Context, endpoint, path string, q url.Values, timeout time.Duration, out any) (err error) {
	defer func() { ratelimit.RecordCall(target, endpoint, err) }()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return retry.NewStatusError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return retry.Terminal(fmt.Errorf("unmarshal response: %w", err))
	}
	return nil
}
