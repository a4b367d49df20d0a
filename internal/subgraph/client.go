// Package subgraph queries a bridge subgraph for TransferInitialized and
// TransferFinalized events over GraphQL.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/circuitbreaker"
	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/normalizer"
	"github.com/emperorhan/bridgescope-indexer/internal/ratelimit"
	"github.com/emperorhan/bridgescope-indexer/internal/retry"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageSize = 100
	defaultTimeout  = 30 * time.Second

	initializedCollection = "transferInitializeds"
	finalizedCollection   = "transferFinalizeds"
)

const pageQuery = `query Page($fromBlock: BigInt!, $first: Int!) {
  %s(
    first: $first
    orderBy: blockNumber
    orderDirection: asc
    where: { blockNumber_gte: $fromBlock }
  ) {
    id
    localToken
    remoteToken
    to
    amount
    blockNumber
    blockTimestamp
    transactionHash
  }
}`

// Page is one cursor step of both event collections, each in ascending
// block order.
type Page struct {
	Initialized []normalizer.IndexedEvent
	Finalized   []normalizer.IndexedEvent
}

func (p Page) Len() int {
	return len(p.Initialized) + len(p.Finalized)
}

// Source pages through bridge events at or above a block.
type Source interface {
	FetchPage(ctx context.Context, fromBlock int64, first int) (*Page, error)
}

type Config struct {
	URL     string
	Chain   model.Chain
	Timeout time.Duration
	Limiter *ratelimit.Limiter
	Breaker *circuitbreaker.Breaker
	Retry   retry.Policy
}

type Client struct {
	url        string
	target     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	breaker    *circuitbreaker.Breaker
	retry      retry.Policy
	logger     *slog.Logger
}

var _ Source = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	target := "subgraph-" + strings.ToLower(string(cfg.Chain))
	if cfg.Breaker == nil {
		cfg.Breaker = circuitbreaker.New(circuitbreaker.Config{Name: target})
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy
	}
	return &Client{
		url:        cfg.URL,
		target:     target,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    cfg.Limiter,
		breaker:    cfg.Breaker,
		retry:      cfg.Retry,
		logger:     logger.With("component", target),
	}
}

// FetchPage requests up to first records of each collection with
// blockNumber >= fromBlock. Both queries run concurrently; either failing
// fails the page.
func (c *Client) FetchPage(ctx context.Context, fromBlock int64, first int) (*Page, error) {
	if first <= 0 {
		first = DefaultPageSize
	}
	page := &Page{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		evs, err := c.query(gctx, initializedCollection, fromBlock, first)
		page.Initialized = evs
		return err
	})
	g.Go(func() error {
		evs, err := c.query(gctx, finalizedCollection, fromBlock, first)
		page.Finalized = evs
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	c.logger.Debug("subgraph page fetched",
		"from_block", fromBlock,
		"initialized", len(page.Initialized),
		"finalized", len(page.Finalized),
	)
	return page, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   map[string][]normalizer.IndexedEvent `json:"data"`
	Errors []graphQLError                       `json:"errors"`
}

// QueryError carries the errors array of a GraphQL response. Indexer
// errors are not retried.
type QueryError struct {
	Messages []string
}

func (e *QueryError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

func (c *Client) query(ctx context.Context, collection string, fromBlock int64, first int) ([]normalizer.IndexedEvent, error) {
	body, err := json.Marshal(graphQLRequest{
		Query: fmt.Sprintf(pageQuery, collection),
		Variables: map[string]any{
			"fromBlock": strconv.FormatInt(fromBlock, 10),
			"first":     first,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	var out graphQLResponse
	err = retry.Do(ctx, c.retry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.breaker.Execute(func() error {
			return c.post(ctx, collection, body, &out)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s from block %d: %w", c.target, collection, fromBlock, err)
	}
	return out.Data[collection], nil
}

func (c *Client) post(ctx context.Context, collection string, body []byte, out *graphQLResponse) (err error) {
	defer func() { ratelimit.RecordCall(c.target, collection, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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
	*out = graphQLResponse{}
	if err := json.Unmarshal(raw, out); err != nil {
		return retry.Terminal(fmt.Errorf("unmarshal response: %w", err))
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, len(out.Errors))
		for i, e := range out.Errors {
			msgs[i] = e.Message
		}
		return retry.Terminal(&QueryError{Messages: msgs})
	}
	return nil
}
