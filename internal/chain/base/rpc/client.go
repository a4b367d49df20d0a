// Package rpc is a minimal JSON-RPC client for the Base execution layer.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/ratelimit"
	"github.com/emperorhan/bridgescope-indexer/internal/retry"
)

const target = "base-rpc"

// RPCClient is the subset of methods the indexer uses.
type RPCClient interface {
	GetBlockNumber(ctx context.Context) (int64, error)
	GetTransactionByHash(ctx context.Context, hash string) (*Transaction, error)
	EthCall(ctx context.Context, to string, data []byte) ([]byte, error)
}

type Client struct {
	httpClient *http.Client
	rpcURL     string
	limiter    *ratelimit.Limiter
	requestID  atomic.Int64
	logger     *slog.Logger
}

var _ RPCClient = (*Client)(nil)

// NewClient returns a client for rpcURL. limiter may be nil.
func NewClient(rpcURL string, limiter *ratelimit.Limiter, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		rpcURL:     rpcURL,
		limiter:    limiter,
		logger:     logger.With("component", target),
	}
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (result json.RawMessage, err error) {
	defer func() { ratelimit.RecordCall(target, method, err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      int(c.requestID.Add(1)),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, retry.NewStatusError(resp.StatusCode, respBody)
	}

	var rpcResp Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}
