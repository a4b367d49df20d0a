package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

func (c *Client) GetBlockNumber(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, "eth_blockNumber", []interface{}{})
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}

	var n hexutil.Uint64
	if err := json.Unmarshal(result, &n); err != nil {
		return 0, fmt.Errorf("unmarshal block number: %w", err)
	}
	return int64(n), nil
}

// GetTransactionByHash returns nil, nil for an unknown hash.
func (c *Client) GetTransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	result, err := c.call(ctx, "eth_getTransactionByHash", []interface{}{hash})
	if err != nil {
		return nil, fmt.Errorf("eth_getTransactionByHash(%s): %w", hash, err)
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}

	var tx Transaction
	if err := json.Unmarshal(result, &tx); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}
	return &tx, nil
}

// EthCall executes a read-only call against the latest block and returns
// the raw return data.
func (c *Client) EthCall(ctx context.Context, to string, data []byte) ([]byte, error) {
	msg := CallMsg{To: to, Data: hexutil.Encode(data)}
	result, err := c.call(ctx, "eth_call", []interface{}{msg, "latest"})
	if err != nil {
		return nil, fmt.Errorf("eth_call(%s): %w", to, err)
	}

	var out hexutil.Bytes
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("unmarshal call result: %w", err)
	}
	return out, nil
}
