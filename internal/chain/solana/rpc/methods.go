package rpc

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetSlot returns the current slot at commitment.
func (c *Client) GetSlot(ctx context.Context, commitment string) (int64, error) {
	params := []interface{}{map[string]string{"commitment": commitment}}
	result, err := c.call(ctx, "getSlot", params)
	if err != nil {
		return 0, fmt.Errorf("getSlot: %w", err)
	}

	var slot int64
	if err := json.Unmarshal(result, &slot); err != nil {
		return 0, fmt.Errorf("unmarshal slot: %w", err)
	}
	return slot, nil
}

// GetTokenSupply returns the total supply of an SPL mint, which carries the
// mint's decimals.
func (c *Client) GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error) {
	params := []interface{}{mint, map[string]string{"commitment": "confirmed"}}
	result, err := c.call(ctx, "getTokenSupply", params)
	if err != nil {
		return nil, fmt.Errorf("getTokenSupply(%s): %w", mint, err)
	}

	var resp contextValue[TokenAmount]
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal token supply: %w", err)
	}
	return &resp.Value, nil
}
