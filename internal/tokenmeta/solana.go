package tokenmeta

import (
	"context"
	"fmt"

	solrpc "github.com/emperorhan/bridgescope-indexer/internal/chain/solana/rpc"
	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/retry"
	"github.com/mr-tron/base58"
)

// SolanaReader reads SPL mint decimals through getTokenSupply. Mints carry
// no on-chain symbol, so Symbol is always UNKNOWN.
type SolanaReader struct {
	client solrpc.RPCClient
	policy retry.Policy
}

var _ Reader = (*SolanaReader)(nil)

func NewSolanaReader(client solrpc.RPCClient) *SolanaReader {
	return &SolanaReader{client: client, policy: retry.DefaultPolicy}
}

func (r *SolanaReader) Metadata(ctx context.Context, mint string) (*Metadata, error) {
	if !IsLedgerAddress(mint) {
		return nil, fmt.Errorf("not a base58 account: %q", mint)
	}
	var supply *solrpc.TokenAmount
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		s, err := r.client.GetTokenSupply(ctx, mint)
		supply = s
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Metadata{Symbol: model.UnknownTokenSymbol, Decimals: supply.Decimals}, nil
}

// IsLedgerAddress reports whether s decodes to a 32-byte public key.
func IsLedgerAddress(s string) bool {
	if s == "" {
		return false
	}
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == 32
}
