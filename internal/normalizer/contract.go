package normalizer

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
)

// IndexedEvent is a TransferInitialized or TransferFinalized record as the
// subgraph returns it. Numeric fields are decimal strings.
type IndexedEvent struct {
	ID              string `json:"id"`
	LocalToken      string `json:"localToken"`
	RemoteToken     string `json:"remoteToken"`
	To              string `json:"to"`
	Amount          string `json:"amount"`
	BlockNumber     string `json:"blockNumber"`
	BlockTimestamp  string `json:"blockTimestamp"`
	TransactionHash string `json:"transactionHash"`
}

// TokenResolver returns the stored token row for address, creating it on
// first sight. Its decimals are authoritative.
type TokenResolver interface {
	ResolveToken(ctx context.Context, chain model.Chain, address string) (token *model.Token, created bool, err error)
}

// Contract normalizes indexed events from either chain's subgraph.
type Contract struct {
	tokens TokenResolver
}

func NewContract(tokens TokenResolver) *Contract {
	return &Contract{tokens: tokens}
}

// ContractResult is a normalized indexed event and the token it moved.
// Token is nil when token resolution failed and defaults were applied.
type ContractResult struct {
	Transfer     *model.Transfer
	Token        *model.Token
	TokenCreated bool
	Decimals     int
}

// NormalizeIndexedEvent maps ev onto a Transfer. Direction and status come
// from the (chain, kind) table; amount normalization uses the resolved
// token decimals and falls back to the chain default.
func (c *Contract) NormalizeIndexedEvent(ctx context.Context, chain model.Chain, kind model.EventKind, ev IndexedEvent) (*ContractResult, error) {
	direction, status, err := model.Lifecycle(chain, kind)
	if err != nil {
		return nil, err
	}
	key, err := EventKey(chain, ev)
	if err != nil {
		return nil, err
	}
	block, err := strconv.ParseInt(strings.TrimSpace(ev.BlockNumber), 10, 64)
	if err != nil || block < 0 {
		return nil, fmt.Errorf("%w: block number %q", ErrMalformed, ev.BlockNumber)
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(ev.BlockTimestamp), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: block timestamp %q", ErrMalformed, ev.BlockTimestamp)
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(ev.Amount), 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: amount %q", ErrMalformed, ev.Amount)
	}
	raw := amount.String()

	t := &model.Transfer{
		TxHash:         key.TxHash,
		LogIndex:       key.LogIndex,
		Chain:          chain,
		Kind:           kind,
		Direction:      direction,
		Status:         status,
		ToAddress:      model.StrPtr(chainAddress(chain, ev.To)),
		LocalToken:     model.StrPtr(chainAddress(chain, ev.LocalToken)),
		RemoteToken:    model.StrPtr(strings.TrimSpace(ev.RemoteToken)),
		Amount:         &raw,
		BlockNumber:    block,
		BlockTimestamp: time.Unix(ts, 0).UTC(),
	}

	res := &ContractResult{Transfer: t, Decimals: DefaultDecimals(chain)}
	if t.LocalToken != nil && c.tokens != nil {
		token, created, err := c.tokens.ResolveToken(ctx, chain, *t.LocalToken)
		if err == nil && token != nil {
			res.Token = token
			res.TokenCreated = created
			res.Decimals = token.Decimals
		}
	}

	normalized, err := model.NormalizeAmount(raw, res.Decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	t.AmountNormalized = &normalized
	return res, nil
}

// EventKey derives the natural key of ev without resolving anything, so
// callers can skip records that are already stored.
func EventKey(chain model.Chain, ev IndexedEvent) (model.TransferKey, error) {
	if strings.TrimSpace(ev.TransactionHash) == "" {
		return model.TransferKey{}, fmt.Errorf("%w: event %q has no transaction hash", ErrMalformed, ev.ID)
	}
	logIndex, err := model.ParseLogIndex(ev.ID)
	if err != nil {
		return model.TransferKey{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return model.TransferKey{TxHash: chainAddress(chain, ev.TransactionHash), LogIndex: logIndex}, nil
}

// DefaultDecimals applies when a token's decimals cannot be read.
func DefaultDecimals(chain model.Chain) int {
	if chain == model.ChainSolana {
		return model.DefaultLedgerDecimals
	}
	return model.DefaultContractDecimals
}

// chainAddress lowercases contract-chain hex values; base58 ledger values
// are case-sensitive and kept as observed.
func chainAddress(chain model.Chain, s string) string {
	s = strings.TrimSpace(s)
	if chain == model.ChainSolana {
		return s
	}
	return strings.ToLower(s)
}
