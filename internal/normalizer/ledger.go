// Package normalizer turns raw bridge events from either chain into the
// canonical model.Transfer. Ledger-chain events arrive as enhanced webhook
// transactions; contract-chain events arrive as indexed subgraph records.
package normalizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/tokenmeta"
	"github.com/shopspring/decimal"
)

// ErrMalformed marks a record that cannot be normalized. Callers log and
// skip it.
var ErrMalformed = errors.New("malformed bridge event")

// LedgerTransaction is one enhanced transaction from the webhook provider.
type LedgerTransaction struct {
	Signature    string        `json:"signature"`
	Slot         int64         `json:"slot"`
	Timestamp    int64         `json:"timestamp"`
	AccountData  []AccountData `json:"accountData"`
	Instructions []Instruction `json:"instructions"`
	Events       *Events       `json:"events,omitempty"`
}

type AccountData struct {
	Account             string `json:"account"`
	NativeBalanceChange int64  `json:"nativeBalanceChange"`
}

type Instruction struct {
	ProgramID string   `json:"programId"`
	Accounts  []string `json:"accounts"`
	Data      string   `json:"data,omitempty"`
}

type Events struct {
	TokenTransfers []TokenTransfer `json:"tokenTransfers,omitempty"`
	Transfers      []TokenTransfer `json:"transfers,omitempty"`
}

// TokenTransfer carries the amount either as a JSON number or a string.
type TokenTransfer struct {
	Mint            string      `json:"mint"`
	FromUserAccount string      `json:"fromUserAccount"`
	ToUserAccount   string      `json:"toUserAccount"`
	TokenAmount     json.Number `json:"tokenAmount"`
	Decimals        *int        `json:"decimals,omitempty"`
}

type webhookEnvelope struct {
	Transactions json.RawMessage `json:"transactions"`
}

// DecodeLedgerPayload accepts either a bare array of transactions or an
// object with a "transactions" array. An object without one, or a top-level
// null, is malformed.
func DecodeLedgerPayload(raw []byte) ([]LedgerTransaction, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if raw[0] == '[' {
		var txs []LedgerTransaction
		if err := json.Unmarshal(raw, &txs); err != nil {
			return nil, fmt.Errorf("%w: decode transactions: %v", ErrMalformed, err)
		}
		return txs, nil
	}
	if raw[0] != '{' {
		return nil, fmt.Errorf("%w: payload is neither an array nor an object", ErrMalformed)
	}
	var env webhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrMalformed, err)
	}
	field := bytes.TrimSpace(env.Transactions)
	if len(field) == 0 || bytes.Equal(field, []byte("null")) {
		return nil, fmt.Errorf("%w: missing transactions", ErrMalformed)
	}
	var txs []LedgerTransaction
	if err := json.Unmarshal(field, &txs); err != nil {
		return nil, fmt.Errorf("%w: decode transactions: %v", ErrMalformed, err)
	}
	return txs, nil
}

// Ledger normalizes transactions that touch the bridge or relayer program.
type Ledger struct {
	bridgeProgram  string
	relayerProgram string
}

func NewLedger(bridgeProgram, relayerProgram string) *Ledger {
	return &Ledger{bridgeProgram: bridgeProgram, relayerProgram: relayerProgram}
}

// LedgerResult is a normalized ledger transfer plus the token decimals the
// event carried (DefaultLedgerDecimals when absent).
type LedgerResult struct {
	Transfer *model.Transfer
	Decimals int
}

// NormalizeLedgerTransaction returns nil, nil for transactions that do not
// invoke either program. The log index is the position of the first
// matching instruction.
func (l *Ledger) NormalizeLedgerTransaction(tx LedgerTransaction) (*LedgerResult, error) {
	hit := -1
	for i, ix := range tx.Instructions {
		if l.isBridgeInstruction(ix) {
			hit = i
			break
		}
	}
	if hit < 0 {
		return nil, nil
	}
	if strings.TrimSpace(tx.Signature) == "" {
		return nil, fmt.Errorf("%w: missing signature", ErrMalformed)
	}

	direction, status, err := model.Lifecycle(model.ChainSolana, model.KindInitialized)
	if err != nil {
		return nil, err
	}

	t := &model.Transfer{
		TxHash:         tx.Signature,
		LogIndex:       hit,
		Chain:          model.ChainSolana,
		Kind:           model.KindInitialized,
		Direction:      direction,
		Status:         status,
		ProgramID:      model.StrPtr(tx.Instructions[hit].ProgramID),
		Relayer:        l.relayer(tx.Instructions),
		BlockNumber:    tx.Slot,
		BlockTimestamp: time.Unix(tx.Timestamp, 0).UTC(),
	}

	decimals := model.DefaultLedgerDecimals
	if tt := firstTokenTransfer(tx.Events); tt != nil {
		if tt.Decimals != nil && *tt.Decimals >= 0 {
			decimals = *tt.Decimals
		}
		t.FromAddress = ledgerAddress(tt.FromUserAccount)
		t.ToAddress = ledgerAddress(tt.ToUserAccount)
		t.LocalToken = ledgerAddress(tt.Mint)
		raw, normalized, err := ledgerAmount(tt.TokenAmount, decimals)
		if err != nil {
			return nil, fmt.Errorf("%w: signature %s: %v", ErrMalformed, tx.Signature, err)
		}
		t.Amount = raw
		t.AmountNormalized = normalized
	} else {
		t.FromAddress, t.ToAddress = nativeCounterparties(tx.AccountData)
	}

	return &LedgerResult{Transfer: t, Decimals: decimals}, nil
}

func (l *Ledger) isBridgeInstruction(ix Instruction) bool {
	return (l.bridgeProgram != "" && ix.ProgramID == l.bridgeProgram) ||
		(l.relayerProgram != "" && ix.ProgramID == l.relayerProgram)
}

// relayer is the first account of the first relayer-program instruction.
func (l *Ledger) relayer(ixs []Instruction) *string {
	if l.relayerProgram == "" {
		return nil
	}
	for _, ix := range ixs {
		if ix.ProgramID == l.relayerProgram && len(ix.Accounts) > 0 {
			return ledgerAddress(ix.Accounts[0])
		}
	}
	return nil
}

func firstTokenTransfer(ev *Events) *TokenTransfer {
	if ev == nil {
		return nil
	}
	if len(ev.TokenTransfers) > 0 {
		return &ev.TokenTransfers[0]
	}
	if len(ev.Transfers) > 0 {
		return &ev.Transfers[0]
	}
	return nil
}

// ledgerAmount reads an integer amount as raw units. A fractional amount is
// already in token units and is scaled up to raw.
func ledgerAmount(n json.Number, decimals int) (*string, *decimal.Decimal, error) {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return nil, nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, nil, fmt.Errorf("token amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, nil, fmt.Errorf("negative token amount %q", s)
	}
	if d.IsInteger() {
		raw := d.String()
		normalized, err := model.NormalizeAmount(raw, decimals)
		if err != nil {
			return nil, nil, err
		}
		return &raw, &normalized, nil
	}
	raw := d.Shift(int32(decimals)).Truncate(0).String()
	return &raw, &d, nil
}

// nativeCounterparties picks the largest native outflow as sender and the
// largest inflow as recipient.
func nativeCounterparties(accounts []AccountData) (from, to *string) {
	var minChange, maxChange int64
	for _, a := range accounts {
		addr := ledgerAddress(a.Account)
		if addr == nil {
			continue
		}
		switch {
		case a.NativeBalanceChange < minChange:
			minChange, from = a.NativeBalanceChange, addr
		case a.NativeBalanceChange > maxChange:
			maxChange, to = a.NativeBalanceChange, addr
		}
	}
	return from, to
}

// ledgerAddress returns nil for anything that is not a base58 public key.
func ledgerAddress(s string) *string {
	s = strings.TrimSpace(s)
	if !tokenmeta.IsLedgerAddress(s) {
		return nil
	}
	return &s
}
