package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transfer is the canonical bridge transfer record. (TxHash, LogIndex) is
// the natural key; ID is a surrogate assigned on first insert.
type Transfer struct {
	ID               uuid.UUID        `db:"id"`
	TxHash           string           `db:"tx_hash"`
	LogIndex         int              `db:"log_index"`
	Chain            Chain            `db:"chain"`
	Kind             EventKind        `db:"kind"`
	Direction        Direction        `db:"direction"`
	Status           TransferStatus   `db:"status"`
	FromAddress      *string          `db:"from_address"`
	ToAddress        *string          `db:"to_address"`
	LocalToken       *string          `db:"local_token"`
	RemoteToken      *string          `db:"remote_token"`
	Amount           *string          `db:"amount"` // NUMERIC(78,0) as string
	AmountNormalized *decimal.Decimal `db:"amount_normalized"`
	AmountUSD        *decimal.Decimal `db:"amount_usd"`
	PriceUSDAtTime   *decimal.Decimal `db:"price_usd_at_time"`
	Relayer          *string          `db:"relayer"`
	ProgramID        *string          `db:"program_id"`

	DappID                *string           `db:"dapp_id"`
	AttributionConfidence int               `db:"attribution_confidence"`
	AttributionMethod     AttributionMethod `db:"attribution_method"`
	AttributionSignals    []string          `db:"attribution_signals"`

	BlockNumber    int64     `db:"block_number"`
	BlockTimestamp time.Time `db:"block_timestamp"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// TransferKey is the natural key of a Transfer.
type TransferKey struct {
	TxHash   string
	LogIndex int
}

func (t *Transfer) Key() TransferKey {
	return TransferKey{TxHash: t.TxHash, LogIndex: t.LogIndex}
}

// StrPtr returns nil for the empty string.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
