package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultContractDecimals applies to contract-chain tokens whose
	// decimals could not be read.
	DefaultContractDecimals = 18
	// DefaultLedgerDecimals applies to ledger-chain token events that carry
	// no decimals.
	DefaultLedgerDecimals = 9

	UnknownTokenSymbol = "UNKNOWN"
)

// Token is keyed by its lowercased address. Decimals are written once.
type Token struct {
	ID         string    `db:"id"`
	Chain      Chain     `db:"chain"`
	Address    string    `db:"address"`
	Symbol     string    `db:"symbol"`
	Name       string    `db:"name"`
	Decimals   int       `db:"decimals"`
	IsVerified bool      `db:"is_verified"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// TokenID normalizes an address into the token key.
func TokenID(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// NormalizeAmount divides a raw integer amount by 10^decimals.
func NormalizeAmount(raw string, decimals int) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, err
	}
	return value.Shift(int32(-decimals)), nil
}

type PriceSource string

const (
	PriceSourceChainlink PriceSource = "CHAINLINK"
	PriceSourceCoingecko PriceSource = "COINGECKO"
	PriceSourcePyth      PriceSource = "PYTH"
	PriceSourceEstimated PriceSource = "ESTIMATED"
	PriceSourceManual    PriceSource = "MANUAL"
)

// PriceObservation is one USD price sample. (TokenID, Timestamp) is unique.
type PriceObservation struct {
	TokenID   string           `db:"token_id"`
	Timestamp time.Time        `db:"observed_at"`
	PriceUSD  decimal.Decimal  `db:"price_usd"`
	Source    PriceSource      `db:"source"`
	Volume24h *decimal.Decimal `db:"volume_24h"`
	MarketCap *decimal.Decimal `db:"market_cap"`
}
