package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type StatsPeriod string

const (
	PeriodDaily StatsPeriod = "DAILY"
)

// GlobalStats is a derived rollup over all transfers in [Date, Date+1d).
type GlobalStats struct {
	Date               time.Time       `db:"date" json:"date"`
	Period             StatsPeriod     `db:"period" json:"period"`
	VolumeUSD          decimal.Decimal `db:"volume_usd" json:"volume_usd"`
	TransferCount      int64           `db:"transfer_count" json:"transfer_count"`
	UniqueUsers        int64           `db:"unique_users" json:"unique_users"`
	ActiveDapps        int64           `db:"active_dapps" json:"active_dapps"`
	BaseToSolanaVolume decimal.Decimal `db:"base_to_solana_volume" json:"base_to_solana_volume"`
	BaseToSolanaCount  int64           `db:"base_to_solana_count" json:"base_to_solana_count"`
	SolanaToBaseVolume decimal.Decimal `db:"solana_to_base_volume" json:"solana_to_base_volume"`
	SolanaToBaseCount  int64           `db:"solana_to_base_count" json:"solana_to_base_count"`
}

// DappStats is a derived per-dApp rollup over [Date, Date+1d).
type DappStats struct {
	DappID        string          `db:"dapp_id" json:"dapp_id"`
	Date          time.Time       `db:"date" json:"date"`
	Period        StatsPeriod     `db:"period" json:"period"`
	VolumeUSD     decimal.Decimal `db:"volume_usd" json:"volume_usd"`
	VolumeToken   decimal.Decimal `db:"volume_token" json:"volume_token"`
	TransferCount int64           `db:"transfer_count" json:"transfer_count"`
	UniqueUsers   int64           `db:"unique_users" json:"unique_users"`
}

// DayStart truncates t to 00:00 UTC.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
