package cache

import (
	"fmt"
	"strings"
	"time"
)

// TTLs per key namespace.
const (
	TTLTokenMetadata   = 24 * time.Hour
	TTLCurrentPrice    = 5 * time.Minute
	TTLHistoricalPrice = time.Hour
	TTLDappStats       = 5 * time.Minute
	TTLGlobalStats     = time.Minute
	TTLRecentTransfers = 10 * time.Second
)

func TokenMetadataKey(address string) string {
	return "token:meta:" + strings.ToLower(address)
}

// TokenPriceKey keys the current price when at is nil, otherwise the price
// at that instant (unix milliseconds).
func TokenPriceKey(address string, at *time.Time) string {
	suffix := "latest"
	if at != nil {
		suffix = fmt.Sprintf("%d", at.UnixMilli())
	}
	return "token:price:" + strings.ToLower(address) + ":" + suffix
}

func DappStatsKey(dappID, timeframe string) string {
	return "dapp:stats:" + dappID + ":" + timeframe
}

func GlobalStatsKey(timeframe string) string {
	return "global:stats:" + timeframe
}

// RecentTransfersKey uses "all" when direction is empty.
func RecentTransfersKey(limit int, direction string) string {
	if direction == "" {
		direction = "all"
	}
	return fmt.Sprintf("transfers:recent:%d:%s", limit, direction)
}
