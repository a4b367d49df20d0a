package pricing

//go:generate mockgen -source=provider.go -destination=mocks/mock_provider.go -package=mocks

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a current USD price from the external service.
type Quote struct {
	PriceUSD  decimal.Decimal
	Volume24h *decimal.Decimal
	MarketCap *decimal.Decimal
}

// Sample is one point of a historical price series.
type Sample struct {
	Timestamp time.Time
	PriceUSD  decimal.Decimal
}

// Provider is the external pricing service, addressed by its own token
// identifiers.
type Provider interface {
	// SimplePrice returns quotes for ids. Ids without a USD price are
	// absent from the result.
	SimplePrice(ctx context.Context, ids []string) (map[string]Quote, error)
	// MarketChartRange returns samples between from and to, ordered by time.
	MarketChartRange(ctx context.Context, id string, from, to time.Time) ([]Sample, error)
}
