package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/store"
	"github.com/shopspring/decimal"
)

type PriceRepo struct {
	db *DB
}

var _ store.PriceRepository = (*PriceRepo)(nil)

func NewPriceRepo(db *DB) *PriceRepo {
	return &PriceRepo{db: db}
}

func (r *PriceRepo) LatestSince(ctx context.Context, tokenID string, since time.Time) (*model.PriceObservation, error) {
	return r.queryOne(ctx, `
		SELECT token_id, observed_at, price_usd, source, volume_24h, market_cap
		FROM token_prices
		WHERE token_id = $1 AND observed_at >= $2
		ORDER BY observed_at DESC
		LIMIT 1
	`, model.TokenID(tokenID), since.UTC())
}

func (r *PriceRepo) EarliestBetween(ctx context.Context, tokenID string, from, to time.Time) (*model.PriceObservation, error) {
	return r.queryOne(ctx, `
		SELECT token_id, observed_at, price_usd, source, volume_24h, market_cap
		FROM token_prices
		WHERE token_id = $1 AND observed_at BETWEEN $2 AND $3
		ORDER BY observed_at ASC
		LIMIT 1
	`, model.TokenID(tokenID), from.UTC(), to.UTC())
}

func (r *PriceRepo) queryOne(ctx context.Context, query string, args ...any) (*model.PriceObservation, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var (
		obs       model.PriceObservation
		vol, mcap decimal.NullDecimal
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&obs.TokenID, &obs.Timestamp, &obs.PriceUSD, &obs.Source, &vol, &mcap,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query token price: %w", err)
	}
	obs.Volume24h = decimalPtr(vol)
	obs.MarketCap = decimalPtr(mcap)
	return &obs, nil
}

// Insert swallows duplicate (token, timestamp) conflicts; concurrent
// resolvers routinely race to persist the same sample.
func (r *PriceRepo) Insert(ctx context.Context, obs *model.PriceObservation) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO token_prices (token_id, observed_at, price_usd, source, volume_24h, market_cap)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, model.TokenID(obs.TokenID), obs.Timestamp.UTC(), obs.PriceUSD, obs.Source,
		nullDecimal(obs.Volume24h), nullDecimal(obs.MarketCap))
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("insert token price: %w", err)
	}
	return nil
}
