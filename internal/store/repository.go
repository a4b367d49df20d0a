package store

import (
	"context"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
)

//go:generate mockgen -source=repository.go -destination=mocks/mock_repository.go -package=mocks

// TransferRepository provides access to canonical transfers. Every write is
// keyed by the (tx_hash, log_index) natural key.
type TransferRepository interface {
	// Exists reports whether a transfer with the natural key is stored.
	Exists(ctx context.Context, key model.TransferKey) (bool, error)
	// FindByKey returns nil, nil when no row matches.
	FindByKey(ctx context.Context, key model.TransferKey) (*model.Transfer, error)
	// InsertIfAbsent inserts t and never touches an existing row. It reports
	// whether a row was written.
	InsertIfAbsent(ctx context.Context, t *model.Transfer) (bool, error)
	// Upsert inserts t or refines the mutable fields (USD value, price,
	// attribution) of the existing row. Identity fields are never updated.
	Upsert(ctx context.Context, t *model.Transfer) (bool, error)
}

// CursorRepository tracks where subgraph reconciliation resumes per chain.
// It is independent of the transfers table, which webhook deliveries also
// write.
type CursorRepository interface {
	// Next returns the block the next page starts from; ok is false when
	// the chain has never been synced.
	Next(ctx context.Context, chain model.Chain) (block int64, ok bool, err error)
	// Advance moves the cursor forward to block. It never moves backwards.
	Advance(ctx context.Context, chain model.Chain, block int64) error
}

// TokenRepository provides access to token metadata.
type TokenRepository interface {
	// FindByID returns nil, nil when the token is unknown.
	FindByID(ctx context.Context, id string) (*model.Token, error)
	// GetOrCreate inserts t when absent and returns the stored row. created
	// is false when a row already existed; its decimals win.
	GetOrCreate(ctx context.Context, t *model.Token) (stored *model.Token, created bool, err error)
}

// PriceRepository provides access to persisted price observations.
type PriceRepository interface {
	// LatestSince returns the newest observation at or after since.
	LatestSince(ctx context.Context, tokenID string, since time.Time) (*model.PriceObservation, error)
	// EarliestBetween returns the earliest observation in [from, to].
	EarliestBetween(ctx context.Context, tokenID string, from, to time.Time) (*model.PriceObservation, error)
	// Insert stores obs. A duplicate (token, timestamp) is not an error.
	Insert(ctx context.Context, obs *model.PriceObservation) error
}

// DappRepository provides access to the dApp/contract registry.
type DappRepository interface {
	List(ctx context.Context) ([]model.Dapp, error)
	// Upsert writes the dApp and replaces its contract bindings.
	Upsert(ctx context.Context, d model.Dapp) error
}

// StatsRepository rebuilds derived daily aggregates from transfer rows.
type StatsRepository interface {
	// RebuildDaily recomputes global and per-dApp stats for the UTC day
	// containing day and returns what was written.
	RebuildDaily(ctx context.Context, day time.Time) (*model.GlobalStats, []model.DappStats, error)
}

// TransferPublisher announces newly inserted transfers to live consumers.
type TransferPublisher interface {
	Publish(ctx context.Context, t *model.Transfer) error
}
