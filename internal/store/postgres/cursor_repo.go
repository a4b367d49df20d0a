package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/store"
)

type CursorRepo struct {
	db *DB
}

var _ store.CursorRepository = (*CursorRepo)(nil)

func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

func (r *CursorRepo) Next(ctx context.Context, chain model.Chain) (int64, bool, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var block int64
	err := r.db.QueryRowContext(ctx,
		`SELECT next_block FROM sync_cursors WHERE chain = $1`, chain,
	).Scan(&block)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get sync cursor: %w", err)
	}
	return block, true, nil
}

func (r *CursorRepo) Advance(ctx context.Context, chain model.Chain, block int64) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (chain, next_block)
		VALUES ($1, $2)
		ON CONFLICT (chain) DO UPDATE SET
			next_block = GREATEST(sync_cursors.next_block, EXCLUDED.next_block),
			updated_at = now()
	`, chain, block)
	if err != nil {
		return fmt.Errorf("advance sync cursor: %w", err)
	}
	return nil
}
