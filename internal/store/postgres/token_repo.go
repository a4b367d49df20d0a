package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/store"
)

type TokenRepo struct {
	db *DB
}

var _ store.TokenRepository = (*TokenRepo)(nil)

func NewTokenRepo(db *DB) *TokenRepo {
	return &TokenRepo{db: db}
}

// FindByID returns the token with the given lowercased address.
func (r *TokenRepo) FindByID(ctx context.Context, id string) (*model.Token, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var t model.Token
	err := r.db.QueryRowContext(ctx, `
		SELECT id, chain, address, symbol, name, decimals, is_verified, created_at, updated_at
		FROM tokens
		WHERE id = $1
	`, model.TokenID(id)).Scan(
		&t.ID, &t.Chain, &t.Address, &t.Symbol, &t.Name, &t.Decimals, &t.IsVerified,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find token by id: %w", err)
	}
	return &t, nil
}

// GetOrCreate never updates an existing row, so decimals written first
// stay authoritative.
func (r *TokenRepo) GetOrCreate(ctx context.Context, t *model.Token) (*model.Token, bool, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	id := model.TokenID(t.Address)
	if t.ID != "" {
		id = model.TokenID(t.ID)
	}
	symbol := t.Symbol
	if symbol == "" {
		symbol = model.UnknownTokenSymbol
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (id, chain, address, symbol, name, decimals, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, id, t.Chain, t.Address, symbol, t.Name, t.Decimals, t.IsVerified)
	if err != nil {
		return nil, false, fmt.Errorf("create token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("create token rows affected: %w", err)
	}

	stored, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("token %s missing after insert", id)
	}
	return stored, n == 1, nil
}
