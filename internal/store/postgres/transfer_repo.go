package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/store"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type TransferRepo struct {
	db *DB
}

var _ store.TransferRepository = (*TransferRepo)(nil)

func NewTransferRepo(db *DB) *TransferRepo {
	return &TransferRepo{db: db}
}

const transferColumns = `id, tx_hash, log_index, chain, kind, direction, status,
	from_address, to_address, local_token, remote_token, amount, amount_normalized,
	amount_usd, price_usd_at_time, relayer, program_id, dapp_id,
	attribution_confidence, attribution_method, attribution_signals,
	block_number, block_timestamp`

const transferPlaceholders = `$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
	$14, $15, $16, $17, $18, $19, $20, $21, $22, $23`

func transferArgs(t *model.Transfer) []any {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	signals := t.AttributionSignals
	if signals == nil {
		signals = []string{}
	}
	method := t.AttributionMethod
	if method == "" {
		method = model.MethodUnknown
	}
	return []any{
		t.ID, t.TxHash, t.LogIndex, t.Chain, t.Kind, t.Direction, t.Status,
		t.FromAddress, t.ToAddress, t.LocalToken, t.RemoteToken, t.Amount, nullDecimal(t.AmountNormalized),
		nullDecimal(t.AmountUSD), nullDecimal(t.PriceUSDAtTime), t.Relayer, t.ProgramID, t.DappID,
		t.AttributionConfidence, method, pq.Array(signals),
		t.BlockNumber, t.BlockTimestamp.UTC(),
	}
}

func (r *TransferRepo) Exists(ctx context.Context, key model.TransferKey) (bool, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM transfers WHERE tx_hash = $1 AND log_index = $2)`,
		key.TxHash, key.LogIndex,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check transfer exists: %w", err)
	}
	return exists, nil
}

func (r *TransferRepo) FindByKey(ctx context.Context, key model.TransferKey) (*model.Transfer, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var (
		t                         model.Transfer
		amount                    sql.NullString
		normalized, usd, priceUSD decimal.NullDecimal
		signals                   pq.StringArray
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT `+transferColumns+`, created_at, updated_at
		FROM transfers
		WHERE tx_hash = $1 AND log_index = $2
	`, key.TxHash, key.LogIndex).Scan(
		&t.ID, &t.TxHash, &t.LogIndex, &t.Chain, &t.Kind, &t.Direction, &t.Status,
		&t.FromAddress, &t.ToAddress, &t.LocalToken, &t.RemoteToken, &amount, &normalized,
		&usd, &priceUSD, &t.Relayer, &t.ProgramID, &t.DappID,
		&t.AttributionConfidence, &t.AttributionMethod, &signals,
		&t.BlockNumber, &t.BlockTimestamp, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transfer: %w", err)
	}
	if amount.Valid {
		t.Amount = &amount.String
	}
	t.AmountNormalized = decimalPtr(normalized)
	t.AmountUSD = decimalPtr(usd)
	t.PriceUSDAtTime = decimalPtr(priceUSD)
	t.AttributionSignals = []string(signals)
	return &t, nil
}

// InsertIfAbsent writes t unless the natural key already exists.
func (r *TransferRepo) InsertIfAbsent(ctx context.Context, t *model.Transfer) (bool, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transfers (`+transferColumns+`)
		VALUES (`+transferPlaceholders+`)
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`, transferArgs(t)...)
	if err != nil {
		return false, fmt.Errorf("insert transfer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert transfer rows affected: %w", err)
	}
	return n == 1, nil
}

// Upsert refines only derived fields on conflict. A refinement never
// replaces a known value with NULL.
func (r *TransferRepo) Upsert(ctx context.Context, t *model.Transfer) (bool, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var inserted bool
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO transfers (`+transferColumns+`)
		VALUES (`+transferPlaceholders+`)
		ON CONFLICT (tx_hash, log_index) DO UPDATE SET
			amount_usd             = COALESCE(EXCLUDED.amount_usd, transfers.amount_usd),
			price_usd_at_time      = COALESCE(EXCLUDED.price_usd_at_time, transfers.price_usd_at_time),
			dapp_id                = COALESCE(EXCLUDED.dapp_id, transfers.dapp_id),
			attribution_confidence = CASE WHEN EXCLUDED.dapp_id IS NOT NULL
				THEN EXCLUDED.attribution_confidence ELSE transfers.attribution_confidence END,
			attribution_method     = CASE WHEN EXCLUDED.dapp_id IS NOT NULL
				THEN EXCLUDED.attribution_method ELSE transfers.attribution_method END,
			attribution_signals    = CASE WHEN EXCLUDED.dapp_id IS NOT NULL
				THEN EXCLUDED.attribution_signals ELSE transfers.attribution_signals END,
			updated_at             = now()
		RETURNING (xmax = 0)
	`, transferArgs(t)...).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert transfer: %w", err)
	}
	return inserted, nil
}
