package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/store"
)

type StatsRepo struct {
	db *DB
}

var _ store.StatsRepository = (*StatsRepo)(nil)

func NewStatsRepo(db *DB) *StatsRepo {
	return &StatsRepo{db: db}
}

// RebuildDaily recomputes the rollups for one UTC day inside a single
// transaction. Volumes only sum priced transfers; counts include every
// transfer in the window.
func (r *StatsRepo) RebuildDaily(ctx context.Context, day time.Time) (*model.GlobalStats, []model.DappStats, error) {
	ctx, cancel := withTimeout(ctx, LongQueryTimeout)
	defer cancel()

	start := model.DayStart(day)
	end := start.Add(24 * time.Hour)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin stats rebuild: %w", err)
	}
	defer tx.Rollback()

	g := model.GlobalStats{Date: start, Period: model.PeriodDaily}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO global_stats (
			date, period, volume_usd, transfer_count, unique_users, active_dapps,
			base_to_solana_volume, base_to_solana_count, solana_to_base_volume, solana_to_base_count
		)
		SELECT
			$1::date, $2,
			COALESCE(SUM(amount_usd), 0),
			COUNT(*),
			COUNT(DISTINCT from_address),
			COUNT(DISTINCT dapp_id),
			COALESCE(SUM(amount_usd) FILTER (WHERE direction = 'BASE_TO_SOLANA'), 0),
			COUNT(*) FILTER (WHERE direction = 'BASE_TO_SOLANA'),
			COALESCE(SUM(amount_usd) FILTER (WHERE direction = 'SOLANA_TO_BASE'), 0),
			COUNT(*) FILTER (WHERE direction = 'SOLANA_TO_BASE')
		FROM transfers
		WHERE block_timestamp >= $3 AND block_timestamp < $4
		ON CONFLICT (date, period) DO UPDATE SET
			volume_usd            = EXCLUDED.volume_usd,
			transfer_count        = EXCLUDED.transfer_count,
			unique_users          = EXCLUDED.unique_users,
			active_dapps          = EXCLUDED.active_dapps,
			base_to_solana_volume = EXCLUDED.base_to_solana_volume,
			base_to_solana_count  = EXCLUDED.base_to_solana_count,
			solana_to_base_volume = EXCLUDED.solana_to_base_volume,
			solana_to_base_count  = EXCLUDED.solana_to_base_count,
			updated_at            = now()
		RETURNING volume_usd, transfer_count, unique_users, active_dapps,
			base_to_solana_volume, base_to_solana_count, solana_to_base_volume, solana_to_base_count
	`, start, model.PeriodDaily, start, end).Scan(
		&g.VolumeUSD, &g.TransferCount, &g.UniqueUsers, &g.ActiveDapps,
		&g.BaseToSolanaVolume, &g.BaseToSolanaCount, &g.SolanaToBaseVolume, &g.SolanaToBaseCount,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("rebuild global stats: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		INSERT INTO dapp_stats (dapp_id, date, period, volume_usd, volume_token, transfer_count, unique_users)
		SELECT
			t.dapp_id, $1::date, $2,
			COALESCE(SUM(t.amount_usd), 0),
			COALESCE(SUM(t.amount_normalized), 0),
			COUNT(*),
			COUNT(DISTINCT t.from_address)
		FROM transfers t
		JOIN dapps d ON d.id = t.dapp_id
		WHERE t.block_timestamp >= $3 AND t.block_timestamp < $4
		GROUP BY t.dapp_id
		ON CONFLICT (dapp_id, date, period) DO UPDATE SET
			volume_usd     = EXCLUDED.volume_usd,
			volume_token   = EXCLUDED.volume_token,
			transfer_count = EXCLUDED.transfer_count,
			unique_users   = EXCLUDED.unique_users,
			updated_at     = now()
		RETURNING dapp_id, volume_usd, volume_token, transfer_count, unique_users
	`, start, model.PeriodDaily, start, end)
	if err != nil {
		return nil, nil, fmt.Errorf("rebuild dapp stats: %w", err)
	}
	defer rows.Close()

	var perDapp []model.DappStats
	for rows.Next() {
		s := model.DappStats{Date: start, Period: model.PeriodDaily}
		if err := rows.Scan(&s.DappID, &s.VolumeUSD, &s.VolumeToken, &s.TransferCount, &s.UniqueUsers); err != nil {
			return nil, nil, fmt.Errorf("scan dapp stats: %w", err)
		}
		perDapp = append(perDapp, s)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate dapp stats: %w", err)
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit stats rebuild: %w", err)
	}
	return &g, perDapp, nil
}
