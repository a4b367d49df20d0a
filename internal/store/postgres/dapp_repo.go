package postgres

import (
	"context"
	"fmt"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/store"
)

type DappRepo struct {
	db *DB
}

var _ store.DappRepository = (*DappRepo)(nil)

func NewDappRepo(db *DB) *DappRepo {
	return &DappRepo{db: db}
}

// List returns every dApp with its contract bindings, ordered by id.
func (r *DappRepo) List(ctx context.Context) ([]model.Dapp, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT d.id, d.name, d.category, d.website, c.chain, c.address, c.role
		FROM dapps d
		LEFT JOIN dapp_contracts c ON c.dapp_id = d.id
		ORDER BY d.id, c.address
	`)
	if err != nil {
		return nil, fmt.Errorf("list dapps: %w", err)
	}
	defer rows.Close()

	var (
		dapps []model.Dapp
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			d                    model.Dapp
			chain, address, role *string
		)
		if err := rows.Scan(&d.ID, &d.Name, &d.Category, &d.Website, &chain, &address, &role); err != nil {
			return nil, fmt.Errorf("scan dapp: %w", err)
		}
		i, ok := index[d.ID]
		if !ok {
			i = len(dapps)
			index[d.ID] = i
			dapps = append(dapps, d)
		}
		if address != nil {
			dapps[i].Contracts = append(dapps[i].Contracts, model.DappContract{
				DappID:  d.ID,
				Chain:   model.Chain(model.Deref(chain)),
				Address: *address,
				Role:    model.Deref(role),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dapps: %w", err)
	}
	return dapps, nil
}

func (r *DappRepo) Upsert(ctx context.Context, d model.Dapp) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin dapp upsert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dapps (id, name, category, website)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			website = EXCLUDED.website,
			updated_at = now()
	`, d.ID, d.Name, d.Category, d.Website); err != nil {
		return fmt.Errorf("upsert dapp %s: %w", d.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM dapp_contracts WHERE dapp_id = $1`, d.ID); err != nil {
		return fmt.Errorf("clear contracts for %s: %w", d.ID, err)
	}
	for _, c := range d.Contracts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dapp_contracts (dapp_id, chain, address, role)
			VALUES ($1, $2, $3, $4)
		`, d.ID, c.Chain, c.Address, c.Role); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("contract %s already bound to another dapp: %w", c.Address, err)
			}
			return fmt.Errorf("insert contract %s: %w", c.Address, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dapp upsert: %w", err)
	}
	return nil
}
