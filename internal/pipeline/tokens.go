package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/normalizer"
	"github.com/emperorhan/bridgescope-indexer/internal/store"
	"github.com/emperorhan/bridgescope-indexer/internal/tokenmeta"
)

// TokenMetadata reads token metadata from chain state. *tokenmeta.Resolver
// satisfies it.
type TokenMetadata interface {
	Resolve(ctx context.Context, chain model.Chain, address string) (*tokenmeta.Metadata, error)
	DisplayName(ctx context.Context, chain model.Chain, address string) string
}

// tokenStore creates token rows on first sight. Stored rows are never
// rewritten, so their decimals win over anything read later.
type tokenStore struct {
	repo   store.TokenRepository
	meta   TokenMetadata
	logger *slog.Logger
}

var _ normalizer.TokenResolver = (*tokenStore)(nil)

func (s *tokenStore) ResolveToken(ctx context.Context, chain model.Chain, address string) (*model.Token, bool, error) {
	existing, err := s.repo.FindByID(ctx, model.TokenID(address))
	if err != nil {
		return nil, false, fmt.Errorf("find token %s: %w", address, err)
	}
	if existing != nil {
		return existing, false, nil
	}

	t := &model.Token{
		Chain:    chain,
		Address:  address,
		Symbol:   model.UnknownTokenSymbol,
		Decimals: normalizer.DefaultDecimals(chain),
	}
	if s.meta != nil {
		meta, err := s.meta.Resolve(ctx, chain, address)
		if err != nil {
			s.logger.Warn("token metadata unavailable", "chain", chain, "token", address, "error", err)
		}
		if meta != nil {
			t.Symbol = meta.Symbol
			t.Decimals = meta.Decimals
		} else {
			s.logger.Warn("could not resolve token metadata, using defaults", "chain", chain, "token", address, "decimals", t.Decimals)
		}
		t.Name = s.meta.DisplayName(ctx, chain, address)
	}
	return s.create(ctx, t)
}

// ensureLedgerToken registers a mint seen in a webhook event with the
// decimals the event carried.
func (s *tokenStore) ensureLedgerToken(ctx context.Context, mint string, decimals int) (*model.Token, bool, error) {
	existing, err := s.repo.FindByID(ctx, model.TokenID(mint))
	if err != nil {
		return nil, false, fmt.Errorf("find token %s: %w", mint, err)
	}
	if existing != nil {
		return existing, false, nil
	}
	return s.create(ctx, &model.Token{
		Chain:    model.ChainSolana,
		Address:  mint,
		Symbol:   model.UnknownTokenSymbol,
		Decimals: decimals,
	})
}

func (s *tokenStore) create(ctx context.Context, t *model.Token) (*model.Token, bool, error) {
	stored, created, err := s.repo.GetOrCreate(ctx, t)
	if err != nil {
		return nil, false, fmt.Errorf("create token %s: %w", t.Address, err)
	}
	if created {
		s.logger.Info("new token discovered",
			"chain", stored.Chain,
			"token", stored.Address,
			"symbol", stored.Symbol,
			"decimals", stored.Decimals,
		)
	}
	return stored, created, nil
}
