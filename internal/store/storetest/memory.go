// Package storetest provides in-memory repositories for tests that need
// stateful persistence semantics (idempotent inserts, cursors) without a
// database.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/store"
	"github.com/google/uuid"
)

// Transfers is an in-memory store.TransferRepository.
type Transfers struct {
	mu   sync.Mutex
	rows map[model.TransferKey]model.Transfer

	// Err, when set, is returned by every write.
	Err error
	// FailKeys makes writes for the listed keys fail with Err.
	FailKeys map[model.TransferKey]bool
}

var _ store.TransferRepository = (*Transfers)(nil)

func NewTransfers() *Transfers {
	return &Transfers{rows: make(map[model.TransferKey]model.Transfer)}
}

func (r *Transfers) Exists(_ context.Context, key model.TransferKey) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[key]
	return ok, nil
}

func (r *Transfers) FindByKey(_ context.Context, key model.TransferKey) (*model.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[key]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *Transfers) InsertIfAbsent(_ context.Context, t *model.Transfer) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failFor(t.Key()); err != nil {
		return false, err
	}
	if _, ok := r.rows[t.Key()]; ok {
		return false, nil
	}
	r.insertLocked(t)
	return true, nil
}

func (r *Transfers) Upsert(_ context.Context, t *model.Transfer) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failFor(t.Key()); err != nil {
		return false, err
	}
	existing, ok := r.rows[t.Key()]
	if !ok {
		r.insertLocked(t)
		return true, nil
	}
	if t.AmountUSD != nil {
		existing.AmountUSD = t.AmountUSD
	}
	if t.PriceUSDAtTime != nil {
		existing.PriceUSDAtTime = t.PriceUSDAtTime
	}
	if t.DappID != nil {
		existing.DappID = t.DappID
		existing.AttributionConfidence = t.AttributionConfidence
		existing.AttributionMethod = t.AttributionMethod
		existing.AttributionSignals = t.AttributionSignals
	}
	existing.UpdatedAt = time.Now()
	r.rows[t.Key()] = existing
	return false, nil
}

// All returns stored transfers ordered by (tx_hash, log_index).
func (r *Transfers) All() []model.Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Transfer, 0, len(r.rows))
	for _, t := range r.rows {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TxHash != out[j].TxHash {
			return out[i].TxHash < out[j].TxHash
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out
}

// Put seeds a row directly.
func (r *Transfers) Put(t model.Transfer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(&t)
}

func (r *Transfers) insertLocked(t *model.Transfer) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now()
	row := *t
	row.CreatedAt, row.UpdatedAt = now, now
	r.rows[t.Key()] = row
}

func (r *Transfers) failFor(key model.TransferKey) error {
	if r.Err == nil {
		return nil
	}
	if len(r.FailKeys) == 0 || r.FailKeys[key] {
		return r.Err
	}
	return nil
}

// Cursors is an in-memory store.CursorRepository.
type Cursors struct {
	mu     sync.Mutex
	blocks map[model.Chain]int64

	// Err, when set, is returned by every call.
	Err error
}

var _ store.CursorRepository = (*Cursors)(nil)

func NewCursors() *Cursors {
	return &Cursors{blocks: make(map[model.Chain]int64)}
}

func (r *Cursors) Next(_ context.Context, chain model.Chain) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, false, r.Err
	}
	b, ok := r.blocks[chain]
	return b, ok, nil
}

func (r *Cursors) Advance(_ context.Context, chain model.Chain, block int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if cur, ok := r.blocks[chain]; !ok || block > cur {
		r.blocks[chain] = block
	}
	return nil
}

// Tokens is an in-memory store.TokenRepository.
type Tokens struct {
	mu      sync.Mutex
	rows    map[string]model.Token
	Created int
}

var _ store.TokenRepository = (*Tokens)(nil)

func NewTokens(seed ...model.Token) *Tokens {
	r := &Tokens{rows: make(map[string]model.Token)}
	for _, t := range seed {
		t.ID = model.TokenID(t.Address)
		r.rows[t.ID] = t
	}
	return r
}

func (r *Tokens) FindByID(_ context.Context, id string) (*model.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[model.TokenID(id)]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *Tokens) GetOrCreate(_ context.Context, t *model.Token) (*model.Token, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := model.TokenID(t.Address)
	if existing, ok := r.rows[id]; ok {
		return &existing, false, nil
	}
	row := *t
	row.ID = id
	if row.Symbol == "" {
		row.Symbol = model.UnknownTokenSymbol
	}
	r.rows[id] = row
	r.Created++
	return &row, true, nil
}

// Prices is an in-memory store.PriceRepository.
type Prices struct {
	mu   sync.Mutex
	rows []model.PriceObservation
}

var _ store.PriceRepository = (*Prices)(nil)

func NewPrices(seed ...model.PriceObservation) *Prices {
	return &Prices{rows: seed}
}

func (r *Prices) LatestSince(_ context.Context, tokenID string, since time.Time) (*model.PriceObservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *model.PriceObservation
	for i := range r.rows {
		o := &r.rows[i]
		if !strings.EqualFold(o.TokenID, tokenID) || o.Timestamp.Before(since) {
			continue
		}
		if best == nil || o.Timestamp.After(best.Timestamp) {
			best = o
		}
	}
	return copyObs(best), nil
}

func (r *Prices) EarliestBetween(_ context.Context, tokenID string, from, to time.Time) (*model.PriceObservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *model.PriceObservation
	for i := range r.rows {
		o := &r.rows[i]
		if !strings.EqualFold(o.TokenID, tokenID) || o.Timestamp.Before(from) || o.Timestamp.After(to) {
			continue
		}
		if best == nil || o.Timestamp.Before(best.Timestamp) {
			best = o
		}
	}
	return copyObs(best), nil
}

func (r *Prices) Insert(_ context.Context, obs *model.PriceObservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.rows {
		if strings.EqualFold(o.TokenID, obs.TokenID) && o.Timestamp.Equal(obs.Timestamp) {
			return nil
		}
	}
	r.rows = append(r.rows, *obs)
	return nil
}

func (r *Prices) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func copyObs(o *model.PriceObservation) *model.PriceObservation {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

// Publisher records published transfers.
type Publisher struct {
	mu        sync.Mutex
	Published []model.Transfer
}

var _ store.TransferPublisher = (*Publisher)(nil)

func (p *Publisher) Publish(_ context.Context, t *model.Transfer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Published = append(p.Published, *t)
	return nil
}

func (p *Publisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Published)
}
