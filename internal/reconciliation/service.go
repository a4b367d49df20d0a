// Package reconciliation fills gaps the webhook path may have missed by
// paging through each chain's subgraph and inserting absent transfers.
// Rows that already exist are never modified here.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/alert"
	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/metrics"
	"github.com/emperorhan/bridgescope-indexer/internal/normalizer"
	"github.com/emperorhan/bridgescope-indexer/internal/pipeline"
	"github.com/emperorhan/bridgescope-indexer/internal/stats"
	"github.com/emperorhan/bridgescope-indexer/internal/subgraph"
	"github.com/emperorhan/bridgescope-indexer/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval         = 30 * time.Second
	DefaultBatchSize        = 100
	DefaultFailureThreshold = 3
)

// State is the position of one chain in the sync cycle.
type State string

const (
	StateIdle        State = "IDLE"
	StateFetching    State = "FETCHING"
	StateProcessing  State = "PROCESSING"
	StateAggregating State = "AGGREGATING"
)

// EventProcessor is satisfied by *pipeline.Processor.
type EventProcessor interface {
	ProcessIndexedEvent(ctx context.Context, chain model.Chain, kind model.EventKind, ev normalizer.IndexedEvent) pipeline.Result
}

// CursorStore is satisfied by *postgres.CursorRepo. The cursor only moves
// on records this service has seen stored, so transfers written by the
// webhook cannot push it past blocks the subgraph has not delivered.
type CursorStore interface {
	Next(ctx context.Context, chain model.Chain) (block int64, ok bool, err error)
	Advance(ctx context.Context, chain model.Chain, block int64) error
}

// Aggregator is satisfied by *stats.Aggregator.
type Aggregator interface {
	RebuildToday(ctx context.Context) (*stats.Result, error)
}

// ChainResult describes one page processed for one chain.
type ChainResult struct {
	Chain       model.Chain      `json:"chain"`
	FromBlock   int64            `json:"from_block"`
	NextBlock   int64            `json:"next_block"`
	Initialized int              `json:"initialized"`
	Finalized   int              `json:"finalized"`
	Summary     pipeline.Summary `json:"summary"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
}

// RunResult aggregates one tick over every configured chain.
type RunResult struct {
	Chains     []ChainResult `json:"chains"`
	Failed     []model.Chain `json:"failed,omitempty"`
	Aggregated bool          `json:"aggregated"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// ChainStatus is the observable state of one chain's sync flow.
type ChainStatus struct {
	State               State        `json:"state"`
	LastResult          *ChainResult `json:"last_result,omitempty"`
	LastError           string       `json:"last_error,omitempty"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
}

type Config struct {
	BatchSize int
	// FailureThreshold is the number of consecutive failed ticks on a chain
	// before an alert is sent.
	FailureThreshold int
	Alerter          alert.Alerter
}

type chainFlow struct {
	chain  model.Chain
	source subgraph.Source
	// mu keeps pages of one chain strictly sequential.
	mu sync.Mutex
}

type Service struct {
	proc             EventProcessor
	cursors          CursorStore
	aggregator       Aggregator
	alerter          alert.Alerter
	batchSize        int
	failureThreshold int
	logger           *slog.Logger

	mu     sync.RWMutex
	flows  []*chainFlow
	status map[model.Chain]*ChainStatus
}

func NewService(proc EventProcessor, cursors CursorStore, aggregator Aggregator, cfg Config, logger *slog.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	return &Service{
		proc:             proc,
		cursors:          cursors,
		aggregator:       aggregator,
		alerter:          cfg.Alerter,
		batchSize:        cfg.BatchSize,
		failureThreshold: cfg.FailureThreshold,
		logger:           logger.With("component", "reconciliation"),
		status:           make(map[model.Chain]*ChainStatus),
	}
}

// RegisterSource adds a chain to the sync cycle. Registering a chain again
// replaces its source.
func (s *Service) RegisterSource(chain model.Chain, source subgraph.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.flows {
		if f.chain == chain {
			f.source = source
			return
		}
	}
	s.flows = append(s.flows, &chainFlow{chain: chain, source: source})
	s.status[chain] = &ChainStatus{State: StateIdle}
}

// Chains returns the registered chains in registration order.
func (s *Service) Chains() []model.Chain {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Chain, len(s.flows))
	for i, f := range s.flows {
		out[i] = f.chain
	}
	return out
}

// Status returns a copy of the chain's state; ok is false for chains that
// were never registered.
func (s *Service) Status(chain model.Chain) (ChainStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.status[chain]
	if !ok {
		return ChainStatus{}, false
	}
	return *st, true
}

func (s *Service) setState(chain model.Chain, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.status[chain]; ok {
		st.State = state
	}
}

// SyncOnce runs one tick: every chain fetches and processes one page, then
// today's rollups are rebuilt. A failing chain is logged and returned to
// IDLE without affecting the others. The returned error is non-nil only
// when every chain failed.
func (s *Service) SyncOnce(ctx context.Context) (*RunResult, error) {
	ctx, span := tracing.Start(ctx, "reconciliation.tick")
	var spanErr error
	defer func() { tracing.End(span, spanErr) }()

	s.mu.RLock()
	flows := append([]*chainFlow(nil), s.flows...)
	s.mu.RUnlock()
	defer func() {
		for _, f := range flows {
			s.setState(f.chain, StateIdle)
		}
	}()

	run := &RunResult{StartedAt: time.Now()}
	results := make([]*ChainResult, len(flows))
	errs := make([]error, len(flows))

	var g errgroup.Group
	for i, f := range flows {
		g.Go(func() error {
			results[i], errs[i] = s.syncFlow(ctx, f)
			return nil
		})
	}
	_ = g.Wait()

	for i, f := range flows {
		if errs[i] != nil {
			run.Failed = append(run.Failed, f.chain)
			continue
		}
		run.Chains = append(run.Chains, *results[i])
	}

	if len(flows) > 0 && len(run.Failed) == len(flows) {
		run.FinishedAt = time.Now()
		spanErr = errors.Join(errs...)
		return run, fmt.Errorf("sync tick: all chains failed: %w", spanErr)
	}

	s.aggregate(ctx, run)
	run.FinishedAt = time.Now()
	return run, nil
}

func (s *Service) aggregate(ctx context.Context, run *RunResult) {
	if s.aggregator == nil {
		return
	}
	for _, c := range s.Chains() {
		s.setState(c, StateAggregating)
	}

	if _, err := s.aggregator.RebuildToday(ctx); err != nil {
		s.logger.Warn("daily stats rebuild failed", "stage", "aggregate", "error", err)
		s.sendAlert(ctx, alert.Alert{
			Type:    alert.AlertTypeStatsFailure,
			Source:  "stats",
			Title:   "Daily stats rebuild failed",
			Message: err.Error(),
		})
		return
	}
	run.Aggregated = true
}

// SyncChain fetches and processes one page for chain without rebuilding
// aggregates.
func (s *Service) SyncChain(ctx context.Context, chain model.Chain) (*ChainResult, error) {
	s.mu.RLock()
	var flow *chainFlow
	for _, f := range s.flows {
		if f.chain == chain {
			flow = f
		}
	}
	s.mu.RUnlock()
	if flow == nil {
		return nil, fmt.Errorf("no subgraph source registered for %s", chain)
	}
	res, err := s.syncFlow(ctx, flow)
	if err == nil {
		s.setState(chain, StateIdle)
	}
	return res, err
}

func (s *Service) syncFlow(ctx context.Context, f *chainFlow) (res *ChainResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()
	log := s.logger.With("chain", f.chain)
	defer func() {
		metrics.SyncTickLatency.WithLabelValues(string(f.chain)).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.SyncTicksTotal.WithLabelValues(string(f.chain), "error").Inc()
			s.recordFailure(ctx, f.chain, err)
			return
		}
		metrics.SyncTicksTotal.WithLabelValues(string(f.chain), "ok").Inc()
		s.recordSuccess(ctx, f.chain, res)
	}()

	ctx, span := tracing.Start(ctx, "reconciliation.chain", attribute.String("chain", string(f.chain)))
	defer func() { tracing.End(span, err) }()

	s.setState(f.chain, StateFetching)
	from, err := s.cursor(ctx, f.chain)
	if err != nil {
		log.Warn("sync failed", "stage", "cursor", "error", err)
		return nil, err
	}
	metrics.SyncCursorBlock.WithLabelValues(string(f.chain)).Set(float64(from))

	page, err := f.source.FetchPage(ctx, from, s.batchSize)
	if err != nil {
		log.Warn("sync failed", "stage", "fetch", "from_block", from, "error", err)
		return nil, err
	}

	s.setState(f.chain, StateProcessing)
	res = &ChainResult{
		Chain:       f.chain,
		FromBlock:   from,
		Initialized: len(page.Initialized),
		Finalized:   len(page.Finalized),
		StartedAt:   start,
	}
	adv := newCursorAdvance(from)
	for _, ev := range page.Initialized {
		r := s.proc.ProcessIndexedEvent(ctx, f.chain, model.KindInitialized, ev)
		res.Summary.Add(r)
		adv.observe(ev.BlockNumber, r.Outcome)
	}
	for _, ev := range page.Finalized {
		r := s.proc.ProcessIndexedEvent(ctx, f.chain, model.KindFinalized, ev)
		res.Summary.Add(r)
		adv.observe(ev.BlockNumber, r.Outcome)
	}
	adv.truncated(page.Initialized, s.batchSize)
	adv.truncated(page.Finalized, s.batchSize)

	res.NextBlock = adv.next()
	if res.NextBlock > from {
		if err := s.cursors.Advance(ctx, f.chain, res.NextBlock); err != nil {
			log.Warn("sync failed", "stage", "cursor", "next_block", res.NextBlock, "error", err)
			return nil, fmt.Errorf("advance cursor for %s: %w", f.chain, err)
		}
	}
	res.FinishedAt = time.Now()

	log.Info("sync page processed",
		"from_block", from,
		"next_block", res.NextBlock,
		"initialized", res.Initialized,
		"finalized", res.Finalized,
		"inserted", res.Summary.Inserted,
		"skipped", res.Summary.Skipped,
		"failed", res.Summary.Failed,
		"new_tokens", res.Summary.NewTokens,
		"duration_ms", res.FinishedAt.Sub(start).Milliseconds(),
	)
	return res, nil
}

// cursor is where the next page starts, or 0 for a chain never synced.
func (s *Service) cursor(ctx context.Context, chain model.Chain) (int64, error) {
	block, ok, err := s.cursors.Next(ctx, chain)
	if err != nil {
		return 0, fmt.Errorf("read cursor for %s: %w", chain, err)
	}
	if !ok {
		return 0, nil
	}
	return block, nil
}

func (s *Service) recordSuccess(ctx context.Context, chain model.Chain, res *ChainResult) {
	s.mu.Lock()
	st := s.status[chain]
	recovered := st.ConsecutiveFailures >= s.failureThreshold
	failures := st.ConsecutiveFailures
	st.ConsecutiveFailures = 0
	st.LastError = ""
	st.LastResult = res
	s.mu.Unlock()

	metrics.SyncConsecutiveFailures.WithLabelValues(string(chain)).Set(0)
	if recovered {
		s.sendAlert(ctx, alert.Alert{
			Type:    alert.AlertTypeSyncRecovery,
			Source:  string(chain),
			Title:   "Subgraph sync recovered",
			Message: fmt.Sprintf("%s sync succeeded after %d failed ticks", chain, failures),
		})
	}
}

func (s *Service) recordFailure(ctx context.Context, chain model.Chain, err error) {
	s.mu.Lock()
	st := s.status[chain]
	st.State = StateIdle
	st.ConsecutiveFailures++
	st.LastError = err.Error()
	failures := st.ConsecutiveFailures
	s.mu.Unlock()

	metrics.SyncConsecutiveFailures.WithLabelValues(string(chain)).Set(float64(failures))
	if failures == s.failureThreshold {
		s.sendAlert(ctx, alert.Alert{
			Type:    alert.AlertTypeSyncFailure,
			Source:  string(chain),
			Title:   "Subgraph sync failing",
			Message: err.Error(),
			Fields:  map[string]string{"consecutive_failures": strconv.Itoa(failures)},
		})
	}
}

func (s *Service) sendAlert(ctx context.Context, a alert.Alert) {
	if s.alerter == nil {
		return
	}
	if err := s.alerter.Send(ctx, a); err != nil {
		s.logger.Warn("alert send failed", "type", a.Type, "error", err)
	}
}

// RunPeriodic runs a tick immediately and then every interval until ctx is
// cancelled. Tick errors are logged; a slow tick delays the next one rather
// than queueing ticks.
func (s *Service) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s.logger.Info("subgraph sync started", "interval", interval, "chains", s.Chains(), "batch_size", s.batchSize)

	s.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("subgraph sync stopping")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	run, err := s.SyncOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("sync tick failed", "error", err)
		return
	}
	s.logger.Debug("sync tick completed",
		"chains", len(run.Chains),
		"failed", len(run.Failed),
		"aggregated", run.Aggregated,
		"duration_ms", run.FinishedAt.Sub(run.StartedAt).Milliseconds(),
	)
}
