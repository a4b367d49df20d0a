// Package pipeline runs the shared normalize, token, price, attribute and
// persist sequence for both ingestion paths. Webhook payloads refine
// existing rows; reconciliation records only ever insert.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/attribution"
	baserpc "github.com/emperorhan/bridgescope-indexer/internal/chain/base/rpc"
	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/metrics"
	"github.com/emperorhan/bridgescope-indexer/internal/normalizer"
	"github.com/emperorhan/bridgescope-indexer/internal/pricing"
	"github.com/emperorhan/bridgescope-indexer/internal/store"
	"github.com/emperorhan/bridgescope-indexer/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Outcome is the result of processing one record.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeUpdated   Outcome = "updated"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDiscarded Outcome = "discarded"
	OutcomeFailed    Outcome = "failed"
)

const (
	SourceWebhook  = "webhook"
	SourceSubgraph = "subgraph"
)

// Stage names carried in logs.
const (
	stageNormalize = "normalize"
	stageToken     = "token"
	stageExists    = "exists"
	stageEnrich    = "enrich"
	stagePersist   = "persist"
	stagePublish   = "publish"
)

// Pricer values a raw amount; nil means no price.
type Pricer interface {
	CalculateUSDValue(ctx context.Context, token, raw string, decimals int, ts *time.Time) *pricing.USDValue
}

type Attributor interface {
	Attribute(s attribution.Signals) model.Attribution
}

// TransactionLookup reads contract-chain transactions for sender and
// preceding-call enrichment.
type TransactionLookup interface {
	GetTransactionByHash(ctx context.Context, hash string) (*baserpc.Transaction, error)
}

type Config struct {
	BridgeProgram  string
	RelayerProgram string

	Transfers   store.TransferRepository
	Tokens      store.TokenRepository
	Publisher   store.TransferPublisher
	Metadata    TokenMetadata
	Prices      Pricer
	Attribution Attributor
	// BaseTransactions is optional; without it contract-chain records carry
	// no sender and no preceding-call signal.
	BaseTransactions TransactionLookup
}

type Processor struct {
	ledger     *normalizer.Ledger
	contract   *normalizer.Contract
	transfers  store.TransferRepository
	tokens     *tokenStore
	publisher  store.TransferPublisher
	prices     Pricer
	attributor Attributor
	baseTxs    TransactionLookup
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Processor {
	logger = logger.With("component", "pipeline")
	tokens := &tokenStore{repo: cfg.Tokens, meta: cfg.Metadata, logger: logger}
	return &Processor{
		ledger:     normalizer.NewLedger(cfg.BridgeProgram, cfg.RelayerProgram),
		contract:   normalizer.NewContract(tokens),
		transfers:  cfg.Transfers,
		tokens:     tokens,
		publisher:  cfg.Publisher,
		prices:     cfg.Prices,
		attributor: cfg.Attribution,
		baseTxs:    cfg.BaseTransactions,
		logger:     logger,
	}
}

// Result describes one processed record.
type Result struct {
	Outcome  Outcome
	Key      model.TransferKey
	NewToken bool
	// StoreFailed marks a failure reading or writing the transfer store,
	// as opposed to a record that could not be normalized.
	StoreFailed bool
}

// Summary counts outcomes over a batch.
type Summary struct {
	Inserted  int
	Updated   int
	Skipped   int
	Discarded int
	Failed    int
	NewTokens int
	// StoreErrors counts the failed records whose cause was the store.
	StoreErrors int
}

func (s *Summary) Add(r Result) {
	switch r.Outcome {
	case OutcomeInserted:
		s.Inserted++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeDiscarded:
		s.Discarded++
	case OutcomeFailed:
		s.Failed++
	}
	if r.NewToken {
		s.NewTokens++
	}
	if r.StoreFailed {
		s.StoreErrors++
	}
}

func (s Summary) Total() int {
	return s.Inserted + s.Updated + s.Skipped + s.Discarded + s.Failed
}

// ProcessLedgerPayload decodes a webhook body and processes its
// transactions in order. A failing transaction is logged and skipped; only
// an undecodable payload is an error.
func (p *Processor) ProcessLedgerPayload(ctx context.Context, raw []byte) (Summary, error) {
	txs, err := normalizer.DecodeLedgerPayload(raw)
	if err != nil {
		return Summary{}, err
	}
	var sum Summary
	for _, tx := range txs {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Add(p.ProcessLedgerTransaction(ctx, tx))
	}
	return sum, nil
}

// ProcessLedgerTransaction runs one webhook transaction through the
// pipeline and upserts it.
func (p *Processor) ProcessLedgerTransaction(ctx context.Context, tx normalizer.LedgerTransaction) (res Result) {
	ctx, span := tracing.Start(ctx, "pipeline.ledger_transaction", attribute.String("tx_hash", tx.Signature))
	var spanErr error
	defer func() {
		span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
		tracing.End(span, spanErr)
		metrics.TransfersProcessedTotal.WithLabelValues(string(model.ChainSolana), SourceWebhook, string(res.Outcome)).Inc()
	}()

	log := p.logger.With("chain", model.ChainSolana, "tx_hash", tx.Signature)
	nr, err := p.ledger.NormalizeLedgerTransaction(tx)
	if err != nil {
		spanErr = err
		log.Warn("dropping ledger transaction", "stage", stageNormalize, "error", err)
		return Result{Outcome: OutcomeFailed}
	}
	if nr == nil {
		return Result{Outcome: OutcomeDiscarded}
	}
	t := nr.Transfer
	res.Key = t.Key()
	log = log.With("log_index", t.LogIndex)

	decimals := nr.Decimals
	if t.LocalToken != nil {
		tok, created, err := p.tokens.ensureLedgerToken(ctx, *t.LocalToken, nr.Decimals)
		if err != nil {
			log.Warn("token registration failed", "stage", stageToken, "token", *t.LocalToken, "error", err)
		}
		if tok != nil {
			decimals = tok.Decimals
		}
		res.NewToken = created
	}

	p.price(ctx, t, decimals)
	p.attribute(t, attribution.Signals{Relayer: model.Deref(t.Relayer)})

	created, err := p.transfers.Upsert(ctx, t)
	if err != nil {
		spanErr = err
		log.Warn("persist failed", "stage", stagePersist, "error", err)
		return Result{Outcome: OutcomeFailed, Key: res.Key, NewToken: res.NewToken, StoreFailed: true}
	}
	if !created {
		res.Outcome = OutcomeUpdated
		return res
	}
	res.Outcome = OutcomeInserted
	p.publish(ctx, log, t)
	return res
}

// ProcessIndexedEvent runs one subgraph record through the pipeline. Stored
// records are skipped before any token or price work; new ones are
// inserted and never overwrite a concurrent write.
func (p *Processor) ProcessIndexedEvent(ctx context.Context, chain model.Chain, kind model.EventKind, ev normalizer.IndexedEvent) (res Result) {
	ctx, span := tracing.Start(ctx, "pipeline.indexed_event",
		attribute.String("chain", string(chain)),
		attribute.String("kind", string(kind)),
		attribute.String("tx_hash", ev.TransactionHash),
	)
	var spanErr error
	defer func() {
		span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
		tracing.End(span, spanErr)
		metrics.TransfersProcessedTotal.WithLabelValues(string(chain), SourceSubgraph, string(res.Outcome)).Inc()
	}()

	log := p.logger.With("chain", chain, "tx_hash", ev.TransactionHash, "event_id", ev.ID)
	key, err := normalizer.EventKey(chain, ev)
	if err != nil {
		spanErr = err
		log.Warn("dropping indexed event", "stage", stageNormalize, "error", err)
		return Result{Outcome: OutcomeFailed}
	}
	res.Key = key
	log = log.With("log_index", key.LogIndex)

	exists, err := p.transfers.Exists(ctx, key)
	if err != nil {
		spanErr = err
		log.Warn("existence check failed", "stage", stageExists, "error", err)
		return Result{Outcome: OutcomeFailed, Key: key, StoreFailed: true}
	}
	if exists {
		return Result{Outcome: OutcomeSkipped, Key: key}
	}

	nr, err := p.contract.NormalizeIndexedEvent(ctx, chain, kind, ev)
	if err != nil {
		spanErr = err
		log.Warn("dropping indexed event", "stage", stageNormalize, "error", err)
		res.Outcome = OutcomeFailed
		return res
	}
	t := nr.Transfer
	res.NewToken = nr.TokenCreated

	signals := attribution.Signals{TargetContract: model.Deref(t.ToAddress)}
	if chain == model.ChainBase {
		signals.PrecedingTxTo = p.enrichFromChain(ctx, log, t)
	}
	p.price(ctx, t, nr.Decimals)
	p.attribute(t, signals)

	inserted, err := p.transfers.InsertIfAbsent(ctx, t)
	if err != nil {
		spanErr = err
		log.Warn("persist failed", "stage", stagePersist, "error", err)
		res.Outcome = OutcomeFailed
		res.StoreFailed = true
		return res
	}
	if !inserted {
		res.Outcome = OutcomeSkipped
		return res
	}
	res.Outcome = OutcomeInserted
	p.publish(ctx, log, t)
	return res
}

// enrichFromChain fills the sender from the originating transaction and
// returns the contract it called. Failures leave both absent.
func (p *Processor) enrichFromChain(ctx context.Context, log *slog.Logger, t *model.Transfer) string {
	if p.baseTxs == nil {
		return ""
	}
	tx, err := p.baseTxs.GetTransactionByHash(ctx, t.TxHash)
	if err != nil {
		log.Warn("transaction lookup failed", "stage", stageEnrich, "error", err)
		return ""
	}
	if tx == nil {
		return ""
	}
	if t.FromAddress == nil {
		t.FromAddress = model.StrPtr(model.TokenID(tx.From))
	}
	return model.TokenID(tx.To)
}

func (p *Processor) price(ctx context.Context, t *model.Transfer, decimals int) {
	if p.prices == nil || t.LocalToken == nil || t.Amount == nil {
		return
	}
	ts := t.BlockTimestamp
	v := p.prices.CalculateUSDValue(ctx, *t.LocalToken, *t.Amount, decimals, &ts)
	if v == nil {
		return
	}
	amount, price := v.AmountUSD, v.PriceUSD
	t.AmountUSD = &amount
	t.PriceUSDAtTime = &price
}

func (p *Processor) attribute(t *model.Transfer, s attribution.Signals) {
	a := p.attributor.Attribute(s)
	a.Apply(t)
	metrics.TransfersAttributedTotal.WithLabelValues(string(a.Method)).Inc()
}

func (p *Processor) publish(ctx context.Context, log *slog.Logger, t *model.Transfer) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, t); err != nil {
		log.Warn("publish failed", "stage", stagePublish, "error", err)
	}
}

// IsMalformed reports whether err came from an unparseable payload.
func IsMalformed(err error) bool {
	return errors.Is(err, normalizer.ErrMalformed)
}
