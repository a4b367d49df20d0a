package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/attribution"
	baserpc "github.com/emperorhan/bridgescope-indexer/internal/chain/base/rpc"
	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/normalizer"
	"github.com/emperorhan/bridgescope-indexer/internal/pricing"
	"github.com/emperorhan/bridgescope-indexer/internal/registry"
	"github.com/emperorhan/bridgescope-indexer/internal/store/storetest"
	"github.com/emperorhan/bridgescope-indexer/internal/tokenmeta"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	bridgeProgram  = "HNCne2FkVaNghhjKXapxJzPaBvAKDG1Ge3gqhZyfVWLM"
	relayerProgram = "g1et5VenhfJHJwsdJsDbxWZuotD5H4iELNG61kS4fb9"
	zoraRelayer    = "AFs1LCbodhvwpgX3u3URLsud6R1XMSaMiQ5LtXw4GKYT"
	usdcMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	walletA        = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	walletB        = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"

	baseUSDC        = "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"
	aerodromeRouter = "0x420DD381b31aEf6683db6B902084cB0FFECe40Da"
	zoraProtocol    = "0x777777C338d93e2C7adf08D102d45CA7CC4Ed021"
	baseTxHash      = "0xab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"
)

type fakeMetadata struct {
	mu    sync.Mutex
	meta  map[string]tokenmeta.Metadata
	calls int
}

func (f *fakeMetadata) Resolve(_ context.Context, _ model.Chain, address string) (*tokenmeta.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	m, ok := f.meta[model.TokenID(address)]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeMetadata) DisplayName(_ context.Context, _ model.Chain, address string) string {
	if _, ok := f.meta[model.TokenID(address)]; ok {
		return "USD Coin"
	}
	return ""
}

type fakePricer struct {
	mu           sync.Mutex
	prices       map[string]decimal.Decimal
	calls        int
	lastTS       time.Time
	lastDecimals int
}

func (f *fakePricer) CalculateUSDValue(_ context.Context, token, raw string, decimals int, ts *time.Time) *pricing.USDValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastDecimals = decimals
	if ts != nil {
		f.lastTS = *ts
	}
	price, ok := f.prices[model.TokenID(token)]
	if !ok {
		return nil
	}
	amount, err := model.NormalizeAmount(raw, decimals)
	if err != nil {
		return nil
	}
	return &pricing.USDValue{AmountUSD: amount.Mul(price), PriceUSD: price}
}

type fakeTxLookup struct {
	txs map[string]*baserpc.Transaction
	err error
}

func (f *fakeTxLookup) GetTransactionByHash(_ context.Context, hash string) (*baserpc.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.txs[hash], nil
}

type harness struct {
	proc      *Processor
	transfers *storetest.Transfers
	tokens    *storetest.Tokens
	publisher *storetest.Publisher
	meta      *fakeMetadata
	pricer    *fakePricer
}

func newHarness(t *testing.T, txs TransactionLookup) *harness {
	t.Helper()
	reg, err := registry.Load("")
	require.NoError(t, err)

	h := &harness{
		transfers: storetest.NewTransfers(),
		tokens:    storetest.NewTokens(),
		publisher: &storetest.Publisher{},
		meta:      &fakeMetadata{meta: map[string]tokenmeta.Metadata{baseUSDC: {Symbol: "USDC", Decimals: 6}}},
		pricer: &fakePricer{prices: map[string]decimal.Decimal{
			baseUSDC:                decimal.RequireFromString("0.9998"),
			model.TokenID(usdcMint): decimal.NewFromInt(1),
		}},
	}
	h.proc = New(Config{
		BridgeProgram:    bridgeProgram,
		RelayerProgram:   relayerProgram,
		Transfers:        h.transfers,
		Tokens:           h.tokens,
		Publisher:        h.publisher,
		Metadata:         h.meta,
		Prices:           h.pricer,
		Attribution:      attribution.NewEngine(reg),
		BaseTransactions: txs,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h
}

const ledgerPayload = `[{
	"signature": "sig-relayed",
	"slot": 250000000,
	"timestamp": 1714561200,
	"instructions": [
		{"programId": "g1et5VenhfJHJwsdJsDbxWZuotD5H4iELNG61kS4fb9", "accounts": ["AFs1LCbodhvwpgX3u3URLsud6R1XMSaMiQ5LtXw4GKYT"]}
	],
	"events": {"tokenTransfers": [{
		"mint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		"fromUserAccount": "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		"toUserAccount": "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1",
		"tokenAmount": "4000000",
		"decimals": 6
	}]}
}, {
	"signature": "sig-unrelated",
	"instructions": [{"programId": "11111111111111111111111111111111"}]
}]`

func TestProcessLedgerPayload_InsertThenRefine(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	sum, err := h.proc.ProcessLedgerPayload(ctx, []byte(ledgerPayload))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Inserted)
	assert.Equal(t, 1, sum.Discarded)
	assert.Equal(t, 1, sum.NewTokens)
	assert.Equal(t, 2, sum.Total())

	rows := h.transfers.All()
	require.Len(t, rows, 1)
	tr := rows[0]
	assert.Equal(t, model.TransferKey{TxHash: "sig-relayed", LogIndex: 0}, tr.Key())
	assert.Equal(t, model.DirectionSolanaToBase, tr.Direction)
	assert.Equal(t, model.StatusPending, tr.Status)
	assert.Equal(t, "zora", model.Deref(tr.DappID))
	assert.Equal(t, model.ConfidenceRelayer, tr.AttributionConfidence)
	assert.Equal(t, model.MethodRelayer, tr.AttributionMethod)
	require.NotNil(t, tr.AmountUSD)
	assert.Equal(t, "4", tr.AmountUSD.String())
	assert.Equal(t, time.Unix(1714561200, 0).UTC(), h.pricer.lastTS, "priced at block time")
	assert.Equal(t, 1, h.publisher.Len())

	tok, err := h.tokens.FindByID(ctx, usdcMint)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, 6, tok.Decimals)

	sum, err = h.proc.ProcessLedgerPayload(ctx, []byte(ledgerPayload))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)
	assert.Equal(t, 0, sum.NewTokens)
	assert.Len(t, h.transfers.All(), 1)
	assert.Equal(t, 1, h.publisher.Len(), "only new rows are published")
}

func TestProcessLedgerPayload_SkipsFailingTransaction(t *testing.T) {
	h := newHarness(t, nil)
	payload := `{"transactions": [
		{"signature": "bad", "instructions": [{"programId": "HNCne2FkVaNghhjKXapxJzPaBvAKDG1Ge3gqhZyfVWLM"}],
		 "events": {"tokenTransfers": [{"mint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "tokenAmount": -1}]}},
		{"signature": "good", "instructions": [{"programId": "HNCne2FkVaNghhjKXapxJzPaBvAKDG1Ge3gqhZyfVWLM"}],
		 "accountData": [
			{"account": "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", "nativeBalanceChange": -1000000},
			{"account": "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1", "nativeBalanceChange": 995000}
		 ]}
	]}`

	sum, err := h.proc.ProcessLedgerPayload(context.Background(), []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Zero(t, sum.StoreErrors, "a normalization failure is not a store failure")
	assert.Equal(t, 1, sum.Inserted)

	rows := h.transfers.All()
	require.Len(t, rows, 1)
	assert.Equal(t, "good", rows[0].TxHash)
	assert.Equal(t, walletA, model.Deref(rows[0].FromAddress))
	assert.Equal(t, walletB, model.Deref(rows[0].ToAddress))
	assert.Nil(t, rows[0].AmountUSD)
	assert.Equal(t, model.MethodUnknown, rows[0].AttributionMethod)
	assert.Equal(t, 0, h.pricer.calls, "no token, no price lookup")
}

func TestProcessLedgerPayload_Undecodable(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.proc.ProcessLedgerPayload(context.Background(), []byte(`{"transactions": [`))
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}

func TestProcessLedgerTransaction_PersistFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.transfers.Err = errors.New("connection refused")

	txs, err := normalizer.DecodeLedgerPayload([]byte(ledgerPayload))
	require.NoError(t, err)
	res := h.proc.ProcessLedgerTransaction(context.Background(), txs[0])
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 0, h.publisher.Len())
}

func indexedEvent() normalizer.IndexedEvent {
	return normalizer.IndexedEvent{
		ID:              baseTxHash + "-4",
		LocalToken:      "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		RemoteToken:     usdcMint,
		To:              aerodromeRouter,
		Amount:          "250000000",
		BlockNumber:     "15000000",
		BlockTimestamp:  "1714561200",
		TransactionHash: baseTxHash,
	}
}

func TestProcessIndexedEvent_InsertsOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res := h.proc.ProcessIndexedEvent(ctx, model.ChainBase, model.KindInitialized, indexedEvent())
	assert.Equal(t, OutcomeInserted, res.Outcome)
	assert.True(t, res.NewToken)
	assert.Equal(t, model.TransferKey{TxHash: baseTxHash, LogIndex: 4}, res.Key)

	stored, err := h.transfers.FindByKey(ctx, res.Key)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.DirectionBaseToSolana, stored.Direction)
	assert.Equal(t, "250", stored.AmountNormalized.String())
	assert.Equal(t, "249.95", stored.AmountUSD.String())
	assert.Equal(t, "0.9998", stored.PriceUSDAtTime.String())
	assert.Equal(t, "aerodrome", model.Deref(stored.DappID))
	assert.Equal(t, model.MethodTargetContract, stored.AttributionMethod)
	assert.Equal(t, model.ConfidenceTargetContract, stored.AttributionConfidence)

	tok, err := h.tokens.FindByID(ctx, baseUSDC)
	require.NoError(t, err)
	assert.Equal(t, "USDC", tok.Symbol)
	assert.Equal(t, "USD Coin", tok.Name)
	assert.Equal(t, 6, tok.Decimals)

	metaCalls, priceCalls := h.meta.calls, h.pricer.calls
	res = h.proc.ProcessIndexedEvent(ctx, model.ChainBase, model.KindInitialized, indexedEvent())
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.False(t, res.NewToken)
	assert.Equal(t, metaCalls, h.meta.calls)
	assert.Equal(t, priceCalls, h.pricer.calls)
	assert.Equal(t, 1, h.publisher.Len())
	assert.Equal(t, 1, h.tokens.Created)
}

func TestProcessIndexedEvent_ExistingRowIsNotTouched(t *testing.T) {
	h := newHarness(t, nil)
	usd := decimal.NewFromInt(1)
	h.transfers.Put(model.Transfer{TxHash: baseTxHash, LogIndex: 4, Chain: model.ChainBase, AmountUSD: &usd})

	res := h.proc.ProcessIndexedEvent(context.Background(), model.ChainBase, model.KindInitialized, indexedEvent())
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, 0, h.tokens.Created)
	assert.Equal(t, 0, h.meta.calls)
	assert.Equal(t, 0, h.pricer.calls)

	stored, err := h.transfers.FindByKey(context.Background(), res.Key)
	require.NoError(t, err)
	assert.Equal(t, "1", stored.AmountUSD.String())
}

func TestProcessIndexedEvent_StoredDecimalsWin(t *testing.T) {
	h := newHarness(t, nil)
	h.tokens = storetest.NewTokens(model.Token{Address: baseUSDC, Chain: model.ChainBase, Symbol: "USDC", Decimals: 8})
	h.proc.tokens.repo = h.tokens

	res := h.proc.ProcessIndexedEvent(context.Background(), model.ChainBase, model.KindFinalized, indexedEvent())
	require.Equal(t, OutcomeInserted, res.Outcome)
	assert.False(t, res.NewToken)
	assert.Equal(t, 0, h.meta.calls)

	stored, err := h.transfers.FindByKey(context.Background(), res.Key)
	require.NoError(t, err)
	assert.Equal(t, "2.5", stored.AmountNormalized.String())
	assert.Equal(t, model.DirectionSolanaToBase, stored.Direction)
	assert.Equal(t, model.StatusCompleted, stored.Status)
}

func TestProcessIndexedEvent_UnknownTokenDefaults(t *testing.T) {
	h := newHarness(t, nil)
	ev := indexedEvent()
	ev.LocalToken = "0x0000000000000000000000000000000000000bad"
	ev.Amount = "3000000000000000000"

	res := h.proc.ProcessIndexedEvent(context.Background(), model.ChainBase, model.KindInitialized, ev)
	require.Equal(t, OutcomeInserted, res.Outcome)
	assert.True(t, res.NewToken)

	stored, err := h.transfers.FindByKey(context.Background(), res.Key)
	require.NoError(t, err)
	assert.Equal(t, "3", stored.AmountNormalized.String())
	assert.Nil(t, stored.AmountUSD)
	assert.Nil(t, stored.PriceUSDAtTime)

	tok, err := h.tokens.FindByID(context.Background(), ev.LocalToken)
	require.NoError(t, err)
	assert.Equal(t, model.UnknownTokenSymbol, tok.Symbol)
	assert.Equal(t, model.DefaultContractDecimals, tok.Decimals)
}

func TestProcessIndexedEvent_PrecedingTxEnrichment(t *testing.T) {
	lookup := &fakeTxLookup{txs: map[string]*baserpc.Transaction{
		baseTxHash: {Hash: baseTxHash, From: "0xAAAA000000000000000000000000000000000001", To: zoraProtocol},
	}}
	h := newHarness(t, lookup)
	ev := indexedEvent()
	ev.To = "0x0000000000000000000000000000000000000001"

	res := h.proc.ProcessIndexedEvent(context.Background(), model.ChainBase, model.KindInitialized, ev)
	require.Equal(t, OutcomeInserted, res.Outcome)

	stored, err := h.transfers.FindByKey(context.Background(), res.Key)
	require.NoError(t, err)
	assert.Equal(t, "zora", model.Deref(stored.DappID))
	assert.Equal(t, model.MethodPrecedingTx, stored.AttributionMethod)
	assert.Equal(t, model.ConfidencePrecedingTx, stored.AttributionConfidence)
	assert.Equal(t, "0xaaaa000000000000000000000000000000000001", model.Deref(stored.FromAddress))
}

func TestProcessIndexedEvent_EnrichmentFailureLeavesSignalsAbsent(t *testing.T) {
	h := newHarness(t, &fakeTxLookup{err: errors.New("rpc error -32005: limit exceeded")})
	ev := indexedEvent()
	ev.To = "0x0000000000000000000000000000000000000001"

	res := h.proc.ProcessIndexedEvent(context.Background(), model.ChainBase, model.KindInitialized, ev)
	require.Equal(t, OutcomeInserted, res.Outcome)

	stored, err := h.transfers.FindByKey(context.Background(), res.Key)
	require.NoError(t, err)
	assert.Nil(t, stored.DappID)
	assert.Equal(t, model.MethodUnknown, stored.AttributionMethod)
	assert.Nil(t, stored.FromAddress)
}

func TestProcessIndexedEvent_Malformed(t *testing.T) {
	h := newHarness(t, nil)
	ev := indexedEvent()
	ev.ID = "garbage"

	res := h.proc.ProcessIndexedEvent(context.Background(), model.ChainBase, model.KindInitialized, ev)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Empty(t, h.transfers.All())
}

func TestSummary(t *testing.T) {
	var s Summary
	for _, o := range []Outcome{OutcomeInserted, OutcomeInserted, OutcomeUpdated, OutcomeSkipped, OutcomeDiscarded, OutcomeFailed} {
		s.Add(Result{Outcome: o, NewToken: o == OutcomeInserted})
	}
	assert.Equal(t, Summary{Inserted: 2, Updated: 1, Skipped: 1, Discarded: 1, Failed: 1, NewTokens: 2}, s)
	assert.Equal(t, 6, s.Total())
}

func TestProcessLedgerTransaction_PricesWithStoredDecimals(t *testing.T) {
	h := newHarness(t, nil)
	_, _, err := h.tokens.GetOrCreate(context.Background(), &model.Token{
		Chain: model.ChainSolana, Address: usdcMint, Symbol: "USDC", Decimals: 6,
	})
	require.NoError(t, err)

	payload := `[{"signature": "sig-decimals", "slot": 250000001, "timestamp": 1714561200,
		"instructions": [{"programId": "HNCne2FkVaNghhjKXapxJzPaBvAKDG1Ge3gqhZyfVWLM", "accounts": ["9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"]}],
		"events": {"tokenTransfers": [{"mint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			"fromUserAccount": "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
			"toUserAccount": "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1",
			"tokenAmount": 2000000, "decimals": 9}]}}]`

	sum, err := h.proc.ProcessLedgerPayload(context.Background(), []byte(payload))
	require.NoError(t, err)
	require.Equal(t, 1, sum.Inserted)
	assert.Zero(t, sum.NewTokens)

	assert.Equal(t, 6, h.pricer.lastDecimals)
	rows := h.transfers.All()
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].AmountUSD)
	assert.Equal(t, "2", rows[0].AmountUSD.String())

	tok, err := h.tokens.FindByID(context.Background(), model.TokenID(usdcMint))
	require.NoError(t, err)
	assert.Equal(t, 6, tok.Decimals, "stored decimals are not rewritten")
}
