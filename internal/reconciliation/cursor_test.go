package reconciliation

import (
	"context"
	"fmt"
	"testing"

	"github.com/emperorhan/bridgescope-indexer/internal/attribution"
	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/normalizer"
	"github.com/emperorhan/bridgescope-indexer/internal/pipeline"
	"github.com/emperorhan/bridgescope-indexer/internal/registry"
	"github.com/emperorhan/bridgescope-indexer/internal/store/storetest"
	"github.com/emperorhan/bridgescope-indexer/internal/subgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorAdvance(t *testing.T) {
	type obs struct {
		block   string
		outcome pipeline.Outcome
	}
	testCases := []struct {
		name string
		from int64
		seen []obs
		want int64
	}{
		{"empty page stays", 40, nil, 40},
		{"one past highest stored", 40, []obs{{"41", pipeline.OutcomeInserted}, {"45", pipeline.OutcomeSkipped}}, 46},
		{"discarded records do not move", 40, []obs{{"50", pipeline.OutcomeDiscarded}}, 40},
		{"failed records are skipped", 40, []obs{
			{"41", pipeline.OutcomeInserted}, {"43", pipeline.OutcomeFailed}, {"47", pipeline.OutcomeInserted},
		}, 48},
		{"failures alone do not move", 40, []obs{{"44", pipeline.OutcomeFailed}}, 40},
		{"unparsable block ignored", 40, []obs{{"x", pipeline.OutcomeInserted}, {"42", pipeline.OutcomeInserted}}, 43},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := newCursorAdvance(tc.from)
			for _, o := range tc.seen {
				a.observe(o.block, o.outcome)
			}
			assert.Equal(t, tc.want, a.next())
		})
	}
}

func TestCursorAdvance_FullPageStopsAtLastBlock(t *testing.T) {
	a := newCursorAdvance(10)
	full := []normalizer.IndexedEvent{event("a", "11"), event("b", "12"), event("c", "14")}
	for _, ev := range full {
		a.observe(ev.BlockNumber, pipeline.OutcomeInserted)
	}
	a.observe("20", pipeline.OutcomeInserted)
	a.truncated(full, len(full))
	assert.Equal(t, int64(14), a.next(), "block 14 may continue on the next page")

	partial := newCursorAdvance(10)
	partial.observe("14", pipeline.OutcomeInserted)
	partial.truncated(full[:1], 5)
	assert.Equal(t, int64(15), partial.next())
}

func TestCursorAdvance_FullPageInsideOneBlockMovesOn(t *testing.T) {
	a := newCursorAdvance(10)
	page := []normalizer.IndexedEvent{event("a", "10"), event("b", "10")}
	for _, ev := range page {
		a.observe(ev.BlockNumber, pipeline.OutcomeInserted)
	}
	a.truncated(page, len(page))
	assert.Equal(t, int64(11), a.next())
}

const webhookSlotPayload = `[{
	"signature": "webhook-only",
	"slot": 300000000,
	"timestamp": 1714561200,
	"instructions": [{"programId": "HNCne2FkVaNghhjKXapxJzPaBvAKDG1Ge3gqhZyfVWLM", "accounts": ["9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"]}],
	"events": {"tokenTransfers": [{
		"mint": "So11111111111111111111111111111111111111112",
		"fromUserAccount": "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		"toUserAccount": "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1",
		"tokenAmount": 1000000,
		"decimals": 9
	}]}
}]`

func TestSyncOnce_WebhookRowsDoNotMoveCursor(t *testing.T) {
	reg, err := registry.Load("")
	require.NoError(t, err)
	transfers := storetest.NewTransfers()
	proc := pipeline.New(pipeline.Config{
		BridgeProgram:  "HNCne2FkVaNghhjKXapxJzPaBvAKDG1Ge3gqhZyfVWLM",
		RelayerProgram: "g1et5VenhfJHJwsdJsDbxWZuotD5H4iELNG61kS4fb9",
		Transfers:      transfers,
		Tokens:         storetest.NewTokens(),
		Attribution:    attribution.NewEngine(reg),
	}, testLogger())

	sum, err := proc.ProcessLedgerPayload(context.Background(), []byte(webhookSlotPayload))
	require.NoError(t, err)
	require.Equal(t, 1, sum.Inserted)
	require.Equal(t, model.ChainSolana, transfers.All()[0].Chain)

	cursors := storetest.NewCursors()
	src := &fakeSource{pages: []*subgraph.Page{{}, {}}}
	svc := NewService(proc, cursors, nil, Config{}, testLogger())
	svc.RegisterSource(model.ChainSolana, src)

	for i := 0; i < 2; i++ {
		_, err := svc.SyncOnce(context.Background())
		require.NoError(t, err, fmt.Sprint("tick ", i))
	}
	assert.Equal(t, []int64{0, 0}, src.requests, "gap filling starts before the webhook slot")
}
