package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/normalizer"
	"github.com/emperorhan/bridgescope-indexer/internal/store/storetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aerodromeRelayer = "B7g2YCbodhvwpgX3u3URLsud6R1XMSaMiQ5LtXw4GKBC"
	wsolMint         = "So11111111111111111111111111111111111111112"
	walletA          = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	walletB          = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
)

const payload = `[
  {
    "signature": "sigAero",
    "slot": 250000000,
    "timestamp": 1714561200,
    "instructions": [
      {"programId": "ComputeBudget111111111111111111111111111111"},
      {"programId": "g1et5VenhfJHJwsdJsDbxWZuotD5H4iELNG61kS4fb9", "accounts": ["B7g2YCbodhvwpgX3u3URLsud6R1XMSaMiQ5LtXw4GKBC"]},
      {"programId": "HNCne2FkVaNghhjKXapxJzPaBvAKDG1Ge3gqhZyfVWLM"}
    ],
    "events": {"tokenTransfers": [{
      "mint": "So11111111111111111111111111111111111111112",
      "fromUserAccount": "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
      "toUserAccount": "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1",
      "tokenAmount": 500000000,
      "decimals": 9
    }]}
  },
  {"signature": "sigOther", "instructions": [{"programId": "11111111111111111111111111111111"}]}
]`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustDecode(t *testing.T) []normalizer.LedgerTransaction {
	t.Helper()
	txs, err := normalizer.DecodeLedgerPayload([]byte(payload))
	require.NoError(t, err)
	return txs
}

func testOptions() options {
	return options{
		file:           "payload.json",
		bridgeProgram:  defaultBridgeProgram,
		relayerProgram: defaultRelayerProgram,
		output:         "text",
	}
}

func replayedTransfer() *model.Transfer {
	amount := decimal.RequireFromString("0.5")
	return &model.Transfer{
		TxHash:           "sigAero",
		LogIndex:         1,
		Direction:        model.DirectionSolanaToBase,
		Status:           model.StatusPending,
		FromAddress:      model.StrPtr(walletA),
		ToAddress:        model.StrPtr(walletB),
		LocalToken:       model.StrPtr(wsolMint),
		Amount:           model.StrPtr("500000000"),
		AmountNormalized: &amount,
		Relayer:          model.StrPtr(aerodromeRelayer),
		ProgramID:        model.StrPtr(defaultRelayerProgram),
		BlockNumber:      250000000,
	}
}

func TestValidate(t *testing.T) {
	opts := testOptions()
	opts.dryRun = true
	assert.NoError(t, validate(opts))

	opts = testOptions()
	assert.Error(t, validate(opts), "db url required without dry run")

	opts.dbURL = "postgres://localhost/db"
	assert.NoError(t, validate(opts))

	opts.output = "xml"
	assert.Error(t, validate(opts))

	opts = testOptions()
	opts.dryRun, opts.verify = true, true
	assert.Error(t, validate(opts))

	opts = testOptions()
	opts.file = ""
	opts.dryRun = true
	assert.Error(t, validate(opts))
}

func TestRun_DryRunAttributesRelayer(t *testing.T) {
	var buf bytes.Buffer
	opts := testOptions()
	opts.dryRun = true
	code, err := run(context.Background(), opts, []byte(payload), &buf, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, exitMatch, code)

	out := buf.String()
	assert.Contains(t, out, "Inserted: 1")
	assert.Contains(t, out, "Discarded: 1")
	assert.Contains(t, out, "sigAero-1 SOLANA_TO_BASE amount=0.5 dapp=aerodrome confidence=85")
}

func TestRun_MalformedPayload(t *testing.T) {
	opts := testOptions()
	opts.dryRun = true
	code, err := run(context.Background(), opts, []byte(`{not json`), io.Discard, discardLogger())
	require.Error(t, err)
	assert.Equal(t, exitFatal, code)
}

func TestCompareTransfers_Match(t *testing.T) {
	stored := storetest.NewTransfers()
	stored.Put(*replayedTransfer())

	result, err := compareTransfers(context.Background(), []*model.Transfer{replayedTransfer()}, stored)
	require.NoError(t, err)
	assert.Equal(t, []string{"sigAero-1"}, result.Matching)
	assert.Empty(t, result.Missing)
	assert.Empty(t, result.Divergent)
	assert.False(t, result.HasMismatch())
}

func TestCompareTransfers_Missing(t *testing.T) {
	result, err := compareTransfers(context.Background(), []*model.Transfer{replayedTransfer()}, storetest.NewTransfers())
	require.NoError(t, err)
	assert.Equal(t, []string{"sigAero-1"}, result.Missing)
	assert.True(t, result.HasMismatch())
}

func TestCompareTransfers_Divergent(t *testing.T) {
	row := replayedTransfer()
	row.Status = model.StatusCompleted
	row.Relayer = nil
	// Enrichment differences are ignored.
	usd := decimal.RequireFromString("75")
	row.AmountUSD = &usd
	row.DappID = model.StrPtr("aerodrome")

	stored := storetest.NewTransfers()
	stored.Put(*row)

	result, err := compareTransfers(context.Background(), []*model.Transfer{replayedTransfer()}, stored)
	require.NoError(t, err)
	assert.Empty(t, result.Matching)
	require.Len(t, result.Divergent, 2)
	assert.Equal(t, "relayer", result.Divergent[0].Field)
	assert.Equal(t, aerodromeRelayer, result.Divergent[0].ReplayValue)
	assert.Equal(t, "", result.Divergent[0].StoredValue)
	assert.Equal(t, "status", result.Divergent[1].Field)
	assert.Equal(t, "PENDING", result.Divergent[1].ReplayValue)
	assert.Equal(t, "COMPLETED", result.Divergent[1].StoredValue)
}

func TestVerify_ExitCodes(t *testing.T) {
	opts := testOptions()
	txs := mustDecode(t)

	stored := storetest.NewTransfers()
	var buf bytes.Buffer
	code, err := verify(context.Background(), opts, txs, stored, &buf)
	require.NoError(t, err)
	assert.Equal(t, exitMismatch, code)
	assert.Contains(t, buf.String(), "Result: MISMATCH")

	stored.Put(*replayedTransfer())
	buf.Reset()
	code, err = verify(context.Background(), opts, txs, stored, &buf)
	require.NoError(t, err)
	assert.Equal(t, exitMatch, code)
	assert.Contains(t, buf.String(), "Result: MATCH")
	assert.Contains(t, buf.String(), "Bridge transfers: 1")
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	result := CompareResult{Missing: []string{"sigAero-1"}}
	require.NoError(t, printJSONReport(&buf, "payload.json", 2, 1, result))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "MISMATCH", decoded["result"])
	assert.EqualValues(t, 2, decoded["transactions"])
	assert.EqualValues(t, 1, decoded["bridge_transfers"])
}
