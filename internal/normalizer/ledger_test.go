package normalizer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
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
	systemProgram  = "11111111111111111111111111111111"
)

func intPtr(i int) *int { return &i }

func baseTx() LedgerTransaction {
	return LedgerTransaction{
		Signature: "5h6xBEauJ3PK6SWCZ1PGjBvj8vDdWG3KpwATGy1ARAXFSDwt8GFXM7W5Ncn16wmqokgpiKRLuS83KUxyZyv2sUYv",
		Slot:      250_000_000,
		Timestamp: 1_714_561_200,
		Instructions: []Instruction{
			{ProgramID: "ComputeBudget111111111111111111111111111111"},
			{ProgramID: relayerProgram, Accounts: []string{zoraRelayer, walletA}},
			{ProgramID: bridgeProgram, Accounts: []string{walletA}},
		},
	}
}

func TestNormalizeLedgerTransaction_TokenTransfer(t *testing.T) {
	tx := baseTx()
	tx.Events = &Events{TokenTransfers: []TokenTransfer{{
		Mint:            usdcMint,
		FromUserAccount: walletA,
		ToUserAccount:   walletB,
		TokenAmount:     json.Number("2500000"),
		Decimals:        intPtr(6),
	}}}

	res, err := NewLedger(bridgeProgram, relayerProgram).NormalizeLedgerTransaction(tx)
	require.NoError(t, err)
	require.NotNil(t, res)

	tr := res.Transfer
	assert.Equal(t, tx.Signature, tr.TxHash)
	assert.Equal(t, 1, tr.LogIndex, "position of the first matching instruction")
	assert.Equal(t, model.ChainSolana, tr.Chain)
	assert.Equal(t, model.KindInitialized, tr.Kind)
	assert.Equal(t, model.DirectionSolanaToBase, tr.Direction)
	assert.Equal(t, model.StatusPending, tr.Status)
	assert.Equal(t, relayerProgram, model.Deref(tr.ProgramID))
	assert.Equal(t, zoraRelayer, model.Deref(tr.Relayer))
	assert.Equal(t, walletA, model.Deref(tr.FromAddress))
	assert.Equal(t, walletB, model.Deref(tr.ToAddress))
	assert.Equal(t, usdcMint, model.Deref(tr.LocalToken))
	assert.Equal(t, "2500000", model.Deref(tr.Amount))
	require.NotNil(t, tr.AmountNormalized)
	assert.Equal(t, "2.5", tr.AmountNormalized.String())
	assert.Equal(t, 6, res.Decimals)
	assert.Equal(t, int64(250_000_000), tr.BlockNumber)
	assert.Equal(t, time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC), tr.BlockTimestamp)
}

func TestNormalizeLedgerTransaction_NoMatchingProgram(t *testing.T) {
	tx := baseTx()
	tx.Instructions = []Instruction{{ProgramID: systemProgram}}

	res, err := NewLedger(bridgeProgram, relayerProgram).NormalizeLedgerTransaction(tx)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestNormalizeLedgerTransaction_FallsBackToTransfers(t *testing.T) {
	tx := baseTx()
	tx.Instructions = []Instruction{{ProgramID: bridgeProgram}}
	tx.Events = &Events{Transfers: []TokenTransfer{{
		Mint:            usdcMint,
		FromUserAccount: walletB,
		ToUserAccount:   walletA,
		TokenAmount:     json.Number("3000000000"),
	}}}

	res, err := NewLedger(bridgeProgram, relayerProgram).NormalizeLedgerTransaction(tx)
	require.NoError(t, err)
	tr := res.Transfer
	assert.Equal(t, 0, tr.LogIndex)
	assert.Nil(t, tr.Relayer)
	assert.Equal(t, model.DefaultLedgerDecimals, res.Decimals)
	assert.Equal(t, "3", tr.AmountNormalized.String())
	assert.Equal(t, walletB, model.Deref(tr.FromAddress))
}

func TestNormalizeLedgerTransaction_FractionalAmount(t *testing.T) {
	tx := baseTx()
	tx.Events = &Events{TokenTransfers: []TokenTransfer{{
		Mint:        usdcMint,
		TokenAmount: json.Number("1.25"),
		Decimals:    intPtr(6),
	}}}

	res, err := NewLedger(bridgeProgram, relayerProgram).NormalizeLedgerTransaction(tx)
	require.NoError(t, err)
	assert.Equal(t, "1250000", model.Deref(res.Transfer.Amount))
	assert.Equal(t, "1.25", res.Transfer.AmountNormalized.String())
}

func TestNormalizeLedgerTransaction_NativeFallback(t *testing.T) {
	tx := baseTx()
	tx.AccountData = []AccountData{
		{Account: walletA, NativeBalanceChange: -5_000},
		{Account: zoraRelayer, NativeBalanceChange: -2_000_000_000},
		{Account: walletB, NativeBalanceChange: 1_999_990_000},
		{Account: systemProgram, NativeBalanceChange: 0},
		{Account: "not-base58-0OIl", NativeBalanceChange: 5_000_000_000},
	}

	res, err := NewLedger(bridgeProgram, relayerProgram).NormalizeLedgerTransaction(tx)
	require.NoError(t, err)
	tr := res.Transfer
	assert.Equal(t, zoraRelayer, model.Deref(tr.FromAddress), "largest outflow")
	assert.Equal(t, walletB, model.Deref(tr.ToAddress), "largest valid inflow")
	assert.Nil(t, tr.LocalToken)
	assert.Nil(t, tr.Amount)
	assert.Nil(t, tr.AmountNormalized)
}

func TestNormalizeLedgerTransaction_InvalidAddressesAreAbsent(t *testing.T) {
	tx := baseTx()
	tx.Instructions[1].Accounts = []string{"0xdeadbeef"}
	tx.Events = &Events{TokenTransfers: []TokenTransfer{{
		Mint:            "not a mint",
		FromUserAccount: walletA,
		ToUserAccount:   "",
		TokenAmount:     json.Number("1"),
	}}}

	res, err := NewLedger(bridgeProgram, relayerProgram).NormalizeLedgerTransaction(tx)
	require.NoError(t, err)
	assert.Nil(t, res.Transfer.Relayer)
	assert.Nil(t, res.Transfer.LocalToken)
	assert.Nil(t, res.Transfer.ToAddress)
	assert.Equal(t, walletA, model.Deref(res.Transfer.FromAddress))
}

func TestNormalizeLedgerTransaction_Malformed(t *testing.T) {
	l := NewLedger(bridgeProgram, relayerProgram)

	tx := baseTx()
	tx.Signature = ""
	_, err := l.NormalizeLedgerTransaction(tx)
	assert.ErrorIs(t, err, ErrMalformed)

	tx = baseTx()
	tx.Events = &Events{TokenTransfers: []TokenTransfer{{Mint: usdcMint, TokenAmount: json.Number("-4")}}}
	_, err = l.NormalizeLedgerTransaction(tx)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeLedgerPayload(t *testing.T) {
	arr := `[{"signature":"sig1","slot":10,"timestamp":1700000000,"instructions":[{"programId":"p","accounts":["a"]}],
		"events":{"tokenTransfers":[{"mint":"m","tokenAmount":"42","decimals":6}]}}]`
	txs, err := DecodeLedgerPayload([]byte(arr))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "sig1", txs[0].Signature)
	assert.Equal(t, "42", txs[0].Events.TokenTransfers[0].TokenAmount.String())

	obj := `{"id":"hook","transactions":[{"signature":"sig2","events":{"transfers":[{"tokenAmount":1.5}]}}]}`
	txs, err = DecodeLedgerPayload([]byte(obj))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "1.5", txs[0].Events.Transfers[0].TokenAmount.String())

	txs, err = DecodeLedgerPayload([]byte(`{"transactions":[]}`))
	require.NoError(t, err)
	assert.Empty(t, txs)

	for _, bad := range []string{
		"", "   ", "{", "[1,2]", `{"transactions":"x"}`,
		"null", `"a string"`, `{}`, `{"id":"x","webhookURL":"u"}`, `{"transactions":null}`,
	} {
		_, err := DecodeLedgerPayload([]byte(bad))
		assert.ErrorIs(t, err, ErrMalformed, bad)
	}
}
