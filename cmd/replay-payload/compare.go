package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
)

// CompareResult holds the outcome of comparing normalized payload transfers
// against stored rows.
type CompareResult struct {
	Matching  []string            `json:"matching"`
	Missing   []string            `json:"missing"` // in payload but not stored
	Divergent []DivergentTransfer `json:"divergent"`
}

// DivergentTransfer records a field-level mismatch between the payload and
// the stored row.
type DivergentTransfer struct {
	Key         string `json:"key"`
	Field       string `json:"field"`
	ReplayValue string `json:"replay_value"`
	StoredValue string `json:"stored_value"`
}

func (r *CompareResult) HasMismatch() bool {
	return len(r.Missing) > 0 || len(r.Divergent) > 0
}

// TransferFinder is satisfied by every store.TransferRepository.
type TransferFinder interface {
	FindByKey(ctx context.Context, key model.TransferKey) (*model.Transfer, error)
}

func keyString(k model.TransferKey) string {
	return k.TxHash + "-" + strconv.Itoa(k.LogIndex)
}

// compareFields lists what the webhook path derives from the payload alone.
// Enrichment (USD value, attribution) is not compared.
func compareFields(t *model.Transfer) map[string]string {
	amount := ""
	if t.AmountNormalized != nil {
		amount = t.AmountNormalized.String()
	}
	return map[string]string{
		"direction":         string(t.Direction),
		"status":            string(t.Status),
		"from_address":      model.Deref(t.FromAddress),
		"to_address":        model.Deref(t.ToAddress),
		"local_token":       model.Deref(t.LocalToken),
		"amount":            model.Deref(t.Amount),
		"amount_normalized": amount,
		"relayer":           model.Deref(t.Relayer),
		"program_id":        model.Deref(t.ProgramID),
		"block_number":      strconv.FormatInt(t.BlockNumber, 10),
	}
}

// compareTransfers looks up every replayed transfer by its natural key.
func compareTransfers(ctx context.Context, replayed []*model.Transfer, stored TransferFinder) (CompareResult, error) {
	var result CompareResult
	for _, rt := range replayed {
		key := keyString(rt.Key())
		st, err := stored.FindByKey(ctx, rt.Key())
		if err != nil {
			return result, fmt.Errorf("find %s: %w", key, err)
		}
		if st == nil {
			result.Missing = append(result.Missing, key)
			continue
		}

		want, got := compareFields(rt), compareFields(st)
		diverged := false
		for field, rv := range want {
			if sv := got[field]; rv != sv {
				diverged = true
				result.Divergent = append(result.Divergent, DivergentTransfer{
					Key:         key,
					Field:       field,
					ReplayValue: rv,
					StoredValue: sv,
				})
			}
		}
		if !diverged {
			result.Matching = append(result.Matching, key)
		}
	}

	sort.Strings(result.Matching)
	sort.Strings(result.Missing)
	sort.Slice(result.Divergent, func(i, j int) bool {
		if result.Divergent[i].Key == result.Divergent[j].Key {
			return result.Divergent[i].Field < result.Divergent[j].Field
		}
		return result.Divergent[i].Key < result.Divergent[j].Key
	})
	return result, nil
}

func printTextReport(w io.Writer, file string, payloadTxs, replayed int, result CompareResult) {
	fmt.Fprintln(w, "=== Payload Verification Report ===")
	fmt.Fprintf(w, "Payload: %s\n", file)
	fmt.Fprintf(w, "Transactions: %d\n", payloadTxs)
	fmt.Fprintf(w, "Bridge transfers: %d\n", replayed)
	fmt.Fprintf(w, "Matching: %d\n", len(result.Matching))
	fmt.Fprintf(w, "Missing: %d\n", len(result.Missing))
	fmt.Fprintf(w, "Divergent: %d\n", len(result.Divergent))

	if len(result.Missing) > 0 {
		fmt.Fprintln(w, "\n--- Missing (in payload but not stored) ---")
		for _, k := range result.Missing {
			fmt.Fprintf(w, "  %s\n", k)
		}
	}
	if len(result.Divergent) > 0 {
		fmt.Fprintln(w, "\n--- Divergent (field mismatches) ---")
		for _, d := range result.Divergent {
			fmt.Fprintf(w, "  %s: %s replay=%q stored=%q\n", d.Key, d.Field, d.ReplayValue, d.StoredValue)
		}
	}

	fmt.Fprintln(w)
	if result.HasMismatch() {
		fmt.Fprintln(w, "Result: MISMATCH")
	} else {
		fmt.Fprintln(w, "Result: MATCH")
	}
}

func printJSONReport(w io.Writer, file string, payloadTxs, replayed int, result CompareResult) error {
	report := struct {
		Payload      string        `json:"payload"`
		Transactions int           `json:"transactions"`
		Transfers    int           `json:"bridge_transfers"`
		Result       string        `json:"result"`
		Compare      CompareResult `json:"compare"`
	}{
		Payload:      file,
		Transactions: payloadTxs,
		Transfers:    replayed,
		Result:       "MATCH",
		Compare:      result,
	}
	if result.HasMismatch() {
		report.Result = "MISMATCH"
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
