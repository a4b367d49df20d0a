package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/store"
	"github.com/redis/go-redis/v9"
)

// defaultMaxLen caps the live feed; consumers only care about recent events.
const defaultMaxLen = 10000

// NewClient parses url and pings the server.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// TransferEvent is the compact record appended to the live transfer stream.
type TransferEvent struct {
	TxHash         string  `json:"tx_hash"`
	LogIndex       int     `json:"log_index"`
	Chain          string  `json:"chain"`
	Direction      string  `json:"direction"`
	Status         string  `json:"status"`
	Token          string  `json:"token,omitempty"`
	Amount         string  `json:"amount,omitempty"`
	AmountUSD      *string `json:"amount_usd,omitempty"`
	DappID         *string `json:"dapp_id,omitempty"`
	Confidence     int     `json:"confidence"`
	BlockNumber    int64   `json:"block_number"`
	BlockTimestamp int64   `json:"block_timestamp"`
}

func NewTransferEvent(t *model.Transfer) TransferEvent {
	ev := TransferEvent{
		TxHash:         t.TxHash,
		LogIndex:       t.LogIndex,
		Chain:          t.Chain.String(),
		Direction:      t.Direction.String(),
		Status:         string(t.Status),
		Token:          model.Deref(t.LocalToken),
		DappID:         t.DappID,
		Confidence:     t.AttributionConfidence,
		BlockNumber:    t.BlockNumber,
		BlockTimestamp: t.BlockTimestamp.Unix(),
	}
	if t.AmountNormalized != nil {
		ev.Amount = t.AmountNormalized.String()
	}
	if t.AmountUSD != nil {
		usd := t.AmountUSD.StringFixed(2)
		ev.AmountUSD = &usd
	}
	return ev
}

// Stream publishes newly persisted transfers to a capped Redis stream.
type Stream struct {
	client redis.UniversalClient
	name   string
	maxLen int64
	logger *slog.Logger
}

var _ store.TransferPublisher = (*Stream)(nil)

func NewStream(client redis.UniversalClient, name string, logger *slog.Logger) *Stream {
	return &Stream{
		client: client,
		name:   name,
		maxLen: defaultMaxLen,
		logger: logger.With("component", "transfer_stream"),
	}
}

func (s *Stream) Publish(ctx context.Context, t *model.Transfer) error {
	payload, err := json.Marshal(NewTransferEvent(t))
	if err != nil {
		return fmt.Errorf("encode transfer event: %w", err)
	}
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.name,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{"transfer": payload},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.name, err)
	}
	s.logger.Debug("transfer published", "stream", s.name, "id", id, "tx_hash", t.TxHash, "log_index", t.LogIndex)
	return nil
}

// NoopPublisher drops every event. Used when no stream is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *model.Transfer) error { return nil }
