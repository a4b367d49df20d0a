// Package webhook receives signed ledger-chain transaction payloads and
// hands them to the ingestion queue. The response is sent once the payload
// is queued; processing happens afterwards.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/ingest"
	"github.com/emperorhan/bridgescope-indexer/internal/metrics"
	"github.com/emperorhan/bridgescope-indexer/internal/normalizer"
)

const (
	SignatureHeader = "x-helius-signature"
	DefaultPath     = "/webhooks/solana"

	defaultMaxBodyBytes = 5 << 20
	defaultTimeout      = 10 * time.Second
)

// Enqueuer is satisfied by *ingest.Queue.
type Enqueuer interface {
	Enqueue(raw []byte) error
}

type Handler struct {
	secret       []byte
	queue        Enqueuer
	maxBodyBytes int64
	timeout      time.Duration
	logger       *slog.Logger
}

type Option func(*Handler)

func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithTimeout bounds reading, verifying and queueing one request.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New returns a handler. An empty secret rejects every request.
func New(secret string, queue Enqueuer, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		secret:       []byte(secret),
		queue:        queue,
		maxBodyBytes: defaultMaxBodyBytes,
		timeout:      defaultTimeout,
		logger:       logger.With("component", "webhook"),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register mounts the handler on mux at path for POST requests.
func (h *Handler) Register(mux *http.ServeMux, path string) {
	if path == "" {
		path = DefaultPath
	}
	mux.Handle("POST "+path, h.Handler())
}

// Handler wraps the receiver in a request timeout.
func (h *Handler) Handler() http.Handler {
	return http.TimeoutHandler(h, h.timeout, `{"error":"timeout"}`)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(w, http.StatusRequestEntityTooLarge, "payload too large", "too_large")
			return
		}
		h.reject(w, http.StatusBadRequest, "unreadable body", "bad_body")
		return
	}

	if !Verify(h.secret, raw, r.Header.Get(SignatureHeader)) {
		h.logger.Warn("webhook signature rejected", "remote_addr", r.RemoteAddr, "body_bytes", len(raw))
		h.reject(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	txs, err := normalizer.DecodeLedgerPayload(raw)
	if err != nil {
		h.logger.Info("webhook payload rejected", "error", err)
		h.reject(w, http.StatusBadRequest, "invalid payload", "bad_body")
		return
	}

	if err := h.queue.Enqueue(raw); err != nil {
		if errors.Is(err, ingest.ErrStopped) {
			h.reject(w, http.StatusServiceUnavailable, "shutting down", "unavailable")
			return
		}
		h.logger.Error("webhook enqueue failed", "error", err)
		h.reject(w, http.StatusInternalServerError, "enqueue failed", "error")
		return
	}

	metrics.WebhookRequestsTotal.WithLabelValues("queued").Inc()
	h.logger.Debug("webhook payload queued", "transactions", len(txs), "body_bytes", len(raw))
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

func (h *Handler) reject(w http.ResponseWriter, status int, msg, outcome string) {
	metrics.WebhookRequestsTotal.WithLabelValues(outcome).Inc()
	writeJSON(w, status, map[string]string{"error": msg})
}

// Verify reports whether signature is the base64 HMAC-SHA256 of body under
// secret. A missing secret or signature never verifies.
func Verify(secret, body []byte, signature string) bool {
	if len(secret) == 0 || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
