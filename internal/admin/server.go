// Package admin serves the operational API: sync status and manual ticks,
// stats rebuilds, the dApp registry and runtime known-token registration.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/reconciliation"
	"github.com/emperorhan/bridgescope-indexer/internal/stats"
)

const (
	maxRequestBodyBytes = 1 << 20 // 1 MB
	maxPriceTokens      = 50
	dayLayout           = "2006-01-02"
)

// SyncController is satisfied by *reconciliation.Service.
type SyncController interface {
	Chains() []model.Chain
	Status(chain model.Chain) (reconciliation.ChainStatus, bool)
	SyncOnce(ctx context.Context) (*reconciliation.RunResult, error)
	SyncChain(ctx context.Context, chain model.Chain) (*reconciliation.ChainResult, error)
}

// StatsRebuilder is satisfied by *stats.Aggregator.
type StatsRebuilder interface {
	Rebuild(ctx context.Context, day time.Time) (*stats.Result, error)
}

// DappLister is satisfied by *registry.Registry.
type DappLister interface {
	Dapps() []model.Dapp
}

// PriceBook is satisfied by *pricing.Resolver.
type PriceBook interface {
	RegisterKnownToken(token, pricingID, symbol string)
	BatchCurrentPrices(ctx context.Context, tokens []string) map[string]model.PriceObservation
}

// Server provides an HTTP-based admin API for operational management.
type Server struct {
	token  string
	sync   SyncController
	stats  StatsRebuilder
	dapps  DappLister
	prices PriceBook
	logger *slog.Logger
}

// ServerOption configures optional dependencies for the admin server.
type ServerOption func(*Server)

func WithSync(sc SyncController) ServerOption {
	return func(s *Server) { s.sync = sc }
}

func WithStats(sr StatsRebuilder) ServerOption {
	return func(s *Server) { s.stats = sr }
}

func WithDapps(dl DappLister) ServerOption {
	return func(s *Server) { s.dapps = dl }
}

func WithPrices(pb PriceBook) ServerOption {
	return func(s *Server) { s.prices = pb }
}

// NewServer creates the admin API. Requests must carry token as a bearer
// credential; an empty token leaves the API open and is meant for tests.
func NewServer(token string, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		token:  token,
		logger: logger.With("component", "admin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler for the admin API. Endpoints whose
// dependency was not configured answer 503.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/v1/sync/status", s.handleSyncStatus)
	mux.HandleFunc("POST /admin/v1/sync", s.handleSync)
	mux.HandleFunc("POST /admin/v1/stats/rebuild", s.handleStatsRebuild)
	mux.HandleFunc("GET /admin/v1/dapps", s.handleListDapps)
	mux.HandleFunc("GET /admin/v1/prices", s.handleCurrentPrices)
	mux.HandleFunc("POST /admin/v1/known-tokens", s.handleRegisterKnownToken)
	return AuditMiddleware(s.logger, s.authenticate(mux))
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSONBody reads and decodes a JSON request body into v. An empty
// body leaves v untouched. Returns false (and writes an error response) if
// decoding fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) hasChain(chain model.Chain) bool {
	for _, c := range s.sync.Chains() {
		if c == chain {
			return true
		}
	}
	return false
}

type chainStatusResponse struct {
	Chain model.Chain `json:"chain"`
	reconciliation.ChainStatus
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		writeError(w, http.StatusServiceUnavailable, "sync not configured")
		return
	}
	chains := s.sync.Chains()
	resp := make([]chainStatusResponse, 0, len(chains))
	for _, chain := range chains {
		st, ok := s.sync.Status(chain)
		if !ok {
			continue
		}
		resp = append(resp, chainStatusResponse{Chain: chain, ChainStatus: st})
	}
	writeJSON(w, http.StatusOK, resp)
}

type syncRequest struct {
	Chain string `json:"chain"`
}

// handleSync runs one tick synchronously. With a chain it fetches one page
// for that chain only and skips the stats rebuild.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		writeError(w, http.StatusServiceUnavailable, "sync not configured")
		return
	}
	var req syncRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Chain == "" {
		res, err := s.sync.SyncOnce(r.Context())
		if err != nil {
			s.logger.Error("manual sync failed", "error", err)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	chain := model.Chain(strings.ToUpper(strings.TrimSpace(req.Chain)))
	if !s.hasChain(chain) {
		writeError(w, http.StatusNotFound, "chain not registered")
		return
	}
	res, err := s.sync.SyncChain(r.Context(), chain)
	if err != nil {
		s.logger.Error("manual chain sync failed", "chain", chain, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type rebuildRequest struct {
	// Day is YYYY-MM-DD in UTC; empty means today.
	Day string `json:"day"`
}

func (s *Server) handleStatsRebuild(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "stats not configured")
		return
	}
	var req rebuildRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	day := time.Now().UTC()
	if req.Day != "" {
		parsed, err := time.Parse(dayLayout, req.Day)
		if err != nil {
			writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	res, err := s.stats.Rebuild(r.Context(), model.DayStart(day))
	if err != nil {
		s.logger.Error("stats rebuild failed", "day", day.Format(dayLayout), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListDapps(w http.ResponseWriter, r *http.Request) {
	if s.dapps == nil {
		writeError(w, http.StatusServiceUnavailable, "registry not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.dapps.Dapps())
}

type priceResponse struct {
	Token     string `json:"token"`
	PriceUSD  string `json:"price_usd"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleCurrentPrices(w http.ResponseWriter, r *http.Request) {
	if s.prices == nil {
		writeError(w, http.StatusServiceUnavailable, "pricing not configured")
		return
	}
	var tokens []string
	for _, t := range strings.Split(r.URL.Query().Get("tokens"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		writeError(w, http.StatusBadRequest, "tokens query param required")
		return
	}
	if len(tokens) > maxPriceTokens {
		writeError(w, http.StatusBadRequest, "too many tokens")
		return
	}

	found := s.prices.BatchCurrentPrices(r.Context(), tokens)
	resp := make([]priceResponse, 0, len(found))
	for _, t := range tokens {
		obs, ok := found[model.TokenID(t)]
		if !ok {
			continue
		}
		resp = append(resp, priceResponse{
			Token:     obs.TokenID,
			PriceUSD:  obs.PriceUSD.String(),
			Source:    string(obs.Source),
			Timestamp: obs.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type knownTokenRequest struct {
	Address   string `json:"address"`
	PricingID string `json:"pricing_id"`
	Symbol    string `json:"symbol"`
}

func (s *Server) handleRegisterKnownToken(w http.ResponseWriter, r *http.Request) {
	if s.prices == nil {
		writeError(w, http.StatusServiceUnavailable, "pricing not configured")
		return
	}
	var req knownTokenRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Address == "" || req.PricingID == "" {
		writeError(w, http.StatusBadRequest, "address and pricing_id are required")
		return
	}

	s.prices.RegisterKnownToken(req.Address, req.PricingID, req.Symbol)
	s.logger.Info("known token registered", "token", model.TokenID(req.Address), "pricing_id", req.PricingID)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}
