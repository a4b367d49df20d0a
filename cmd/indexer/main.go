package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/admin"
	"github.com/emperorhan/bridgescope-indexer/internal/alert"
	"github.com/emperorhan/bridgescope-indexer/internal/attribution"
	"github.com/emperorhan/bridgescope-indexer/internal/cache"
	baserpc "github.com/emperorhan/bridgescope-indexer/internal/chain/base/rpc"
	solrpc "github.com/emperorhan/bridgescope-indexer/internal/chain/solana/rpc"
	"github.com/emperorhan/bridgescope-indexer/internal/circuitbreaker"
	"github.com/emperorhan/bridgescope-indexer/internal/config"
	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/ingest"
	"github.com/emperorhan/bridgescope-indexer/internal/metrics"
	"github.com/emperorhan/bridgescope-indexer/internal/pipeline"
	"github.com/emperorhan/bridgescope-indexer/internal/pricing"
	"github.com/emperorhan/bridgescope-indexer/internal/ratelimit"
	"github.com/emperorhan/bridgescope-indexer/internal/reconciliation"
	"github.com/emperorhan/bridgescope-indexer/internal/registry"
	"github.com/emperorhan/bridgescope-indexer/internal/stats"
	"github.com/emperorhan/bridgescope-indexer/internal/store"
	"github.com/emperorhan/bridgescope-indexer/internal/store/postgres"
	redispkg "github.com/emperorhan/bridgescope-indexer/internal/store/redis"
	"github.com/emperorhan/bridgescope-indexer/internal/subgraph"
	"github.com/emperorhan/bridgescope-indexer/internal/tokenmeta"
	"github.com/emperorhan/bridgescope-indexer/internal/tracing"
	"github.com/emperorhan/bridgescope-indexer/internal/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName          = "bridgescope-indexer"
	queueShutdownTimeout = 30 * time.Second
	alertSendTimeout     = 10 * time.Second
	// poolExhaustionRatio is the in-use share of MaxOpenConnections above
	// which a DB_POOL alert fires.
	poolExhaustionRatio = 0.8
)

type dbStatsProvider interface {
	Stats() sql.DBStats
}

type dbPoolStatsGauges struct {
	open      prometheus.Gauge
	inUse     prometheus.Gauge
	waitCount prometheus.Gauge
}

func collectDBPoolStats(db dbStatsProvider, gauges dbPoolStatsGauges) (poolStats sql.DBStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("db pool stats collection panicked: %v", r)
		}
	}()
	if db == nil {
		return poolStats, fmt.Errorf("db stats provider is nil")
	}

	poolStats = db.Stats()
	gauges.open.Set(float64(poolStats.OpenConnections))
	gauges.inUse.Set(float64(poolStats.InUse))
	gauges.waitCount.Set(float64(poolStats.WaitCount))
	return poolStats, nil
}

// poolExhaustionAlert reports whether in-use connections exceed the
// exhaustion ratio. An unlimited pool never alerts.
func poolExhaustionAlert(st sql.DBStats) (alert.Alert, bool) {
	if st.MaxOpenConnections <= 0 {
		return alert.Alert{}, false
	}
	usage := float64(st.InUse) / float64(st.MaxOpenConnections)
	if usage <= poolExhaustionRatio {
		return alert.Alert{}, false
	}
	return alert.Alert{
		Type:    alert.AlertTypeDBPool,
		Source:  "postgres",
		Title:   "DB connection pool near exhaustion",
		Message: fmt.Sprintf("Pool usage: %d/%d (%.0f%%)", st.InUse, st.MaxOpenConnections, usage*100),
		Fields: map[string]string{
			"wait_count": fmt.Sprintf("%d", st.WaitCount),
		},
	}, true
}

func checkDBPoolExhaustion(ctx context.Context, st sql.DBStats, alerter alert.Alerter, logger *slog.Logger) {
	a, exhausted := poolExhaustionAlert(st)
	if !exhausted || alerter == nil {
		return
	}
	logger.Warn("db pool near exhaustion", "message", a.Message)
	if err := alerter.Send(ctx, a); err != nil {
		logger.Warn("db pool alert failed", "error", err)
	}
}

func startDBPoolStatsPump(ctx context.Context, db dbStatsProvider, interval time.Duration, alerter alert.Alerter, logger *slog.Logger) {
	if db == nil || interval <= 0 {
		return
	}

	gauges := dbPoolStatsGauges{
		open:      metrics.DBPoolOpen,
		inUse:     metrics.DBPoolInUse,
		waitCount: metrics.DBPoolWaitCount,
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()

		if _, err := collectDBPoolStats(db, gauges); err != nil {
			logger.Warn("failed to collect initial db pool stats", "error", err)
		}

		for {
			select {
			case <-ctx.Done():
				logger.Info("db pool stats sampler stopped", "cause", "context_done")
				return
			case <-ticker.C:
				st, err := collectDBPoolStats(db, gauges)
				if err != nil {
					logger.Warn("failed to collect db pool stats", "error", err)
					continue
				}
				checkDBPoolExhaustion(ctx, st, alerter, logger)
			}
		}
	}()
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// resolvePublisher returns the Redis stream publisher when both a Redis URL
// and a stream name are configured. The returned closer releases the client.
func resolvePublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.TransferPublisher, func() error, error) {
	noop := func() error { return nil }
	redisURL := strings.TrimSpace(cfg.Redis.URL)
	if redisURL == "" || cfg.Redis.TransferStream == "" {
		return redispkg.NoopPublisher{}, noop, nil
	}

	client, err := redispkg.NewClient(ctx, redisURL)
	if err != nil {
		return nil, noop, fmt.Errorf("initialize transfer stream: %w", err)
	}
	logger.Info("transfer stream enabled", "stream", cfg.Redis.TransferStream)
	return redispkg.NewStream(client, cfg.Redis.TransferStream, logger), client.Close, nil
}

// seedRegistry writes registry dApps to the database and merges back any
// dApps that only exist there, so operators can add dApps with SQL.
func seedRegistry(ctx context.Context, repo store.DappRepository, reg *registry.Registry, logger *slog.Logger) error {
	for _, d := range reg.Dapps() {
		if err := repo.Upsert(ctx, d); err != nil {
			return fmt.Errorf("upsert dapp %s: %w", d.ID, err)
		}
	}
	stored, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list dapps: %w", err)
	}
	if err := reg.Merge(stored); err != nil {
		return fmt.Errorf("merge stored dapps: %w", err)
	}
	logger.Info("dapp registry loaded", "dapps", len(reg.Dapps()))
	return nil
}

// circuitAlert sends a CIRCUIT_OPEN alert whenever the breaker opens. State
// changes happen on the request path, so delivery runs in the background.
func circuitAlert(alerter alert.Alerter, upstream string, logger *slog.Logger) func(from, to circuitbreaker.State) {
	return func(from, to circuitbreaker.State) {
		logger.Warn("circuit breaker state changed", "upstream", upstream, "from", from.String(), "to", to.String())
		if to != circuitbreaker.StateOpen {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), alertSendTimeout)
			defer cancel()
			err := alerter.Send(ctx, alert.Alert{
				Type:    alert.AlertTypeCircuitOpen,
				Source:  upstream,
				Title:   fmt.Sprintf("%s circuit open", upstream),
				Message: "requests are short-circuited until the upstream recovers",
				Fields:  map[string]string{"previous_state": from.String()},
			})
			if err != nil {
				logger.Warn("circuit alert failed", "upstream", upstream, "error", err)
			}
		}()
	}
}

type syncSource struct {
	chain model.Chain
	url   string
}

func syncSources(cfg *config.Config) []syncSource {
	sources := []syncSource{{chain: model.ChainBase, url: cfg.Subgraph.BaseURL}}
	if cfg.Subgraph.SolanaURL != "" {
		sources = append(sources, syncSource{chain: model.ChainSolana, url: cfg.Subgraph.SolanaURL})
	}
	return sources
}

func registerSyncSources(svc *reconciliation.Service, cfg *config.Config, alerter alert.Alerter, logger *slog.Logger) {
	for _, src := range syncSources(cfg) {
		target := "subgraph-" + strings.ToLower(src.chain.String())
		svc.RegisterSource(src.chain, subgraph.NewClient(subgraph.Config{
			URL:     src.url,
			Chain:   src.chain,
			Timeout: cfg.Subgraph.Timeout,
			Breaker: circuitbreaker.New(circuitbreaker.Config{
				Name:          target,
				OnStateChange: circuitAlert(alerter, target, logger),
			}),
		}, logger))
	}
}

// processingHealth is satisfied by *ingest.Health.
type processingHealth interface {
	Healthy() bool
}

func buildMux(cfg *config.Config, hook *webhook.Handler, limiter *webhook.RateLimiter, adminAPI *admin.Server, health processingHealth, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		status, body := http.StatusOK, "ok"
		if health != nil && !health.Healthy() {
			status, body = http.StatusServiceUnavailable, "unhealthy"
		}
		w.WriteHeader(status)
		if _, err := w.Write([]byte(body)); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	webhookHandler := hook.Handler()
	if limiter != nil {
		webhookHandler = limiter.Wrap(webhookHandler)
	}
	mux.Handle("POST "+cfg.Webhook.Path, webhookHandler)

	if adminAPI != nil {
		mux.Handle("/admin/", adminAPI.Handler())
	}
	return webhook.AccessLog(logger, mux)
}

func runHTTPServer(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("http server shutdown error", "error", err)
		}
	}()

	logger.Info("http server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	logger.Info("starting bridgescope-indexer",
		"base_rpc", cfg.Base.RPCURL,
		"solana_rpc", cfg.Solana.RPCURL,
		"subgraph_base", cfg.Subgraph.BaseURL,
		"subgraph_solana", cfg.Subgraph.SolanaURL,
		"cache_backend", cfg.Cache.Backend,
		"sync_interval", cfg.Sync.Interval.String(),
		"sync_once", cfg.Sync.Once,
		"webhook_workers", cfg.Webhook.Workers,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry tracing
	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.Tracing.Endpoint, cfg.Tracing.Insecure, cfg.Tracing.SampleRatio)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.Endpoint != "" {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	// Connect to PostgreSQL and apply the schema before anything else runs.
	db, err := postgres.New(ctx, postgres.Config{
		URL:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.RunMigrations(ctx, cfg.DB.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err, "dir", cfg.DB.MigrationsDir)
		os.Exit(1)
	}
	logger.Info("connected to database")

	cacheStore, err := cache.New(ctx, cache.Options{
		Backend:        cfg.Cache.Backend,
		RedisURL:       cfg.Redis.URL,
		MemoryCapacity: cfg.Cache.MemoryCapacity,
	})
	if err != nil {
		logger.Error("failed to initialize cache", "error", err, "backend", cfg.Cache.Backend)
		os.Exit(1)
	}
	defer cacheStore.Close()

	publisher, closePublisher, err := resolvePublisher(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize transfer stream", "error", err)
		os.Exit(1)
	}
	defer closePublisher()

	alerter := alert.FromURLs(cfg.Alert.SlackWebhookURL, cfg.Alert.WebhookURL, cfg.Alert.Cooldown, logger)

	// Create repositories
	transferRepo := postgres.NewTransferRepo(db)
	tokenRepo := postgres.NewTokenRepo(db)
	priceRepo := postgres.NewPriceRepo(db)
	dappRepo := postgres.NewDappRepo(db)
	statsRepo := postgres.NewStatsRepo(db)

	reg, err := registry.Load(cfg.Registry.File)
	if err != nil {
		logger.Error("failed to load registry", "error", err, "file", cfg.Registry.File)
		os.Exit(1)
	}
	if err := seedRegistry(ctx, dappRepo, reg, logger); err != nil {
		logger.Error("failed to seed registry", "error", err)
		os.Exit(1)
	}

	baseClient := baserpc.NewClient(cfg.Base.RPCURL, ratelimit.NewLimiter(cfg.Base.RPCRate, cfg.Base.RPCBurst, "base-rpc"), logger)
	solanaClient := solrpc.NewClient(cfg.Solana.RPCURL, ratelimit.NewLimiter(cfg.Solana.RPCRate, cfg.Solana.RPCBurst, "solana-rpc"), logger)

	metadata, err := tokenmeta.NewResolver(map[model.Chain]tokenmeta.Reader{
		model.ChainBase:   tokenmeta.NewEVMReader(baseClient),
		model.ChainSolana: tokenmeta.NewSolanaReader(solanaClient),
	}, logger, tokenmeta.WithSharedCache(cacheStore))
	if err != nil {
		logger.Error("failed to initialize token metadata", "error", err)
		os.Exit(1)
	}

	priceProvider := pricing.NewCoinGecko(pricing.CoinGeckoConfig{
		BaseURL: cfg.Pricing.APIURL,
		APIKey:  cfg.Pricing.APIKey,
		Limiter: ratelimit.NewLimiter(cfg.Pricing.RateLimit, cfg.Pricing.Burst, "coingecko"),
		Breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:          "coingecko",
			OnStateChange: circuitAlert(alerter, "coingecko", logger),
		}),
	}, logger)
	prices := pricing.NewResolver(cacheStore, priceRepo, priceProvider, reg, logger)

	proc := pipeline.New(pipeline.Config{
		BridgeProgram:    cfg.Solana.BridgeProgram,
		RelayerProgram:   cfg.Solana.RelayerProgram,
		Transfers:        transferRepo,
		Tokens:           tokenRepo,
		Publisher:        publisher,
		Metadata:         metadata,
		Prices:           prices,
		Attribution:      attribution.NewEngine(reg),
		BaseTransactions: baseClient,
	}, logger)

	aggregator := stats.NewAggregator(statsRepo, cacheStore, logger)

	syncSvc := reconciliation.NewService(proc, postgres.NewCursorRepo(db), aggregator, reconciliation.Config{
		BatchSize:        cfg.Sync.BatchSize,
		FailureThreshold: cfg.Alert.FailureThreshold,
		Alerter:          alerter,
	}, logger)
	registerSyncSources(syncSvc, cfg, alerter, logger)

	if cfg.Sync.Once {
		res, err := syncSvc.SyncOnce(ctx)
		if err != nil {
			logger.Error("sync failed", "error", err)
			os.Exit(1)
		}
		logger.Info("sync completed", "chains", len(res.Chains), "failed", len(res.Failed), "aggregated", res.Aggregated)
		return
	}

	// Queued payloads outlive the signal; Shutdown drains them.
	queue := ingest.New(context.Background(), proc, ingest.Config{
		Workers:    cfg.Webhook.Workers,
		MaxBacklog: cfg.Webhook.MaxBacklog,
		Alerter:    alerter,
	}, logger)
	hook := webhook.New(cfg.Webhook.Secret, queue, logger,
		webhook.WithMaxBodyBytes(cfg.Webhook.MaxBodyBytes),
		webhook.WithTimeout(cfg.Webhook.RequestTimeout),
	)
	if cfg.Webhook.Secret == "" {
		logger.Warn("HELIUS_WEBHOOK_SECRET is empty; every webhook request will be rejected")
	}

	var limiter *webhook.RateLimiter
	if cfg.Webhook.RateLimit > 0 {
		limiter = webhook.NewRateLimiter(cfg.Webhook.RateLimit, cfg.Webhook.Burst, logger)
		defer limiter.Stop()
	}

	var adminAPI *admin.Server
	if cfg.Admin.Token != "" {
		adminAPI = admin.NewServer(cfg.Admin.Token, logger,
			admin.WithSync(syncSvc),
			admin.WithStats(aggregator),
			admin.WithDapps(reg),
			admin.WithPrices(prices),
		)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// HTTP server: webhook, health, metrics, admin
	g.Go(func() error {
		return runHTTPServer(gCtx, cfg.Server.Port, buildMux(cfg, hook, limiter, adminAPI, queue.Health(), logger), logger)
	})

	// Reconciliation loop
	g.Go(func() error {
		err := syncSvc.RunPeriodic(gCtx, cfg.Sync.Interval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Registry reload from the dapp table
	if cfg.Registry.ReloadInterval > 0 {
		watcher := registry.NewWatcher(reg, dappRepo, cfg.Registry.ReloadInterval, logger)
		g.Go(func() error {
			if err := watcher.Run(gCtx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	startDBPoolStatsPump(gCtx, db.DB, cfg.DB.PoolStatsInterval, alerter, logger)

	// Signal handler
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	waitErr := g.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), queueShutdownTimeout)
	defer shutdownCancel()
	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ingest queue shutdown incomplete", "error", err)
	}

	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		logger.Error("indexer exited with error", "error", waitErr)
		os.Exit(1)
	}

	logger.Info("indexer shut down gracefully")
}
