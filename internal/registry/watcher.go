package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/emperorhan/bridgescope-indexer/internal/metrics"
)

const watcherDefaultInterval = time.Minute

// DappSource lists dApps stored outside the registry file.
// *postgres.DappRepo satisfies it.
type DappSource interface {
	List(ctx context.Context) ([]model.Dapp, error)
}

// Watcher polls the dapp table and merges new dApps and contract bindings
// into the running registry so attribution picks them up without a restart.
// Bindings are only ever added.
type Watcher struct {
	reg      *Registry
	source   DappSource
	interval time.Duration
	logger   *slog.Logger

	lastBindings int
}

func NewWatcher(reg *Registry, source DappSource, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = watcherDefaultInterval
	}
	return &Watcher{
		reg:          reg,
		source:       source,
		interval:     interval,
		logger:       logger.With("component", "registry_watcher"),
		lastBindings: reg.bindingCount(),
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("registry watcher started", "poll_interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("registry watcher stopping")
			return ctx.Err()
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll merges one snapshot of the source. A failed read or a conflicting
// binding leaves the registry serving its previous contents.
func (w *Watcher) Poll(ctx context.Context) {
	dapps, err := w.source.List(ctx)
	if err != nil {
		w.logger.Warn("registry reload failed", "error", err)
		metrics.RegistryReloadsTotal.WithLabelValues("error").Inc()
		return
	}
	if err := w.reg.Merge(dapps); err != nil {
		w.logger.Error("registry reload rejected", "error", err)
		metrics.RegistryReloadsTotal.WithLabelValues("conflict").Inc()
		return
	}
	metrics.RegistryReloadsTotal.WithLabelValues("ok").Inc()
	metrics.RegistryDapps.Set(float64(len(w.reg.Dapps())))

	if n := w.reg.bindingCount(); n != w.lastBindings {
		w.logger.Info("registry bindings changed",
			"old_bindings", w.lastBindings,
			"new_bindings", n,
			"dapps", len(w.reg.Dapps()),
		)
		w.lastBindings = n
	}
}

// bindingCount is the number of dApps plus contract bindings.
func (r *Registry) bindingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dapps) + len(r.contracts)
}
