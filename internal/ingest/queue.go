// Package ingest runs verified webhook payloads on a bounded worker pool.
// One payload is one task; its transactions are processed in order.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/alert"
	"github.com/emperorhan/bridgescope-indexer/internal/metrics"
	"github.com/emperorhan/bridgescope-indexer/internal/pipeline"
	"github.com/gammazero/workerpool"
)

const (
	DefaultWorkers = 4
	// DefaultMaxBacklog is the waiting-task count at which Enqueue runs the
	// payload synchronously instead of queueing it.
	DefaultMaxBacklog = 1000
)

// ErrStopped is returned by Enqueue after Shutdown.
var ErrStopped = errors.New("ingest queue stopped")

// PayloadProcessor is satisfied by *pipeline.Processor.
type PayloadProcessor interface {
	ProcessLedgerPayload(ctx context.Context, raw []byte) (pipeline.Summary, error)
}

type Config struct {
	Workers    int
	MaxBacklog int
	// Alerter is notified when the backlog limit is reached. Optional.
	Alerter alert.Alerter
}

type Queue struct {
	pool       *workerpool.WorkerPool
	proc       PayloadProcessor
	maxBacklog int
	alerter    alert.Alerter
	health     *Health
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *slog.Logger

	mu      sync.RWMutex
	stopped bool
}

// New starts the worker pool. Tasks run under ctx, not under the request
// that enqueued them.
func New(ctx context.Context, proc PayloadProcessor, cfg Config, logger *slog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxBacklog <= 0 {
		cfg.MaxBacklog = DefaultMaxBacklog
	}
	ctx, cancel := context.WithCancel(ctx)
	q := &Queue{
		pool:       workerpool.New(cfg.Workers),
		proc:       proc,
		maxBacklog: cfg.MaxBacklog,
		alerter:    cfg.Alerter,
		health:     NewHealth(),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger.With("component", "ingest"),
	}
	q.logger.Info("ingest queue started", "workers", cfg.Workers, "max_backlog", cfg.MaxBacklog)
	return q
}

// Enqueue schedules raw for processing and returns once it is queued. When
// the backlog is full it blocks until the payload has been processed.
func (q *Queue) Enqueue(raw []byte) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		metrics.IngestPayloadsTotal.WithLabelValues("rejected").Inc()
		return ErrStopped
	}

	payload := append([]byte(nil), raw...)
	enqueued := time.Now()
	task := func() { q.run(payload, enqueued) }

	if waiting := q.pool.WaitingQueueSize(); waiting >= q.maxBacklog {
		q.logger.Warn("ingest backlog full, applying backpressure", "waiting", waiting)
		q.notifyBacklog(waiting)
		q.pool.SubmitWait(task)
	} else {
		q.pool.Submit(task)
	}
	metrics.IngestQueueDepth.Set(float64(q.pool.WaitingQueueSize()))
	return nil
}

func (q *Queue) run(payload []byte, enqueued time.Time) {
	metrics.IngestQueueDepth.Set(float64(q.pool.WaitingQueueSize()))
	start := time.Now()
	defer func() {
		metrics.IngestPayloadLatency.Observe(time.Since(start).Seconds())
	}()

	if q.ctx.Err() != nil {
		metrics.IngestPayloadsTotal.WithLabelValues("cancelled").Inc()
		return
	}

	sum, err := q.proc.ProcessLedgerPayload(q.ctx, payload)
	switch {
	case err == nil && nothingPersisted(sum):
		metrics.IngestPayloadsTotal.WithLabelValues("failed").Inc()
		q.logger.Error("payload processing failed", "store_errors", sum.StoreErrors, "failed", sum.Failed)
		q.recordFailure()
	case err == nil:
		metrics.IngestPayloadsTotal.WithLabelValues("processed").Inc()
		if q.health.RecordSuccess(time.Since(start)) {
			q.logger.Info("payload processing recovered")
		}
		q.logger.Info("payload processed",
			"inserted", sum.Inserted,
			"updated", sum.Updated,
			"discarded", sum.Discarded,
			"failed", sum.Failed,
			"queued_for", start.Sub(enqueued).String(),
		)
	case pipeline.IsMalformed(err):
		metrics.IngestPayloadsTotal.WithLabelValues("malformed").Inc()
		q.logger.Warn("dropping undecodable payload", "bytes", len(payload), "error", err)
	case errors.Is(err, context.Canceled):
		metrics.IngestPayloadsTotal.WithLabelValues("cancelled").Inc()
		q.logger.Warn("payload interrupted by shutdown", "processed", sum.Total())
	default:
		metrics.IngestPayloadsTotal.WithLabelValues("failed").Inc()
		q.logger.Error("payload processing failed", "error", err)
		q.recordFailure()
	}
}

// nothingPersisted reports a payload where the store rejected every write
// it attempted. Transactions that fail to normalize do not count; a payload
// with at least one stored transfer counts as processed.
func nothingPersisted(sum pipeline.Summary) bool {
	return sum.StoreErrors > 0 && sum.Inserted+sum.Updated+sum.Skipped == 0
}

func (q *Queue) recordFailure() {
	if q.health.RecordFailure() {
		q.logger.Error("payload processing unhealthy", "consecutive_failures", q.health.Snapshot().ConsecutiveFailures)
	}
}

func (q *Queue) notifyBacklog(waiting int) {
	if q.alerter == nil {
		return
	}
	err := q.alerter.Send(q.ctx, alert.Alert{
		Type:    alert.AlertTypeIngestBacklog,
		Source:  "webhook",
		Title:   "Webhook ingestion backlog full",
		Message: fmt.Sprintf("%d payloads are waiting for a worker", waiting),
		Fields:  map[string]string{"waiting": strconv.Itoa(waiting)},
	})
	if err != nil {
		q.logger.Warn("backlog alert failed", "error", err)
	}
}

// Health reports processing health for the liveness endpoint.
func (q *Queue) Health() *Health {
	return q.health
}

// Waiting returns the number of queued tasks not yet picked up.
func (q *Queue) Waiting() int {
	return q.pool.WaitingQueueSize()
}

// Shutdown rejects new payloads and waits for queued ones to finish. When
// ctx expires first the remaining tasks are cancelled.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.pool.StopWait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Info("ingest queue drained")
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return fmt.Errorf("drain ingest queue: %w", ctx.Err())
	}
}
