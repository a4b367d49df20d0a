package ingest

import (
	"sort"
	"sync"
	"time"
)

// HealthStatus is the state of the webhook processing path.
type HealthStatus string

const (
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"

	// DefaultUnhealthyThreshold is the number of consecutive failed
	// payloads before processing is considered unhealthy.
	DefaultUnhealthyThreshold = 5

	// DefaultDegradedLatency is the p95 processing time above which
	// processing is degraded.
	DefaultDegradedLatency = 5 * time.Second

	latencyWindowSize = 20
)

// Health tracks payload outcomes and processing latency.
type Health struct {
	mu                  sync.RWMutex
	status              HealthStatus
	consecutiveFailures int
	lastSuccessAt       *time.Time
	lastFailureAt       *time.Time
	unhealthyThreshold  int
	degradedLatency     time.Duration
	latencies           []time.Duration
	nowFunc             func() time.Time
}

func NewHealth() *Health {
	return &Health{
		status:             HealthStatusUnknown,
		unhealthyThreshold: DefaultUnhealthyThreshold,
		degradedLatency:    DefaultDegradedLatency,
		latencies:          make([]time.Duration, 0, latencyWindowSize),
		nowFunc:            time.Now,
	}
}

// RecordSuccess records a processed payload and returns true when it ends
// an unhealthy streak.
func (h *Health) RecordSuccess(took time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.nowFunc()
	wasUnhealthy := h.status == HealthStatusUnhealthy
	h.consecutiveFailures = 0
	h.lastSuccessAt = &now
	h.recordLatencyLocked(took)
	if h.latencyDegradedLocked() {
		h.status = HealthStatusDegraded
	} else {
		h.status = HealthStatusHealthy
	}
	return wasUnhealthy
}

// RecordFailure returns true when this failure makes processing unhealthy.
func (h *Health) RecordFailure() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.nowFunc()
	h.consecutiveFailures++
	h.lastFailureAt = &now
	if h.consecutiveFailures >= h.unhealthyThreshold && h.status != HealthStatusUnhealthy {
		h.status = HealthStatusUnhealthy
		return true
	}
	return false
}

// Healthy reports false only while processing is unhealthy.
func (h *Health) Healthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status != HealthStatusUnhealthy
}

func (h *Health) recordLatencyLocked(d time.Duration) {
	if len(h.latencies) >= latencyWindowSize {
		h.latencies = h.latencies[1:]
	}
	h.latencies = append(h.latencies, d)
}

// Must be called with mu held.
func (h *Health) latencyDegradedLocked() bool {
	if len(h.latencies) < 2 {
		return false
	}
	return h.p95Locked() > h.degradedLatency
}

func (h *Health) p95Locked() time.Duration {
	n := len(h.latencies)
	if n == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), h.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := (95*n - 1) / 100
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// Snapshot returns the current state.
func (h *Health) Snapshot() HealthSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HealthSnapshot{
		Status:              h.status,
		ConsecutiveFailures: h.consecutiveFailures,
		P95Latency:          h.p95Locked().String(),
		LastSuccessAt:       h.lastSuccessAt,
		LastFailureAt:       h.lastFailureAt,
	}
}

// HealthSnapshot is a point-in-time view of processing health.
type HealthSnapshot struct {
	Status              HealthStatus `json:"status"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	P95Latency          string       `json:"p95_latency"`
	LastSuccessAt       *time.Time   `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time   `json:"last_failure_at,omitempty"`
}
