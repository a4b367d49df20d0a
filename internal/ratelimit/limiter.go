// Package ratelimit throttles outbound calls to chain RPC nodes and the
// pricing API.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/metrics"
	"github.com/emperorhan/bridgescope-indexer/internal/retry"
	"golang.org/x/time/rate"
)

// Limiter is a token bucket labelled with the upstream it protects.
type Limiter struct {
	limiter *rate.Limiter
	target  string
}

// NewLimiter allows rps requests per second with burst. rps <= 0 disables
// throttling.
func NewLimiter(rps float64, burst int, target string) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(limit, burst), target: target}
}

// Wait blocks until one token is available or ctx is done. Exactly one
// token is consumed per successful call.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	metrics.RPCRateLimitWaits.WithLabelValues(l.target).Inc()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// RecordCall counts one outbound call by status class.
func RecordCall(target, method string, err error) {
	metrics.RPCCallsTotal.WithLabelValues(target, method, StatusClass(err)).Inc()
}

// StatusClass buckets err into ok, timeout, rate_limited, server_error,
// network_error or client_error.
func StatusClass(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var statusErr *retry.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return "rate_limited"
		case statusErr.StatusCode >= 500:
			return "server_error"
		default:
			return "client_error"
		}
	}
	decision := retry.Classify(err)
	switch {
	case decision.Reason == "net_timeout" || decision.Reason == "message_timeout" || decision.Reason == "message_timed_out":
		return "timeout"
	case decision.Reason == "message_rate_limit" || decision.Reason == "message_too_many_requests" || decision.Reason == "message_429":
		return "rate_limited"
	case decision.IsTransient() && (decision.Reason == "jsonrpc_server_error" || decision.Reason == "jsonrpc_-32603"):
		return "server_error"
	case decision.IsTransient():
		return "network_error"
	default:
		return "client_error"
	}
}
