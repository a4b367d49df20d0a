// Package retry classifies outbound call failures as transient or terminal
// and runs bounded retry loops over the transient ones.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"
)

type Class string

const (
	ClassTransient Class = "transient"
	ClassTerminal  Class = "terminal"
)

type Decision struct {
	Class  Class
	Reason string
}

func (d Decision) IsTransient() bool {
	return d.Class == ClassTransient
}

type classifiedError struct {
	class Class
	err   error
}

func (e *classifiedError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Transient marks err as retryable regardless of its content.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: ClassTransient, err: err}
}

// Terminal marks err as non-retryable regardless of its content.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: ClassTerminal, err: err}
}

// StatusError is a non-2xx response from an HTTP API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// NewStatusError truncates body to keep log lines bounded.
func NewStatusError(code int, body []byte) *StatusError {
	const maxBody = 256
	b := string(body)
	if len(b) > maxBody {
		b = b[:maxBody]
	}
	return &StatusError{StatusCode: code, Body: strings.TrimSpace(b)}
}

// codedError is implemented by JSON-RPC error types.
type codedError interface {
	error
	RPCCode() int
}

var transientMessageTokens = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"temporarily unavailable",
	"connection reset",
	"connection refused",
	"broken pipe",
	"too many requests",
	"rate limit",
	"429",
	"502",
	"503",
	"504",
	"unexpected eof",
}

var terminalMessageTokens = []string{
	"invalid",
	"malformed",
	"unsupported",
	"not found",
	"execution reverted",
	"unmarshal",
}

func Classify(err error) Decision {
	if err == nil {
		return Decision{Class: ClassTerminal, Reason: "nil_error"}
	}

	var marked *classifiedError
	if errors.As(err, &marked) {
		return Decision{Class: marked.class, Reason: "explicit_" + string(marked.class)}
	}

	if errors.Is(err, context.Canceled) {
		return Decision{Class: ClassTerminal, Reason: "context_canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Decision{Class: ClassTransient, Reason: "context_deadline_exceeded"}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyHTTPStatus(statusErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Decision{Class: ClassTransient, Reason: "net_timeout"}
	}

	var rpcErr codedError
	if errors.As(err, &rpcErr) {
		if strings.Contains(strings.ToLower(rpcErr.Error()), "execution reverted") {
			return Decision{Class: ClassTerminal, Reason: "jsonrpc_reverted"}
		}
		if decision, ok := classifyJSONRPCCode(rpcErr.RPCCode()); ok {
			return decision
		}
	}

	lower := strings.ToLower(err.Error())
	for _, token := range transientMessageTokens {
		if strings.Contains(lower, token) {
			return Decision{Class: ClassTransient, Reason: "message_" + strings.ReplaceAll(token, " ", "_")}
		}
	}
	for _, token := range terminalMessageTokens {
		if strings.Contains(lower, token) {
			return Decision{Class: ClassTerminal, Reason: "message_" + strings.ReplaceAll(token, " ", "_")}
		}
	}

	return Decision{Class: ClassTerminal, Reason: "unknown"}
}

func classifyHTTPStatus(code int) Decision {
	switch {
	case code == http.StatusTooManyRequests:
		return Decision{Class: ClassTransient, Reason: "http_429"}
	case code == http.StatusRequestTimeout:
		return Decision{Class: ClassTransient, Reason: "http_408"}
	case code >= 500:
		return Decision{Class: ClassTransient, Reason: fmt.Sprintf("http_%d", code)}
	default:
		return Decision{Class: ClassTerminal, Reason: fmt.Sprintf("http_%d", code)}
	}
}

func classifyJSONRPCCode(code int) (Decision, bool) {
	switch {
	case code == -32603, code == -32005:
		return Decision{Class: ClassTransient, Reason: fmt.Sprintf("jsonrpc_%d", code)}, true
	case code == -32600, code == -32601, code == -32602, code == -32700:
		return Decision{Class: ClassTerminal, Reason: fmt.Sprintf("jsonrpc_%d", code)}, true
	case code <= -32000 && code >= -32099:
		return Decision{Class: ClassTransient, Reason: "jsonrpc_server_error"}, true
	}
	return Decision{}, false
}

// Policy bounds a retry loop. Delays grow exponentially from BaseDelay up
// to MaxDelay with up to 20% jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond, MaxDelay: 5 * time.Second}

// Do runs fn until it succeeds, returns a terminal error, or the attempts
// are exhausted. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == p.MaxAttempts || !Classify(err).IsTransient() {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff(attempt)):
		}
	}
	return err
}

func (p Policy) backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d + time.Duration(rand.Int64N(int64(d)/5+1))
}
