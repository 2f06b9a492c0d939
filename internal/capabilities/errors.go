package capabilities

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Capability error kinds. Clients wrap provider failures into one of these so
// the coordinator can decide between retry and immediate degradation without
// knowing anything about the provider.
var (
	// ErrUnavailable marks a transient remote failure (network blip, 5xx).
	ErrUnavailable = errors.New("service unavailable")
	// ErrRateLimited marks provider throttling. Use NewRateLimitError to
	// carry a retry-after hint.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidSymbol marks a permanently unresolvable symbol.
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrNotFound marks a missing resource (e.g. no filing on record).
	ErrNotFound = errors.New("not found")
	// ErrAuth marks a permanent authentication or authorization failure.
	ErrAuth = errors.New("authentication failed")
)

// RateLimitError carries the provider's retry-after hint when one was given.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// Is makes RateLimitError match ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// NewRateLimitError builds a rate-limit error with a retry-after hint.
func NewRateLimitError(retryAfter time.Duration) error {
	return &RateLimitError{RetryAfter: retryAfter}
}

// RetryAfterHint extracts the retry-after hint from an error chain, or zero.
func RetryAfterHint(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// Retryable reports whether an attempt may be repeated with backoff.
// Timeouts are not retryable: once the per-stage deadline elapses the stage
// degrades immediately.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// Reason returns a short kind string for Missing/Degraded reasons.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrInvalidSymbol):
		return "invalid_symbol"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAuth):
		return "auth_failed"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
