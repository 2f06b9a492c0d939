package workflow

import (
	"context"
	"math/rand"
	"time"

	"github.com/aristath/advisor/internal/capabilities"
)

// backoffDelay computes the delay before retry attempt n (0-based): an
// exponentially increasing base with up to 50% random jitter so parallel
// stages don't retry in lockstep.
func backoffDelay(attempt int, base time.Duration) time.Duration {
	delay := base << uint(attempt)
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay + jitter
}

// sleepRetry waits for the backoff delay before the next attempt, honoring a
// provider retry-after hint when it is longer, and aborting when the context
// expires first.
func sleepRetry(ctx context.Context, attempt int, base time.Duration, lastErr error) error {
	delay := backoffDelay(attempt, base)
	if hint := capabilities.RetryAfterHint(lastErr); hint > delay {
		delay = hint
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
