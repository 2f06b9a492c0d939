// Package stages implements the three analysis stage runners. Each runner is
// a pure adapter: it wraps one capability call plus local post-processing into
// a typed StageResult. Runners never retry or enforce timeouts themselves;
// that is the coordinator's job.
package stages

import (
	"context"

	"github.com/aristath/advisor/internal/domain"
)

// Runner is one analysis stage. Implementations are registered with the
// coordinator at construction time, keyed by kind.
//
// A returned error means the attempt failed and the coordinator decides
// between retry and degradation. A returned result with Status Missing means
// the stage settled without usable data and must not be retried.
type Runner interface {
	Kind() domain.StageKind
	Run(ctx context.Context, symbol string) (domain.StageResult, error)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
