package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/history"
	"github.com/aristath/advisor/internal/reliability"
	"github.com/aristath/advisor/internal/workflow"
)

// WatchlistJob runs a standing analysis over the configured watchlist and
// persists the result like any API-initiated run.
type WatchlistJob struct {
	coordinator *workflow.Coordinator
	runs        *history.RunStore
	archiver    *reliability.ReportArchiver // nil disables archiving
	request     domain.AnalysisRequest
	timeout     time.Duration
	log         zerolog.Logger
}

// NewWatchlistJob creates a watchlist analysis job.
func NewWatchlistJob(
	coordinator *workflow.Coordinator,
	runs *history.RunStore,
	archiver *reliability.ReportArchiver,
	request domain.AnalysisRequest,
	timeout time.Duration,
	log zerolog.Logger,
) *WatchlistJob {
	return &WatchlistJob{
		coordinator: coordinator,
		runs:        runs,
		archiver:    archiver,
		request:     request,
		timeout:     timeout,
		log:         log.With().Str("job", "watchlist").Logger(),
	}
}

func (j *WatchlistJob) Name() string { return "watchlist_analysis" }

func (j *WatchlistJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	result, err := j.coordinator.Analyze(ctx, j.request)
	if err != nil {
		return err
	}

	if err := j.runs.Save(ctx, result); err != nil {
		return err
	}
	if j.archiver != nil {
		if err := j.archiver.Archive(ctx, result); err != nil {
			j.log.Error().Err(err).Str("run_id", result.RunID).Msg("Report archive failed")
		}
	}

	j.log.Info().
		Str("run_id", result.RunID).
		Int("symbols", len(result.Recommendations)).
		Msg("Watchlist analysis stored")
	return nil
}

// CachePruneJob evicts expired stage results.
type CachePruneJob struct {
	cache *history.ResultCache
}

// NewCachePruneJob creates a cache prune job.
func NewCachePruneJob(cache *history.ResultCache) *CachePruneJob {
	return &CachePruneJob{cache: cache}
}

func (j *CachePruneJob) Name() string { return "cache_prune" }

func (j *CachePruneJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := j.cache.Prune(ctx)
	return err
}

// ReportRotationJob deletes archived reports past their retention period.
type ReportRotationJob struct {
	archiver *reliability.ReportArchiver
}

// NewReportRotationJob creates a report rotation job.
func NewReportRotationJob(archiver *reliability.ReportArchiver) *ReportRotationJob {
	return &ReportRotationJob{archiver: archiver}
}

func (j *ReportRotationJob) Name() string { return "report_rotation" }

func (j *ReportRotationJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	return j.archiver.Rotate(ctx)
}
