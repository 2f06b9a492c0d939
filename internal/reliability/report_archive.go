package reliability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/domain"
)

const reportPrefix = "advisor-run-"

// ReportInfo describes one archived report.
type ReportInfo struct {
	Key       string    `json:"key"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}

// ReportArchiver uploads completed run reports to object storage and rotates
// reports older than the retention period.
type ReportArchiver struct {
	store     *S3Client
	retention time.Duration // 0 keeps everything
	log       zerolog.Logger
	now       func() time.Time
}

// NewReportArchiver creates a report archiver.
func NewReportArchiver(store *S3Client, retention time.Duration, log zerolog.Logger) *ReportArchiver {
	return &ReportArchiver{
		store:     store,
		retention: retention,
		log:       log.With().Str("component", "report_archiver").Logger(),
		now:       time.Now,
	}
}

// Archive uploads one run report as JSON. Failures are reported, never
// fatal: archiving sits outside the request path.
func (a *ReportArchiver) Archive(ctx context.Context, result domain.PortfolioRecommendation) error {
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report %s: %w", result.RunID, err)
	}

	key := fmt.Sprintf("%s%s-%s.json",
		reportPrefix,
		result.GeneratedAt.UTC().Format("2006-01-02-150405"),
		result.RunID)

	if err := a.store.Upload(ctx, key, bytes.NewReader(payload)); err != nil {
		return err
	}

	a.log.Info().Str("key", key).Int("bytes", len(payload)).Msg("Report archived")
	return nil
}

// ListReports returns archived reports, newest first.
func (a *ReportArchiver) ListReports(ctx context.Context) ([]ReportInfo, error) {
	objects, err := a.store.List(ctx, reportPrefix)
	if err != nil {
		return nil, err
	}

	reports := make([]ReportInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		info, ok := parseReportKey(*obj.Key)
		if !ok {
			continue
		}
		if obj.Size != nil {
			info.SizeBytes = *obj.Size
		}
		reports = append(reports, info)
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Timestamp.After(reports[j].Timestamp)
	})
	return reports, nil
}

// Rotate deletes reports older than the retention period. A zero retention
// disables rotation.
func (a *ReportArchiver) Rotate(ctx context.Context) error {
	if a.retention == 0 {
		return nil
	}

	reports, err := a.ListReports(ctx)
	if err != nil {
		return err
	}

	cutoff := a.now().Add(-a.retention)
	deleted := 0
	for _, report := range reports {
		if !report.Timestamp.Before(cutoff) {
			continue
		}
		if err := a.store.Delete(ctx, report.Key); err != nil {
			a.log.Error().Err(err).Str("key", report.Key).Msg("Failed to delete old report")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		a.log.Info().Int("deleted", deleted).Msg("Report rotation completed")
	}
	return nil
}

// parseReportKey extracts the timestamp and run ID from a report key of the
// form advisor-run-2026-01-08-143022-<uuid>.json.
func parseReportKey(key string) (ReportInfo, bool) {
	if !strings.HasPrefix(key, reportPrefix) || !strings.HasSuffix(key, ".json") {
		return ReportInfo{}, false
	}

	rest := strings.TrimSuffix(strings.TrimPrefix(key, reportPrefix), ".json")
	if len(rest) < len("2006-01-02-150405")+1 {
		return ReportInfo{}, false
	}

	stampLen := len("2006-01-02-150405")
	timestamp, err := time.Parse("2006-01-02-150405", rest[:stampLen])
	if err != nil {
		return ReportInfo{}, false
	}

	return ReportInfo{
		Key:       key,
		RunID:     strings.TrimPrefix(rest[stampLen:], "-"),
		Timestamp: timestamp,
	}, true
}
