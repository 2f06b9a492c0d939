package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/advisor/internal/database"
	"github.com/aristath/advisor/internal/domain"
)

// ErrRunNotFound is returned when no run exists for the requested ID.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is the listing row for a stored run.
type RunSummary struct {
	RunID           string    `json:"run_id"`
	Symbols         []string  `json:"symbols"`
	TotalConfidence float64   `json:"total_confidence"`
	OverallRisk     string    `json:"overall_risk"`
	PortfolioSize   float64   `json:"portfolio_size"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// RunStore persists completed portfolio recommendations. Full results are
// stored as msgpack blobs; the indexed columns exist for listing only.
type RunStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunStore creates a run store and ensures its schema exists.
func NewRunStore(db *database.DB, log zerolog.Logger) (*RunStore, error) {
	if err := InitRunsSchema(db.Conn()); err != nil {
		return nil, fmt.Errorf("failed to initialize runs schema: %w", err)
	}
	return &RunStore{
		db:  db.Conn(),
		log: log.With().Str("component", "run_store").Logger(),
	}, nil
}

// Save records a completed run.
func (s *RunStore) Save(ctx context.Context, result domain.PortfolioRecommendation) error {
	payload, err := msgpack.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", result.RunID, err)
	}

	symbols := make([]string, len(result.Recommendations))
	for i, rec := range result.Recommendations {
		symbols[i] = rec.Symbol
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, generated_at, symbols, total_confidence, overall_risk, portfolio_size, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.GeneratedAt.UTC().Format(time.RFC3339),
		strings.Join(symbols, ","),
		result.TotalConfidence,
		string(result.OverallRiskLevel),
		result.PortfolioSize,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", result.RunID, err)
	}

	s.log.Debug().Str("run_id", result.RunID).Int("symbols", len(symbols)).Msg("Run saved")
	return nil
}

// List returns the most recent runs, newest first.
func (s *RunStore) List(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, generated_at, symbols, total_confidence, overall_risk, portfolio_size
		 FROM runs ORDER BY generated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var summary RunSummary
		var generatedAt, symbols string
		if err := rows.Scan(&summary.RunID, &generatedAt, &symbols, &summary.TotalConfidence, &summary.OverallRisk, &summary.PortfolioSize); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		summary.GeneratedAt, _ = time.Parse(time.RFC3339, generatedAt)
		if symbols != "" {
			summary.Symbols = strings.Split(symbols, ",")
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// Get returns the full stored result for a run ID.
func (s *RunStore) Get(ctx context.Context, runID string) (domain.PortfolioRecommendation, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE run_id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PortfolioRecommendation{}, ErrRunNotFound
	}
	if err != nil {
		return domain.PortfolioRecommendation{}, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	var result domain.PortfolioRecommendation
	if err := msgpack.Unmarshal(payload, &result); err != nil {
		return domain.PortfolioRecommendation{}, fmt.Errorf("failed to decode run %s: %w", runID, err)
	}
	return result, nil
}
