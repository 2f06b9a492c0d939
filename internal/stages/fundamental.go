package stages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/capabilities"
	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
)

// filingKinds is the fixed set of filings the fundamental review considers.
var filingKinds = []string{"10-K", "10-Q"}

// FundamentalStage scores a symbol from its latest regulatory filing. The
// filing text is summarized into a small signal set (health score, revenue
// growth, debt pressure) and those signals drive the sub-score. A filing
// older than the staleness threshold still scores, but degraded.
type FundamentalStage struct {
	filings capabilities.FilingProvider
	llm     capabilities.LanguageModel
	cfg     config.Engine
	log     zerolog.Logger

	now func() time.Time
}

// NewFundamentalStage creates a fundamental stage runner.
func NewFundamentalStage(filings capabilities.FilingProvider, llm capabilities.LanguageModel, cfg config.Engine, log zerolog.Logger) *FundamentalStage {
	return &FundamentalStage{
		filings: filings,
		llm:     llm,
		cfg:     cfg,
		log:     log.With().Str("stage", "fundamental").Logger(),
		now:     time.Now,
	}
}

// Kind implements Runner.
func (s *FundamentalStage) Kind() domain.StageKind {
	return domain.StageFundamental
}

// Run implements Runner.
func (s *FundamentalStage) Run(ctx context.Context, symbol string) (domain.StageResult, error) {
	filing, err := s.filings.Latest(ctx, symbol, filingKinds)
	if err != nil {
		if errors.Is(err, capabilities.ErrNotFound) {
			return domain.MissingResult(domain.StageFundamental, "no_filing"), nil
		}
		return domain.StageResult{}, fmt.Errorf("fetch filing for %s: %w", symbol, err)
	}

	signals, err := s.llm.SummarizeFiling(ctx, filing.Text)
	if err != nil {
		return domain.StageResult{}, fmt.Errorf("summarize filing for %s: %w", symbol, err)
	}

	// Health score 0..10 centers the sub-score; growth and debt shift it.
	score := 0.5 + (signals.HealthScore-5.0)/10.0
	if signals.RevenueGrowth > 0.10 {
		score += 0.10
	} else if signals.RevenueGrowth < 0 {
		score -= 0.10
	}
	if signals.DebtPressure > 0.6 {
		score -= 0.10
	}
	score = clamp01(score)

	status := domain.StatusComplete
	reason := ""
	if age := s.now().Sub(filing.FiledAt); age > s.cfg.StalenessThreshold {
		status = domain.StatusDegraded
		reason = fmt.Sprintf("filing %s is %d days old", filing.Kind, int(age.Hours()/24))
	}

	factors := make([]string, 0, len(signals.Strengths)+1)
	factors = append(factors, fmt.Sprintf("Filing health score %.1f/10 (%s)", signals.HealthScore, filing.Kind))
	factors = append(factors, signals.Strengths...)

	s.log.Debug().
		Str("symbol", symbol).
		Str("filing", filing.Kind).
		Float64("score", score).
		Msg("Fundamental stage settled")

	return domain.StageResult{
		Kind:      domain.StageFundamental,
		Status:    status,
		Reason:    reason,
		Score:     score,
		Direction: (score - 0.5) * 2,
		Factors:   factors,
		Risks:     signals.RiskFactors,
	}, nil
}
