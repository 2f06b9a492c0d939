// Package portfolio allocates capital across per-symbol recommendations and
// assembles the final portfolio-level report.
package portfolio

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
)

// Summary carries the portfolio-level metrics produced by allocation.
type Summary struct {
	TotalExposure        float64          `json:"total_exposure"`
	DiversificationScore float64          `json:"diversification_score"`
	OverallRisk          domain.RiskLevel `json:"overall_risk"`
}

// Optimizer distributes the portfolio across buy-side recommendations under
// the risk budget.
type Optimizer struct {
	cfg config.Engine
	log zerolog.Logger
}

// NewOptimizer creates a portfolio optimizer.
func NewOptimizer(cfg config.Engine, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		cfg: cfg,
		log: log.With().Str("component", "optimizer").Logger(),
	}
}

// directionalStrength weights how aggressively a category deploys capital.
// SELL and HOLD never allocate.
func directionalStrength(c domain.Category) float64 {
	switch c {
	case domain.StrongBuy:
		return 1.0
	case domain.Buy:
		return 0.6
	default:
		return 0
	}
}

// Allocate fills RecommendedAllocation on each recommendation and returns the
// portfolio summary. Base weight is confidence × directional strength,
// normalized so the total equals the risk-tolerance exposure cap, then
// clipped per symbol to the single-position cap with the excess redistributed
// proportionally among uncapped symbols. The redistribution loop terminates
// in at most len(recommendations) passes: each pass either finalizes at least
// one symbol at its cap or finds no excess and exits.
func (o *Optimizer) Allocate(recommendations []domain.Recommendation, tolerance domain.RiskTolerance) ([]domain.Recommendation, Summary) {
	out := make([]domain.Recommendation, len(recommendations))
	copy(out, recommendations)

	weights := make([]float64, len(out))
	for i, rec := range out {
		weights[i] = rec.Confidence * directionalStrength(rec.Category)
	}

	total := floats.Sum(weights)
	if total == 0 {
		for i := range out {
			out[i].RecommendedAllocation = 0
		}
		return out, Summary{OverallRisk: o.overallRisk(out, weights)}
	}

	exposureCap, ok := o.cfg.ExposureCaps[tolerance]
	if !ok {
		exposureCap = o.cfg.ExposureCaps[domain.RiskToleranceMedium]
	}
	for i := range weights {
		weights[i] = weights[i] / total * exposureCap
	}

	o.clipAndRedistribute(weights)

	for i := range out {
		out[i].RecommendedAllocation = round4(weights[i])
	}

	summary := Summary{
		TotalExposure:        round4(floats.Sum(weights)),
		DiversificationScore: round4(diversification(weights)),
		OverallRisk:          o.overallRisk(out, weights),
	}

	o.log.Debug().
		Float64("exposure", summary.TotalExposure).
		Float64("diversification", summary.DiversificationScore).
		Str("risk", string(summary.OverallRisk)).
		Msg("Allocation computed")

	return out, summary
}

// clipAndRedistribute enforces the single-position cap by iterative
// water-filling: clip over-cap weights, spread the excess over uncapped
// symbols proportionally, repeat until nothing exceeds the cap.
func (o *Optimizer) clipAndRedistribute(weights []float64) {
	maxPosition := o.cfg.MaxSinglePosition
	capped := make([]bool, len(weights))

	for pass := 0; pass < len(weights); pass++ {
		excess := 0.0
		for i, w := range weights {
			if !capped[i] && w > maxPosition {
				excess += w - maxPosition
				weights[i] = maxPosition
				capped[i] = true
			}
		}
		if excess == 0 {
			return
		}

		uncappedTotal := 0.0
		for i, w := range weights {
			if !capped[i] {
				uncappedTotal += w
			}
		}
		if uncappedTotal == 0 {
			// Everyone is at the cap; the excess stays in cash.
			return
		}
		for i := range weights {
			if !capped[i] {
				weights[i] += excess * weights[i] / uncappedTotal
			}
		}
	}
}

// diversification is one minus the normalized Herfindahl concentration index
// over the positive allocation weights: 1.0 when capital is spread evenly
// across many symbols, 0.0 when concentrated in one.
func diversification(weights []float64) float64 {
	var active []float64
	for _, w := range weights {
		if w > 0 {
			active = append(active, w)
		}
	}
	n := len(active)
	if n <= 1 {
		return 0
	}

	total := floats.Sum(active)
	hhi := 0.0
	for _, w := range active {
		share := w / total
		hhi += share * share
	}

	minHHI := 1.0 / float64(n)
	normalized := (hhi - minHHI) / (1 - minHHI)
	return 1 - normalized
}

// overallRisk is the allocation-weighted mode of per-symbol risk levels.
// With no allocation it falls back to the unweighted mode, and to high when
// there is nothing to vote with. Ties resolve toward the higher risk.
func (o *Optimizer) overallRisk(recommendations []domain.Recommendation, weights []float64) domain.RiskLevel {
	votes := map[domain.RiskLevel]float64{}
	for i, rec := range recommendations {
		votes[rec.RiskLevel] += weights[i]
	}
	if allZero(votes) {
		for _, rec := range recommendations {
			votes[rec.RiskLevel]++
		}
	}

	best := domain.RiskHigh
	bestVotes := 0.0
	for _, level := range []domain.RiskLevel{domain.RiskHigh, domain.RiskMedium, domain.RiskLow} {
		if votes[level] > bestVotes {
			best = level
			bestVotes = votes[level]
		}
	}
	if bestVotes == 0 {
		return domain.RiskHigh
	}
	return best
}

func allZero(votes map[domain.RiskLevel]float64) bool {
	for _, v := range votes {
		if v > 0 {
			return false
		}
	}
	return true
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
