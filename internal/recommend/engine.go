// Package recommend turns a symbol's stage results into a recommendation.
package recommend

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
)

// kindOrder fixes the iteration order over stage kinds so output is
// reproducible regardless of map layout.
var kindOrder = []domain.StageKind{
	domain.StageSentiment,
	domain.StageTechnical,
	domain.StageFundamental,
}

// contribution is one usable stage result with its applied weight.
type contribution struct {
	result domain.StageResult
	weight float64
}

// Engine merges a SymbolBundle into a Recommendation. It is a pure function
// of the bundle, the current price and the configuration: recomputing with
// identical inputs yields an identical Recommendation.
type Engine struct {
	cfg config.Engine
}

// NewEngine creates a recommendation engine with the given policy.
func NewEngine(cfg config.Engine) *Engine {
	return &Engine{cfg: cfg}
}

// Recommend merges the bundle into a recommendation for the symbol.
//
// Each usable stage contributes weight × score, where weight is the per-kind
// base weight discounted for Degraded results. Confidence is the contribution
// sum normalized by the weights actually applied, so absent stages are not
// punished twice. Direction comes from the technical stage when usable, else
// sentiment, else fundamental.
func (e *Engine) Recommend(bundle domain.SymbolBundle, price float64) domain.Recommendation {
	rec := domain.Recommendation{
		Symbol:       bundle.Symbol,
		Category:     domain.Hold,
		CurrentPrice: round4(price),
		TargetPrice:  round4(price),
		RiskLevel:    domain.RiskHigh,
		TimeHorizon:  domain.HorizonMedium,
		KeyFactors:   []string{},
		Risks:        []string{},
		StageStatus:  bundle.StatusByKind(),
	}

	var contributions []contribution
	var weightedSum, weightTotal float64
	for _, kind := range kindOrder {
		result, ok := bundle.Get(kind)
		if !ok || !result.Usable() {
			continue
		}
		weight := e.cfg.StageWeights[kind]
		if result.Status == domain.StatusDegraded {
			weight *= e.cfg.DegradedDiscount
		}
		contributions = append(contributions, contribution{result: result, weight: weight})
		weightedSum += weight * result.Score
		weightTotal += weight
	}

	// Total failure still yields a recommendation: HOLD at zero confidence,
	// treated as high risk.
	if weightTotal == 0 {
		rec.Confidence = 0
		return rec
	}

	confidence := weightedSum / weightTotal

	direction := 0.0
	for _, kind := range []domain.StageKind{domain.StageTechnical, domain.StageSentiment, domain.StageFundamental} {
		if result, ok := bundle.Get(kind); ok && result.Usable() {
			direction = result.Direction
			break
		}
	}

	rec.Confidence = round4(confidence)
	rec.Category = e.categorize(confidence, direction)
	rec.RiskLevel = e.riskFromDispersion(contributions)
	rec.TimeHorizon = e.horizon(rec.Category, rec.RiskLevel, direction)

	if rec.Category != domain.Hold {
		// Signed expected return from the weighted sub-scores: 0.5 is
		// neutral, the scale caps the absolute estimate.
		rec.ExpectedReturn = round4((confidence - 0.5) * 2 * e.cfg.ReturnScale)
		rec.TargetPrice = round4(price * (1 + rec.ExpectedReturn))
	}

	// Factors and risks from the highest-contribution stages first.
	sort.SliceStable(contributions, func(i, j int) bool {
		ci := contributions[i].weight * math.Abs(contributions[i].result.Score-0.5)
		cj := contributions[j].weight * math.Abs(contributions[j].result.Score-0.5)
		return ci > cj
	})
	for _, c := range contributions {
		for _, f := range c.result.Factors {
			if len(rec.KeyFactors) < e.cfg.MaxFactors {
				rec.KeyFactors = append(rec.KeyFactors, f)
			}
		}
		for _, r := range c.result.Risks {
			if len(rec.Risks) < e.cfg.MaxFactors {
				rec.Risks = append(rec.Risks, r)
			}
		}
	}

	return rec
}

// categorize maps direction sign and strength onto the five-way scale.
// Strength is the conviction in the direction of the signal: the confidence
// itself on the bullish side, its complement on the bearish side, so strongly
// bearish evidence (low weighted score) can still produce a STRONG_SELL.
func (e *Engine) categorize(confidence, direction float64) domain.Category {
	switch {
	case direction > e.cfg.NeutralBand:
		if confidence >= e.cfg.StrongThreshold {
			return domain.StrongBuy
		}
		if confidence >= e.cfg.ActionThreshold {
			return domain.Buy
		}
	case direction < -e.cfg.NeutralBand:
		bearishness := 1 - confidence
		if bearishness >= e.cfg.StrongThreshold {
			return domain.StrongSell
		}
		if bearishness >= e.cfg.ActionThreshold {
			return domain.Sell
		}
	}
	return domain.Hold
}

// riskFromDispersion derives risk from how much the stages disagree. High
// dispersion means the evidence conflicts, which is riskier than a uniformly
// weak or strong signal.
func (e *Engine) riskFromDispersion(contributions []contribution) domain.RiskLevel {
	if len(contributions) == 0 {
		return domain.RiskHigh
	}
	scores := make([]float64, len(contributions))
	for i, c := range contributions {
		scores[i] = c.result.Score
	}
	dispersion := stat.PopStdDev(scores, nil)
	switch {
	case dispersion >= e.cfg.DispersionHigh:
		return domain.RiskHigh
	case dispersion >= e.cfg.DispersionMedium:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// horizon derives the holding horizon: momentum extremes suggest short term,
// strong categories can be held long, anything else is medium.
func (e *Engine) horizon(category domain.Category, risk domain.RiskLevel, direction float64) domain.TimeHorizon {
	if math.Abs(direction) > 0.8 || risk == domain.RiskHigh {
		return domain.HorizonShort
	}
	if category == domain.StrongBuy || category == domain.StrongSell {
		return domain.HorizonLong
	}
	return domain.HorizonMedium
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
