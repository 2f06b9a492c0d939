package portfolio

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aristath/advisor/internal/domain"
)

// Aggregator assembles per-symbol recommendations, allocation results and
// alerts into the final portfolio report.
type Aggregator struct {
	now func() time.Time
}

// NewAggregator creates a result aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// Assemble builds the portfolio recommendation. Recommendations must already
// carry their allocation weights; dollar position sizes are derived here from
// the portfolio size using exact decimal arithmetic.
func (a *Aggregator) Assemble(request domain.AnalysisRequest, recommendations []domain.Recommendation, summary Summary, alerts []domain.Alert) domain.PortfolioRecommendation {
	size := decimal.NewFromFloat(request.PortfolioSize)
	for i := range recommendations {
		weight := decimal.NewFromFloat(recommendations[i].RecommendedAllocation)
		recommendations[i].PositionSize = size.Mul(weight).Round(2)
	}

	return domain.PortfolioRecommendation{
		RunID:                uuid.NewString(),
		Recommendations:      recommendations,
		TotalConfidence:      round4(meanConfidence(recommendations)),
		DiversificationScore: summary.DiversificationScore,
		OverallRiskLevel:     summary.OverallRisk,
		PortfolioSize:        request.PortfolioSize,
		Alerts:               alerts,
		ValidationNotes:      validate(recommendations, summary),
		GeneratedAt:          a.now().UTC(),
	}
}

func meanConfidence(recommendations []domain.Recommendation) float64 {
	if len(recommendations) == 0 {
		return 0
	}
	total := 0.0
	for _, rec := range recommendations {
		total += rec.Confidence
	}
	return total / float64(len(recommendations))
}

// validate produces advisory notes about the batch as a whole. Notes never
// block the result; they surface conditions a caller should eyeball.
func validate(recommendations []domain.Recommendation, summary Summary) []string {
	var notes []string

	actionable := 0
	for _, rec := range recommendations {
		if rec.Category != domain.Hold {
			actionable++
		}

		usable := 0
		for _, status := range rec.StageStatus {
			if status != domain.StatusMissing {
				usable++
			}
		}
		if usable == 0 {
			notes = append(notes, fmt.Sprintf("%s: no analysis stage produced data; recommendation defaulted to hold", rec.Symbol))
		} else if usable < len(rec.StageStatus) {
			notes = append(notes, fmt.Sprintf("%s: %d of %d analysis stages unavailable", rec.Symbol, len(rec.StageStatus)-usable, len(rec.StageStatus)))
		}
	}

	if len(recommendations) > 0 && actionable == 0 {
		notes = append(notes, "no actionable recommendations; portfolio remains in cash")
	}
	if summary.TotalExposure > 1.0 {
		notes = append(notes, fmt.Sprintf("total exposure %.4f exceeds 1.0", summary.TotalExposure))
	}

	return notes
}
