package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is the five-way recommendation scale.
type Category string

const (
	StrongSell Category = "strong_sell"
	Sell       Category = "sell"
	Hold       Category = "hold"
	Buy        Category = "buy"
	StrongBuy  Category = "strong_buy"
)

// BuySide reports whether the category calls for deploying capital.
func (c Category) BuySide() bool {
	return c == Buy || c == StrongBuy
}

// RiskLevel classifies per-symbol and portfolio risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Recommendation is the terminal per-symbol output. Derived, immutable once
// computed: recomputing from the same bundle and configuration yields an
// identical value.
type Recommendation struct {
	Symbol                string                    `json:"symbol"`
	Category              Category                  `json:"recommendation"`
	Confidence            float64                   `json:"confidence_score"`
	CurrentPrice          float64                   `json:"current_price"`
	TargetPrice           float64                   `json:"target_price"`
	ExpectedReturn        float64                   `json:"expected_return"`
	RiskLevel             RiskLevel                 `json:"risk_level"`
	TimeHorizon           TimeHorizon               `json:"time_horizon"`
	RecommendedAllocation float64                   `json:"recommended_allocation"`
	PositionSize          decimal.Decimal           `json:"position_size"`
	KeyFactors            []string                  `json:"key_factors"`
	Risks                 []string                  `json:"risks"`
	StageStatus           map[StageKind]StageStatus `json:"stage_status"`
}

// Alert is a per-symbol technical condition worth flagging independently of
// the recommendation itself.
type Alert struct {
	Symbol    string             `json:"symbol"`
	AlertType string             `json:"alert_type"`
	Message   string             `json:"message"`
	Urgency   string             `json:"urgency"` // low, medium, high
	Trigger   map[string]float64 `json:"trigger_conditions,omitempty"`
}

// PortfolioRecommendation is the terminal portfolio-level output. The
// recommendations preserve the input symbol order. Allocation weights satisfy
// weight ∈ [0, max_single_position] per symbol and sum ≤ 1.0 overall.
type PortfolioRecommendation struct {
	RunID                string           `json:"run_id"`
	Recommendations      []Recommendation `json:"recommendations"`
	TotalConfidence      float64          `json:"total_confidence"`
	DiversificationScore float64          `json:"diversification_score"`
	OverallRiskLevel     RiskLevel        `json:"overall_risk_level"`
	PortfolioSize        float64          `json:"portfolio_size"`
	Alerts               []Alert          `json:"alerts,omitempty"`
	ValidationNotes      []string         `json:"validation_notes,omitempty"`
	GeneratedAt          time.Time        `json:"generated_at"`
}
