// Package domain holds the core types of the analysis engine.
// The domain layer is pure: no infrastructure dependencies.
package domain

import (
	"fmt"
	"strings"
)

// RiskTolerance controls how much of the portfolio the optimizer may deploy.
type RiskTolerance string

const (
	RiskToleranceLow        RiskTolerance = "low"
	RiskToleranceMedium     RiskTolerance = "medium"
	RiskToleranceAggressive RiskTolerance = "aggressive"
)

// TimeHorizon is the investment horizon requested by the caller.
type TimeHorizon string

const (
	HorizonShort  TimeHorizon = "short"
	HorizonMedium TimeHorizon = "medium"
	HorizonLong   TimeHorizon = "long"
)

// Depth selects which analysis stages run for each symbol.
//
//	quick         = sentiment only
//	standard      = sentiment + technical
//	comprehensive = sentiment + technical + fundamental
type Depth string

const (
	DepthQuick         Depth = "quick"
	DepthStandard      Depth = "standard"
	DepthComprehensive Depth = "comprehensive"
)

// AnalysisRequest describes one analysis run. Immutable once submitted.
type AnalysisRequest struct {
	Symbols       []string      `json:"symbols"`
	PortfolioSize float64       `json:"portfolio_size"`
	RiskTolerance RiskTolerance `json:"risk_tolerance"`
	TimeHorizon   TimeHorizon   `json:"time_horizon"`
	Depth         Depth         `json:"depth"`
}

// Validate checks the request before any stage runs. A validation error is
// the only hard failure the engine surfaces to callers.
func (r *AnalysisRequest) Validate() error {
	if len(r.Symbols) == 0 {
		return fmt.Errorf("request must contain at least one symbol")
	}
	for _, s := range r.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("request contains an empty symbol")
		}
	}
	if r.PortfolioSize <= 0 {
		return fmt.Errorf("portfolio size must be positive, got %v", r.PortfolioSize)
	}
	switch r.RiskTolerance {
	case RiskToleranceLow, RiskToleranceMedium, RiskToleranceAggressive:
	case "":
		r.RiskTolerance = RiskToleranceMedium
	default:
		return fmt.Errorf("unknown risk tolerance %q", r.RiskTolerance)
	}
	switch r.TimeHorizon {
	case HorizonShort, HorizonMedium, HorizonLong:
	case "":
		r.TimeHorizon = HorizonMedium
	default:
		return fmt.Errorf("unknown time horizon %q", r.TimeHorizon)
	}
	switch r.Depth {
	case DepthQuick, DepthStandard, DepthComprehensive:
	case "":
		r.Depth = DepthStandard
	default:
		return fmt.Errorf("unknown analysis depth %q", r.Depth)
	}
	return nil
}

// Stages returns the stage kinds that run at the request's depth.
func (r *AnalysisRequest) Stages() []StageKind {
	switch r.Depth {
	case DepthQuick:
		return []StageKind{StageSentiment}
	case DepthStandard:
		return []StageKind{StageSentiment, StageTechnical}
	default:
		return []StageKind{StageSentiment, StageTechnical, StageFundamental}
	}
}
