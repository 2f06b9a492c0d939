package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalysisRequestValidateDefaults(t *testing.T) {
	req := AnalysisRequest{
		Symbols:       []string{"AAPL"},
		PortfolioSize: 100000,
	}

	require.NoError(t, req.Validate())
	assert.Equal(t, RiskToleranceMedium, req.RiskTolerance)
	assert.Equal(t, HorizonMedium, req.TimeHorizon)
	assert.Equal(t, DepthStandard, req.Depth)
}

func TestAnalysisRequestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		req  AnalysisRequest
	}{
		{
			name: "no symbols",
			req:  AnalysisRequest{PortfolioSize: 1000},
		},
		{
			name: "blank symbol",
			req:  AnalysisRequest{Symbols: []string{"AAPL", "  "}, PortfolioSize: 1000},
		},
		{
			name: "zero portfolio size",
			req:  AnalysisRequest{Symbols: []string{"AAPL"}},
		},
		{
			name: "negative portfolio size",
			req:  AnalysisRequest{Symbols: []string{"AAPL"}, PortfolioSize: -5},
		},
		{
			name: "unknown risk tolerance",
			req:  AnalysisRequest{Symbols: []string{"AAPL"}, PortfolioSize: 1000, RiskTolerance: "yolo"},
		},
		{
			name: "unknown depth",
			req:  AnalysisRequest{Symbols: []string{"AAPL"}, PortfolioSize: 1000, Depth: "exhaustive"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.req.Validate())
		})
	}
}

func TestAnalysisRequestStages(t *testing.T) {
	quick := AnalysisRequest{Depth: DepthQuick}
	assert.Equal(t, []StageKind{StageSentiment}, quick.Stages())

	standard := AnalysisRequest{Depth: DepthStandard}
	assert.Equal(t, []StageKind{StageSentiment, StageTechnical}, standard.Stages())

	comprehensive := AnalysisRequest{Depth: DepthComprehensive}
	assert.Equal(t, []StageKind{StageSentiment, StageTechnical, StageFundamental}, comprehensive.Stages())
}

func TestSymbolBundle(t *testing.T) {
	bundle := NewSymbolBundle("AAPL")
	bundle.Add(StageResult{Kind: StageSentiment, Status: StatusComplete, Score: 0.7})
	bundle.Add(MissingResult(StageTechnical, "timeout"))

	assert.Equal(t, 1, bundle.UsableCount())

	sentiment, ok := bundle.Get(StageSentiment)
	require.True(t, ok)
	assert.True(t, sentiment.Usable())

	technical, ok := bundle.Get(StageTechnical)
	require.True(t, ok)
	assert.False(t, technical.Usable())
	assert.Equal(t, "timeout", technical.Reason)

	_, ok = bundle.Get(StageFundamental)
	assert.False(t, ok)

	statuses := bundle.StatusByKind()
	assert.Equal(t, StatusComplete, statuses[StageSentiment])
	assert.Equal(t, StatusMissing, statuses[StageTechnical])
}
