// Package capabilities defines the narrow contracts the engine calls into for
// remote data. Concrete clients live under internal/clients; the coordinator
// and stage runners only ever see these interfaces.
package capabilities

import (
	"context"
	"time"
)

// NewsArticle is one retrieved news item.
type NewsArticle struct {
	Headline    string    `json:"headline"`
	Body        string    `json:"body"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// NewsSource fetches recent articles mentioning a symbol.
type NewsSource interface {
	Fetch(ctx context.Context, symbol string, lookback time.Duration, maxItems int) ([]NewsArticle, error)
}

// PricePoint is one bar of an ordered price series.
type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// MarketDataProvider serves current and historical prices.
type MarketDataProvider interface {
	Quote(ctx context.Context, symbol string) (float64, error)
	History(ctx context.Context, symbol string, window time.Duration) ([]PricePoint, error)
}

// Filing is a regulatory filing retrieved for fundamental review.
type Filing struct {
	Kind    string    `json:"kind"` // 10-K, 10-Q
	Text    string    `json:"text"`
	FiledAt time.Time `json:"filed_at"`
}

// FilingProvider fetches the latest filing of the requested kinds.
type FilingProvider interface {
	Latest(ctx context.Context, symbol string, kinds []string) (*Filing, error)
}

// FilingSignals is the structured signal set extracted from a filing.
type FilingSignals struct {
	HealthScore   float64  `json:"health_score"` // 0..10
	RevenueGrowth float64  `json:"revenue_growth"`
	DebtPressure  float64  `json:"debt_pressure"` // 0..1, higher is worse
	Strengths     []string `json:"strengths"`
	RiskFactors   []string `json:"risk_factors"`
}

// LanguageModel provides the classification and summarization calls the
// sentiment and fundamental stages depend on.
type LanguageModel interface {
	// ClassifySentiment scores a text in [-1, 1], bearish to bullish.
	ClassifySentiment(ctx context.Context, text string) (float64, error)
	// SummarizeFiling extracts financial-health signals from filing text.
	SummarizeFiling(ctx context.Context, text string) (*FilingSignals, error)
}
