package stages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/advisor/internal/capabilities"
	"github.com/aristath/advisor/internal/config"
)

// Shared fakes for the stage tests.

type fakeNews struct {
	articles []capabilities.NewsArticle
	err      error
}

func (f *fakeNews) Fetch(context.Context, string, time.Duration, int) ([]capabilities.NewsArticle, error) {
	return f.articles, f.err
}

type fakeLLM struct {
	sentiment func(text string) (float64, error)
	signals   *capabilities.FilingSignals
	err       error
}

func (f *fakeLLM) ClassifySentiment(_ context.Context, text string) (float64, error) {
	if f.sentiment != nil {
		return f.sentiment(text)
	}
	return 0, f.err
}

func (f *fakeLLM) SummarizeFiling(context.Context, string) (*capabilities.FilingSignals, error) {
	return f.signals, f.err
}

type fakeFilings struct {
	filing *capabilities.Filing
	err    error
}

func (f *fakeFilings) Latest(context.Context, string, []string) (*capabilities.Filing, error) {
	return f.filing, f.err
}

type fakeMarketData struct {
	bars []capabilities.PricePoint
	err  error
}

func (f *fakeMarketData) Quote(context.Context, string) (float64, error) {
	return 0, errors.New("not used")
}

func (f *fakeMarketData) History(context.Context, string, time.Duration) ([]capabilities.PricePoint, error) {
	return f.bars, f.err
}

func testConfig() config.Engine {
	return config.DefaultEngine()
}

func articlesAt(published time.Time, count int) []capabilities.NewsArticle {
	articles := make([]capabilities.NewsArticle, count)
	for i := range articles {
		articles[i] = capabilities.NewsArticle{
			Headline:    fmt.Sprintf("Headline %d", i),
			Source:      "wire",
			PublishedAt: published,
		}
	}
	return articles
}

func barsFromCloses(closes []float64, end time.Time) []capabilities.PricePoint {
	bars := make([]capabilities.PricePoint, len(closes))
	for i, c := range closes {
		bars[i] = capabilities.PricePoint{
			Date:  end.AddDate(0, 0, i-len(closes)),
			Open:  c,
			High:  c * 1.01,
			Low:   c * 0.99,
			Close: c,
		}
	}
	return bars
}
