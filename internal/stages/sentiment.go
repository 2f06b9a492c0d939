package stages

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/capabilities"
	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
)

// maxBodyBytes bounds the article body handed to the classifier.
const maxBodyBytes = 600

// SentimentStage scores a symbol from recent news coverage. The sub-score is
// the age-weighted mean of per-article sentiment classifications, mapped from
// [-1,1] to [0,1]. Article weight halves every ArticleHalfLife.
type SentimentStage struct {
	news capabilities.NewsSource
	llm  capabilities.LanguageModel
	cfg  config.Engine
	log  zerolog.Logger

	now func() time.Time
}

// NewSentimentStage creates a sentiment stage runner.
func NewSentimentStage(news capabilities.NewsSource, llm capabilities.LanguageModel, cfg config.Engine, log zerolog.Logger) *SentimentStage {
	return &SentimentStage{
		news: news,
		llm:  llm,
		cfg:  cfg,
		log:  log.With().Str("stage", "sentiment").Logger(),
		now:  time.Now,
	}
}

// Kind implements Runner.
func (s *SentimentStage) Kind() domain.StageKind {
	return domain.StageSentiment
}

// Run implements Runner.
func (s *SentimentStage) Run(ctx context.Context, symbol string) (domain.StageResult, error) {
	articles, err := s.news.Fetch(ctx, symbol, s.cfg.NewsLookback, s.cfg.NewsMaxArticles)
	if err != nil {
		return domain.StageResult{}, fmt.Errorf("fetch news for %s: %w", symbol, err)
	}
	if len(articles) == 0 {
		return domain.MissingResult(domain.StageSentiment, "no_articles"), nil
	}

	type scored struct {
		article   capabilities.NewsArticle
		sentiment float64
		weight    float64
	}

	now := s.now()
	classified := make([]scored, 0, len(articles))
	var lastErr error
	for _, article := range articles {
		text := article.Headline
		if article.Body != "" {
			text = article.Headline + "\n" + truncateBody(article.Body, maxBodyBytes)
		}

		score, err := s.llm.ClassifySentiment(ctx, text)
		if err != nil {
			lastErr = err
			continue
		}

		age := now.Sub(article.PublishedAt)
		if age < 0 {
			age = 0
		}
		weight := math.Pow(0.5, age.Hours()/s.cfg.ArticleHalfLife.Hours())
		classified = append(classified, scored{article: article, sentiment: score, weight: weight})
	}

	if len(classified) == 0 {
		if lastErr != nil {
			return domain.StageResult{}, fmt.Errorf("classify sentiment for %s: %w", symbol, lastErr)
		}
		return domain.MissingResult(domain.StageSentiment, "no_articles"), nil
	}

	var weightedSum, weightTotal float64
	for _, c := range classified {
		weightedSum += c.sentiment * c.weight
		weightTotal += c.weight
	}
	mean := weightedSum / weightTotal // [-1,1]
	score := clamp01((mean + 1) / 2)

	status := domain.StatusComplete
	reason := ""
	if len(classified) < s.cfg.NewsMinArticles {
		status = domain.StatusDegraded
		reason = fmt.Sprintf("only %d of %d required articles", len(classified), s.cfg.NewsMinArticles)
	}

	// Strongest article in each direction drives the factor/risk lists.
	sort.Slice(classified, func(i, j int) bool {
		return classified[i].sentiment*classified[i].weight > classified[j].sentiment*classified[j].weight
	})

	factors := []string{
		fmt.Sprintf("News sentiment %+.2f across %d articles", mean, len(classified)),
	}
	risks := make([]string, 0, 2)
	for _, c := range classified {
		if c.sentiment >= 0.3 && len(factors) < 3 {
			factors = append(factors, fmt.Sprintf("Positive coverage: %s (%s)", c.article.Headline, c.article.Source))
		}
		if c.sentiment <= -0.3 && len(risks) < 2 {
			risks = append(risks, fmt.Sprintf("Negative coverage: %s (%s)", c.article.Headline, c.article.Source))
		}
	}

	s.log.Debug().
		Str("symbol", symbol).
		Int("articles", len(classified)).
		Float64("score", score).
		Msg("Sentiment stage settled")

	return domain.StageResult{
		Kind:      domain.StageSentiment,
		Status:    status,
		Reason:    reason,
		Score:     score,
		Direction: mean,
		Factors:   factors,
		Risks:     risks,
	}, nil
}

// truncateBody cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateBody(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
