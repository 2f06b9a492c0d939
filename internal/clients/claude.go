package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/capabilities"
)

const (
	defaultClaudeModel = "claude-sonnet-4-20250514"

	sentimentSystemPrompt = `You are a financial sentiment classifier. Given a news item about a ` +
		`publicly traded company, respond with a single number between -1.0 (strongly bearish) ` +
		`and 1.0 (strongly bullish). Respond with the number only, no other text.`

	filingSystemPrompt = `You are a financial analyst reviewing a regulatory filing. Respond with a ` +
		`JSON object and nothing else, with these fields: "health_score" (number 0-10, overall ` +
		`financial health), "revenue_growth" (number, year-over-year fractional growth, e.g. 0.12 ` +
		`for 12%), "debt_pressure" (number 0-1, higher means more leveraged), "strengths" (array ` +
		`of short strings), "risk_factors" (array of short strings).`
)

// ClaudeClient implements the language model capability on the Anthropic API.
type ClaudeClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	log       zerolog.Logger
}

// NewClaudeClient creates a Claude-backed language model client.
func NewClaudeClient(apiKey string, log zerolog.Logger) (*ClaudeClient, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	return &ClaudeClient{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(defaultClaudeModel),
		maxTokens: 1024,
		log:       log.With().Str("component", "claude").Logger(),
	}, nil
}

// ClassifySentiment scores a news text in [-1, 1], bearish to bullish.
func (c *ClaudeClient) ClassifySentiment(ctx context.Context, text string) (float64, error) {
	response, err := c.complete(ctx, sentimentSystemPrompt, text)
	if err != nil {
		return 0, err
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(response), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable sentiment response %q: %w", response, err)
	}
	if score < -1 {
		score = -1
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

// SummarizeFiling extracts structured financial-health signals from filing
// text.
func (c *ClaudeClient) SummarizeFiling(ctx context.Context, text string) (*capabilities.FilingSignals, error) {
	response, err := c.complete(ctx, filingSystemPrompt, text)
	if err != nil {
		return nil, err
	}

	payload := extractJSON(response)
	var signals capabilities.FilingSignals
	if err := json.Unmarshal([]byte(payload), &signals); err != nil {
		return nil, fmt.Errorf("unparseable filing summary: %w", err)
	}
	if signals.HealthScore < 0 {
		signals.HealthScore = 0
	}
	if signals.HealthScore > 10 {
		signals.HealthScore = 10
	}
	return &signals, nil
}

func (c *ClaudeClient) complete(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", classifyAnthropicError(err)
	}
	if len(message.Content) == 0 {
		return "", fmt.Errorf("%w: empty model response", capabilities.ErrUnavailable)
	}

	c.log.Debug().
		Int64("input_tokens", message.Usage.InputTokens).
		Int64("output_tokens", message.Usage.OutputTokens).
		Dur("duration", time.Since(start)).
		Msg("Model call completed")
	return message.Content[0].Text, nil
}

// classifyAnthropicError maps API failures onto the capability error taxonomy.
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return capabilities.NewRateLimitError(0)
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return fmt.Errorf("%w: %v", capabilities.ErrAuth, err)
		case apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %v", capabilities.ErrUnavailable, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", capabilities.ErrUnavailable, err)
}

// extractJSON trims any prose surrounding the first JSON object in a model
// response.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		return response[start : end+1]
	}
	return response
}
