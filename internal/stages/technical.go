package stages

import (
	"context"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/capabilities"
	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
)

const (
	smaShortPeriod = 20
	smaLongPeriod  = 50
	rsiPeriod      = 14
	bbandPeriod    = 20
	minBars        = smaShortPeriod + 1
)

// TechnicalStage scores a symbol from its price history. The sub-score is a
// normalized composite of a fixed indicator set: moving-average trend, RSI
// momentum, MACD crossover and Bollinger band position. No single learned
// score, so every contribution is inspectable.
type TechnicalStage struct {
	market capabilities.MarketDataProvider
	cfg    config.Engine
	log    zerolog.Logger
}

// NewTechnicalStage creates a technical stage runner.
func NewTechnicalStage(market capabilities.MarketDataProvider, cfg config.Engine, log zerolog.Logger) *TechnicalStage {
	return &TechnicalStage{
		market: market,
		cfg:    cfg,
		log:    log.With().Str("stage", "technical").Logger(),
	}
}

// Kind implements Runner.
func (s *TechnicalStage) Kind() domain.StageKind {
	return domain.StageTechnical
}

// Run implements Runner.
func (s *TechnicalStage) Run(ctx context.Context, symbol string) (domain.StageResult, error) {
	history, err := s.market.History(ctx, symbol, s.cfg.HistoryWindow)
	if err != nil {
		return domain.StageResult{}, fmt.Errorf("fetch history for %s: %w", symbol, err)
	}
	if len(history) == 0 {
		return domain.MissingResult(domain.StageTechnical, "no_history"), nil
	}
	if len(history) < minBars {
		return domain.MissingResult(domain.StageTechnical,
			fmt.Sprintf("insufficient history: %d bars", len(history))), nil
	}

	closes := make([]float64, len(history))
	for i, bar := range history {
		closes[i] = bar.Close
	}
	price := closes[len(closes)-1]

	score := 0.5
	var factors, risks []string

	// Moving-average trend. The long SMA needs more bars; when they are not
	// available the stage still settles, degraded, on the short SMA alone.
	degraded := len(closes) < smaLongPeriod+1
	smaShort := last(talib.Sma(closes, smaShortPeriod))
	if degraded {
		if price > smaShort {
			score += 0.10
			factors = append(factors, fmt.Sprintf("Price above %d-day average", smaShortPeriod))
		} else if price < smaShort {
			score -= 0.10
			risks = append(risks, fmt.Sprintf("Price below %d-day average", smaShortPeriod))
		}
	} else {
		smaLong := last(talib.Sma(closes, smaLongPeriod))
		switch {
		case price > smaShort && smaShort > smaLong:
			score += 0.15
			factors = append(factors, "Strong uptrend: price above both moving averages")
		case price > smaShort:
			score += 0.10
			factors = append(factors, fmt.Sprintf("Price above %d-day average", smaShortPeriod))
		case price < smaShort && smaShort < smaLong:
			score -= 0.15
			risks = append(risks, "Strong downtrend: price below both moving averages")
		case price < smaShort:
			score -= 0.10
			risks = append(risks, fmt.Sprintf("Price below %d-day average", smaShortPeriod))
		}
	}

	// RSI momentum.
	rsi := last(talib.Rsi(closes, rsiPeriod))
	switch {
	case rsi < 30:
		score += 0.10
		factors = append(factors, fmt.Sprintf("RSI %.1f: oversold", rsi))
	case rsi > 70:
		score -= 0.10
		risks = append(risks, fmt.Sprintf("RSI %.1f: overbought", rsi))
	case rsi >= 40 && rsi <= 60:
		score += 0.05
	}

	// MACD crossover, only when enough bars for the slow EMA.
	if len(closes) >= 35 {
		macd, signal, _ := talib.Macd(closes, 12, 26, 9)
		if last(macd) > last(signal) {
			score += 0.05
			factors = append(factors, "MACD above signal line")
		} else {
			score -= 0.05
			risks = append(risks, "MACD below signal line")
		}
	}

	// Bollinger band position: near the lower band adds, near the upper
	// band subtracts.
	upper, _, lower := talib.BBands(closes, bbandPeriod, 2.0, 2.0, talib.SMA)
	up, low := last(upper), last(lower)
	if up > low {
		position := (price - low) / (up - low)
		switch {
		case position <= 0.1:
			score += 0.05
			factors = append(factors, "Price at lower volatility band")
		case position >= 0.9:
			score -= 0.05
			risks = append(risks, "Price at upper volatility band")
		}
	}

	score = clamp01(score)

	status := domain.StatusComplete
	reason := ""
	if degraded {
		status = domain.StatusDegraded
		reason = fmt.Sprintf("short history: %d bars", len(closes))
	}

	s.log.Debug().
		Str("symbol", symbol).
		Float64("score", score).
		Float64("rsi", rsi).
		Msg("Technical stage settled")

	return domain.StageResult{
		Kind:      domain.StageTechnical,
		Status:    status,
		Reason:    reason,
		Score:     score,
		Direction: (score - 0.5) * 2,
		Factors:   factors,
		Risks:     risks,
	}, nil
}

// Alerts derives standalone technical alerts from a settled technical result's
// underlying indicators. It re-reads the last RSI and band position so alert
// thresholds stay independent from scoring thresholds.
func (s *TechnicalStage) Alerts(ctx context.Context, symbol string) []domain.Alert {
	history, err := s.market.History(ctx, symbol, s.cfg.HistoryWindow)
	if err != nil || len(history) < minBars {
		return nil
	}
	closes := make([]float64, len(history))
	for i, bar := range history {
		closes[i] = bar.Close
	}
	price := closes[len(closes)-1]

	var alerts []domain.Alert
	rsi := last(talib.Rsi(closes, rsiPeriod))
	if rsi < 25 {
		alerts = append(alerts, domain.Alert{
			Symbol:    symbol,
			AlertType: "technical_oversold",
			Message:   fmt.Sprintf("%s RSI at %.1f: potentially oversold", symbol, rsi),
			Urgency:   "medium",
			Trigger:   map[string]float64{"rsi": rsi, "threshold": 25},
		})
	} else if rsi > 75 {
		alerts = append(alerts, domain.Alert{
			Symbol:    symbol,
			AlertType: "technical_overbought",
			Message:   fmt.Sprintf("%s RSI at %.1f: potentially overbought", symbol, rsi),
			Urgency:   "medium",
			Trigger:   map[string]float64{"rsi": rsi, "threshold": 75},
		})
	}

	upper, _, lower := talib.BBands(closes, bbandPeriod, 2.0, 2.0, talib.SMA)
	up, low := last(upper), last(lower)
	if up > low {
		if price <= low*1.02 {
			alerts = append(alerts, domain.Alert{
				Symbol:    symbol,
				AlertType: "price_support",
				Message:   fmt.Sprintf("%s near lower band at %.2f", symbol, low),
				Urgency:   "high",
				Trigger:   map[string]float64{"price": price, "band": low},
			})
		} else if price >= up*0.98 {
			alerts = append(alerts, domain.Alert{
				Symbol:    symbol,
				AlertType: "price_resistance",
				Message:   fmt.Sprintf("%s near upper band at %.2f", symbol, up),
				Urgency:   "high",
				Trigger:   map[string]float64{"price": price, "band": up},
			})
		}
	}

	return alerts
}

func last(values []float64) float64 {
	for i := len(values) - 1; i >= 0; i-- {
		if !math.IsNaN(values[i]) {
			return values[i]
		}
	}
	return 0
}
