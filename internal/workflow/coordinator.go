// Package workflow coordinates the fan-out of analysis stages across symbols,
// enforcing the global concurrency cap, per-attempt timeouts and the retry
// policy, and absorbing stage failures into degraded-but-complete results.
package workflow

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/capabilities"
	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/events"
	"github.com/aristath/advisor/internal/portfolio"
	"github.com/aristath/advisor/internal/recommend"
	"github.com/aristath/advisor/internal/stages"
)

// SymbolState tracks a symbol's progress through the pipeline. States only
// move forward; a stage failure degrades the bundle, it never moves the
// symbol backwards.
type SymbolState string

// defaultScreeningSize is the notional portfolio used by the screening path,
// where only the relative allocations matter.
const defaultScreeningSize = 100_000

const (
	StatePending     SymbolState = "pending"
	StateRunning     SymbolState = "running"
	StateSettling    SymbolState = "settling"
	StateBundled     SymbolState = "bundled"
	StateRecommended SymbolState = "recommended"
)

// StageCache stores settled stage results so repeat analyses within the TTL
// skip the upstream call. Implementations must be safe for concurrent use.
type StageCache interface {
	Get(symbol string, kind domain.StageKind) (domain.StageResult, bool)
	Put(symbol string, kind domain.StageKind, result domain.StageResult)
}

// Coordinator owns one analysis run end to end: stage fan-out, quote lookup,
// per-symbol recommendation and portfolio assembly.
type Coordinator struct {
	runners    map[domain.StageKind]stages.Runner
	technical  *stages.TechnicalStage
	market     capabilities.MarketDataProvider
	engine     *recommend.Engine
	optimizer  *portfolio.Optimizer
	aggregator *portfolio.Aggregator
	cache      StageCache // nil disables caching
	bus        *events.Bus
	pool       *Pool
	cfg        config.Engine
	log        zerolog.Logger
}

// NewCoordinator wires the coordinator. The technical stage is passed
// separately because the technical-alert path uses it directly, outside a
// full analysis run. cache and bus may be nil.
func NewCoordinator(
	runners []stages.Runner,
	technical *stages.TechnicalStage,
	market capabilities.MarketDataProvider,
	engine *recommend.Engine,
	optimizer *portfolio.Optimizer,
	aggregator *portfolio.Aggregator,
	cache StageCache,
	bus *events.Bus,
	cfg config.Engine,
	log zerolog.Logger,
) *Coordinator {
	byKind := make(map[domain.StageKind]stages.Runner, len(runners))
	for _, r := range runners {
		byKind[r.Kind()] = r
	}
	return &Coordinator{
		runners:    byKind,
		technical:  technical,
		market:     market,
		engine:     engine,
		optimizer:  optimizer,
		aggregator: aggregator,
		cache:      cache,
		bus:        bus,
		pool:       NewPool(cfg.MaxConcurrentStages),
		cfg:        cfg,
		log:        log.With().Str("component", "coordinator").Logger(),
	}
}

// InFlight reports the number of stage attempts currently holding a
// concurrency slot.
func (c *Coordinator) InFlight() int {
	return c.pool.InFlight()
}

type symbolOutcome struct {
	recommendation domain.Recommendation
	alerts         []domain.Alert
}

// Analyze runs the full pipeline for the request and returns the assembled
// portfolio recommendation. Stage failures degrade individual results; the
// only errors returned are request validation failures. Output order matches
// the request's symbol order regardless of completion order.
func (c *Coordinator) Analyze(ctx context.Context, request domain.AnalysisRequest) (domain.PortfolioRecommendation, error) {
	if err := request.Validate(); err != nil {
		return domain.PortfolioRecommendation{}, err
	}

	if c.cfg.RequestDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestDeadline)
		defer cancel()
	}

	kinds := request.Stages()
	c.emit(events.AnalysisStarted, map[string]interface{}{
		"symbols": request.Symbols,
		"depth":   string(request.Depth),
		"stages":  len(kinds),
	})
	c.log.Info().
		Strs("symbols", request.Symbols).
		Str("depth", string(request.Depth)).
		Msg("Analysis started")

	outcomes := make([]symbolOutcome, len(request.Symbols))
	var wg sync.WaitGroup
	for i, symbol := range request.Symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			outcomes[i] = c.analyzeSymbol(ctx, symbol, kinds)
		}(i, symbol)
	}
	wg.Wait()

	recommendations := make([]domain.Recommendation, len(outcomes))
	var alerts []domain.Alert
	for i, outcome := range outcomes {
		recommendations[i] = outcome.recommendation
		alerts = append(alerts, outcome.alerts...)
	}

	recommendations, summary := c.optimizer.Allocate(recommendations, request.RiskTolerance)
	result := c.aggregator.Assemble(request, recommendations, summary, alerts)

	c.emit(events.AnalysisCompleted, map[string]interface{}{
		"run_id":           result.RunID,
		"symbols":          len(result.Recommendations),
		"total_confidence": result.TotalConfidence,
		"overall_risk":     string(result.OverallRiskLevel),
	})
	c.log.Info().
		Str("run_id", result.RunID).
		Int("symbols", len(result.Recommendations)).
		Float64("confidence", result.TotalConfidence).
		Msg("Analysis completed")

	return result, nil
}

// QuickAlert runs a sentiment-only analysis for the symbols and returns the
// per-symbol recommendations. A cheap first pass for screening a list before
// committing to a full run.
func (c *Coordinator) QuickAlert(ctx context.Context, symbols []string) ([]domain.Recommendation, error) {
	request := domain.AnalysisRequest{
		Symbols:       symbols,
		PortfolioSize: defaultScreeningSize,
		Depth:         domain.DepthQuick,
	}
	result, err := c.Analyze(ctx, request)
	if err != nil {
		return nil, err
	}
	return result.Recommendations, nil
}

// TechnicalAlerts checks the technical alert conditions for each symbol
// without running a full analysis.
func (c *Coordinator) TechnicalAlerts(ctx context.Context, symbols []string) []domain.Alert {
	var all []domain.Alert
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		alerts := c.symbolAlerts(ctx, symbol)
		for _, alert := range alerts {
			c.emit(events.AlertRaised, map[string]interface{}{
				"symbol":  alert.Symbol,
				"type":    alert.AlertType,
				"urgency": alert.Urgency,
				"message": alert.Message,
			})
		}
		all = append(all, alerts...)
	}
	return all
}

func (c *Coordinator) analyzeSymbol(ctx context.Context, symbol string, kinds []domain.StageKind) symbolOutcome {
	c.setState(symbol, StateRunning)

	results := make([]domain.StageResult, len(kinds))
	var wg sync.WaitGroup
	for i, kind := range kinds {
		runner, ok := c.runners[kind]
		if !ok {
			results[i] = domain.MissingResult(kind, "unconfigured")
			continue
		}
		wg.Add(1)
		go func(i int, runner stages.Runner) {
			defer wg.Done()
			results[i] = c.runStage(ctx, runner, symbol)
		}(i, runner)
	}
	wg.Wait()
	c.setState(symbol, StateSettling)

	bundle := domain.NewSymbolBundle(symbol)
	for _, result := range results {
		bundle.Add(result)
	}
	c.setState(symbol, StateBundled)

	price := c.quote(ctx, symbol)
	recommendation := c.engine.Recommend(bundle, price)
	c.setState(symbol, StateRecommended)

	outcome := symbolOutcome{recommendation: recommendation}
	if technical, ok := bundle.Get(domain.StageTechnical); ok && technical.Usable() {
		outcome.alerts = c.symbolAlerts(ctx, symbol)
		for _, alert := range outcome.alerts {
			c.emit(events.AlertRaised, map[string]interface{}{
				"symbol":  alert.Symbol,
				"type":    alert.AlertType,
				"urgency": alert.Urgency,
				"message": alert.Message,
			})
		}
	}
	return outcome
}

// runStage drives one stage to a settled result. Every attempt acquires a
// concurrency slot, runs under the per-attempt timeout, and releases the slot
// before any backoff sleep so retries never starve other symbols. Exhausted
// or non-retryable failures settle as a Missing result; runStage never
// returns an error.
func (c *Coordinator) runStage(ctx context.Context, runner stages.Runner, symbol string) domain.StageResult {
	kind := runner.Kind()

	if c.cache != nil {
		if cached, ok := c.cache.Get(symbol, kind); ok {
			c.log.Debug().Str("symbol", symbol).Str("stage", string(kind)).Msg("Stage served from cache")
			return cached
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepRetry(ctx, attempt-1, c.cfg.RetryBackoffBase, lastErr); err != nil {
				lastErr = err
				break
			}
		}

		if err := c.pool.Acquire(ctx); err != nil {
			lastErr = err
			break
		}
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.PerStageTimeout)
		result, err := runner.Run(attemptCtx, symbol)
		cancel()
		c.pool.Release()

		if err == nil {
			if c.cache != nil && result.Usable() {
				c.cache.Put(symbol, kind, result)
			}
			c.settled(symbol, result)
			return result
		}

		lastErr = err
		if !capabilities.Retryable(err) {
			break
		}
		c.log.Warn().
			Err(err).
			Str("symbol", symbol).
			Str("stage", string(kind)).
			Int("attempt", attempt+1).
			Msg("Stage attempt failed, retrying")
	}

	reason := capabilities.Reason(lastErr)
	c.log.Warn().
		Err(lastErr).
		Str("symbol", symbol).
		Str("stage", string(kind)).
		Str("reason", reason).
		Msg("Stage settled without data")
	if c.bus != nil {
		c.bus.EmitError("workflow", lastErr, map[string]interface{}{
			"symbol": symbol,
			"stage":  string(kind),
		})
	}
	result := domain.MissingResult(kind, reason)
	c.settled(symbol, result)
	return result
}

// symbolAlerts runs the technical alert scan under a concurrency slot: the
// scan re-reads price history, which can reach the remote provider on a cache
// miss.
func (c *Coordinator) symbolAlerts(ctx context.Context, symbol string) []domain.Alert {
	if err := c.pool.Acquire(ctx); err != nil {
		return nil
	}
	defer c.pool.Release()
	return c.technical.Alerts(ctx, symbol)
}

// quote fetches the current price under a concurrency slot and the stage
// timeout, so quote lookups count against the same in-flight cap as stage
// calls. A failed lookup logs and yields zero; the recommendation engine
// treats a zero price as no-target.
func (c *Coordinator) quote(ctx context.Context, symbol string) float64 {
	if err := c.pool.Acquire(ctx); err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote lookup failed")
		return 0
	}
	defer c.pool.Release()

	quoteCtx, cancel := context.WithTimeout(ctx, c.cfg.PerStageTimeout)
	defer cancel()

	price, err := c.market.Quote(quoteCtx, symbol)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote lookup failed")
		return 0
	}
	return price
}

func (c *Coordinator) setState(symbol string, state SymbolState) {
	c.emit(events.SymbolStateChanged, map[string]interface{}{
		"symbol": symbol,
		"state":  string(state),
	})
}

func (c *Coordinator) settled(symbol string, result domain.StageResult) {
	data := map[string]interface{}{
		"symbol": symbol,
		"stage":  string(result.Kind),
		"status": string(result.Status),
	}
	if result.Reason != "" {
		data["reason"] = result.Reason
	}
	c.emit(events.StageSettled, data)
}

func (c *Coordinator) emit(eventType events.EventType, data map[string]interface{}) {
	if c.bus == nil {
		return
	}
	c.bus.Emit(eventType, "workflow", data)
}
