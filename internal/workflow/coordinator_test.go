package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/advisor/internal/capabilities"
	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/events"
	"github.com/aristath/advisor/internal/portfolio"
	"github.com/aristath/advisor/internal/recommend"
	"github.com/aristath/advisor/internal/stages"
)

// fakeRunner scripts one stage's behavior per attempt.
type fakeRunner struct {
	kind domain.StageKind
	fn   func(ctx context.Context, symbol string, call int) (domain.StageResult, error)

	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
}

func (r *fakeRunner) Kind() domain.StageKind { return r.kind }

func (r *fakeRunner) Run(ctx context.Context, symbol string) (domain.StageResult, error) {
	r.mu.Lock()
	r.calls++
	call := r.calls
	r.inFlight++
	if r.inFlight > r.maxInFlight {
		r.maxInFlight = r.inFlight
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
	}()
	return r.fn(ctx, symbol, call)
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func completeResult(kind domain.StageKind, score float64) domain.StageResult {
	return domain.StageResult{
		Kind:      kind,
		Status:    domain.StatusComplete,
		Score:     score,
		Direction: (score - 0.5) * 2,
	}
}

func settledRunner(kind domain.StageKind, score float64) *fakeRunner {
	return &fakeRunner{
		kind: kind,
		fn: func(context.Context, string, int) (domain.StageResult, error) {
			return completeResult(kind, score), nil
		},
	}
}

// fakeMarket serves a fixed quote and no usable history.
type fakeMarket struct {
	price float64
}

func (m *fakeMarket) Quote(context.Context, string) (float64, error) {
	return m.price, nil
}

func (m *fakeMarket) History(context.Context, string, time.Duration) ([]capabilities.PricePoint, error) {
	return nil, nil
}

// gatedMarket tracks how many Quote calls run at once.
type gatedMarket struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
}

func (m *gatedMarket) Quote(context.Context, string) (float64, error) {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
	return 100, nil
}

func (m *gatedMarket) History(context.Context, string, time.Duration) ([]capabilities.PricePoint, error) {
	return nil, nil
}

// memoryCache is a map-backed StageCache for tests.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]domain.StageResult
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]domain.StageResult)}
}

func (c *memoryCache) Get(symbol string, kind domain.StageKind) (domain.StageResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.entries[symbol+"/"+string(kind)]
	return result, ok
}

func (c *memoryCache) Put(symbol string, kind domain.StageKind, result domain.StageResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol+"/"+string(kind)] = result
}

func testEngineConfig() config.Engine {
	cfg := config.DefaultEngine()
	cfg.PerStageTimeout = 100 * time.Millisecond
	cfg.RetryBackoffBase = time.Millisecond
	return cfg
}

func newTestCoordinator(cfg config.Engine, cache StageCache, runners ...stages.Runner) *Coordinator {
	log := zerolog.Nop()
	market := &fakeMarket{price: 100}
	technical := stages.NewTechnicalStage(market, cfg, log)
	return NewCoordinator(
		runners,
		technical,
		market,
		recommend.NewEngine(cfg),
		portfolio.NewOptimizer(cfg, log),
		portfolio.NewAggregator(),
		cache,
		events.NewBus(log),
		cfg,
		log,
	)
}

func TestAnalyzePreservesSymbolOrder(t *testing.T) {
	cfg := testEngineConfig()
	coordinator := newTestCoordinator(cfg, nil,
		settledRunner(domain.StageSentiment, 0.9),
		settledRunner(domain.StageTechnical, 0.85),
	)

	result, err := coordinator.Analyze(context.Background(), domain.AnalysisRequest{
		Symbols:       []string{"CCC", "AAA", "BBB"},
		PortfolioSize: 100000,
	})
	require.NoError(t, err)

	require.Len(t, result.Recommendations, 3)
	assert.Equal(t, "CCC", result.Recommendations[0].Symbol)
	assert.Equal(t, "AAA", result.Recommendations[1].Symbol)
	assert.Equal(t, "BBB", result.Recommendations[2].Symbol)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 100000.0, result.PortfolioSize)
}

func TestAnalyzeValidationError(t *testing.T) {
	coordinator := newTestCoordinator(testEngineConfig(), nil,
		settledRunner(domain.StageSentiment, 0.5))

	_, err := coordinator.Analyze(context.Background(), domain.AnalysisRequest{})
	assert.Error(t, err)
}

func TestRunStageRetriesTransientFailures(t *testing.T) {
	cfg := testEngineConfig()
	cfg.MaxRetries = 2

	flaky := &fakeRunner{
		kind: domain.StageSentiment,
		fn: func(_ context.Context, _ string, call int) (domain.StageResult, error) {
			if call < 3 {
				return domain.StageResult{}, capabilities.ErrUnavailable
			}
			return completeResult(domain.StageSentiment, 0.8), nil
		},
	}
	coordinator := newTestCoordinator(cfg, nil, flaky)

	result, err := coordinator.Analyze(context.Background(), domain.AnalysisRequest{
		Symbols:       []string{"AAPL"},
		PortfolioSize: 1000,
		Depth:         domain.DepthQuick,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, flaky.callCount())
	assert.Equal(t, domain.StatusComplete, result.Recommendations[0].StageStatus[domain.StageSentiment])
}

func TestRunStagePermanentFailureNotRetried(t *testing.T) {
	cfg := testEngineConfig()
	cfg.MaxRetries = 2

	broken := &fakeRunner{
		kind: domain.StageSentiment,
		fn: func(context.Context, string, int) (domain.StageResult, error) {
			return domain.StageResult{}, capabilities.ErrInvalidSymbol
		},
	}
	coordinator := newTestCoordinator(cfg, nil, broken)

	result, err := coordinator.Analyze(context.Background(), domain.AnalysisRequest{
		Symbols:       []string{"NOPE"},
		PortfolioSize: 1000,
		Depth:         domain.DepthQuick,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, broken.callCount())
	rec := result.Recommendations[0]
	assert.Equal(t, domain.StatusMissing, rec.StageStatus[domain.StageSentiment])
	assert.Equal(t, domain.Hold, rec.Category)
	assert.Zero(t, rec.Confidence)
}

func TestRunStageTimeoutSettlesWithoutRetry(t *testing.T) {
	cfg := testEngineConfig()
	cfg.PerStageTimeout = 20 * time.Millisecond
	cfg.MaxRetries = 2

	slow := &fakeRunner{
		kind: domain.StageSentiment,
		fn: func(ctx context.Context, _ string, _ int) (domain.StageResult, error) {
			<-ctx.Done()
			return domain.StageResult{}, ctx.Err()
		},
	}
	coordinator := newTestCoordinator(cfg, nil, slow)

	start := time.Now()
	result, err := coordinator.Analyze(context.Background(), domain.AnalysisRequest{
		Symbols:       []string{"SLOW"},
		PortfolioSize: 1000,
		Depth:         domain.DepthQuick,
	})
	require.NoError(t, err)

	// Timed-out attempts settle immediately, they never burn the retry
	// budget.
	assert.Equal(t, 1, slow.callCount())
	assert.Less(t, time.Since(start), 10*cfg.PerStageTimeout)
	assert.Equal(t, domain.StatusMissing, result.Recommendations[0].StageStatus[domain.StageSentiment])
}

func TestAnalyzeConcurrencyCap(t *testing.T) {
	cfg := testEngineConfig()
	cfg.MaxConcurrentStages = 2

	gated := &fakeRunner{
		kind: domain.StageSentiment,
		fn: func(context.Context, string, int) (domain.StageResult, error) {
			time.Sleep(20 * time.Millisecond)
			return completeResult(domain.StageSentiment, 0.7), nil
		},
	}
	coordinator := newTestCoordinator(cfg, nil, gated)

	_, err := coordinator.Analyze(context.Background(), domain.AnalysisRequest{
		Symbols:       []string{"A", "B", "C", "D", "E", "F"},
		PortfolioSize: 1000,
		Depth:         domain.DepthQuick,
	})
	require.NoError(t, err)

	gated.mu.Lock()
	defer gated.mu.Unlock()
	assert.LessOrEqual(t, gated.maxInFlight, 2)
	assert.Equal(t, 6, gated.calls)
}

func TestQuoteLookupsShareConcurrencyCap(t *testing.T) {
	cfg := testEngineConfig()
	cfg.MaxConcurrentStages = 2
	log := zerolog.Nop()

	market := &gatedMarket{}
	coordinator := NewCoordinator(
		[]stages.Runner{settledRunner(domain.StageSentiment, 0.7)},
		stages.NewTechnicalStage(market, cfg, log),
		market,
		recommend.NewEngine(cfg),
		portfolio.NewOptimizer(cfg, log),
		portfolio.NewAggregator(),
		nil,
		nil,
		cfg,
		log,
	)

	_, err := coordinator.Analyze(context.Background(), domain.AnalysisRequest{
		Symbols:       []string{"A", "B", "C", "D", "E", "F"},
		PortfolioSize: 1000,
		Depth:         domain.DepthQuick,
	})
	require.NoError(t, err)

	market.mu.Lock()
	defer market.mu.Unlock()
	assert.LessOrEqual(t, market.maxInFlight, 2)
}

func TestAnalyzePartialFailureAbsorbed(t *testing.T) {
	cfg := testEngineConfig()

	sentiment := &fakeRunner{
		kind: domain.StageSentiment,
		fn: func(_ context.Context, symbol string, _ int) (domain.StageResult, error) {
			if symbol == "BAD" {
				return domain.StageResult{}, capabilities.ErrNotFound
			}
			return completeResult(domain.StageSentiment, 0.85), nil
		},
	}
	coordinator := newTestCoordinator(cfg, nil, sentiment,
		settledRunner(domain.StageTechnical, 0.80))

	result, err := coordinator.Analyze(context.Background(), domain.AnalysisRequest{
		Symbols:       []string{"GOOD", "BAD"},
		PortfolioSize: 1000,
	})
	require.NoError(t, err)
	require.Len(t, result.Recommendations, 2)

	good, bad := result.Recommendations[0], result.Recommendations[1]
	assert.Equal(t, domain.StatusComplete, good.StageStatus[domain.StageSentiment])
	assert.Equal(t, domain.StatusMissing, bad.StageStatus[domain.StageSentiment])
	// BAD still gets a recommendation from its surviving technical stage.
	assert.Equal(t, domain.StatusComplete, bad.StageStatus[domain.StageTechnical])
	assert.Greater(t, bad.Confidence, 0.0)
}

func TestRunStageServedFromCache(t *testing.T) {
	cfg := testEngineConfig()
	cache := newMemoryCache()
	cache.Put("AAPL", domain.StageSentiment, completeResult(domain.StageSentiment, 0.9))

	runner := settledRunner(domain.StageSentiment, 0.1)
	coordinator := newTestCoordinator(cfg, cache, runner)

	result, err := coordinator.Analyze(context.Background(), domain.AnalysisRequest{
		Symbols:       []string{"AAPL"},
		PortfolioSize: 1000,
		Depth:         domain.DepthQuick,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, runner.callCount())
	// The cached score (0.9), not the runner's (0.1), drives the result.
	assert.InDelta(t, 0.9, result.Recommendations[0].Confidence, 1e-9)
}

func TestRunStagePopulatesCache(t *testing.T) {
	cfg := testEngineConfig()
	cache := newMemoryCache()
	runner := settledRunner(domain.StageSentiment, 0.75)
	coordinator := newTestCoordinator(cfg, cache, runner)

	_, err := coordinator.Analyze(context.Background(), domain.AnalysisRequest{
		Symbols:       []string{"MSFT"},
		PortfolioSize: 1000,
		Depth:         domain.DepthQuick,
	})
	require.NoError(t, err)

	cached, ok := cache.Get("MSFT", domain.StageSentiment)
	require.True(t, ok)
	assert.InDelta(t, 0.75, cached.Score, 1e-9)
}

func TestAnalyzeEmitsLifecycleEvents(t *testing.T) {
	cfg := testEngineConfig()
	log := zerolog.Nop()
	market := &fakeMarket{price: 100}
	bus := events.NewBus(log)
	eventChan, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	coordinator := NewCoordinator(
		[]stages.Runner{settledRunner(domain.StageSentiment, 0.7)},
		stages.NewTechnicalStage(market, cfg, log),
		market,
		recommend.NewEngine(cfg),
		portfolio.NewOptimizer(cfg, log),
		portfolio.NewAggregator(),
		nil,
		bus,
		cfg,
		log,
	)

	_, err := coordinator.Analyze(context.Background(), domain.AnalysisRequest{
		Symbols:       []string{"AAPL"},
		PortfolioSize: 1000,
		Depth:         domain.DepthQuick,
	})
	require.NoError(t, err)

	seen := make(map[events.EventType]bool)
	for done := false; !done; {
		select {
		case event := <-eventChan:
			seen[event.Type] = true
			done = event.Type == events.AnalysisCompleted
		case <-time.After(time.Second):
			done = true
		}
	}

	assert.True(t, seen[events.AnalysisStarted])
	assert.True(t, seen[events.SymbolStateChanged])
	assert.True(t, seen[events.StageSettled])
	assert.True(t, seen[events.AnalysisCompleted])
}

func TestQuickAlertForcesQuickDepth(t *testing.T) {
	cfg := testEngineConfig()
	sentiment := settledRunner(domain.StageSentiment, 0.9)
	technical := settledRunner(domain.StageTechnical, 0.9)
	coordinator := newTestCoordinator(cfg, nil, sentiment, technical)

	recommendations, err := coordinator.QuickAlert(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)

	require.Len(t, recommendations, 2)
	assert.Equal(t, "AAPL", recommendations[0].Symbol)
	assert.Equal(t, "MSFT", recommendations[1].Symbol)
	assert.Equal(t, 2, sentiment.callCount())
	assert.Zero(t, technical.callCount())
}

func TestQuickAlertEmptySymbols(t *testing.T) {
	coordinator := newTestCoordinator(testEngineConfig(), nil)

	_, err := coordinator.QuickAlert(context.Background(), nil)
	assert.Error(t, err)
}
