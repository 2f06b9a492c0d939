package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/advisor/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, "https://news.google.com", cfg.NewsBaseURL)
	assert.Equal(t, "https://www.sec.gov", cfg.EdgarBaseURL)
	assert.Equal(t, "https://data.sec.gov", cfg.EdgarDataURL)
	assert.Empty(t, cfg.WatchlistSchedule)
	assert.Empty(t, cfg.ArchiveBucket)

	assert.Equal(t, 5, cfg.Engine.MaxConcurrentStages)
	assert.Equal(t, 30*time.Second, cfg.Engine.PerStageTimeout)
	assert.Equal(t, 2, cfg.Engine.MaxRetries)
	assert.Equal(t, 15*time.Minute, cfg.Engine.StageCacheTTL)
	assert.Equal(t, 0.25, cfg.Engine.MaxSinglePosition)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ADVISOR_PORT", "9000")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("ADVISOR_MAX_CONCURRENT_STAGES", "8")
	t.Setenv("ADVISOR_PER_STAGE_TIMEOUT", "5s")
	t.Setenv("ADVISOR_STAGE_CACHE_TTL", "0")
	t.Setenv("ADVISOR_MAX_SINGLE_POSITION", "0.10")
	t.Setenv("ADVISOR_WATCHLIST", "AAPL, msft ,,GOOG")
	t.Setenv("ADVISOR_WATCHLIST_DEPTH", "comprehensive")
	t.Setenv("ADVISOR_WATCHLIST_ON_START", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 8, cfg.Engine.MaxConcurrentStages)
	assert.Equal(t, 5*time.Second, cfg.Engine.PerStageTimeout)
	assert.Equal(t, time.Duration(0), cfg.Engine.StageCacheTTL)
	assert.Equal(t, 0.10, cfg.Engine.MaxSinglePosition)
	assert.Equal(t, []string{"AAPL", "msft", "GOOG"}, cfg.Watchlist)
	assert.Equal(t, domain.DepthComprehensive, cfg.WatchlistDepth)
	assert.True(t, cfg.WatchlistOnStart)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("ADVISOR_PORT", "not-a-number")
	t.Setenv("ADVISOR_PER_STAGE_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Engine.PerStageTimeout)
}

func TestDefaultEngineWeightsSumToOne(t *testing.T) {
	engine := DefaultEngine()

	var sum float64
	for _, w := range engine.StageWeights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	for _, cap := range engine.ExposureCaps {
		assert.LessOrEqual(t, cap, 1.0)
	}
}
