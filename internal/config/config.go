// Package config provides configuration management functionality.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/advisor/internal/domain"
)

// Engine holds every numeric policy value the analysis engine recognizes.
// The exact weights, thresholds and decay functions are policy, not truth, so
// all of them are configuration rather than constants baked into the code.
type Engine struct {
	// Workflow
	MaxConcurrentStages int           // global cap on in-flight stage invocations
	PerStageTimeout     time.Duration // per attempt
	MaxRetries          int           // additional attempts after the first
	RetryBackoffBase    time.Duration
	RequestDeadline     time.Duration // 0 disables the request-level deadline

	// Stage policy
	NewsLookback       time.Duration
	NewsMaxArticles    int
	NewsMinArticles    int // fewer than this degrades the sentiment stage
	ArticleHalfLife    time.Duration
	HistoryWindow      time.Duration
	StalenessThreshold time.Duration // filings older than this degrade

	// Scoring policy
	StageWeights     map[domain.StageKind]float64
	DegradedDiscount float64
	StrongThreshold  float64
	ActionThreshold  float64
	NeutralBand      float64 // |direction| below this is neutral
	ReturnScale      float64 // expected return = direction * conviction * scale
	DispersionMedium float64 // stddev across stages above this is medium risk
	DispersionHigh   float64 // ... above this is high risk
	MaxFactors       int

	// Allocation policy
	ExposureCaps      map[domain.RiskTolerance]float64
	MaxSinglePosition float64

	// Cache
	StageCacheTTL time.Duration // 0 disables the stage-result cache
}

// Config holds application configuration.
type Config struct {
	DataDir         string
	Port            int
	LogLevel        string
	DevMode         bool
	AnthropicAPIKey string
	NewsBaseURL     string
	EdgarBaseURL    string
	EdgarDataURL    string

	// Optional scheduled watchlist analysis ("" disables).
	WatchlistSchedule string
	Watchlist         []string
	WatchlistDepth    domain.Depth
	WatchlistOnStart  bool // run the watchlist job once at startup

	// Optional S3-compatible report archive (empty bucket disables).
	ArchiveBucket    string
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string

	Engine Engine
}

// DefaultEngine returns the default policy values.
func DefaultEngine() Engine {
	return Engine{
		MaxConcurrentStages: 5,
		PerStageTimeout:     30 * time.Second,
		MaxRetries:          2,
		RetryBackoffBase:    250 * time.Millisecond,
		RequestDeadline:     0,

		NewsLookback:       48 * time.Hour,
		NewsMaxArticles:    25,
		NewsMinArticles:    3,
		ArticleHalfLife:    24 * time.Hour,
		HistoryWindow:      90 * 24 * time.Hour,
		StalenessThreshold: 120 * 24 * time.Hour,

		StageWeights: map[domain.StageKind]float64{
			domain.StageSentiment:   0.25,
			domain.StageTechnical:   0.35,
			domain.StageFundamental: 0.40,
		},
		DegradedDiscount: 0.5,
		StrongThreshold:  0.80,
		ActionThreshold:  0.55,
		NeutralBand:      0.05,
		ReturnScale:      0.40,
		DispersionMedium: 0.12,
		DispersionHigh:   0.25,
		MaxFactors:       5,

		ExposureCaps: map[domain.RiskTolerance]float64{
			domain.RiskToleranceLow:        0.60,
			domain.RiskToleranceMedium:     0.85,
			domain.RiskToleranceAggressive: 1.00,
		},
		MaxSinglePosition: 0.25,

		StageCacheTTL: 15 * time.Minute,
	}
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	engine := DefaultEngine()
	engine.MaxConcurrentStages = getEnvAsInt("ADVISOR_MAX_CONCURRENT_STAGES", engine.MaxConcurrentStages)
	engine.PerStageTimeout = getEnvAsDuration("ADVISOR_PER_STAGE_TIMEOUT", engine.PerStageTimeout)
	engine.MaxRetries = getEnvAsInt("ADVISOR_MAX_RETRIES", engine.MaxRetries)
	engine.RetryBackoffBase = getEnvAsDuration("ADVISOR_RETRY_BACKOFF_BASE", engine.RetryBackoffBase)
	engine.RequestDeadline = getEnvAsDuration("ADVISOR_REQUEST_DEADLINE", engine.RequestDeadline)
	engine.NewsLookback = getEnvAsDuration("ADVISOR_NEWS_LOOKBACK", engine.NewsLookback)
	engine.NewsMaxArticles = getEnvAsInt("ADVISOR_NEWS_MAX_ARTICLES", engine.NewsMaxArticles)
	engine.NewsMinArticles = getEnvAsInt("ADVISOR_NEWS_MIN_ARTICLES", engine.NewsMinArticles)
	engine.StalenessThreshold = getEnvAsDuration("ADVISOR_FILING_STALENESS", engine.StalenessThreshold)
	engine.MaxSinglePosition = getEnvAsFloat("ADVISOR_MAX_SINGLE_POSITION", engine.MaxSinglePosition)
	engine.StageCacheTTL = getEnvAsDuration("ADVISOR_STAGE_CACHE_TTL", engine.StageCacheTTL)

	cfg := &Config{
		DataDir:         getEnv("ADVISOR_DATA_DIR", "./data"),
		Port:            getEnvAsInt("ADVISOR_PORT", 8010),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		NewsBaseURL:     getEnv("ADVISOR_NEWS_BASE_URL", "https://news.google.com"),
		EdgarBaseURL:    getEnv("ADVISOR_EDGAR_BASE_URL", "https://www.sec.gov"),
		EdgarDataURL:    getEnv("ADVISOR_EDGAR_DATA_URL", "https://data.sec.gov"),

		WatchlistSchedule: getEnv("ADVISOR_WATCHLIST_SCHEDULE", ""),
		Watchlist:         getEnvAsList("ADVISOR_WATCHLIST", nil),
		WatchlistDepth:    domain.Depth(getEnv("ADVISOR_WATCHLIST_DEPTH", string(domain.DepthStandard))),
		WatchlistOnStart:  getEnvAsBool("ADVISOR_WATCHLIST_ON_START", false),

		ArchiveBucket:    getEnv("ADVISOR_ARCHIVE_BUCKET", ""),
		ArchiveEndpoint:  getEnv("ADVISOR_ARCHIVE_ENDPOINT", ""),
		ArchiveAccessKey: getEnv("ADVISOR_ARCHIVE_ACCESS_KEY", ""),
		ArchiveSecretKey: getEnv("ADVISOR_ARCHIVE_SECRET_KEY", ""),

		Engine: engine,
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
