// Package main is the entry point for the advisor analysis service. It wires
// configuration, storage, the remote data clients and the workflow
// coordinator, then serves the HTTP API until interrupted.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/advisor/internal/clients"
	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/database"
	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/events"
	"github.com/aristath/advisor/internal/history"
	"github.com/aristath/advisor/internal/portfolio"
	"github.com/aristath/advisor/internal/recommend"
	"github.com/aristath/advisor/internal/reliability"
	"github.com/aristath/advisor/internal/scheduler"
	"github.com/aristath/advisor/internal/server"
	"github.com/aristath/advisor/internal/stages"
	"github.com/aristath/advisor/internal/workflow"
	"github.com/aristath/advisor/pkg/logger"
)

const watchlistRunTimeout = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting advisor")

	// Storage: run history and stage-result cache live in separate SQLite
	// databases with different durability profiles.
	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileHistory,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	runStore, err := history.NewRunStore(historyDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize run store")
	}

	var stageCache workflow.StageCache
	var resultCache *history.ResultCache
	if cfg.Engine.StageCacheTTL > 0 {
		resultCache, err = history.NewResultCache(cacheDB, cfg.Engine.StageCacheTTL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize stage cache")
		}
		stageCache = resultCache
	}

	// Remote data clients.
	market := clients.NewYahooClient(log)
	news := clients.NewNewsClient(cfg.NewsBaseURL, log)
	edgar := clients.NewEdgarClient(cfg.EdgarBaseURL, cfg.EdgarDataURL, log)
	llm, err := clients.NewClaudeClient(cfg.AnthropicAPIKey, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize language model client")
	}

	bus := events.NewBus(log)

	// Analysis pipeline.
	technical := stages.NewTechnicalStage(market, cfg.Engine, log)
	runners := []stages.Runner{
		stages.NewSentimentStage(news, llm, cfg.Engine, log),
		technical,
		stages.NewFundamentalStage(edgar, llm, cfg.Engine, log),
	}
	coordinator := workflow.NewCoordinator(
		runners,
		technical,
		market,
		recommend.NewEngine(cfg.Engine),
		portfolio.NewOptimizer(cfg.Engine, log),
		portfolio.NewAggregator(),
		stageCache,
		bus,
		cfg.Engine,
		log,
	)

	// Optional report archive.
	var archiver *reliability.ReportArchiver
	if cfg.ArchiveBucket != "" {
		s3Client, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Bucket:    cfg.ArchiveBucket,
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize report archive")
		}
		archiver = reliability.NewReportArchiver(s3Client, 90*24*time.Hour, log)
	}

	// Background jobs.
	sched := scheduler.New(log)
	if cfg.WatchlistSchedule != "" && len(cfg.Watchlist) > 0 {
		job := scheduler.NewWatchlistJob(coordinator, runStore, archiver, watchlistRequest(cfg), watchlistRunTimeout, log)
		if err := sched.AddJob(cfg.WatchlistSchedule, job); err != nil {
			log.Fatal().Err(err).Msg("Failed to register watchlist job")
		}
		if cfg.WatchlistOnStart {
			go func() {
				if err := sched.RunNow(job); err != nil {
					log.Error().Err(err).Msg("Startup watchlist run failed")
				}
			}()
		}
	}
	if resultCache != nil {
		if err := sched.AddJob("@hourly", scheduler.NewCachePruneJob(resultCache)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register cache prune job")
		}
	}
	if archiver != nil {
		if err := sched.AddJob("@daily", scheduler.NewReportRotationJob(archiver)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register report rotation job")
		}
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:         log,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		Coordinator: coordinator,
		RunStore:    runStore,
		EventBus:    bus,
		AppConfig:   cfg,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Advisor stopped")
}

func watchlistRequest(cfg *config.Config) domain.AnalysisRequest {
	return domain.AnalysisRequest{
		Symbols:       cfg.Watchlist,
		PortfolioSize: 100000,
		Depth:         cfg.WatchlistDepth,
	}
}
