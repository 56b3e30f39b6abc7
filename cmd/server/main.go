// Package main is the entry point for the macroscope macro indicator service.
// It resolves economic indicators from multiple data providers with fallback,
// persists them to SQLite, refreshes cross-asset correlations, and serves a
// read-only HTTP API over the results.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/aristath/macroscope/internal/clients/dbnomics"
	"github.com/aristath/macroscope/internal/clients/fred"
	"github.com/aristath/macroscope/internal/clients/tradingecon"
	"github.com/aristath/macroscope/internal/config"
	"github.com/aristath/macroscope/internal/correlation"
	"github.com/aristath/macroscope/internal/database"
	"github.com/aristath/macroscope/internal/domain"
	"github.com/aristath/macroscope/internal/fetch"
	"github.com/aristath/macroscope/internal/freshness"
	"github.com/aristath/macroscope/internal/ingest"
	"github.com/aristath/macroscope/internal/reliability"
	"github.com/aristath/macroscope/internal/resolver"
	"github.com/aristath/macroscope/internal/scheduler"
	"github.com/aristath/macroscope/internal/server"
	"github.com/aristath/macroscope/internal/store"
	"github.com/aristath/macroscope/pkg/logger"
)

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
	log.Info().Msg("Starting macroscope")

	// Databases: the main datastore and the synchronous(OFF) payload cache.
	macroDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "macro.db"),
		Profile: database.ProfileStandard,
		Name:    "macro",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open macro database")
	}
	defer macroDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{macroDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Migration failed")
		}
	}

	// Repositories
	seriesRepo := store.NewSeriesRepository(macroDB.Conn())
	corrRepo := store.NewCorrelationRepository(macroDB.Conn())
	runRepo := store.NewRunRepository(macroDB.Conn())
	payloadRepo := store.NewPayloadRepository(cacheDB.Conn())

	// Provider adapters, each behind its own retrying fetcher and a
	// client-side rate limiter.
	spacing := rate.Every(cfg.ProviderMinSpacing)
	adapters := []domain.ProviderAdapter{
		ingest.NewRatedAdapter(fred.NewClient(cfg.FredAPIKey, fetch.New(log), log), spacing),
		ingest.NewRatedAdapter(dbnomics.NewClient(fetch.New(log), log), spacing),
		ingest.NewRatedAdapter(tradingecon.NewClient(cfg.TradingEconAPIKey, fetch.New(log), log), spacing),
	}

	res := resolver.New(adapters, log)
	engine := correlation.NewEngine(log)
	fresh := freshness.NewEvaluator(log)

	runner := ingest.NewRunner(res, seriesRepo, runRepo, corrRepo, payloadRepo, engine, fresh, ingest.Options{
		Catalog:     ingest.DefaultCatalog(),
		Pairs:       ingest.DefaultPairs(),
		Avail:       cfg.Availability(),
		Budget:      cfg.BatchBudget,
		Concurrency: cfg.BatchConcurrency,
	}, log)

	// Background jobs
	sched := scheduler.New(log)
	if err := sched.AddJob("0 */6 * * *", scheduler.FuncJob{
		JobName: "batch_ingest",
		Fn: func() error {
			_, err := runner.Run(context.Background())
			return err
		},
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to register ingest job")
	}

	maintenance := reliability.NewMaintenanceJob(
		map[string]*database.DB{"macro": macroDB, "cache": cacheDB},
		payloadRepo, cfg.DataDir, log)
	if err := sched.AddJob("15 2 * * *", scheduler.FuncJob{
		JobName: "maintenance",
		Fn:      maintenance.Run,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}

	if cfg.BackupConfigured() {
		s3Client, err := reliability.NewS3Client(
			cfg.BackupEndpoint, cfg.BackupAccessKey, cfg.BackupSecretKey, cfg.BackupBucket, log)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize backup client - backups disabled")
		} else {
			backup := reliability.NewBackupService(s3Client,
				map[string]*database.DB{"macro": macroDB}, cfg.DataDir, log)
			if err := sched.AddJob("30 3 * * *", scheduler.FuncJob{
				JobName: "backup",
				Fn: func() error {
					ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
					defer cancel()
					if err := backup.CreateAndUploadBackup(ctx); err != nil {
						return err
					}
					return backup.RotateOldBackups(ctx, cfg.BackupKeepDays)
				},
			}); err != nil {
				log.Fatal().Err(err).Msg("Failed to register backup job")
			}
			log.Info().Msg("Cloud backup enabled")
		}
	} else {
		log.Debug().Msg("Backup target not configured - backups disabled")
	}

	sched.Start()

	srv := server.New(server.Config{
		Log:          log,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		MacroDB:      macroDB,
		CacheDB:      cacheDB,
		Series:       seriesRepo,
		Correlations: corrRepo,
		Runs:         runRepo,
		Freshness:    fresh,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Kick off an initial ingest so a fresh deployment has data before the
	// first scheduled run.
	go func() {
		if _, err := runner.Run(context.Background()); err != nil {
			log.Error().Err(err).Msg("Initial ingest failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Shutdown complete")
}
