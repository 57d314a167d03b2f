package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/itempulse/itempulse/internal/analytics"
	corecfg "github.com/itempulse/itempulse/internal/core/config"
	"github.com/itempulse/itempulse/internal/core/storage/postgres"
	"github.com/itempulse/itempulse/internal/hotcache"
	"github.com/itempulse/itempulse/internal/ingestion"
	"github.com/itempulse/itempulse/internal/migrations"
	"github.com/itempulse/itempulse/internal/resilience/circuitbreaker"
	"github.com/itempulse/itempulse/internal/retention"
	"github.com/itempulse/itempulse/internal/server"
)

func main() {
	configPath := flag.String("config", "itempulse.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"addr", fmtAddr(cfg.Server.Host, cfg.Server.Port),
		"mode", cfg.Server.Mode,
		"auto_migrate", cfg.Database.AutoMigrate)

	// 2. Run Database Migrations
	// Migrations get their own connection: the storage adapters prepare
	// statements at construction and need the schema in place first.
	migrationDB, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		slog.Error("Failed to open database for migrations", "error", err)
		os.Exit(1)
	}
	if err := migrations.RunMigrations(migrationDB, cfg.Database.AutoMigrate); err != nil {
		migrationDB.Close()
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}
	migrationDB.Close()

	// 3. Initialize Storage (PostgreSQL)
	var breaker *circuitbreaker.CircuitBreaker
	if cfg.Resilience.Enabled {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			Name:             "event-store",
			MaxRequests:      uint32(cfg.Resilience.MaxRequests),
			Interval:         cfg.Resilience.IntervalDuration(),
			Timeout:          cfg.Resilience.TimeoutDuration(),
			FailureThreshold: cfg.Resilience.FailureThreshold,
			MinRequests:      uint32(cfg.Resilience.MinRequests),
		})
	} else {
		slog.Info("Circuit breaker disabled by config")
	}

	queryTimeout := cfg.Database.QueryTimeoutDuration()
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		queryTimeout,
		breaker,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	ledger, err := postgres.NewLedgerAdapter(dbAdapter.DB(), queryTimeout, breaker)
	if err != nil {
		slog.Error("Failed to initialize dedup ledger", "error", err)
		os.Exit(1)
	}
	defer ledger.Close()

	// 4. Initialize Hot Cache
	cache := hotcache.New(cfg.HotCache.ShardCount, cfg.HotCache.MaxEntriesPerShard)
	policy := cfg.Tracking.Policy()

	// 5. Initialize Ingestion (decision pipeline + HTTP handlers)
	ingestionSvc := ingestion.NewService(cache, ledger, dbAdapter, policy, ingestion.Limits{
		MaxBatchSize:  cfg.Ingestion.MaxBatchSize,
		WorkerCount:   cfg.Ingestion.WorkerCount,
		MaxBodySizeMB: cfg.Server.MaxBodySizeMB,
	})

	// 6. Initialize Analytics (read-only query API)
	analyticsSvc := analytics.NewService(dbAdapter, analytics.Limits{
		MaxTrendingLimit: cfg.Analytics.MaxTrendingLimit,
		DefaultRangeDays: cfg.Analytics.DefaultRangeDays,
	})

	// 7. Initialize Retention Sweeper
	sweeper := retention.NewSweeper(cache, dbAdapter, ledger, policy, retention.Config{
		CleanupInterval: cfg.Retention.CleanupEvery(),
		RetentionPeriod: cfg.Retention.RetentionPeriod(),
		PurgeSchedule:   cfg.Retention.PurgeSchedule,
	})

	// 8. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)
	ingestionSvc.RegisterRoutes(srv.Engine)
	analyticsSvc.RegisterRoutes(srv.Engine)
	sweeper.RegisterRoutes(srv.Engine)

	// 9. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweeper.Start(ctx)

	// Signal handler → triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
