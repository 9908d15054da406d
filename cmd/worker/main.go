// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

// Command worker is the entry point for the Tessera ingestion and
// notification pipeline.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire queue client, coordination primitives, and pipeline services.
//  7. Start both consumer pools, the scheduler loop, and the ops server.
//  8. Graceful shutdown on SIGTERM/SIGINT.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tessera-app/tessera/internal/canonical"
	"github.com/tessera-app/tessera/internal/catalog"
	"github.com/tessera-app/tessera/internal/crawler"
	"github.com/tessera-app/tessera/internal/ingest"
	"github.com/tessera-app/tessera/internal/jobs"
	"github.com/tessera-app/tessera/internal/notify"
	"github.com/tessera-app/tessera/internal/ops"
	"github.com/tessera-app/tessera/internal/platform/config"
	"github.com/tessera-app/tessera/internal/platform/constants"
	"github.com/tessera-app/tessera/internal/platform/dlock"
	"github.com/tessera-app/tessera/internal/platform/migration"
	pgstore "github.com/tessera-app/tessera/internal/platform/postgres"
	redisstore "github.com/tessera-app/tessera/internal/platform/redis"
	"github.com/tessera-app/tessera/internal/sched"
	"github.com/tessera-app/tessera/internal/worker"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[Tessera] worker_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	hostname, _ := os.Hostname()
	instance := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("instance", instance),
		slog.String("ops_port", cfg.OpsPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Queue Client ───────────────────────────────────────────────────
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	must(log, err, "parse redis URI for queue client")

	queueClient := asynq.NewClient(redisOpt)
	defer func() { _ = queueClient.Close() }()
	enqueuer := jobs.NewEnqueuer(queueClient, log)

	inspector := asynq.NewInspector(redisOpt)
	defer func() { _ = inspector.Close() }()

	// ── 7. Coordination Primitives ────────────────────────────────────────
	locker := dlock.NewLocker(rdb, cfg.Environment)
	window := dlock.NewWindow(rdb, cfg.Environment)

	// ── 8. Pipeline Services ──────────────────────────────────────────────
	repository := catalog.NewPostgresRepository(pool)
	notifyStore := notify.NewPostgresStore(pool)

	events := canonical.NewRedisEventPublisher(rdb, cfg.Environment, instance)
	canonicalService := canonical.NewService(repository, locker, events, log)

	ingestor := ingest.NewService(repository, repository, locker, enqueuer, log)

	adapters := []crawler.Adapter{
		crawler.NewJSONAdapter("mangadex", nil),
		crawler.NewJSONAdapter("comick", nil),
		crawler.NewHTMLAdapter("asura", nil, crawler.Selectors{
			Row:  "div.eph-num",
			Link: "a",
			Date: "span.chapterdate",
			// e.g. "August 28, 2026"
			DateLayout: "January 2, 2006",
		}),
	}
	poller := crawler.NewPoller(repository, adapters, window, enqueuer, cfg, log)

	dispatcher := notify.NewDispatcher(rdb, notifyStore, enqueuer, cfg.Environment, log)
	throttler := notify.NewThrottler(rdb, cfg.Environment, window,
		cfg.NotifyHourlyCap, cfg.NotifyDailyCap, cfg.NotifyDailyCapPrime)
	backlog := notify.NewInspectorMonitor(inspector)
	deliverer := notify.NewDeliverer(notifyStore, throttler, backlog, repository, cfg, log)

	// ── 9. Consumer Pools ─────────────────────────────────────────────────
	handlers := worker.Handlers{
		Poller:     poller,
		Canonical:  canonicalService,
		Ingestor:   ingestor,
		Dispatcher: dispatcher,
		Deliverer:  deliverer,
		Logger:     log,
	}

	standardServer := worker.NewStandardServer(redisOpt, cfg, log)
	premiumServer := worker.NewPremiumServer(redisOpt, cfg, log)

	poolErr := make(chan error, 2)
	go func() {
		if err := standardServer.Run(worker.NewMux(handlers)); err != nil {
			poolErr <- fmt.Errorf("standard pool: %w", err)
		}
	}()
	go func() {
		if err := premiumServer.Run(worker.NewPremiumMux(handlers)); err != nil {
			poolErr <- fmt.Errorf("premium pool: %w", err)
		}
	}()

	// ── 10. Scheduler ─────────────────────────────────────────────────────
	heartbeat := sched.NewHeartbeat(rdb, cfg.Environment, instance, cfg.HeartbeatTTL)
	scheduler := sched.NewScheduler(repository, locker, heartbeat, enqueuer, cfg, log)

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	go scheduler.Run(schedCtx)

	// ── 11. Ops Server ────────────────────────────────────────────────────
	opsServer := ops.NewServer(cfg, log, ops.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, repository)

	serverErr := make(chan error, 1)
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// ── 12. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	// Block until OS signal, pool failure, or ops server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-poolErr:
		log.Error("consumer pool error", slog.Any("error", err))
	case err := <-serverErr:
		log.Error("ops server error", slog.Any("error", err))
	}

	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down", slog.Duration("timeout", shutdownTimeout))

	schedCancel()
	standardServer.Shutdown()
	premiumServer.Shutdown()

	if err := opsServer.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("worker stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
