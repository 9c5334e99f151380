package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/questdeck/questdeck/internal/api"
	"github.com/questdeck/questdeck/internal/api/handler"
	"github.com/questdeck/questdeck/internal/approval"
	"github.com/questdeck/questdeck/internal/assets"
	"github.com/questdeck/questdeck/internal/config"
	"github.com/questdeck/questdeck/internal/db"
	"github.com/questdeck/questdeck/internal/events"
	"github.com/questdeck/questdeck/internal/game"
	"github.com/questdeck/questdeck/internal/llm"
	"github.com/questdeck/questdeck/internal/metrics"
	"github.com/questdeck/questdeck/internal/queue"
	"github.com/questdeck/questdeck/internal/ratelimiter"
	"github.com/questdeck/questdeck/internal/session"
	"github.com/questdeck/questdeck/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()

	// ---- queue backend ----
	settings := queue.Settings{
		Backend:        cfg.QueueBackend,
		LLMBatchSize:   cfg.LLMBatchSize,
		AssetBatchSize: cfg.AssetBatchSize,
	}
	var pinger handler.Pinger
	if cfg.QueueBackend == queue.BackendPostgres {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := db.Migrate(cfg.DatabaseURL, "migrations"); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		logger.Info("database migrations applied")
		settings.Pool = pool
		pinger = pool
	}

	queues, err := queue.Open(settings)
	if err != nil {
		logger.Fatal("failed to open queues", zap.Error(err))
	}
	logger.Info("queues opened", zap.String("backend", string(cfg.QueueBackend)))

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	sessions := session.NewManager(logger)
	bus := events.NewBus(logger)
	model := llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMTimeout, cfg.LLMRatePerSecond)
	generator := assets.NewHTTPGenerator(cfg.AssetBaseURL, cfg.AssetTimeout)

	hooks := approval.Hooks{OnDecision: m.DecisionHook(), OnExpired: m.ExpiryHook()}
	gate := approval.NewService(sessions, cfg.MaxApprovalRetries, hooks, logger)
	outcomes := approval.NewOutcomeService(sessions, model, hooks, logger)
	limiter := ratelimiter.New(cfg.ActionRatePerSec)
	svc := game.NewService(sessions, queues, limiter, logger)

	// ---- workers ----
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	wh := m.WorkerHooks()
	dispatcher := worker.NewDispatcher(
		queues.LLMRequests, queues.Approvals, model, sessions, bus, llm.DefaultTools(),
		int64(cfg.LLMMaxConcurrent), cfg.RecoveryInterval, cfg.WorkerBackoff,
		wh, logger.Named("dispatcher"),
	)

	pool := worker.NewPool(
		dispatcher,
		worker.NewActionWorker(queues.PlayerActions, queues.LLMRequests,
			llm.BasicPromptBuilder{}, cfg.RecoveryInterval, cfg.WorkerBackoff,
			wh, logger.Named("actions")),
		worker.NewDMWorker(queues.DMActions, gate, sessions, bus,
			cfg.RecoveryInterval, cfg.WorkerBackoff, wh, logger.Named("dm")),
		worker.NewNotifyWorker(queues.Approvals, gate, sessions,
			cfg.RecoveryInterval, cfg.WorkerBackoff, cfg.NotifyRetryIn,
			wh, logger.Named("notify")),
		worker.NewAssetWorker(queues.AssetGeneration, generator, bus,
			cfg.RecoveryInterval, cfg.WorkerBackoff, wh, logger.Named("assets")),
		worker.NewMaintenanceWorker(queues, []worker.Expirer{gate, outcomes}, sessions,
			cfg.CleanupInterval, cfg.Retention, cfg.ApprovalExpiry,
			m.GaugeHooks(), logger.Named("maintenance")),
	)
	pool.Start(workerCtx)

	// ---- HTTP server ----
	router := api.NewRouter(sessions, svc, gate, outcomes, queues,
		cfg.QueueBackend, pinger, cfg.ParticipantBuffer, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Signal all workers to stop claiming new queue items.
	cancelWorkers()

	// 3. Wait for worker loops, then for in-flight model calls.
	pool.Wait()
	dispatcher.Wait()

	// 4. Stop background suggestion generation.
	outcomes.Close()

	logger.Info("server stopped cleanly")
}
