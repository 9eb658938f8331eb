package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/royaltyops/royaltyops/internal/app"
	jobmetrics "github.com/royaltyops/royaltyops/internal/jobs"
	"github.com/royaltyops/royaltyops/internal/ledger"
	"github.com/royaltyops/royaltyops/internal/platform/cache"
	"github.com/royaltyops/royaltyops/internal/platform/db"
	"github.com/royaltyops/royaltyops/internal/reconciliation"
	"github.com/royaltyops/royaltyops/jobs"
)

const (
	ledgerCacheNamespace = "ledger"
	payoutsChannel       = "payouts.changed"
	ledgerVerifyCron     = "30 4 * * *"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.DBOptions())
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	mode, err := ledger.ParseMode(cfg.LedgerStalenessMode)
	if err != nil {
		logger.Error("ledger staleness mode", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)
	ledgerCache := cache.NewVersioned(redisClient, ledgerCacheNamespace, payoutsChannel)
	ledgerService := ledger.NewService(ledger.NewRepository(pool), ledgerCache, ledger.Config{Mode: mode, CacheTTL: cfg.LedgerCacheTTL}, logger)
	ledgerService.SetObserver(metrics)
	reconService := reconciliation.NewService(reconciliation.NewRepository(pool), nil, ledgerService, logger)

	if err := ledgerCache.Listen(ctx); err != nil {
		logger.Warn("subscribe ledger cache channel", slog.String("channel", payoutsChannel), slog.Any("error", err))
	}

	regenerateJob := jobs.NewLedgerRegenerateJob(ledgerService, logger, metrics)
	integrityJob := jobs.NewLedgerIntegrityJob(ledgerService, logger, metrics)
	processJob := jobs.NewReconciliationProcessJob(reconService, logger, metrics)

	regenerateTask, err := jobs.NewLedgerRegenerateTask(jobs.ScopeAll)
	if err != nil {
		logger.Error("build regenerate task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.AsynqRedis(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerRegenerate, Handler: regenerateJob.Handle},
			{Type: jobs.TaskLedgerVerify, Handler: integrityJob.Handle},
			{Type: jobs.TaskReconciliationProcess, Handler: processJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LedgerRefreshCron, Task: regenerateTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: ledgerVerifyCron, Task: jobs.NewLedgerVerifyTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.Int("concurrency", cfg.WorkerConcurrency), slog.String("refresh_cron", cfg.LedgerRefreshCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
