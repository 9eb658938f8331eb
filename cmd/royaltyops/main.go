package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/royaltyops/royaltyops/internal/app"
	"github.com/royaltyops/royaltyops/internal/ledger"
	ledgerhttp "github.com/royaltyops/royaltyops/internal/ledger/http"
	"github.com/royaltyops/royaltyops/internal/observability"
	"github.com/royaltyops/royaltyops/internal/platform/cache"
	"github.com/royaltyops/royaltyops/internal/platform/db"
	"github.com/royaltyops/royaltyops/internal/reconciliation"
	reconhttp "github.com/royaltyops/royaltyops/internal/reconciliation/http"
	"github.com/royaltyops/royaltyops/jobs"
)

const (
	ledgerCacheNamespace = "ledger"
	payoutsChannel       = "payouts.changed"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.DBOptions())
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	metrics := observability.NewMetrics()
	ledgerCache := cache.NewVersioned(redisClient, ledgerCacheNamespace, payoutsChannel)
	ledgerService := ledger.NewService(ledger.NewRepository(dbpool), ledgerCache, ledger.Config{Mode: mode, CacheTTL: cfg.LedgerCacheTTL}, logger)
	ledgerService.SetObserver(metrics.Jobs())

	redisOpts := cfg.AsynqRedis()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	reconService := reconciliation.NewService(reconciliation.NewRepository(dbpool), jobClient, ledgerService, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		LedgerHandler:         ledgerhttp.NewHandler(logger, ledgerService, jobClient),
		ReconciliationHandler: reconhttp.NewHandler(logger, reconService),
		JobHandler:            jobs.NewHandler(inspector, logger),
		Metrics:               metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
