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

	"github.com/odyssey-erp/malimina/cmd/malimina/cli"
	"github.com/odyssey-erp/malimina/internal/app"
	"github.com/odyssey-erp/malimina/internal/ar"
	"github.com/odyssey-erp/malimina/internal/finance/credit"
	"github.com/odyssey-erp/malimina/internal/finance/finconfig"
	"github.com/odyssey-erp/malimina/internal/finance/ledger"
	"github.com/odyssey-erp/malimina/internal/finance/reconcile"
	"github.com/odyssey-erp/malimina/internal/missions"
	"github.com/odyssey-erp/malimina/internal/observability"
	"github.com/odyssey-erp/malimina/internal/platform/cache"
	"github.com/odyssey-erp/malimina/internal/platform/db"
	"github.com/odyssey-erp/malimina/internal/rbac"
	"github.com/odyssey-erp/malimina/internal/shared"
	"github.com/odyssey-erp/malimina/jobs"
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
		code := jobsCLI.Command(ctx, os.Args[2:], os.Stdout, os.Stderr)
		_ = jobsCLI.Close()
		os.Exit(code)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	rbacMiddleware := rbac.Middleware{Logger: logger}
	metrics := observability.NewMetrics()
	retries := uint64(cfg.TxMaxRetries)

	configCache := finconfig.NewCache(redisClient, cfg.ConfigCacheTTL)
	if err := configCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("config cache invalidation listener", slog.Any("error", err))
	}
	configStore := finconfig.NewStore(finconfig.NewRepository(dbpool), configCache, auditLogger, logger)

	ledgerService := ledger.NewService(ledger.NewRepository(dbpool, retries), configStore, auditLogger, logger)
	ledgerService.WithObserver(metrics)

	creditService := credit.NewService(
		credit.NewRepository(dbpool, retries),
		configStore,
		approvalRecorder,
		auditLogger,
		jobs.NewNotifier(jobClient, cfg.NotifyMaxRetry),
		logger,
	)
	creditService.WithObserver(metrics)

	reportService := reconcile.NewService(
		ledgerService,
		ar.NewFeed(ar.NewRepository(dbpool)),
		missions.NewFeed(missions.NewRepository(dbpool)),
		logger,
	)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		RBACMiddleware: rbacMiddleware,
		ConfigHandler:  finconfig.NewHandler(logger, configStore, rbacMiddleware),
		LedgerHandler:  ledger.NewHandler(logger, ledgerService, idempotencyStore, rbacMiddleware),
		CreditHandler:  credit.NewHandler(logger, creditService, idempotencyStore, rbacMiddleware),
		ReportHandler:  reconcile.NewHandler(logger, reportService, rbacMiddleware),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
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
