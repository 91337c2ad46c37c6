package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/malimina/internal/app"
	"github.com/odyssey-erp/malimina/internal/finance/credit"
	"github.com/odyssey-erp/malimina/internal/finance/finconfig"
	jobmetrics "github.com/odyssey-erp/malimina/internal/jobs"
	"github.com/odyssey-erp/malimina/internal/platform/cache"
	"github.com/odyssey-erp/malimina/internal/platform/db"
	"github.com/odyssey-erp/malimina/internal/shared"
	"github.com/odyssey-erp/malimina/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	metrics := jobmetrics.NewMetrics(nil)
	auditLogger := shared.NewAuditLogger(pool)
	configStore := finconfig.NewStore(finconfig.NewRepository(pool), finconfig.NewCache(redisClient, cfg.ConfigCacheTTL), auditLogger, logger)
	creditService := credit.NewService(
		credit.NewRepository(pool, uint64(cfg.TxMaxRetries)),
		configStore,
		shared.NewApprovalRecorder(pool, logger),
		auditLogger,
		jobs.NewNotifier(jobClient, cfg.NotifyMaxRetry),
		logger,
	)

	mirrorJob := jobs.NewMirrorJob(creditService, jobClient, logger, metrics, cfg.MirrorMaxRetry)
	overdueJob := &jobs.OverdueJob{Credits: creditService, After: cfg.OverdueAfter, Logger: logger, Metrics: metrics}
	cleanupJob := &jobs.IdempotencyCleanupJob{Keys: shared.NewIdempotencyStore(pool), Retention: cfg.IdempotencyRetention, Metrics: metrics}
	notifyJob := &jobs.NotifyJob{Sink: jobs.LogSink{Logger: logger}, Metrics: metrics}

	sweepTask, err := jobs.NewMirrorSweepTask(0)
	if err != nil {
		logger.Error("build mirror sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCreditNotify, Handler: notifyJob.Handle},
			{Type: jobs.TaskCreditMirror, Handler: mirrorJob.HandleRepair},
			{Type: jobs.TaskCreditMirrorSweep, Handler: mirrorJob.HandleSweep},
			{Type: jobs.TaskCreditOverdueSweep, Handler: overdueJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: sweepTask, Options: []asynq.Option{asynq.Queue(jobs.QueueCritical), asynq.MaxRetry(3)}},
			{Spec: "0 * * * *", Task: jobs.NewOverdueSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
