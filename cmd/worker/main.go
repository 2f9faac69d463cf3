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

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/auth"
	"github.com/odyssey-erp/odyssey-pos/internal/codes"
	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/purchases"
	"github.com/odyssey-erp/odyssey-pos/internal/reports"
	"github.com/odyssey-erp/odyssey-pos/internal/reservations"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	ledgerMetrics := observability.NewLedgerMetrics(metrics.Registerer())
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	generator := codes.NewGenerator().In(cfg.Location())

	reservationService := reservations.NewService(
		reservations.NewRepository(pool),
		reservations.NewManager(logger, ledgerMetrics),
		auditLogger, logger, cfg.ReservationDefaultTTL,
	)
	purchaseService := purchases.NewService(purchases.NewRepository(pool), generator, auditLogger, idempotencyStore, ledgerMetrics, logger)
	reportsService := reports.NewService(reports.NewRepository(pool), reports.NewCache(redisClient, cfg.DashboardCacheTTL), cfg.Location())

	base := jobs.Base{Logger: logger, Metrics: jobmetrics.NewMetrics(metrics.Registerer())}
	expireJob := jobs.NewExpireReservationsJob(reservationService, base)
	suggestJob := jobs.NewSuggestPurchasesJob(purchaseService, base)
	cleanupJob := jobs.NewCleanupIdempotencyJob(idempotencyStore, base)
	warmupJob := jobs.NewWarmupReportsJob(reportsService, base)

	cron, err := cronSchedule(ctx, cfg, auth.NewRepository(pool), logger)
	if err != nil {
		logger.Error("build cron schedule", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReservationsExpire, Handler: expireJob.Handle},
			{Type: jobs.TaskPurchasesSuggest, Handler: suggestJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
			{Type: jobs.TaskReportsWarmup, Handler: warmupJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metricsRouter(metrics), ReadHeaderTimeout: 5 * time.Second}
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

	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency), slog.Int("cron_entries", len(cron)))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

type userFinder interface {
	FindByUsername(ctx context.Context, username string) (*auth.User, error)
}

// cronSchedule registers periodic tasks. Suggested purchases are skipped when
// the configured actor account does not exist yet.
func cronSchedule(ctx context.Context, cfg *app.Config, users userFinder, logger *slog.Logger) ([]jobs.CronRegistration, error) {
	retry := []asynq.Option{asynq.MaxRetry(3)}
	expire, err := jobs.NewTask(jobs.TaskReservationsExpire, jobs.Payload{})
	if err != nil {
		return nil, err
	}
	cleanup, err := jobs.NewTask(jobs.TaskIdempotencyCleanup, jobs.Payload{Retention: jobs.DefaultIdempotencyRetention})
	if err != nil {
		return nil, err
	}
	warmup, err := jobs.NewTask(jobs.TaskReportsWarmup, jobs.Payload{})
	if err != nil {
		return nil, err
	}
	entries := []jobs.CronRegistration{
		{Spec: "*/5 * * * *", Task: expire, Options: retry},
		{Spec: "30 3 * * *", Task: cleanup, Options: retry},
		{Spec: "0 7 * * *", Task: warmup, Options: retry},
	}

	actor, err := users.FindByUsername(ctx, cfg.JobsActorUsername)
	if err != nil {
		logger.Warn("suggested purchases not scheduled", slog.String("actor", cfg.JobsActorUsername), slog.Any("error", err))
		return entries, nil
	}
	suggest, err := jobs.NewTask(jobs.TaskPurchasesSuggest, jobs.Payload{ActorID: actor.ID})
	if err != nil {
		return nil, err
	}
	return append(entries, jobs.CronRegistration{Spec: "0 6 * * 1", Task: suggest, Options: retry}), nil
}

func metricsRouter(metrics *observability.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}
