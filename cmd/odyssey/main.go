package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-pos/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/audit"
	"github.com/odyssey-erp/odyssey-pos/internal/auth"
	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/codes"
	"github.com/odyssey-erp/odyssey-pos/internal/customers"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/purchases"
	"github.com/odyssey-erp/odyssey-pos/internal/reports"
	"github.com/odyssey-erp/odyssey-pos/internal/reservations"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/users"
	"github.com/odyssey-erp/odyssey-pos/jobs"
	"github.com/odyssey-erp/odyssey-pos/report"
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
		os.Exit(runJobsCommand(ctx, cfg, os.Args[2:]))
	}

	logger := app.NewLogger(cfg)
	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func runJobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	actorID := fs.Int64("actor", 0, "user id recorded as creator of suggested purchases")
	retention := fs.Duration("retention", jobs.DefaultIdempotencyRetention, "idempotency key retention for cleanup")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = jobsCLI.Close() }()
	return jobsCLI.Run(ctx, fs.Args(), cli.TriggerOptions{ActorID: *actorID, Retention: *retention}, os.Stdout, os.Stderr)
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	ledgerMetrics := observability.NewLedgerMetrics(metrics.Registerer())
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	generator := codes.NewGenerator().In(cfg.Location())

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	authMiddleware := auth.Middleware{Tokens: tokens, Logger: logger}
	authService := auth.NewService(auth.NewRepository(dbpool), tokens)

	reportsCache := reports.NewCache(redisClient, cfg.DashboardCacheTTL)
	reportsCache.ListenForInvalidation(ctx)

	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), auditLogger, ledgerMetrics, logger)
	reservationManager := reservations.NewManager(logger, ledgerMetrics)
	reservationService := reservations.NewService(reservations.NewRepository(dbpool), reservationManager, auditLogger, logger, cfg.ReservationDefaultTTL)
	salesService := sales.NewService(sales.NewRepository(dbpool), reservationManager, generator, sales.Options{
		TaxRate:     cfg.TaxRate(),
		Audit:       auditLogger,
		Idempotency: idempotencyStore,
		Cache:       reportsCache,
		Metrics:     ledgerMetrics,
	}, logger)
	purchaseService := purchases.NewService(purchases.NewRepository(dbpool), generator, auditLogger, idempotencyStore, ledgerMetrics, logger)
	catalogService := catalog.NewService(catalog.NewRepository(dbpool), generator, auditLogger, logger)
	customerService := customers.NewService(customers.NewRepository(dbpool))
	reportsService := reports.NewService(reports.NewRepository(dbpool), reportsCache, cfg.Location())

	renderer := report.NewClient(cfg.GotenbergURL)
	templates := report.NewTemplateRepository(dbpool)
	documentsHandler := report.NewHandler(report.HandlerConfig{
		Logger:    logger,
		Renderer:  renderer,
		Sales:     salesService,
		Stock:     inventoryService,
		Messages:  report.NewMessages(templates),
		Templates: templates,
		Guard:     authMiddleware,
		StoreName: cfg.StoreName,
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		AuthMiddleware:      authMiddleware,
		AuthHandler:         auth.NewHandler(logger, authService, authMiddleware),
		CatalogHandler:      catalog.NewHandler(logger, catalogService, authMiddleware),
		CustomersHandler:    customers.NewHandler(logger, customerService, authMiddleware),
		InventoryHandler:    inventory.NewHandler(logger, inventoryService, authMiddleware),
		ReservationsHandler: reservations.NewHandler(logger, reservationService, authMiddleware),
		SalesHandler:        sales.NewHandler(logger, salesService, authMiddleware),
		PurchasesHandler:    purchases.NewHandler(logger, purchaseService, authMiddleware),
		ReportsHandler:      reports.NewHandler(logger, reportsService, authMiddleware),
		DocumentsHandler:    documentsHandler,
		AuditHandler:        audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), authMiddleware, cfg.Location()),
		UsersHandler:        users.NewHandler(logger, users.NewService(users.NewRepository(dbpool), auditLogger, logger), authMiddleware),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Metrics:             metrics,
		HealthChecks: map[string]app.HealthCheck{
			"postgres":  dbpool.Ping,
			"redis":     func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			"gotenberg": renderer.Ping,
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
