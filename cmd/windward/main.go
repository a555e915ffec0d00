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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/windward-ops/windward/internal/allocation"
	"github.com/windward-ops/windward/internal/app"
	"github.com/windward-ops/windward/internal/invoicing"
	"github.com/windward-ops/windward/internal/masterdata"
	"github.com/windward-ops/windward/internal/observability"
	"github.com/windward-ops/windward/internal/settlement"
	"github.com/windward-ops/windward/internal/tenant"
	"github.com/windward-ops/windward/jobs"
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

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
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

	auditClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, logger)
	defer func() {
		if err := auditClient.Close(); err != nil {
			logger.Warn("audit client close", slog.Any("error", err))
		}
	}()

	masterRepo := masterdata.NewRepository(dbpool)
	snapshots := masterdata.NewSnapshotCache(masterRepo, redisClient, cfg.SnapshotCacheTTL)

	invoiceRepo := invoicing.NewRepository(dbpool)
	invoiceGenerator := invoicing.NewGenerator(invoiceRepo)

	allocationRepo := allocation.NewRepository(dbpool)
	allocationEngine := allocation.NewEngine(masterRepo, allocationRepo, invoiceGenerator, logger)

	settlementRepo := settlement.NewRepository(dbpool)
	settlementService := settlement.NewService(settlement.ServiceConfig{
		Repository: settlementRepo,
		MasterData: snapshots,
		Invoices:   invoiceGenerator,
		Ledger:     invoiceRepo,
		Allocator:  allocationEngine,
		Audit:      auditClient,
		Logger:     logger,
	})
	settlementHandler := settlement.NewHandler(logger, settlementService)

	tenantMiddleware := tenant.Middleware{
		Resolver: tenant.NewRepository(dbpool),
		Logger:   logger,
	}

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		TenantMiddleware:  tenantMiddleware,
		SettlementHandler: settlementHandler,
		Metrics:           metrics,
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
