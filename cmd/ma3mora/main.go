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

	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/app"
	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/ledger"
	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/masterdata/products"
	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/masterdata/warehouses"
	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/movement"
	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/observability"
	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/platform/cache"
	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/platform/db"
	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/shared"
	"github.com/sajaadasyntax/ma3mora-api-sub000/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, movement cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, metrics)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	movementRepo := movement.NewRepository(pool)
	movementCache := movement.NewCache(redisClient, cfg.MovementCacheTTL)
	movementService := movement.NewService(movementRepo, movementCache, metrics)
	movementHandler := movement.NewHandler(logger, movementService)

	warehouseService := warehouses.NewService(warehouses.NewRepository(pool))
	warehouseHandler := warehouses.NewHandler(logger, warehouseService)
	productService := products.NewService(products.NewRepository(pool))
	productHandler := products.NewHandler(logger, productService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		LedgerHandler:    ledgerHandler,
		MovementHandler:  movementHandler,
		WarehouseHandler: warehouseHandler,
		ProductHandler:   productHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
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
