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

	"github.com/freightbill/freightbill/internal/annexure"
	"github.com/freightbill/freightbill/internal/app"
	"github.com/freightbill/freightbill/internal/invoice"
	"github.com/freightbill/freightbill/internal/lr"
	"github.com/freightbill/freightbill/internal/notify"
	"github.com/freightbill/freightbill/internal/observability"
	"github.com/freightbill/freightbill/internal/platform/cache"
	"github.com/freightbill/freightbill/internal/platform/db"
	"github.com/freightbill/freightbill/internal/recon"
	"github.com/freightbill/freightbill/internal/shared"
)

func main() {
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
		logger.Warn("redis unavailable, reconciliation cache disabled", slog.Any("error", err))
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

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	dispatcher := notify.NewDispatcher(asynqClient, notify.NewPGDirectory(pool), logger)

	lrRepo := lr.NewRepository(pool)
	lrService := lr.NewService(lrRepo, idempotencyStore, logger)
	lrHandler := lr.NewHandler(logger, lrService)

	annexureRepo := annexure.NewRepository(pool)
	annexureService := annexure.NewService(annexureRepo, dispatcher, auditLogger, metrics, logger)
	annexureHandler := annexure.NewHandler(logger, annexureService)

	invoiceRepo := invoice.NewRepository(pool)
	invoiceService := invoice.NewService(invoiceRepo, dispatcher, auditLogger, metrics, logger)
	invoiceHandler := invoice.NewHandler(logger, invoiceService)

	costingRepo := recon.NewCostingRepository(pool)
	reconService := recon.NewService(invoiceRepo, lrRepo, costingRepo, redisClient, cfg.ReconCacheTTL, logger)
	reconHandler := recon.NewHandler(logger, reconService)

	router := app.NewRouter(logger, cfg, metrics, app.Handlers{
		LR:       lrHandler,
		Annexure: annexureHandler,
		Invoice:  invoiceHandler,
		Recon:    reconHandler,
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
