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

	"github.com/taller-erp/taller-erp/internal/app"
	"github.com/taller-erp/taller-erp/internal/auth"
	"github.com/taller-erp/taller-erp/internal/branch"
	"github.com/taller-erp/taller-erp/internal/caja"
	cajahttp "github.com/taller-erp/taller-erp/internal/caja/http"
	"github.com/taller-erp/taller-erp/internal/observability"
	"github.com/taller-erp/taller-erp/internal/platform/cache"
	"github.com/taller-erp/taller-erp/internal/platform/db"
	"github.com/taller-erp/taller-erp/internal/shared"
	"github.com/taller-erp/taller-erp/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	thresholds, err := cfg.Thresholds()
	if err != nil {
		logger.Error("deviation thresholds", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobInspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := jobInspector.Close(); err != nil {
			logger.Warn("jobs inspector close", slog.Any("error", err))
		}
	}()

	tokens := auth.NewTokenStore(redisClient, cfg.AuthTokenSecret, cfg.AuthTokenTTL)
	authService := auth.NewService(auth.NewRepository(dbpool), tokens, logger)
	authHandler := auth.NewHandler(logger, authService)

	branchStore := branch.NewCachedStore(branch.NewRepository(dbpool), redisClient, cfg.CajaBranchCacheTTL, logger)
	branchResolver := branch.NewResolver(branchStore)

	cajaService := caja.NewService(caja.NewRepository(dbpool), shared.NewAuditLogger(dbpool), caja.ServiceConfig{
		Thresholds:  thresholds,
		Idempotency: shared.NewIdempotencyStore(dbpool),
		Locker:      caja.NewRedisLocker(redisClient, cfg.CajaCloseLockTTL),
		Events:      observability.NewCajaEvents(metrics, jobClient, logger),
		Logger:      logger,
	})
	cajaHandler := cajahttp.NewHandler(logger, cajaService, branchResolver)

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		AuthHandler: authHandler,
		Resolver:    authService,
		CajaHandler: cajaHandler,
		JobHandler:  jobs.NewHandler(jobInspector, logger),
		Metrics:     metrics,
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
