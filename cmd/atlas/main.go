package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fschubi/lbvatlas-sub005/internal/app"
	"github.com/fschubi/lbvatlas-sub005/internal/auth"
	"github.com/fschubi/lbvatlas-sub005/internal/observability"
	"github.com/fschubi/lbvatlas-sub005/internal/platform/cache"
	"github.com/fschubi/lbvatlas-sub005/internal/platform/db"
	"github.com/fschubi/lbvatlas-sub005/internal/rbac"
	"github.com/fschubi/lbvatlas-sub005/internal/shared"
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

	tokens, err := auth.NewTokenService(cfg.TokenSecret, cfg.AccessTokenTTL)
	if err != nil {
		logger.Error("token service", slog.Any("error", err))
		os.Exit(1)
	}
	refreshStore := auth.NewRefreshStore(redisClient, cfg.RefreshCookieName, cfg.RefreshTokenTTL, cfg.IsProduction())

	auditLogger := shared.NewAuditLogger(dbpool)

	rbacRepo := rbac.NewRepository(dbpool)
	rbacService := rbac.NewService(rbacRepo, auditLogger, logger)
	guard := rbac.Middleware{Logger: logger}

	metrics := observability.NewMetrics()

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, tokens, refreshStore, rbacService, metrics)
	authenticator := auth.Authenticator{Tokens: tokens, Resolver: rbacService, Logger: logger}

	rbacHandler := rbac.NewHandler(logger, rbacService, guard)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		AuthHandler:   authHandler,
		RBACHandler:   rbacHandler,
		Authenticator: authenticator,
		Metrics:       metrics,
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
