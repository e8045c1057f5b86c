// Package main is the entry point for the pharmledger API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pharmledger/internal/app"
	"pharmledger/internal/config"
	"pharmledger/internal/domain/auth"
	v1 "pharmledger/internal/infrastructure/http/v1"
	"pharmledger/internal/infrastructure/http/v1/handlers"
	"pharmledger/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	ctx := context.Background()
	log.Infow("starting pharmledger server", "env", cfg.App.Env, "storage", cfg.Storage.Driver)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer a.Close()

	// --- JWT Service ---
	jwtConfig := auth.DefaultJWTConfig(cfg.JWT.Secret)
	jwtConfig.Issuer = cfg.JWT.Issuer
	jwtConfig.AccessTokenTTL = cfg.JWT.TTL
	jwtService := auth.NewJWTService(jwtConfig)

	// --- Router ---
	routerCfg := v1.RouterConfig{
		Inventory:        a.Inventory,
		Sales:            a.Sales,
		Logger:           log,
		JWTValidator:     jwtService,
		HealthChecks:     healthChecks(a),
		CORSAllowOrigins: cfg.HTTP.CORSAllowOrigins,
		Debug:            cfg.App.IsDevelopment(),
	}
	if a.Idempotency != nil {
		routerCfg.Idempotency = a.Idempotency
	}
	router, err := v1.NewRouter(routerCfg)
	if err != nil {
		log.Fatalw("failed to build router", "error", err)
	}

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Infow("server starting", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func healthChecks(a *app.App) []handlers.HealthCheck {
	var checks []handlers.HealthCheck
	if a.Pool != nil {
		checks = append(checks, handlers.HealthCheck{Name: "database", Check: a.Pool.Ready})
	}
	if a.Redis != nil {
		checks = append(checks, handlers.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}})
	}
	return checks
}
