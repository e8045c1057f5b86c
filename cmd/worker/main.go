// Package main is the entry point for the pharmledger background worker:
// expiry sweeps, outbox relay and housekeeping.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"pharmledger/internal/app"
	"pharmledger/internal/config"
	"pharmledger/internal/infrastructure/events"
	"pharmledger/internal/infrastructure/storage/postgres"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Infow("starting pharmledger worker", "storage", cfg.Storage.Driver, "redis", cfg.Redis.Enabled)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer a.Close()

	var relay *postgres.OutboxRelay
	if a.Pool != nil {
		var handler postgres.OutboxHandler = events.LogPublisher{}
		if a.Redis != nil {
			handler = events.NewRedisPublisher(a.Redis)
		}
		relay = postgres.NewOutboxRelay(a.Pool, cfg.Worker.OutboxBatchSize, handler)
	}

	worker := NewWorker(cfg.Worker, log, a.Locker(), a.Inventory, relay, a.Idempotency)
	worker.pool = a.Pool

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}
