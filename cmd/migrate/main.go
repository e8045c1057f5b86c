// Package main applies or rolls back the embedded schema migrations.
//
//	migrate up | down | version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"pharmledger/internal/config"
	"pharmledger/internal/infrastructure/storage/postgres"
	"pharmledger/pkg/logger"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate up|down|version")
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Storage.Driver != config.StoragePostgres {
		fmt.Fprintln(os.Stderr, "migrations need the postgres storage driver")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: cfg.App.IsDevelopment()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database.URL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	m, err := postgres.NewMigrator(pool)
	if err != nil {
		log.Fatalw("failed to init migrator", "error", err)
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up(ctx)
	case "down":
		err = m.Down(ctx)
	case "version":
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalw("migration failed", "command", command, "error", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		log.Fatalw("failed to read schema version", "error", err)
	}
	log.Infow("schema version", "version", version, "dirty", dirty)
}
