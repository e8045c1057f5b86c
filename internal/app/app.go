// Package app wires configuration, storage and services for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pharmledger/internal/config"
	"pharmledger/internal/domain/inventory"
	"pharmledger/internal/domain/sales"
	"pharmledger/internal/infrastructure/lock"
	"pharmledger/internal/infrastructure/storage/memory"
	"pharmledger/internal/infrastructure/storage/postgres"
	"pharmledger/internal/infrastructure/storage/postgres/inventory_repo"
	"pharmledger/internal/infrastructure/storage/postgres/sales_repo"
	"pharmledger/pkg/logger"
	"pharmledger/pkg/numerator"
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config *config.Config
	Log    *logger.Logger

	// Pool is nil with the memory storage driver.
	Pool *postgres.Pool
	// Redis is nil unless redis.enabled is set.
	Redis redis.UniversalClient

	Inventory *inventory.Service
	Sales     *sales.Service

	// Idempotency is nil unless idempotency.enabled is set.
	Idempotency *postgres.IdempotencyStore
}

// New connects storage and builds the services.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.Redis = rdb
		log.Infow("redis connection established", "addr", cfg.Redis.Addr)
	}

	switch cfg.Storage.Driver {
	case config.StorageMemory:
		store := memory.New()
		a.Inventory = inventory.NewService(store, store)
		a.Sales = sales.NewService(store, a.Inventory, store, store)
		log.Warn("using in-memory storage; data is lost on exit")

	default:
		if err := a.connectPostgres(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *App) connectPostgres(ctx context.Context) error {
	cfg := a.Config

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	poolCfg.ApplicationName = cfg.App.Name

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.Pool = pool
	a.Log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		if err := Migrate(ctx, pool); err != nil {
			return err
		}
	}

	txm := postgres.NewTxManager(pool)
	numbers := numerator.New(func(ctx context.Context) numerator.Querier {
		return txm.GetQuerier(ctx)
	}).WithRangeQuerier(pool)

	a.Inventory = inventory.NewService(inventory_repo.New(txm), txm,
		inventory.WithMovementPublisher(postgres.NewOutboxPublisher(txm)))
	a.Sales = sales.NewService(sales_repo.New(txm), a.Inventory, txm, numbers)

	if cfg.Idempotency.Enabled {
		a.Idempotency = postgres.NewIdempotencyStore(pool, cfg.Idempotency.TTL)
	}
	return nil
}

// Migrate applies all pending schema migrations.
func Migrate(ctx context.Context, pool *postgres.Pool) error {
	m, err := postgres.NewMigrator(pool)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Locker returns a redis-backed locker when redis is configured and an
// in-process one otherwise.
func (a *App) Locker() lock.Locker {
	if a.Redis != nil {
		return lock.NewRedisLocker(a.Redis, a.Config.App.Name+":lock:")
	}
	return lock.NewLocalLocker()
}

// Close releases connections.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
}
