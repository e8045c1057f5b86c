package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"

	"pharmledger/internal/infrastructure/storage/postgres/migrations"
	"pharmledger/pkg/logger"
)

// Migrator applies the embedded schema migrations.
type Migrator struct {
	migrate *migrate.Migrate
}

// NewMigrator builds a migrator over a dedicated database/sql handle on pool.
func NewMigrator(pool *Pool) (*Migrator, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool.Pool)
	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return &Migrator{migrate: m}, nil
}

// Up runs all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	err := m.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info(ctx, "schema is up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	logger.Info(ctx, "migrations applied", "version", version, "dirty", dirty)
	return nil
}

// Down rolls back all migrations.
func (m *Migrator) Down(ctx context.Context) error {
	err := m.migrate.Down()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info(ctx, "no migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}
	logger.Info(ctx, "all migrations rolled back")
	return nil
}

// Version returns the current schema version, 0 when nothing is applied.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get migration version: %w", err)
	}
	return version, dirty, nil
}

// Close releases the migrator's source and database handles.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("close migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("close migration database: %w", dbErr)
	}
	return nil
}
