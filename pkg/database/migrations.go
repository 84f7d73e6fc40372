package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ticketsync/ticketsync/migrations"
)

// RunMigrations executes pending embedded migrations against db.
// It is idempotent and safe to call multiple times - only pending migrations will be executed.
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("Failed to close migration database", zap.Error(dbErr))
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No migrations to apply (database up-to-date)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	logger.Info("Applied migrations successfully", zap.Uint("version", newVersion))
	return nil
}

// EnsureSchema applies migrations once for the lifetime of db. Later calls
// return the first call's result without touching the database.
func (db *DB) EnsureSchema(ctx context.Context, logger *zap.Logger) error {
	db.schemaOnce.Do(func() {
		sqlDB := stdlib.OpenDB(*db.ConnConfig())
		defer sqlDB.Close()

		if err := sqlDB.PingContext(ctx); err != nil {
			db.schemaErr = fmt.Errorf("failed to open migration connection: %w", err)
			return
		}
		db.schemaErr = RunMigrations(sqlDB, logger)
	})
	return db.schemaErr
}
