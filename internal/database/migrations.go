package database

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// RunMigrations brings the schema up to date. Migrations are plain goose
// SQL files; the order tables depend on products and clients, so the
// numbered ordering in migrationsDir matters.
func RunMigrations(db *sql.DB, migrationsDir string, logger *zap.Logger) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	before, err := goose.EnsureDBVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if err := goose.Up(db, migrationsDir); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	after, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if after == before {
		logger.Info("Schema already up to date", zap.Int64("version", after))
	} else {
		logger.Info("Schema migrated",
			zap.Int64("from", before),
			zap.Int64("to", after),
		)
	}
	return nil
}
