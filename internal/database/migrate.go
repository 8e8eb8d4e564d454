package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/chrisdurfee/authgate/internal/config"
	"github.com/chrisdurfee/authgate/migrations"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// Migrate applies pending goose migrations from the embedded filesystem
func Migrate(cfg *config.DatabaseConfig, logger *slog.Logger) error {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	logger.Info("database migrations applied", slog.Int64("version", version))
	return nil
}
