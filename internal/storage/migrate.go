package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"

	"ledwatcher/internal/config"
)

// Migrate applies pending schema migrations so the tables exist before the
// first sampling pass.
func Migrate(cfg config.DatabaseConfig, logger zerolog.Logger) error {
	if cfg.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	path := cfg.MigrationsPath
	if path == "" {
		path = "migrations"
	}
	if !strings.Contains(path, "://") {
		path = "file://" + path
	}

	m, err := migrate.New(path, cfg.DSN)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}

	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema migrations applied")
	return nil
}

// MigrateDown rolls back all migrations. Operator tooling only.
func MigrateDown(cfg config.DatabaseConfig) error {
	if cfg.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	path := cfg.MigrationsPath
	if path == "" {
		path = "migrations"
	}
	if !strings.Contains(path, "://") {
		path = "file://" + path
	}

	m, err := migrate.New(path, cfg.DSN)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rollback migrations: %w", err)
	}
	return nil
}
