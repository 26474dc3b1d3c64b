package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // PostgreSQL driver
	_ "github.com/golang-migrate/migrate/v4/source/file"       // File source driver
)

var (
	ErrEmptyMigrationsPath = errors.New("migrations path cannot be empty")
	ErrEmptyDatabaseURL    = errors.New("database URL cannot be empty")
)

// migrationSource accepts both a bare directory and a file:// URL
func migrationSource(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return "file://" + path
}

// RunMigrations brings the schema up to the newest migration and logs the
// resulting version. Both binaries call it on startup; concurrent runs are
// serialized by the postgres driver's advisory lock.
func RunMigrations(logger *slog.Logger, databaseURL, migrationsPath string) error {
	if migrationsPath == "" {
		return ErrEmptyMigrationsPath
	}
	if databaseURL == "" {
		return ErrEmptyDatabaseURL
	}

	m, err := migrate.New(migrationSource(migrationsPath), databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			logger.Warn("Failed to close migrate instance", "source_error", sourceErr, "database_error", dbErr)
		}
	}()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Debug("Database schema already up to date")
	case err != nil:
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database schema is dirty at version %d", version)
	}
	logger.Info("Database schema migrated", "version", version)
	return nil
}
