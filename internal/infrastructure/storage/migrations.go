package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// runMigrations applies all pending goose migrations for the dialect.
// Versions are tracked in goose_db_version.
func runMigrations(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir string, logger *slog.Logger) error {
	fsys, err := fs.Sub(migrationFiles, dir)
	if err != nil {
		return fmt.Errorf("migrations %s: %w", dir, err)
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			"version", r.Source.Version,
			"file", r.Source.Path,
			"duration", r.Duration)
	}
	return nil
}
