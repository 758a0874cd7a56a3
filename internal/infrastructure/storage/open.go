package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eshaffer321/ledgerbook/internal/infrastructure/config"
)

// Open returns the repository selected by cfg.Driver
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Repository, error) {
	switch cfg.Driver {
	case "", "sqlite":
		s, err := NewStorageWithLogger(cfg.DatabasePath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres driver requires postgres_url")
		}
		s, err := NewPostgresStorage(ctx, cfg.PostgresURL, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
