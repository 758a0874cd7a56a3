package blobstore

import (
	"context"

	"github.com/eshaffer321/ledgerbook/internal/infrastructure/config"
)

// Open returns a GCS store when a bucket is configured, else Noop.
func Open(ctx context.Context, cfg config.ArchiveConfig) (Store, error) {
	if cfg.GCSBucket == "" {
		return Noop{}, nil
	}
	g, err := NewGCS(ctx, cfg.GCSBucket, cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	return g, nil
}
