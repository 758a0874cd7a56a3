package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/extraction"
	"github.com/eshaffer321/ledgerbook/internal/application/importer"
	"github.com/eshaffer321/ledgerbook/internal/domain/access"
	"github.com/eshaffer321/ledgerbook/internal/domain/matcher"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/blobstore"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/config"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

// Services are the long-lived dependencies every command shares.
type Services struct {
	Repo     storage.Repository
	Archive  blobstore.Store
	Importer *importer.Service
}

// OpenServices opens storage and the upload archive and builds the importer.
// Callers must Close the result.
func OpenServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	icfg, err := ImporterConfig(cfg)
	if err != nil {
		return nil, err
	}

	repo, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	archive, err := blobstore.Open(ctx, cfg.Archive)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("open archive: %w", err)
	}

	return &Services{
		Repo:     repo,
		Archive:  archive,
		Importer: importer.NewService(repo, archive, icfg, logger),
	}, nil
}

// Close releases storage and the archive.
func (s *Services) Close() error {
	return errors.Join(s.Archive.Close(), s.Repo.Close())
}

// ImporterConfig maps the import section onto importer settings.
func ImporterConfig(cfg *config.Config) (importer.Config, error) {
	policy, err := importer.ParseLookupFailurePolicy(cfg.Import.LookupFailurePolicy)
	if err != nil {
		return importer.Config{}, err
	}
	mcfg := matcher.DefaultConfig()
	if cfg.Import.LengthTolerance > 0 {
		mcfg.LengthTolerance = cfg.Import.LengthTolerance
	}
	return importer.Config{Matcher: mcfg, LookupFailurePolicy: policy}, nil
}

// NewAccessPolicy builds the allow-list policy backed by repo.
func NewAccessPolicy(cfg *config.Config, repo storage.Repository) (*access.Policy, error) {
	return access.NewPolicy(access.Config{
		StaticAllowList: cfg.Access.StaticAllowList,
		UseDynamicStore: cfg.Access.UseDynamicStore,
	}, repo)
}

// NewExtractor returns the configured screenshot extractor, or nil when
// extraction is disabled.
func NewExtractor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (extraction.Extractor, error) {
	ex, err := extraction.Open(ctx, cfg)
	if errors.Is(err, extraction.ErrDisabled) {
		logger.Info("screenshot extraction disabled", "backend", cfg.Extraction.Backend)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	logger.Info("screenshot extraction enabled", "backend", ex.Name())
	return ex, nil
}
