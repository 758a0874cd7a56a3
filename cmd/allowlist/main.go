package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/eshaffer321/ledgerbook/internal/cli"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/config"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/logging"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Configuration file path")
	flag.Parse()

	cfg, err := config.LoadOrEnv_WithPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "allowlist: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "allowlist")

	ctx := context.Background()
	repo, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() { _ = repo.Close() }()

	if !cfg.Access.UseDynamicStore {
		logger.Warn("access.use_dynamic_store is off, the API ignores this list")
	}

	if err := cli.RunAllowList(ctx, repo, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		_ = repo.Close()
		os.Exit(1)
	}
}
