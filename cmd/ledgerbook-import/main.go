package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eshaffer321/ledgerbook/internal/cli"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/config"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/logging"
)

func main() {
	flags, err := cli.ParseImportFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\nusage: ledgerbook-import [-kind stripe|bank] [-currency nok] [-project name] [-preview] [-dry-run] [-force id,id] file...\n", err)
		os.Exit(2)
	}

	cfg, err := config.LoadOrEnv_WithPath(flags.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledgerbook-import: %v\n", err)
		os.Exit(1)
	}
	loggingCfg := cfg.Observability.Logging
	if flags.Verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(loggingCfg, "import")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := cli.OpenServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer func() { _ = svc.Close() }()

	cli.PrintHeader(os.Stdout, "import", flags.DryRun || flags.Preview)
	if err := cli.RunImport(ctx, svc.Importer, flags, cfg.Import.DefaultCurrency, os.Stdout, logger); err != nil {
		logger.Error("import finished with errors", "error", err)
		_ = svc.Close()
		os.Exit(1)
	}
}
