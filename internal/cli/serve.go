package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/stripehook"
	"github.com/eshaffer321/ledgerbook/internal/api"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/config"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/logging"
)

// RunServe runs the API server until SIGINT or SIGTERM.
func RunServe(cfg *config.Config, flags *ServeFlags) error {
	// Set up logging
	loggingCfg := cfg.Observability.Logging
	if flags.Verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(loggingCfg, "api")

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	svc, err := OpenServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	policy, err := NewAccessPolicy(cfg, svc.Repo)
	if err != nil {
		return err
	}
	logger.Info("access policy ready", "policy", policy.Describe())

	extractor, err := NewExtractor(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var verifier *stripehook.Verifier
	if secret := cfg.GetAPIKey(cfg.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET"); secret != "" {
		verifier = stripehook.NewVerifier(secret)
	} else {
		logger.Warn("no stripe webhook secret, /webhooks/stripe is not mounted")
	}

	// Create API config
	apiCfg := api.Config{
		Port:            cfg.Server.Port,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		AuthHeader:      cfg.Server.AuthHeader,
		DefaultCurrency: cfg.Import.DefaultCurrency,
	}
	if flags.Port != 0 {
		apiCfg.Port = flags.Port
	}
	if len(apiCfg.AllowedOrigins) == 0 {
		apiCfg.AllowedOrigins = api.DefaultConfig().AllowedOrigins
	}

	// Create and start server
	server := api.NewServer(apiCfg, api.Dependencies{
		Repo:      svc.Repo,
		Importer:  svc.Importer,
		Policy:    policy,
		Extractor: extractor,
		Verifier:  verifier,
	}, logger)

	// Handle graceful shutdown
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("received shutdown signal")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", slog.Any("error", err))
		}
		close(done)
	}()

	// Start server (blocks until shutdown)
	if err := server.Start(); err != nil {
		return err
	}

	<-done
	logger.Info("server stopped")
	return nil
}
