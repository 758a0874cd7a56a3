package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/ledgerbook/internal/api"
	"github.com/eshaffer321/ledgerbook/internal/cli"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/config"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/logging"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Configuration file path")
	port := flag.Int("port", 0, "Port to listen on (0 = server.dashboard_port)")
	flag.Parse()

	cfg, err := config.LoadOrEnv_WithPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dashboard: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "dashboard")

	ctx := context.Background()
	repo, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() { _ = repo.Close() }()

	policy, err := cli.NewAccessPolicy(cfg, repo)
	if err != nil {
		logger.Error("failed to build access policy", "error", err)
		os.Exit(1)
	}

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = api.DefaultConfig().AllowedOrigins
	}

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(NewDashboardServer(repo, policy, logger), RouterConfig{
		AllowedOrigins: origins,
		AuthHeader:     cfg.Server.AuthHeader,
	})

	listen := cfg.Server.DashboardPort
	if *port != 0 {
		listen = *port
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", listen),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("dashboard shutdown error", "error", err)
		}
	}()

	logger.Info("starting dashboard server", "port", listen, "policy", policy.Describe())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("failed to start server", "error", err)
		_ = repo.Close()
		os.Exit(1)
	}
}
