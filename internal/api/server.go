package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/extraction"
	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/stripehook"
	"github.com/eshaffer321/ledgerbook/internal/api/handlers"
	"github.com/eshaffer321/ledgerbook/internal/api/middleware"
	"github.com/eshaffer321/ledgerbook/internal/application/importer"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

// Config holds API server configuration.
type Config struct {
	Port            int
	AllowedOrigins  []string
	AuthHeader      string
	DefaultCurrency string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8085,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		AuthHeader:     "X-Auth-Request-Email",
	}
}

// Dependencies are the services the routes are built on. Extractor and
// Verifier are optional; their routes answer 503 or are not mounted.
type Dependencies struct {
	Repo      storage.Repository
	Importer  *importer.Service
	Policy    middleware.Authorizer
	Extractor extraction.Extractor
	Verifier  *stripehook.Verifier
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	deps       Dependencies
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Dependencies, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = DefaultConfig().AuthHeader
	}
	if deps.Policy == nil {
		logger.Warn("no access policy configured, all /api requests will be refused")
		deps.Policy = denyAll{}
	}

	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		logger: logger,
		deps:   deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = s.config.AllowedOrigins
	corsConfig.AllowedHeaders = append(corsConfig.AllowedHeaders, s.config.AuthHeader)
	s.router.Use(middleware.CORS(corsConfig))

	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	repo := s.deps.Repo
	currency := s.config.DefaultCurrency

	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler(func(ctx context.Context) error {
		_, err := repo.ListImportRuns(ctx, 1)
		return err
	})
	s.router.Get("/health", healthHandler.ServeHTTP)

	if s.deps.Verifier != nil {
		webhooks := handlers.NewWebhooksHandler(repo, s.deps.Verifier, s.deps.Importer, s.logger)
		s.router.Post("/webhooks/stripe", webhooks.Stripe)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireAllowed(s.deps.Policy, s.config.AuthHeader, s.logger))

		imports := handlers.NewImportsHandler(repo, s.deps.Importer, currency, s.logger)
		r.Post("/imports/preview", imports.Preview)
		r.Post("/imports/commit", imports.Commit)
		r.Get("/imports", imports.List)
		r.Get("/imports/{id}", imports.Get)

		extractions := handlers.NewExtractionsHandler(repo, s.deps.Extractor, s.deps.Importer, currency, s.logger)
		r.Post("/extractions", extractions.Create)

		transactions := handlers.NewTransactionsHandler(repo, s.deps.Importer, currency, s.logger)
		r.Post("/transactions", transactions.Create)
		r.Get("/transactions", transactions.List)
		r.Get("/transactions/{id}", transactions.Get)

		summary := handlers.NewSummaryHandler(repo, s.logger)
		r.Get("/summary", summary.Get)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second, // screenshot extraction waits on the model
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

type denyAll struct{}

func (denyAll) Allowed(context.Context, string) (bool, error) { return false, nil }
