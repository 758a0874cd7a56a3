package main

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/ledgerbook/internal/api/dto"
	"github.com/eshaffer321/ledgerbook/internal/api/handlers"
	"github.com/eshaffer321/ledgerbook/internal/api/middleware"
	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

// DashboardServer serves the read-only views behind the bookkeeping dashboard.
type DashboardServer struct {
	repo   storage.Repository
	policy middleware.Authorizer
	logger *slog.Logger
}

func NewDashboardServer(repo storage.Repository, policy middleware.Authorizer, logger *slog.Logger) *DashboardServer {
	return &DashboardServer{
		repo:   repo,
		policy: policy,
		logger: logger,
	}
}

// RecentEntry is one row of the recent activity table
type RecentEntry struct {
	ID           int64  `json:"id"`
	Date         string `json:"date"`
	Source       string `json:"source"`
	Direction    string `json:"direction"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	Project      string `json:"project"`
	Description  string `json:"description,omitempty"`
	Counterparty string `json:"counterparty,omitempty"`
}

// RunRow is one row of the import history table
type RunRow struct {
	ID         int64  `json:"id"`
	StartedAt  string `json:"started_at"`
	Filename   string `json:"filename,omitempty"`
	Origin     string `json:"origin"`
	Status     string `json:"status"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Rejected   int    `json:"rejected"`
	DryRun     bool   `json:"dry_run"`
	Error      string `json:"error,omitempty"`
}

// requireAllowed is the gin flavour of the API's access check.
func (s *DashboardServer) requireAllowed(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.GetHeader(header)
		ok, err := s.policy.Allowed(c.Request.Context(), email)
		if err != nil {
			s.logger.Error("access check failed", "email", email, "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.UnavailableError("access check unavailable"))
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.ForbiddenError())
			return
		}
		c.Next()
	}
}

func (s *DashboardServer) getSummary(c *gin.Context) {
	filters := storage.EntryFilters{
		Project:  c.Query("project"),
		Currency: c.Query("currency"),
		Limit:    -1,
	}
	var err error
	if filters.From, err = parseDay(c.Query("from")); err != nil {
		c.JSON(http.StatusBadRequest, dto.ValidationError("from must be YYYY-MM-DD"))
		return
	}
	if filters.To, err = parseDay(c.Query("to")); err != nil {
		c.JSON(http.StatusBadRequest, dto.ValidationError("to must be YYYY-MM-DD"))
		return
	}

	result, err := s.repo.ListEntries(c.Request.Context(), filters)
	if err != nil {
		s.logger.Error("failed to list entries", "error", err)
		c.JSON(http.StatusInternalServerError, dto.InternalError())
		return
	}
	c.JSON(http.StatusOK, handlers.BuildSummary(result.Entries))
}

func (s *DashboardServer) getRecentEntries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit <= 0 || limit > 200 {
		limit = 10
	}

	result, err := s.repo.ListEntries(c.Request.Context(), storage.EntryFilters{Limit: limit})
	if err != nil {
		s.logger.Error("failed to list entries", "error", err)
		c.JSON(http.StatusInternalServerError, dto.InternalError())
		return
	}

	rows := make([]RecentEntry, 0, len(result.Entries))
	for _, e := range result.Entries {
		rows = append(rows, toRecentEntry(e))
	}
	c.JSON(http.StatusOK, rows)
}

func (s *DashboardServer) getImports(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	runs, err := s.repo.ListImportRuns(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list import runs", "error", err)
		c.JSON(http.StatusInternalServerError, dto.InternalError())
		return
	}

	rows := make([]RunRow, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, RunRow{
			ID:         r.ID,
			StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
			Filename:   r.Filename,
			Origin:     r.Origin,
			Status:     r.Status,
			Inserted:   r.Inserted,
			Duplicates: r.Duplicates,
			Rejected:   r.Rejected,
			DryRun:     r.DryRun,
			Error:      r.ErrorMessage,
		})
	}
	c.JSON(http.StatusOK, rows)
}

func (s *DashboardServer) getEntry(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.BadRequestError("invalid entry ID"))
		return
	}

	entry, err := s.repo.GetEntry(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, dto.NotFoundError("entry"))
		return
	}
	if err != nil {
		s.logger.Error("failed to get entry", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, dto.InternalError())
		return
	}
	c.JSON(http.StatusOK, toRecentEntry(*entry))
}

func toRecentEntry(e ledger.Entry) RecentEntry {
	row := RecentEntry{
		ID:           e.ID,
		Source:       string(e.SourceKind),
		Direction:    string(e.Direction),
		Amount:       decimal.New(e.Amount, -2).StringFixed(2),
		Currency:     e.Currency,
		Project:      e.Project,
		Description:  e.Description,
		Counterparty: e.Counterparty,
	}
	if !e.OccurredOn.IsZero() {
		row.Date = e.OccurredOn.Format("2006-01-02")
	}
	return row
}

func parseDay(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", v)
}

// RouterConfig holds the settings newRouter needs
type RouterConfig struct {
	AllowedOrigins []string
	AuthHeader     string
}

func newRouter(server *DashboardServer, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/api/health"},
	}))

	// CORS configuration
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", cfg.AuthHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, dto.NewHealthResponse())
	})

	api := router.Group("/api", server.requireAllowed(cfg.AuthHeader))
	{
		api.GET("/summary", server.getSummary)
		api.GET("/entries/recent", server.getRecentEntries)
		api.GET("/entries/:id", server.getEntry)
		api.GET("/imports", server.getImports)
	}
	return router
}
