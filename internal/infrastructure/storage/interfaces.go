package storage

import (
	"context"
	"time"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
)

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, PostgreSQL)
// and makes testing with mocks straightforward.
type Repository interface {
	LedgerRepository
	ImportRunRepository
	AllowListRepository
	Close() error
}

// LedgerRepository handles ledger entry operations
type LedgerRepository interface {
	// ExistingRows returns the matching projection of every ledger row
	ExistingRows(ctx context.Context) ([]ledger.LedgerRow, error)

	// InsertEntries writes entries, skipping rows that violate a uniqueness
	// constraint. conflicts counts the skipped rows.
	InsertEntries(ctx context.Context, entries []ledger.Entry) (inserted, conflicts int, err error)

	// ListEntries returns entries matching the given filters with pagination
	ListEntries(ctx context.Context, filters EntryFilters) (*EntryListResult, error)

	// GetEntry retrieves an entry by ID. Returns ErrNotFound if missing.
	GetEntry(ctx context.Context, id int64) (*ledger.Entry, error)
}

// EntryFilters defines filters for listing entries
type EntryFilters struct {
	Project    string            // Filter by project (empty = all)
	Currency   string            // Filter by currency (empty = all)
	SourceKind ledger.SourceKind // Filter by source kind (empty = all)
	Direction  ledger.Direction  // Filter by direction (empty = all)
	From       time.Time         // Inclusive occurred-on lower bound (zero = open)
	To         time.Time         // Inclusive occurred-on upper bound (zero = open)
	Limit      int               // Max results (0 = default 50, negative = no limit)
	Offset     int               // Pagination offset
}

// EntryListResult contains paginated entry results
type EntryListResult struct {
	Entries    []ledger.Entry `json:"entries"`
	TotalCount int            `json:"total_count"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}

// ImportRunRepository handles import run tracking
type ImportRunRepository interface {
	// StartImportRun records the start of an import and returns the run ID
	StartImportRun(ctx context.Context, run ImportRun) (int64, error)

	// CompleteImportRun records the outcome of an import run
	CompleteImportRun(ctx context.Context, runID int64, counts ImportCounts, runErr error) error

	// ListImportRuns returns recent import runs, newest first
	ListImportRuns(ctx context.Context, limit int) ([]ImportRun, error)

	// GetImportRun retrieves an import run by ID. Returns ErrNotFound if missing.
	GetImportRun(ctx context.Context, runID int64) (*ImportRun, error)
}

// AllowListRepository is the dynamic access allow list
type AllowListRepository interface {
	IsEmailAllowed(ctx context.Context, email string) (bool, error)
	AddAllowedEmail(ctx context.Context, email string) error
	RemoveAllowedEmail(ctx context.Context, email string) error
	ListAllowedEmails(ctx context.Context) ([]string, error)
}
