package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It enforces the same uniqueness rules as the SQL schema.
type MockRepository struct {
	mu          sync.Mutex
	entries     []ledger.Entry
	runs        map[int64]*ImportRun
	allowed     map[string]struct{}
	nextEntryID int64
	nextRunID   int64

	// Hooks for test assertions
	ExistingRowsCalled   bool
	InsertEntriesCalled  bool
	LastInserted         []ledger.Entry
	StartImportCalled    bool
	CompleteImportCalled bool

	// Error injection for testing error paths
	ExistingRowsErr   error
	InsertEntriesErr  error
	ListEntriesErr    error
	StartImportErr    error
	CompleteImportErr error
	AllowListErr      error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		runs:        make(map[int64]*ImportRun),
		allowed:     make(map[string]struct{}),
		nextEntryID: 1,
		nextRunID:   1,
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// Seed inserts entries directly, bypassing constraints and error injection.
func (m *MockRepository) Seed(entries ...ledger.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		e.ID = m.nextEntryID
		m.nextEntryID++
		m.entries = append(m.entries, e)
	}
}

// Entries returns a copy of everything stored
func (m *MockRepository) Entries() []ledger.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// ExistingRows returns the projection of stored entries
func (m *MockRepository) ExistingRows(_ context.Context) ([]ledger.LedgerRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExistingRowsCalled = true
	if m.ExistingRowsErr != nil {
		return nil, m.ExistingRowsErr
	}
	rows := make([]ledger.LedgerRow, 0, len(m.entries))
	for _, e := range m.entries {
		rows = append(rows, e.Row())
	}
	return rows, nil
}

// InsertEntries stores entries, skipping those that would violate a unique index
func (m *MockRepository) InsertEntries(_ context.Context, entries []ledger.Entry) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertEntriesCalled = true
	m.LastInserted = append([]ledger.Entry(nil), entries...)
	if m.InsertEntriesErr != nil {
		return 0, 0, m.InsertEntriesErr
	}

	inserted, conflicts := 0, 0
	now := time.Now().UTC()
	for _, e := range entries {
		if m.conflicts(e) {
			conflicts++
			continue
		}
		e.ID = m.nextEntryID
		m.nextEntryID++
		e.CreatedAt = now
		m.entries = append(m.entries, e)
		inserted++
	}
	return inserted, conflicts, nil
}

func (m *MockRepository) conflicts(e ledger.Entry) bool {
	for _, existing := range m.entries {
		if existing.SourceKind != e.SourceKind {
			continue
		}
		if existing.SourceReference == e.SourceReference {
			return true
		}
		switch e.SourceKind {
		case ledger.SourceStripe:
			if ledger.NormalizeID(existing.PaymentID) == ledger.NormalizeID(e.PaymentID) {
				return true
			}
		case ledger.SourceBank:
			ref := ledger.NormalizeID(e.ArchiveReference)
			if ref != "" && ledger.NormalizeID(existing.ArchiveReference) == ref {
				return true
			}
		}
	}
	return false
}

// ListEntries filters and paginates stored entries, newest first
func (m *MockRepository) ListEntries(_ context.Context, filters EntryFilters) (*EntryListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListEntriesErr != nil {
		return nil, m.ListEntriesErr
	}

	matched := make([]ledger.Entry, 0)
	for _, e := range m.entries {
		if filters.Project != "" && e.Project != filters.Project {
			continue
		}
		if filters.Currency != "" && e.Currency != strings.ToLower(filters.Currency) {
			continue
		}
		if filters.SourceKind != "" && e.SourceKind != filters.SourceKind {
			continue
		}
		if filters.Direction != "" && e.Direction != filters.Direction {
			continue
		}
		if !filters.From.IsZero() && e.OccurredOn.Before(filters.From) {
			continue
		}
		if !filters.To.IsZero() && (e.OccurredOn.IsZero() || e.OccurredOn.After(filters.To)) {
			continue
		}
		matched = append(matched, e)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].OccurredOn.Equal(matched[j].OccurredOn) {
			return matched[i].OccurredOn.After(matched[j].OccurredOn)
		}
		return matched[i].ID > matched[j].ID
	})

	limit := effectiveLimit(filters.Limit)
	result := &EntryListResult{TotalCount: len(matched), Limit: limit, Offset: filters.Offset}
	start := filters.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if limit >= 0 && start+limit < end {
		end = start + limit
	}
	result.Entries = matched[start:end]
	return result, nil
}

// GetEntry retrieves an entry by ID
func (m *MockRepository) GetEntry(_ context.Context, id int64) (*ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			found := e
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

// StartImportRun creates a new import run and returns its ID
func (m *MockRepository) StartImportRun(_ context.Context, run ImportRun) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StartImportCalled = true
	if m.StartImportErr != nil {
		return 0, m.StartImportErr
	}

	run.ID = m.nextRunID
	m.nextRunID++
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = RunStatusRunning
	m.runs[run.ID] = &run
	return run.ID, nil
}

// CompleteImportRun marks an import run as complete
func (m *MockRepository) CompleteImportRun(_ context.Context, runID int64, counts ImportCounts, runErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteImportCalled = true
	if m.CompleteImportErr != nil {
		return m.CompleteImportErr
	}

	run, ok := m.runs[runID]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Candidates = counts.Candidates
	run.Inserted = counts.Inserted
	run.Duplicates = counts.Duplicates
	run.Rejected = counts.Rejected
	run.Conflicts = counts.Conflicts
	run.Status, run.ErrorMessage = runStatus(runErr)
	return nil
}

// ListImportRuns returns import runs, newest first
func (m *MockRepository) ListImportRuns(_ context.Context, limit int) ([]ImportRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = defaultListLimit
	}
	runs := make([]ImportRun, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, *r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetImportRun retrieves an import run by ID
func (m *MockRepository) GetImportRun(_ context.Context, runID int64) (*ImportRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *run
	return &copied, nil
}

// IsEmailAllowed checks the in-memory allow list
func (m *MockRepository) IsEmailAllowed(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AllowListErr != nil {
		return false, m.AllowListErr
	}
	_, ok := m.allowed[normalizeEmail(email)]
	return ok, nil
}

// AddAllowedEmail adds an email to the in-memory allow list
func (m *MockRepository) AddAllowedEmail(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AllowListErr != nil {
		return m.AllowListErr
	}
	m.allowed[normalizeEmail(email)] = struct{}{}
	return nil
}

// RemoveAllowedEmail removes an email from the in-memory allow list
func (m *MockRepository) RemoveAllowedEmail(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.allowed, normalizeEmail(email))
	return nil
}

// ListAllowedEmails returns the allow list sorted by email
func (m *MockRepository) ListAllowedEmails(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.allowed))
	for e := range m.allowed {
		out = append(out, e)
	}
	sort.Strings(out)
	return out, nil
}
