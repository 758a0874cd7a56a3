package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
)

// Storage provides SQLite database access for the ledger.
// It implements the Repository interface.
type Storage struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	return NewStorageWithLogger(dbPath, slog.Default().With("system", "storage"))
}

// NewStorageWithLogger creates a SQLite storage that logs applied migrations
// to logger.
func NewStorageWithLogger(dbPath string, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := runMigrations(context.Background(), db, goose.DialectSQLite3, "migrations/sqlite", logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Storage{db: db, dialect: sqliteDialect, now: time.Now}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// ExistingRows returns the matching projection of every ledger row
func (s *Storage) ExistingRows(ctx context.Context) ([]ledger.LedgerRow, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, source_kind, payment_id, archive_reference, bank_reference,
	       source_reference, amount, currency
	FROM ledger_entries
	ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query existing rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []ledger.LedgerRow
	for rows.Next() {
		var r ledger.LedgerRow
		var kind string
		if err := rows.Scan(&r.ID, &kind, &r.PaymentID, &r.ArchiveReference, &r.BankReference,
			&r.SourceReference, &r.Amount, &r.Currency); err != nil {
			return nil, err
		}
		r.SourceKind = ledger.SourceKind(kind)
		result = append(result, r)
	}
	return result, rows.Err()
}

// InsertEntries writes entries in one transaction
func (s *Storage) InsertEntries(ctx context.Context, entries []ledger.Entry) (int, int, error) {
	if len(entries) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.dialect.insertEntrySQL())
	if err != nil {
		return 0, 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	createdAt := s.now().UTC()
	inserted, conflicts := 0, 0
	for _, e := range entries {
		res, err := stmt.ExecContext(ctx, s.dialect.insertEntryArgs(e, createdAt)...)
		if err != nil {
			return 0, 0, fmt.Errorf("insert %s %q: %w", e.SourceKind, e.SourceReference, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, 0, err
		}
		if n == 0 {
			conflicts++
		} else {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit insert: %w", err)
	}
	return inserted, conflicts, nil
}

// ListEntries returns entries matching the given filters, newest first
func (s *Storage) ListEntries(ctx context.Context, filters EntryFilters) (*EntryListResult, error) {
	where, args := s.dialect.entryWhere(filters)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_entries"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}

	limit := effectiveLimit(filters.Limit)
	page, args := s.dialect.pageClause(limit, filters.Offset, args)
	query := "SELECT " + entryColumns + " FROM ledger_entries" + where +
		" ORDER BY occurred_on DESC, id DESC" + page

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := &EntryListResult{
		Entries:    make([]ledger.Entry, 0),
		TotalCount: total,
		Limit:      limit,
		Offset:     filters.Offset,
	}
	for rows.Next() {
		e, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, err
		}
		result.Entries = append(result.Entries, *e)
	}
	return result, rows.Err()
}

// GetEntry retrieves an entry by ID
func (s *Storage) GetEntry(ctx context.Context, id int64) (*ledger.Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM ledger_entries WHERE id = ?", id)
	e, err := scanSQLiteEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEntry(sc scanner) (*ledger.Entry, error) {
	var e ledger.Entry
	var kind, origin, direction, occurredOn string
	err := sc.Scan(
		&e.ID, &kind, &origin, &direction, &e.Amount, &e.Currency, &occurredOn,
		&e.Project, &e.Description, &e.Counterparty, &e.PaymentID, &e.ArchiveReference,
		&e.BankReference, &e.CompositeKey, &e.SourceReference, &e.BatchID, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.SourceKind = ledger.SourceKind(kind)
	e.Origin = ledger.Origin(origin)
	e.Direction = ledger.Direction(direction)
	e.OccurredOn = parseStoredDate(occurredOn)
	return &e, nil
}

// StartImportRun records the start of an import and returns the run ID
func (s *Storage) StartImportRun(ctx context.Context, run ImportRun) (int64, error) {
	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = s.now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO import_runs (batch_id, source_kind, origin, filename, dry_run, started_at, status)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.BatchID, run.SourceKind, run.Origin, run.Filename, run.DryRun, startedAt, RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("start import run: %w", err)
	}
	return res.LastInsertId()
}

// CompleteImportRun records the outcome of an import run
func (s *Storage) CompleteImportRun(ctx context.Context, runID int64, counts ImportCounts, runErr error) error {
	status, msg := runStatus(runErr)
	_, err := s.db.ExecContext(ctx, `
	UPDATE import_runs
	SET completed_at = ?, candidates = ?, inserted = ?, duplicates = ?, rejected = ?,
	    conflicts = ?, status = ?, error_message = ?
	WHERE id = ?`,
		s.now().UTC(), counts.Candidates, counts.Inserted, counts.Duplicates, counts.Rejected,
		counts.Conflicts, status, msg, runID)
	if err != nil {
		return fmt.Errorf("complete import run %d: %w", runID, err)
	}
	return nil
}

const importRunColumns = `id, batch_id, source_kind, origin, filename, dry_run, started_at,
	completed_at, candidates, inserted, duplicates, rejected, conflicts, status, error_message`

// ListImportRuns returns recent import runs, newest first
func (s *Storage) ListImportRuns(ctx context.Context, limit int) ([]ImportRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+importRunColumns+" FROM import_runs ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]ImportRun, 0)
	for rows.Next() {
		run, err := scanSQLiteImportRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetImportRun retrieves an import run by ID
func (s *Storage) GetImportRun(ctx context.Context, runID int64) (*ImportRun, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+importRunColumns+" FROM import_runs WHERE id = ?", runID)
	run, err := scanSQLiteImportRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

func scanSQLiteImportRun(sc scanner) (*ImportRun, error) {
	var run ImportRun
	var completedAt sql.NullTime
	err := sc.Scan(
		&run.ID, &run.BatchID, &run.SourceKind, &run.Origin, &run.Filename, &run.DryRun, &run.StartedAt,
		&completedAt, &run.Candidates, &run.Inserted, &run.Duplicates, &run.Rejected, &run.Conflicts,
		&run.Status, &run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

// IsEmailAllowed checks the dynamic allow list
func (s *Storage) IsEmailAllowed(ctx context.Context, email string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM allowed_emails WHERE email = ?", normalizeEmail(email)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddAllowedEmail adds an email to the allow list. Adding twice is a no-op.
func (s *Storage) AddAllowedEmail(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO allowed_emails (email) VALUES (?) ON CONFLICT DO NOTHING", normalizeEmail(email))
	return err
}

// RemoveAllowedEmail removes an email from the allow list
func (s *Storage) RemoveAllowedEmail(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM allowed_emails WHERE email = ?", normalizeEmail(email))
	return err
}

// ListAllowedEmails returns the allow list sorted by email
func (s *Storage) ListAllowedEmails(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT email FROM allowed_emails ORDER BY email")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}
