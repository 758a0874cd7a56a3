package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
)

// PostgresStorage stores the ledger in Postgres (for example a Supabase
// database). It implements the Repository interface.
type PostgresStorage struct {
	pool    *pgxpool.Pool
	sqlDB   *sql.DB // goose needs database/sql; shares the pool
	dialect dialect
	now     func() time.Time
}

// Compile-time check that PostgresStorage implements Repository
var _ Repository = (*PostgresStorage)(nil)

// NewPostgresStorage connects, migrates and returns a Postgres storage
func NewPostgresStorage(ctx context.Context, url string, logger *slog.Logger) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	if err := runMigrations(ctx, sqlDB, goose.DialectPostgres, "migrations/postgres", logger); err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, err
	}

	return &PostgresStorage{pool: pool, sqlDB: sqlDB, dialect: postgresDialect, now: time.Now}, nil
}

// Close closes the pool
func (s *PostgresStorage) Close() error {
	err := s.sqlDB.Close()
	s.pool.Close()
	return err
}

// ExistingRows returns the matching projection of every ledger row
func (s *PostgresStorage) ExistingRows(ctx context.Context) ([]ledger.LedgerRow, error) {
	rows, err := s.pool.Query(ctx, `
	SELECT id, source_kind, payment_id, archive_reference, bank_reference,
	       source_reference, amount, currency
	FROM ledger_entries
	ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query existing rows: %w", err)
	}
	defer rows.Close()

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
func (s *PostgresStorage) InsertEntries(ctx context.Context, entries []ledger.Entry) (int, int, error) {
	if len(entries) == 0 {
		return 0, 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := s.dialect.insertEntrySQL()
	createdAt := s.now().UTC()
	inserted, conflicts := 0, 0
	for _, e := range entries {
		tag, err := tx.Exec(ctx, query, s.dialect.insertEntryArgs(e, createdAt)...)
		if err != nil {
			return 0, 0, fmt.Errorf("insert %s %q: %w", e.SourceKind, e.SourceReference, err)
		}
		if tag.RowsAffected() == 0 {
			conflicts++
		} else {
			inserted++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit insert: %w", err)
	}
	return inserted, conflicts, nil
}

// ListEntries returns entries matching the given filters, newest first
func (s *PostgresStorage) ListEntries(ctx context.Context, filters EntryFilters) (*EntryListResult, error) {
	where, args := s.dialect.entryWhere(filters)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM ledger_entries"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}

	limit := effectiveLimit(filters.Limit)
	page, args := s.dialect.pageClause(limit, filters.Offset, args)
	query := "SELECT " + entryColumns + " FROM ledger_entries" + where +
		" ORDER BY occurred_on DESC NULLS LAST, id DESC" + page

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	result := &EntryListResult{
		Entries:    make([]ledger.Entry, 0),
		TotalCount: total,
		Limit:      limit,
		Offset:     filters.Offset,
	}
	for rows.Next() {
		e, err := scanPostgresEntry(rows)
		if err != nil {
			return nil, err
		}
		result.Entries = append(result.Entries, *e)
	}
	return result, rows.Err()
}

// GetEntry retrieves an entry by ID
func (s *PostgresStorage) GetEntry(ctx context.Context, id int64) (*ledger.Entry, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+entryColumns+" FROM ledger_entries WHERE id = $1", id)
	e, err := scanPostgresEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func scanPostgresEntry(row pgx.Row) (*ledger.Entry, error) {
	var e ledger.Entry
	var kind, origin, direction string
	var occurredOn *time.Time
	err := row.Scan(
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
	if occurredOn != nil {
		e.OccurredOn = occurredOn.UTC()
	}
	return &e, nil
}

// StartImportRun records the start of an import and returns the run ID
func (s *PostgresStorage) StartImportRun(ctx context.Context, run ImportRun) (int64, error) {
	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = s.now().UTC()
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
	INSERT INTO import_runs (batch_id, source_kind, origin, filename, dry_run, started_at, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id`,
		run.BatchID, run.SourceKind, run.Origin, run.Filename, run.DryRun, startedAt, RunStatusRunning).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("start import run: %w", err)
	}
	return id, nil
}

// CompleteImportRun records the outcome of an import run
func (s *PostgresStorage) CompleteImportRun(ctx context.Context, runID int64, counts ImportCounts, runErr error) error {
	status, msg := runStatus(runErr)
	_, err := s.pool.Exec(ctx, `
	UPDATE import_runs
	SET completed_at = $1, candidates = $2, inserted = $3, duplicates = $4, rejected = $5,
	    conflicts = $6, status = $7, error_message = $8
	WHERE id = $9`,
		s.now().UTC(), counts.Candidates, counts.Inserted, counts.Duplicates, counts.Rejected,
		counts.Conflicts, status, msg, runID)
	if err != nil {
		return fmt.Errorf("complete import run %d: %w", runID, err)
	}
	return nil
}

// ListImportRuns returns recent import runs, newest first
func (s *PostgresStorage) ListImportRuns(ctx context.Context, limit int) ([]ImportRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		"SELECT "+importRunColumns+" FROM import_runs ORDER BY started_at DESC, id DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	defer rows.Close()

	runs := make([]ImportRun, 0)
	for rows.Next() {
		run, err := scanPostgresImportRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetImportRun retrieves an import run by ID
func (s *PostgresStorage) GetImportRun(ctx context.Context, runID int64) (*ImportRun, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+importRunColumns+" FROM import_runs WHERE id = $1", runID)
	run, err := scanPostgresImportRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

func scanPostgresImportRun(row pgx.Row) (*ImportRun, error) {
	var run ImportRun
	err := row.Scan(
		&run.ID, &run.BatchID, &run.SourceKind, &run.Origin, &run.Filename, &run.DryRun, &run.StartedAt,
		&run.CompletedAt, &run.Candidates, &run.Inserted, &run.Duplicates, &run.Rejected, &run.Conflicts,
		&run.Status, &run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// IsEmailAllowed checks the dynamic allow list
func (s *PostgresStorage) IsEmailAllowed(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM allowed_emails WHERE email = $1)", normalizeEmail(email)).Scan(&exists)
	return exists, err
}

// AddAllowedEmail adds an email to the allow list. Adding twice is a no-op.
func (s *PostgresStorage) AddAllowedEmail(ctx context.Context, email string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO allowed_emails (email) VALUES ($1) ON CONFLICT DO NOTHING", normalizeEmail(email))
	return err
}

// RemoveAllowedEmail removes an email from the allow list
func (s *PostgresStorage) RemoveAllowedEmail(ctx context.Context, email string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM allowed_emails WHERE email = $1", normalizeEmail(email))
	return err
}

// ListAllowedEmails returns the allow list sorted by email
func (s *PostgresStorage) ListAllowedEmails(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT email FROM allowed_emails ORDER BY email")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
