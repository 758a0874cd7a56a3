package storage

import (
	"strconv"
	"strings"
	"time"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
)

const dateLayout = "2006-01-02"

const entryColumns = `id, source_kind, origin, direction, amount, currency, occurred_on,
	project, description, counterparty, payment_id, archive_reference,
	bank_reference, composite_key, source_reference, batch_id, created_at`

const insertEntryColumns = `source_kind, origin, direction, amount, currency, occurred_on,
	project, description, counterparty, payment_id, archive_reference,
	bank_reference, composite_key, source_reference, batch_id, created_at`

// dialect captures the few differences between the SQLite and Postgres SQL.
type dialect struct {
	placeholder func(n int) string
	date        func(t time.Time) any
	noLimit     string
	hasDate     string // condition true when occurred_on is set
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	date: func(t time.Time) any {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(dateLayout)
	},
	noLimit: "-1",
	hasDate: "occurred_on <> ''",
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	date: func(t time.Time) any {
		if t.IsZero() {
			return nil
		}
		return t.UTC().Truncate(24 * time.Hour)
	},
	noLimit: "ALL",
	hasDate: "occurred_on IS NOT NULL",
}

func (d dialect) placeholders(start, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = d.placeholder(start + i)
	}
	return strings.Join(parts, ", ")
}

// insertEntrySQL returns the insert statement. Rows that violate any unique
// index are skipped.
func (d dialect) insertEntrySQL() string {
	return "INSERT INTO ledger_entries (" + insertEntryColumns + ") VALUES (" +
		d.placeholders(1, 16) + ") ON CONFLICT DO NOTHING"
}

func (d dialect) insertEntryArgs(e ledger.Entry, createdAt time.Time) []any {
	return []any{
		string(e.SourceKind),
		string(e.Origin),
		string(e.Direction),
		e.Amount,
		strings.ToLower(e.Currency),
		d.date(e.OccurredOn),
		e.Project,
		e.Description,
		e.Counterparty,
		strings.TrimSpace(e.PaymentID),
		strings.TrimSpace(e.ArchiveReference),
		strings.TrimSpace(e.BankReference),
		e.CompositeKey,
		e.SourceReference,
		e.BatchID,
		createdAt,
	}
}

// entryWhere builds the WHERE clause for EntryFilters.
func (d dialect) entryWhere(f EntryFilters) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.Replace(cond, "?", d.placeholder(len(args)), 1))
	}

	if f.Project != "" {
		add("project = ?", f.Project)
	}
	if f.Currency != "" {
		add("currency = ?", strings.ToLower(f.Currency))
	}
	if f.SourceKind != "" {
		add("source_kind = ?", string(f.SourceKind))
	}
	if f.Direction != "" {
		add("direction = ?", string(f.Direction))
	}
	if !f.From.IsZero() {
		add("occurred_on >= ?", d.date(f.From))
	}
	if !f.To.IsZero() {
		add("occurred_on <= ?", d.date(f.To))
		conds = append(conds, d.hasDate)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// pageClause appends LIMIT/OFFSET. A negative limit means no limit.
func (d dialect) pageClause(limit, offset int, args []any) (string, []any) {
	if limit < 0 {
		if offset > 0 {
			args = append(args, offset)
			return " LIMIT " + d.noLimit + " OFFSET " + d.placeholder(len(args)), args
		}
		return "", args
	}
	args = append(args, limit)
	clause := " LIMIT " + d.placeholder(len(args))
	args = append(args, offset)
	clause += " OFFSET " + d.placeholder(len(args))
	return clause, args
}

func parseStoredDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
