// Package normalizer turns heterogeneous import records (Stripe payloads,
// bank statement rows, screenshot extractions, manual entries) into ledger
// entries with a canonical matching tuple.
//
// Each source kind has an explicit, ordered list of field names per value.
// Rules are tried in order until one yields a value. Normalization is a pure
// transform; a record that cannot be normalized is rejected without
// affecting the rest of its batch.
package normalizer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
)

var (
	ErrUnknownKind     = errors.New("unknown source kind")
	ErrNoIdentifier    = errors.New("no identifier could be derived")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrMissingCurrency = errors.New("missing currency")
	ErrInvalidCurrency = errors.New("invalid currency")
)

// NormalizationError explains why a raw record was rejected.
type NormalizationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *NormalizationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Err, e.Reason)
	}
	return fmt.Sprintf("%s (%s): %s", e.Err, e.Field, e.Reason)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// RawRecord is an import-shaped record of unknown field layout.
type RawRecord struct {
	Kind            ledger.SourceKind
	Origin          ledger.Origin
	Unit            ledger.Unit
	DefaultCurrency string         // used only when the record carries no currency
	DefaultProject  string         // used only when the record carries no project
	Fields          map[string]any // keys are matched case-insensitively
}

// Rejection is a record excluded from a batch.
type Rejection struct {
	Index int            `json:"index"`
	Err   error          `json:"-"`
	Raw   map[string]any `json:"raw,omitempty"`
}

// Message returns the rejection reason for display.
func (r Rejection) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Normalize converts one raw record into a ledger entry.
func Normalize(raw RawRecord) (*ledger.Entry, error) {
	sh, ok := shapeFor(raw.Kind)
	if !ok {
		return nil, &NormalizationError{Field: "kind", Reason: fmt.Sprintf("%q", raw.Kind), Err: ErrUnknownKind}
	}
	fields := lowerKeys(raw.Fields)

	unit := raw.Unit
	if unit == "" {
		unit = ledger.UnitAuto
	}

	amountRaw, amountField, ok := sh.amount.lookup(fields)
	if !ok {
		return nil, &NormalizationError{Field: "amount", Reason: "no amount field", Err: ErrInvalidAmount}
	}
	signed, err := ParseAmount(amountRaw, unit)
	if err != nil {
		return nil, &NormalizationError{Field: amountField, Reason: err.Error(), Err: ErrInvalidAmount}
	}

	currency := sh.currency.lookupString(fields)
	if currency == "" {
		currency = raw.DefaultCurrency
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return nil, &NormalizationError{Field: "currency", Reason: "no currency field and no default", Err: ErrMissingCurrency}
	}
	if !isCurrencyCode(currency) {
		return nil, &NormalizationError{Field: "currency", Reason: fmt.Sprintf("%q is not a 3-letter code", currency), Err: ErrInvalidCurrency}
	}

	entry := &ledger.Entry{
		SourceKind:   raw.Kind,
		Origin:       raw.Origin,
		Amount:       abs(signed),
		Currency:     currency,
		Description:  sh.description.lookupString(fields),
		Counterparty: sh.counterparty.lookupString(fields),
		Project:      sh.project.lookupString(fields),
	}
	if entry.Project == "" {
		entry.Project = raw.DefaultProject
	}
	entry.Direction = direction(sh.direction.lookupString(fields), amountField, signed)

	if dateRaw, _, ok := sh.date.lookup(fields); ok {
		if t, ok := parseDate(dateRaw); ok {
			entry.OccurredOn = t
		}
	}

	switch raw.Kind {
	case ledger.SourceStripe:
		entry.PaymentID = sh.paymentID.lookupString(fields)
		if entry.PaymentID == "" {
			return nil, &NormalizationError{Field: "payment_intent", Reason: "no payment identifier", Err: ErrNoIdentifier}
		}
	case ledger.SourceBank:
		entry.ArchiveReference = sh.archiveRef.lookupString(fields)
		entry.BankReference = sh.bankRef.lookupString(fields)
		if entry.ArchiveReference == "" && entry.BankReference == "" {
			key, err := compositeKey(entry)
			if err != nil {
				return nil, err
			}
			entry.CompositeKey = key
		}
	}

	return entry, nil
}

// NormalizeRecord returns only the matching tuple for a raw record.
func NormalizeRecord(raw RawRecord) (ledger.TransactionRecord, error) {
	entry, err := Normalize(raw)
	if err != nil {
		return ledger.TransactionRecord{}, err
	}
	return entry.Record(), nil
}

// NormalizeBatch normalizes every record, collecting rejections instead of
// stopping at the first failure. Accepted entries keep their input order.
func NormalizeBatch(raws []RawRecord) ([]ledger.Entry, []Rejection) {
	entries := make([]ledger.Entry, 0, len(raws))
	var rejected []Rejection
	for i, raw := range raws {
		entry, err := Normalize(raw)
		if err != nil {
			rejected = append(rejected, Rejection{Index: i, Err: err, Raw: raw.Fields})
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, rejected
}

// compositeKey is the last-resort bank identifier: date|amount|counterparty.
func compositeKey(e *ledger.Entry) (string, error) {
	if e.OccurredOn.IsZero() {
		return "", &NormalizationError{Field: "date", Reason: "no archive or bank reference, and no date for a composite key", Err: ErrNoIdentifier}
	}
	party := ledger.NormalizeID(e.Counterparty)
	if party == "" {
		party = ledger.NormalizeID(e.Description)
	}
	if party == "" {
		return "", &NormalizationError{Field: "counterparty", Reason: "no archive or bank reference, and no counterparty for a composite key", Err: ErrNoIdentifier}
	}
	party = strings.Join(strings.Fields(party), " ")
	return e.OccurredOn.Format("2006-01-02") + "|" + formatAmount(e.Amount) + "|" + party, nil
}

func direction(explicit, amountField string, signed int64) ledger.Direction {
	switch strings.ToLower(strings.TrimSpace(explicit)) {
	case "income", "credit", "in", "inn", "charge", "payment", "innskudd":
		return ledger.Income
	case "expense", "debit", "out", "ut", "refund", "fee", "payout", "uttak":
		return ledger.Expense
	}
	switch amountField {
	case "ut", "debit":
		return ledger.Expense
	case "inn", "credit":
		return ledger.Income
	}
	if signed < 0 {
		return ledger.Expense
	}
	return ledger.Income
}

func lowerKeys(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02.01.2006",
	"02/01/2006",
	"2.1.2006",
}

// parseDate accepts ISO dates, RFC3339, Norwegian dd.mm.yyyy and unix seconds.
func parseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Truncate(24 * time.Hour), !t.IsZero()
	case int64:
		return time.Unix(t, 0).UTC().Truncate(24 * time.Hour), t > 0
	case int:
		return time.Unix(int64(t), 0).UTC().Truncate(24 * time.Hour), t > 0
	case float64:
		return time.Unix(int64(t), 0).UTC().Truncate(24 * time.Hour), t > 0
	}
	s, ok := text(v)
	if !ok {
		return time.Time{}, false
	}
	str := s.(string)
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, str); err == nil {
			return parsed.UTC().Truncate(24 * time.Hour), true
		}
	}
	if secs, err := ParseAmount(str, ledger.UnitMinor); err == nil && secs > 100000000 {
		return time.Unix(secs, 0).UTC().Truncate(24 * time.Hour), true
	}
	return time.Time{}, false
}
