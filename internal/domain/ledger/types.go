// Package ledger holds the transaction types shared by the importer, the
// matcher and the storage layer.
//
// Amounts are always non-negative integers in minor currency units (cents,
// øre). Whether money came in or went out is carried by Direction.
package ledger

import (
	"strings"
	"time"
)

// SourceKind is the mutually exclusive provenance of a transaction. It decides
// which identifier field is authoritative.
type SourceKind string

const (
	SourceStripe SourceKind = "stripe"
	SourceBank   SourceKind = "bank"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	return k == SourceStripe || k == SourceBank
}

// ParseSourceKind parses a source kind, case-insensitively.
func ParseSourceKind(s string) (SourceKind, bool) {
	k := SourceKind(strings.ToLower(strings.TrimSpace(s)))
	return k, k.Valid()
}

// Origin is the front end that produced a row.
type Origin string

const (
	OriginWebhook    Origin = "webhook"
	OriginCSV        Origin = "csv"
	OriginXLSX       Origin = "xlsx"
	OriginScreenshot Origin = "screenshot"
	OriginManual     Origin = "manual"
)

// Direction carries the sign of a transaction.
type Direction string

const (
	Income  Direction = "income"
	Expense Direction = "expense"
)

// Unit declares how a raw amount is expressed.
type Unit string

const (
	UnitMinor Unit = "minor" // integer cents/øre, passed through
	UnitMajor Unit = "major" // decimal kroner/dollars, multiplied by 100
	UnitAuto  Unit = "auto"  // decided by the presence of a fractional separator
)

// TransactionRecord is the canonical tuple used for duplicate matching only.
type TransactionRecord struct {
	SourceKind  SourceKind
	PrimaryID   string // stripe payment id, or bank archive reference
	SecondaryID string // bank reference, used when PrimaryID is empty
	Amount      int64
	Currency    string
}

// ID returns the derived identifier: primary if present, else secondary.
func (r TransactionRecord) ID() string {
	if id := NormalizeID(r.PrimaryID); id != "" {
		return id
	}
	return NormalizeID(r.SecondaryID)
}

// LedgerRow is the read-only projection of a persisted row that matching needs.
type LedgerRow struct {
	ID               int64
	SourceKind       SourceKind
	PaymentID        string
	ArchiveReference string
	BankReference    string
	SourceReference  string
	Amount           int64
	Currency         string
}

// Identifier returns the row's authoritative identifier for its source kind.
func (r LedgerRow) Identifier() string {
	if r.SourceKind == SourceStripe {
		return NormalizeID(r.PaymentID)
	}
	if id := NormalizeID(r.ArchiveReference); id != "" {
		return id
	}
	if id := NormalizeID(r.BankReference); id != "" {
		return id
	}
	return NormalizeID(r.SourceReference)
}

// Entry is a full ledger row as persisted.
type Entry struct {
	ID               int64      `json:"id"`
	SourceKind       SourceKind `json:"source_kind"`
	Origin           Origin     `json:"origin"`
	Direction        Direction  `json:"direction"`
	Amount           int64      `json:"amount"`
	Currency         string     `json:"currency"`
	OccurredOn       time.Time  `json:"occurred_on"`
	Project          string     `json:"project,omitempty"`
	Description      string     `json:"description,omitempty"`
	Counterparty     string     `json:"counterparty,omitempty"`
	PaymentID        string     `json:"payment_id,omitempty"`
	ArchiveReference string     `json:"archive_reference,omitempty"`
	BankReference    string     `json:"bank_reference,omitempty"`
	CompositeKey     string     `json:"composite_key,omitempty"`
	SourceReference  string     `json:"source_reference"`
	BatchID          string     `json:"batch_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Record builds the matching tuple for this entry.
func (e Entry) Record() TransactionRecord {
	rec := TransactionRecord{
		SourceKind: e.SourceKind,
		Amount:     e.Amount,
		Currency:   strings.ToLower(e.Currency),
	}
	switch e.SourceKind {
	case SourceStripe:
		rec.PrimaryID = e.PaymentID
	case SourceBank:
		rec.PrimaryID = e.ArchiveReference
		rec.SecondaryID = e.BankReference
		if NormalizeID(rec.SecondaryID) == "" {
			rec.SecondaryID = e.CompositeKey
		}
	}
	return rec
}

// Row builds the matching projection for this entry.
func (e Entry) Row() LedgerRow {
	return LedgerRow{
		ID:               e.ID,
		SourceKind:       e.SourceKind,
		PaymentID:        e.PaymentID,
		ArchiveReference: e.ArchiveReference,
		BankReference:    e.BankReference,
		SourceReference:  e.SourceReference,
		Amount:           e.Amount,
		Currency:         strings.ToLower(e.Currency),
	}
}

// SignedAmount returns the amount with expenses negative.
func (e Entry) SignedAmount() int64 {
	if e.Direction == Expense {
		return -e.Amount
	}
	return e.Amount
}

// NormalizeID trims whitespace and lowercases an identifier. All identifier
// comparisons go through here.
func NormalizeID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
