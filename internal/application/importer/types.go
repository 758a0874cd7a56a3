package importer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/domain/matcher"
	"github.com/eshaffer321/ledgerbook/internal/domain/normalizer"
)

var (
	// ErrLookupUnavailable means the existing ledger could not be read, so
	// duplicates cannot be ruled out.
	ErrLookupUnavailable = errors.New("ledger lookup unavailable")
	ErrEmptyBatch        = errors.New("batch has no records")
)

// LookupFailurePolicy decides what Preview does when the ledger read fails.
type LookupFailurePolicy string

const (
	PolicyBlock LookupFailurePolicy = "block"
	PolicyWarn  LookupFailurePolicy = "warn"
)

// ParseLookupFailurePolicy accepts "block", "warn" or empty (block).
func ParseLookupFailurePolicy(s string) (LookupFailurePolicy, error) {
	switch p := LookupFailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyBlock:
		return PolicyBlock, nil
	case PolicyWarn:
		return PolicyWarn, nil
	default:
		return "", fmt.Errorf("unknown lookup failure policy %q", s)
	}
}

// Config holds importer settings
type Config struct {
	Matcher             matcher.Config
	LookupFailurePolicy LookupFailurePolicy
}

// DefaultConfig blocks on lookup failure and uses the default matcher.
func DefaultConfig() Config {
	return Config{
		Matcher:             matcher.DefaultConfig(),
		LookupFailurePolicy: PolicyBlock,
	}
}

// Batch is one upload or delivery of raw records.
type Batch struct {
	Records     []normalizer.RawRecord
	Kind        ledger.SourceKind
	Origin      ledger.Origin
	Filename    string
	Upload      []byte // original file; archived on commit when set
	ContentType string
}

// Candidate is a normalized record that is not yet in the ledger.
type Candidate struct {
	Index int          `json:"index"` // position in Batch.Records
	ID    string       `json:"id"`    // normalized derived identifier
	Entry ledger.Entry `json:"entry"`
}

// Duplicate is a candidate the matcher found in the ledger.
type Duplicate struct {
	Candidate
	Tier             string `json:"tier"`
	LedgerID         int64  `json:"ledger_id"`
	LedgerIdentifier string `json:"ledger_identifier"`
	NeedsReview      bool   `json:"needs_review"`

	tier matcher.Tier
}

// Rejected is a raw record that could not be normalized.
type Rejected struct {
	Index  int            `json:"index"`
	Reason string         `json:"reason"`
	Raw    map[string]any `json:"raw,omitempty"`
}

// Preview is what a commit of the batch would do.
type Preview struct {
	New        []Candidate `json:"new"`
	Duplicates []Duplicate `json:"duplicates"`
	Rejected   []Rejected  `json:"rejected"`

	// CheckFailed is set only under PolicyWarn when the ledger could not be
	// read. Every candidate is then listed as new.
	CheckFailed bool   `json:"check_failed"`
	CheckError  string `json:"check_error,omitempty"`
}

// Candidates is the number of records that normalized.
func (p *Preview) Candidates() int {
	return len(p.New) + len(p.Duplicates)
}

// CommitOptions control a commit.
type CommitOptions struct {
	// Force lists candidate ids whose heuristic (amount+currency) match the
	// user has reviewed and wants imported anyway. Ids matched by reference
	// or payment id are never forced.
	Force []string
	// DryRun gates and counts without writing entries or archiving.
	DryRun bool
	// ReferenceOnly lets only the reference tiers suppress a candidate.
	// Heuristic matches are written anyway and listed in CommitResult.Flagged.
	// Used for single signed processor deliveries, where the payment id is
	// authoritative and nobody is around to force a reviewed row.
	ReferenceOnly bool
}

// CommitResult summarizes a commit.
type CommitResult struct {
	RunID      int64    `json:"run_id"`
	BatchID    string   `json:"batch_id"`
	DryRun     bool     `json:"dry_run"`
	Inserted   int      `json:"inserted"`
	Conflicts  int      `json:"conflicts"` // refused by the unique constraints
	Duplicates int      `json:"duplicates"`
	Rejected   int      `json:"rejected"`
	Forced     int      `json:"forced"`
	Flagged    []string `json:"flagged,omitempty"` // heuristic matches written under ReferenceOnly
	Pending    int      `json:"pending"` // rows a dry run would have written
	Suppressed []string `json:"suppressed_archive_references,omitempty"`
	ArchiveURI string   `json:"archive_uri,omitempty"`
	Preview    *Preview `json:"preview"`
}
