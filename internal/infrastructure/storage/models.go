package storage

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Import run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

const defaultListLimit = 50

// ImportRun represents one preview or commit of an import batch
type ImportRun struct {
	ID           int64      `json:"id"`
	BatchID      string     `json:"batch_id"`
	SourceKind   string     `json:"source_kind"`
	Origin       string     `json:"origin"`
	Filename     string     `json:"filename,omitempty"`
	DryRun       bool       `json:"dry_run"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Candidates   int        `json:"candidates"`
	Inserted     int        `json:"inserted"`
	Duplicates   int        `json:"duplicates"`
	Rejected     int        `json:"rejected"`
	Conflicts    int        `json:"conflicts"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// ImportCounts are the outcome counters recorded when a run completes
type ImportCounts struct {
	Candidates int
	Inserted   int
	Duplicates int
	Rejected   int
	Conflicts  int
}

func runStatus(runErr error) (string, string) {
	if runErr != nil {
		return RunStatusFailed, runErr.Error()
	}
	return RunStatusCompleted, ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func effectiveLimit(limit int) int {
	if limit == 0 {
		return defaultListLimit
	}
	return limit
}
