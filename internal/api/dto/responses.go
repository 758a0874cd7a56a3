package dto

import "time"

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// CandidateResponse is a normalized record in a preview.
type CandidateResponse struct {
	Index       int                 `json:"index"`
	ID          string              `json:"id"`
	Transaction TransactionResponse `json:"transaction"`
}

// DuplicateResponse is a candidate that already exists in the ledger.
type DuplicateResponse struct {
	CandidateResponse
	Tier             string `json:"tier"`
	LedgerID         int64  `json:"ledger_id"`
	LedgerIdentifier string `json:"ledger_identifier"`
	NeedsReview      bool   `json:"needs_review"`
}

// RejectedResponse is a record that could not be normalized.
type RejectedResponse struct {
	Index  int            `json:"index"`
	Reason string         `json:"reason"`
	Raw    map[string]any `json:"raw,omitempty"`
}

// PreviewResponse is returned by the preview endpoints.
type PreviewResponse struct {
	New         []CandidateResponse `json:"new"`
	Duplicates  []DuplicateResponse `json:"duplicates"`
	Rejected    []RejectedResponse  `json:"rejected"`
	CheckFailed bool                `json:"check_failed"`
	CheckError  string              `json:"check_error,omitempty"`
}

// CommitResponse is returned by the commit endpoints.
type CommitResponse struct {
	RunID      int64            `json:"run_id"`
	BatchID    string           `json:"batch_id"`
	DryRun     bool             `json:"dry_run"`
	Inserted   int              `json:"inserted"`
	Conflicts  int              `json:"conflicts"`
	Duplicates int              `json:"duplicates"`
	Rejected   int              `json:"rejected"`
	Forced     int              `json:"forced"`
	Pending    int              `json:"pending,omitempty"`
	Suppressed []string         `json:"suppressed_archive_references,omitempty"`
	ArchiveURI string           `json:"archive_uri,omitempty"`
	Preview    *PreviewResponse `json:"preview,omitempty"`
}

// ImportRunResponse represents an import run in API responses.
type ImportRunResponse struct {
	ID           int64  `json:"id"`
	BatchID      string `json:"batch_id"`
	SourceKind   string `json:"source_kind,omitempty"`
	Origin       string `json:"origin,omitempty"`
	Filename     string `json:"filename,omitempty"`
	DryRun       bool   `json:"dry_run"`
	StartedAt    string `json:"started_at"`
	CompletedAt  string `json:"completed_at,omitempty"`
	Candidates   int    `json:"candidates"`
	Inserted     int    `json:"inserted"`
	Duplicates   int    `json:"duplicates"`
	Rejected     int    `json:"rejected"`
	Conflicts    int    `json:"conflicts"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ImportRunListResponse is returned when listing import runs.
type ImportRunListResponse struct {
	Runs  []ImportRunResponse `json:"runs"`
	Count int                 `json:"count"`
}

// WebhookResponse acknowledges a webhook delivery.
type WebhookResponse struct {
	Received    bool   `json:"received"`
	EventID     string `json:"event_id,omitempty"`
	Ignored     bool   `json:"ignored,omitempty"`
	Inserted    int    `json:"inserted"`
	NeedsReview bool   `json:"needs_review,omitempty"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
