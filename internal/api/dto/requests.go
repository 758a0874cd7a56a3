package dto

import "encoding/json"

// ImportRequest is the JSON form of an import batch. Uploads use multipart
// instead.
type ImportRequest struct {
	Kind     string           `json:"kind"`
	Currency string           `json:"currency,omitempty"` // used when a record has none
	Project  string           `json:"project,omitempty"`
	Unit     string           `json:"unit,omitempty"` // minor, major or auto (default)
	Records  []map[string]any `json:"records"`
	Force    []string         `json:"force,omitempty"`
	DryRun   bool             `json:"dry_run,omitempty"`
}

// TransactionRequest is a manually entered transaction.
type TransactionRequest struct {
	Kind             string      `json:"kind"`
	Amount           json.Number `json:"amount"`
	AmountUnit       string      `json:"amount_unit,omitempty"`
	Currency         string      `json:"currency,omitempty"`
	Date             string      `json:"date,omitempty"`
	Direction        string      `json:"direction,omitempty"`
	Description      string      `json:"description,omitempty"`
	Counterparty     string      `json:"counterparty,omitempty"`
	Project          string      `json:"project,omitempty"`
	PaymentID        string      `json:"payment_id,omitempty"`
	ArchiveReference string      `json:"archive_reference,omitempty"`
	BankReference    string      `json:"bank_reference,omitempty"`
	Force            bool        `json:"force,omitempty"` // import even if it only matches heuristically
}

// TransactionListParams represents query parameters for listing transactions.
type TransactionListParams struct {
	Project  string `json:"project"`
	Currency string `json:"currency"`
	Kind     string `json:"kind"`
	From     string `json:"from"`
	To       string `json:"to"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
}

// DefaultTransactionListParams returns default values for transaction list params.
func DefaultTransactionListParams() TransactionListParams {
	return TransactionListParams{
		Limit: 50,
	}
}
