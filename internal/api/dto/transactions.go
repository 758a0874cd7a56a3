package dto

// TransactionResponse represents a ledger entry in API responses.
// Amount is in minor units; AmountFormatted is the major-unit string.
type TransactionResponse struct {
	ID               int64  `json:"id,omitempty"`
	SourceKind       string `json:"source_kind"`
	Origin           string `json:"origin,omitempty"`
	Direction        string `json:"direction"`
	Amount           int64  `json:"amount"`
	AmountFormatted  string `json:"amount_formatted"`
	Currency         string `json:"currency"`
	Date             string `json:"date,omitempty"`
	Project          string `json:"project,omitempty"`
	Description      string `json:"description,omitempty"`
	Counterparty     string `json:"counterparty,omitempty"`
	PaymentID        string `json:"payment_id,omitempty"`
	ArchiveReference string `json:"archive_reference,omitempty"`
	BankReference    string `json:"bank_reference,omitempty"`
	SourceReference  string `json:"source_reference,omitempty"`
	BatchID          string `json:"batch_id,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
}

// TransactionListResponse is returned when listing transactions.
type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	TotalCount   int                   `json:"total_count"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

// SummaryRow is one (project, month, currency) bucket.
type SummaryRow struct {
	Project  string `json:"project"`
	Month    string `json:"month"`
	Currency string `json:"currency"`
	Revenue  int64  `json:"revenue"`
	Expenses int64  `json:"expenses"`
	Profit   int64  `json:"profit"`
	Count    int    `json:"count"`
}

// CurrencyTotalResponse rolls a summary up per currency.
type CurrencyTotalResponse struct {
	Currency string `json:"currency"`
	Revenue  int64  `json:"revenue"`
	Expenses int64  `json:"expenses"`
	Profit   int64  `json:"profit"`
	Count    int    `json:"count"`
}

// SummaryResponse is returned by the summary endpoint.
type SummaryResponse struct {
	Rows     []SummaryRow            `json:"rows"`
	Totals   []CurrencyTotalResponse `json:"totals"`
	Projects []string                `json:"projects"`
}
