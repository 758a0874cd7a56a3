package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/ledgerbook/internal/api/dto"
	"github.com/eshaffer321/ledgerbook/internal/application/importer"
	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

// formatMinor renders minor units as a major-unit string, e.g. 60000 -> "600.00".
func formatMinor(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func toTransactionResponse(e ledger.Entry) dto.TransactionResponse {
	resp := dto.TransactionResponse{
		ID:               e.ID,
		SourceKind:       string(e.SourceKind),
		Origin:           string(e.Origin),
		Direction:        string(e.Direction),
		Amount:           e.Amount,
		AmountFormatted:  formatMinor(e.Amount),
		Currency:         e.Currency,
		Date:             formatDate(e.OccurredOn),
		Project:          e.Project,
		Description:      e.Description,
		Counterparty:     e.Counterparty,
		PaymentID:        e.PaymentID,
		ArchiveReference: e.ArchiveReference,
		BankReference:    e.BankReference,
		SourceReference:  e.SourceReference,
		BatchID:          e.BatchID,
	}
	if !e.CreatedAt.IsZero() {
		resp.CreatedAt = e.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toCandidateResponse(c importer.Candidate) dto.CandidateResponse {
	return dto.CandidateResponse{
		Index:       c.Index,
		ID:          c.ID,
		Transaction: toTransactionResponse(c.Entry),
	}
}

func toPreviewResponse(p *importer.Preview) *dto.PreviewResponse {
	if p == nil {
		return nil
	}
	resp := &dto.PreviewResponse{
		New:         make([]dto.CandidateResponse, 0, len(p.New)),
		Duplicates:  make([]dto.DuplicateResponse, 0, len(p.Duplicates)),
		Rejected:    make([]dto.RejectedResponse, 0, len(p.Rejected)),
		CheckFailed: p.CheckFailed,
		CheckError:  p.CheckError,
	}
	for _, c := range p.New {
		resp.New = append(resp.New, toCandidateResponse(c))
	}
	for _, d := range p.Duplicates {
		resp.Duplicates = append(resp.Duplicates, dto.DuplicateResponse{
			CandidateResponse: toCandidateResponse(d.Candidate),
			Tier:              d.Tier,
			LedgerID:          d.LedgerID,
			LedgerIdentifier:  d.LedgerIdentifier,
			NeedsReview:       d.NeedsReview,
		})
	}
	for _, rej := range p.Rejected {
		resp.Rejected = append(resp.Rejected, dto.RejectedResponse{Index: rej.Index, Reason: rej.Reason, Raw: rej.Raw})
	}
	return resp
}

func toCommitResponse(r *importer.CommitResult) dto.CommitResponse {
	return dto.CommitResponse{
		RunID:      r.RunID,
		BatchID:    r.BatchID,
		DryRun:     r.DryRun,
		Inserted:   r.Inserted,
		Conflicts:  r.Conflicts,
		Duplicates: r.Duplicates,
		Rejected:   r.Rejected,
		Forced:     r.Forced,
		Pending:    r.Pending,
		Suppressed: r.Suppressed,
		ArchiveURI: r.ArchiveURI,
		Preview:    toPreviewResponse(r.Preview),
	}
}

func toImportRunResponse(run storage.ImportRun) dto.ImportRunResponse {
	resp := dto.ImportRunResponse{
		ID:           run.ID,
		BatchID:      run.BatchID,
		SourceKind:   run.SourceKind,
		Origin:       run.Origin,
		Filename:     run.Filename,
		DryRun:       run.DryRun,
		StartedAt:    run.StartedAt.UTC().Format(time.RFC3339),
		Candidates:   run.Candidates,
		Inserted:     run.Inserted,
		Duplicates:   run.Duplicates,
		Rejected:     run.Rejected,
		Conflicts:    run.Conflicts,
		Status:       run.Status,
		ErrorMessage: run.ErrorMessage,
	}
	if run.CompletedAt != nil {
		resp.CompletedAt = run.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
