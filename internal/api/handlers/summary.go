package handlers

import (
	"log/slog"
	"net/http"

	"github.com/eshaffer321/ledgerbook/internal/api/dto"
	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/domain/report"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

// SummaryHandler serves revenue/expense aggregates.
type SummaryHandler struct {
	*Base
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(repo storage.Repository, logger *slog.Logger) *SummaryHandler {
	return &SummaryHandler{Base: NewBase(repo, logger)}
}

// Get handles GET /api/summary. Accepts the same filters as the transaction
// list, without pagination.
func (h *SummaryHandler) Get(w http.ResponseWriter, r *http.Request) {
	filters, err := parseEntryFilters(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	}
	filters.Limit = -1

	result, err := h.repo.ListEntries(r.Context(), filters)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, BuildSummary(result.Entries))
}

// BuildSummary aggregates entries into the summary response. The dashboard
// serves the same shape.
func BuildSummary(entries []ledger.Entry) dto.SummaryResponse {
	summaries := report.Summarize(entries)
	resp := dto.SummaryResponse{
		Rows:     make([]dto.SummaryRow, 0, len(summaries)),
		Totals:   make([]dto.CurrencyTotalResponse, 0),
		Projects: report.Projects(summaries),
	}
	for _, s := range summaries {
		resp.Rows = append(resp.Rows, dto.SummaryRow{
			Project:  s.Project,
			Month:    s.Month,
			Currency: s.Currency,
			Revenue:  s.Revenue,
			Expenses: s.Expenses,
			Profit:   s.Profit,
			Count:    s.Count,
		})
	}
	for _, t := range report.Totals(summaries) {
		resp.Totals = append(resp.Totals, dto.CurrencyTotalResponse{
			Currency: t.Currency,
			Revenue:  t.Revenue,
			Expenses: t.Expenses,
			Profit:   t.Profit,
			Count:    t.Count,
		})
	}
	if resp.Projects == nil {
		resp.Projects = []string{}
	}
	return resp
}
