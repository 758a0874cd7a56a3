package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/ledgerbook/internal/api/dto"
	"github.com/eshaffer321/ledgerbook/internal/application/importer"
	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/domain/normalizer"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

// TransactionsHandler handles ledger entry requests.
type TransactionsHandler struct {
	*Base
	importer        *importer.Service
	defaultCurrency string
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(repo storage.Repository, svc *importer.Service, defaultCurrency string, logger *slog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		Base:            NewBase(repo, logger),
		importer:        svc,
		defaultCurrency: defaultCurrency,
	}
}

// Create handles POST /api/transactions - a manually entered transaction.
// Responds 201 when written and 409 when it already exists.
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.TransactionRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid JSON body"))
		return
	}

	manual := importer.ManualEntry{
		Kind:             req.Kind,
		Amount:           req.Amount,
		AmountUnit:       req.AmountUnit,
		Currency:         req.Currency,
		Date:             req.Date,
		Direction:        req.Direction,
		Description:      req.Description,
		Counterparty:     req.Counterparty,
		Project:          req.Project,
		PaymentID:        req.PaymentID,
		ArchiveReference: req.ArchiveReference,
		BankReference:    req.BankReference,
	}
	rec, err := manual.Record(h.defaultCurrency)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	}
	// normalize up front so a bad entry is a 400 instead of a rejected batch
	entry, err := normalizer.Normalize(rec)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	}

	var opts importer.CommitOptions
	if req.Force {
		opts.Force = []string{entry.Record().ID()}
	}
	result, err := h.importer.Commit(r.Context(), importer.Batch{
		Records: []normalizer.RawRecord{rec},
		Kind:    rec.Kind,
		Origin:  ledger.OriginManual,
	}, opts)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Inserted == 0 {
		status = http.StatusConflict
	}
	h.WriteJSON(w, status, toCommitResponse(result))
}

// List handles GET /api/transactions.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters, err := parseEntryFilters(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	}
	filters.Limit = ParseIntParam(r, "limit", dto.DefaultTransactionListParams().Limit)
	filters.Offset = ParseIntParam(r, "offset", 0)
	if filters.Limit < 1 || filters.Limit > 500 {
		filters.Limit = dto.DefaultTransactionListParams().Limit
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}

	result, err := h.repo.ListEntries(r.Context(), filters)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	response := dto.TransactionListResponse{
		Transactions: make([]dto.TransactionResponse, 0, len(result.Entries)),
		TotalCount:   result.TotalCount,
		Limit:        result.Limit,
		Offset:       result.Offset,
	}
	for _, e := range result.Entries {
		response.Transactions = append(response.Transactions, toTransactionResponse(e))
	}
	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/transactions/{id}.
func (h *TransactionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid transaction ID"))
		return
	}

	entry, err := h.repo.GetEntry(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("transaction"))
		return
	}
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, toTransactionResponse(*entry))
}

// parseEntryFilters reads project, currency, kind, direction, from and to.
func parseEntryFilters(r *http.Request) (storage.EntryFilters, error) {
	q := r.URL.Query()
	filters := storage.EntryFilters{
		Project:  strings.TrimSpace(q.Get("project")),
		Currency: strings.TrimSpace(q.Get("currency")),
	}

	if k := q.Get("kind"); k != "" {
		kind, ok := ledger.ParseSourceKind(k)
		if !ok {
			return filters, fmt.Errorf("unknown kind %q", k)
		}
		filters.SourceKind = kind
	}
	switch d := ledger.Direction(strings.ToLower(q.Get("direction"))); d {
	case "":
	case ledger.Income, ledger.Expense:
		filters.Direction = d
	default:
		return filters, fmt.Errorf("direction must be income or expense, got %q", d)
	}

	var err error
	if filters.From, err = parseDateParam(q.Get("from")); err != nil {
		return filters, err
	}
	if filters.To, err = parseDateParam(q.Get("to")); err != nil {
		return filters, err
	}
	return filters, nil
}

func parseDateParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("dates must be YYYY-MM-DD, got %q", v)
	}
	return t, nil
}
