package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/extraction"
	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/tabular"
	"github.com/eshaffer321/ledgerbook/internal/api/dto"
	"github.com/eshaffer321/ledgerbook/internal/api/middleware"
	"github.com/eshaffer321/ledgerbook/internal/application/importer"
	"github.com/eshaffer321/ledgerbook/internal/domain/normalizer"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

// Base provides shared functionality for all handlers.
type Base struct {
	repo   storage.Repository
	logger *slog.Logger
}

// NewBase creates a new base handler with the given repository.
func NewBase(repo storage.Repository, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{repo: repo, logger: logger}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// invalidInput marks errors caused by the request itself.
type invalidInput struct{ err error }

func (e invalidInput) Error() string { return e.err.Error() }
func (e invalidInput) Unwrap() error { return e.err }

func invalid(err error) error { return invalidInput{err: err} }

// MaxUploadBytes caps a single uploaded file or JSON batch.
const MaxUploadBytes = 32 << 20

// multipartSlack allows for form fields and part headers around the file.
const multipartSlack = 1 << 20

// ErrUploadTooLarge is returned instead of truncating an oversize upload.
var ErrUploadTooLarge = fmt.Errorf("upload exceeds %d bytes", MaxUploadBytes)

// limitBody caps the request body so oversize requests fail while reading.
func limitBody(w http.ResponseWriter, r *http.Request, limit int64) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
}

// readUploadFile reads one uploaded file, failing when it is over the limit.
func readUploadFile(f io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(f, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, ErrUploadTooLarge
	}
	return data, nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.Is(err, ErrUploadTooLarge) || errors.As(err, &maxErr)
}

// WriteServiceError maps an error to a status code: oversize 413, bad input
// 400, lookup unavailable 503, not found 404, anything else 500.
func (b *Base) WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var inputErr invalidInput
	var normErr *normalizer.NormalizationError
	switch {
	case isTooLarge(err):
		b.WriteError(w, http.StatusRequestEntityTooLarge, dto.TooLargeError(MaxUploadBytes))
	case errors.As(err, &inputErr),
		errors.As(err, &normErr),
		errors.Is(err, importer.ErrEmptyBatch),
		errors.Is(err, tabular.ErrNoHeader),
		errors.Is(err, tabular.ErrUnknownKind),
		errors.Is(err, extraction.ErrNotAnImage):
		b.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
	case errors.Is(err, importer.ErrLookupUnavailable):
		middleware.Logger(r.Context(), b.logger).Warn("ledger lookup unavailable", "error", err)
		b.WriteError(w, http.StatusServiceUnavailable, dto.UnavailableError("the ledger could not be checked for duplicates; try again"))
	case errors.Is(err, storage.ErrNotFound):
		b.WriteError(w, http.StatusNotFound, dto.NotFoundError("resource"))
	default:
		middleware.Logger(r.Context(), b.logger).Error("request failed", "path", r.URL.Path, "error", err)
		b.WriteError(w, http.StatusInternalServerError, dto.InternalError())
	}
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// ParseBoolParam parses a boolean query parameter with a default value.
func ParseBoolParam(r *http.Request, name string, defaultVal bool) bool {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1"
}

func parseIDParam(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid ID")
	}
	return id, nil
}
