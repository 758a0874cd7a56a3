package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/extraction"
	"github.com/eshaffer321/ledgerbook/internal/api/dto"
	"github.com/eshaffer321/ledgerbook/internal/application/importer"
	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

// ExtractionsHandler imports transactions read from screenshots.
type ExtractionsHandler struct {
	*Base
	extractor       extraction.Extractor
	importer        *importer.Service
	defaultCurrency string
}

// NewExtractionsHandler creates a new extractions handler. extractor may be
// nil, in which case every request gets 503.
func NewExtractionsHandler(repo storage.Repository, ex extraction.Extractor, svc *importer.Service, defaultCurrency string, logger *slog.Logger) *ExtractionsHandler {
	return &ExtractionsHandler{
		Base:            NewBase(repo, logger),
		extractor:       ex,
		importer:        svc,
		defaultCurrency: defaultCurrency,
	}
}

// Create handles POST /api/extractions. Fields: file (image), kind
// (required), currency, project, commit, force. Without commit=true the
// response is a preview.
func (h *ExtractionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.extractor == nil {
		h.WriteError(w, http.StatusServiceUnavailable, dto.UnavailableError(extraction.ErrDisabled.Error()))
		return
	}
	limitBody(w, r, MaxUploadBytes+multipartSlack)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		if isTooLarge(err) {
			h.WriteError(w, http.StatusRequestEntityTooLarge, dto.TooLargeError(MaxUploadBytes))
			return
		}
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("file is required"))
		return
	}
	defer file.Close()

	kind, ok := ledger.ParseSourceKind(r.FormValue("kind"))
	if !ok {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("kind must be stripe or bank"))
		return
	}

	data, err := readUploadFile(file)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	currency := strings.TrimSpace(r.FormValue("currency"))
	if currency == "" {
		currency = h.defaultCurrency
	}
	img := extraction.Image{Data: data, MIMEType: header.Header.Get("Content-Type"), Filename: header.Filename}
	records, err := extraction.Records(r.Context(), h.extractor, img, extraction.Options{
		Kind:            kind,
		DefaultCurrency: currency,
		DefaultProject:  strings.TrimSpace(r.FormValue("project")),
	})
	if err != nil {
		if errors.Is(err, extraction.ErrNotAnImage) {
			h.WriteServiceError(w, r, err)
			return
		}
		h.logger.Error("screenshot extraction failed", "backend", h.extractor.Name(), "error", err)
		h.WriteError(w, http.StatusBadGateway, dto.UnavailableError("could not read transactions from the screenshot"))
		return
	}

	batch := importer.Batch{
		Records:     records,
		Kind:        kind,
		Origin:      ledger.OriginScreenshot,
		Filename:    header.Filename,
		Upload:      data,
		ContentType: img.MIMEType,
	}

	if r.FormValue("commit") != "true" {
		preview, err := h.importer.Preview(r.Context(), batch)
		if err != nil {
			h.WriteServiceError(w, r, err)
			return
		}
		h.WriteJSON(w, http.StatusOK, toPreviewResponse(preview))
		return
	}

	result, err := h.importer.Commit(r.Context(), batch, importer.CommitOptions{
		Force: splitList(r.MultipartForm.Value["force"]),
	})
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, toCommitResponse(result))
}
