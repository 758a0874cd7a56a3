package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/csvsource"
	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/tabular"
	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/xlsxsource"
	"github.com/eshaffer321/ledgerbook/internal/api/dto"
	"github.com/eshaffer321/ledgerbook/internal/application/importer"
	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/domain/normalizer"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

// ImportsHandler handles file and JSON batch imports.
type ImportsHandler struct {
	*Base
	importer        *importer.Service
	defaultCurrency string
}

// NewImportsHandler creates a new imports handler.
func NewImportsHandler(repo storage.Repository, svc *importer.Service, defaultCurrency string, logger *slog.Logger) *ImportsHandler {
	return &ImportsHandler{
		Base:            NewBase(repo, logger),
		importer:        svc,
		defaultCurrency: defaultCurrency,
	}
}

// Preview handles POST /api/imports/preview.
func (h *ImportsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	batch, _, err := h.readBatch(w, r)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	preview, err := h.importer.Preview(r.Context(), batch)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, toPreviewResponse(preview))
}

// Commit handles POST /api/imports/commit.
func (h *ImportsHandler) Commit(w http.ResponseWriter, r *http.Request) {
	batch, opts, err := h.readBatch(w, r)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	result, err := h.importer.Commit(r.Context(), batch, opts)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, toCommitResponse(result))
}

// List handles GET /api/imports - returns recent import runs.
func (h *ImportsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := ParseIntParam(r, "limit", 20)

	runs, err := h.repo.ListImportRuns(r.Context(), limit)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	response := dto.ImportRunListResponse{
		Runs:  make([]dto.ImportRunResponse, 0, len(runs)),
		Count: len(runs),
	}
	for _, run := range runs {
		response.Runs = append(response.Runs, toImportRunResponse(run))
	}
	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/imports/{id}.
func (h *ImportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid import run ID"))
		return
	}

	run, err := h.repo.GetImportRun(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("import run"))
		return
	}
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, toImportRunResponse(*run))
}

func (h *ImportsHandler) readBatch(w http.ResponseWriter, r *http.Request) (importer.Batch, importer.CommitOptions, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		limitBody(w, r, MaxUploadBytes+multipartSlack)
		return h.readUpload(r)
	}
	limitBody(w, r, MaxUploadBytes)
	return h.readJSON(r)
}

// readUpload parses a multipart CSV or XLSX upload. Fields: file, kind
// (optional, sniffed from the header row), currency, project, force
// (repeatable or comma-separated), dry_run.
func (h *ImportsHandler) readUpload(r *http.Request) (importer.Batch, importer.CommitOptions, error) {
	var batch importer.Batch
	var opts importer.CommitOptions

	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		return batch, opts, invalid(fmt.Errorf("invalid multipart form: %w", err))
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return batch, opts, invalid(errors.New("file is required"))
	}
	defer file.Close()

	data, err := readUploadFile(file)
	if err != nil {
		return batch, opts, err
	}

	topts := tabular.Options{
		DefaultCurrency: h.currency(r.FormValue("currency")),
		DefaultProject:  strings.TrimSpace(r.FormValue("project")),
	}
	if k := r.FormValue("kind"); k != "" {
		kind, ok := ledger.ParseSourceKind(k)
		if !ok {
			return batch, opts, invalid(fmt.Errorf("unknown kind %q", k))
		}
		topts.Kind = kind
	}

	var records []normalizer.RawRecord
	switch ext := strings.ToLower(filepath.Ext(header.Filename)); ext {
	case ".csv", ".txt", "":
		topts.Origin = ledger.OriginCSV
		records, err = csvsource.Read(bytes.NewReader(data), topts)
	case ".xlsx":
		topts.Origin = ledger.OriginXLSX
		records, err = xlsxsource.Read(bytes.NewReader(data), topts)
	default:
		return batch, opts, invalid(fmt.Errorf("unsupported file type %q; upload .csv or .xlsx", ext))
	}
	if err != nil {
		return batch, opts, invalid(err)
	}

	batch = importer.Batch{
		Records:     records,
		Kind:        topts.Kind,
		Origin:      topts.Origin,
		Filename:    header.Filename,
		Upload:      data,
		ContentType: header.Header.Get("Content-Type"),
	}
	if batch.Kind == "" && len(records) > 0 {
		batch.Kind = records[0].Kind
	}
	opts.Force = splitList(r.MultipartForm.Value["force"])
	opts.DryRun = r.FormValue("dry_run") == "true"
	return batch, opts, nil
}

func (h *ImportsHandler) readJSON(r *http.Request) (importer.Batch, importer.CommitOptions, error) {
	var req dto.ImportRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return importer.Batch{}, importer.CommitOptions{}, invalid(fmt.Errorf("invalid JSON body: %w", err))
	}

	kind, ok := ledger.ParseSourceKind(req.Kind)
	if !ok {
		return importer.Batch{}, importer.CommitOptions{}, invalid(fmt.Errorf("kind must be stripe or bank, got %q", req.Kind))
	}
	unit := ledger.UnitAuto
	switch ledger.Unit(req.Unit) {
	case "", ledger.UnitAuto:
	case ledger.UnitMinor, ledger.UnitMajor:
		unit = ledger.Unit(req.Unit)
	default:
		return importer.Batch{}, importer.CommitOptions{}, invalid(fmt.Errorf("unit must be minor, major or auto, got %q", req.Unit))
	}

	records := make([]normalizer.RawRecord, 0, len(req.Records))
	for _, fields := range req.Records {
		records = append(records, normalizer.RawRecord{
			Kind:            kind,
			Origin:          ledger.OriginManual,
			Unit:            unit,
			DefaultCurrency: h.currency(req.Currency),
			DefaultProject:  req.Project,
			Fields:          fields,
		})
	}

	batch := importer.Batch{Records: records, Kind: kind, Origin: ledger.OriginManual}
	return batch, importer.CommitOptions{Force: req.Force, DryRun: req.DryRun}, nil
}

func (h *ImportsHandler) currency(v string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return h.defaultCurrency
}

// splitList flattens repeated and comma-separated form values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
