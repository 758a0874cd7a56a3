package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledgerbook/internal/api"
	"github.com/eshaffer321/ledgerbook/internal/api/dto"
	"github.com/eshaffer321/ledgerbook/internal/application/importer"
	"github.com/eshaffer321/ledgerbook/internal/domain/access"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/blobstore"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/logging"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

const bankStatementCSV = "\ufeffBokføringsdato;Beskrivelse;Inn;Ut;Arkivref;Bankref\n" +
	"01.03.2024;Faktura 1001;26 000,00;;670001;420189451\n" +
	"04.03.2024;Husleie;;12 000,00;670002;420189452\n"

// setupIntegrationServer wires the API to a real SQLite database with the
// allow list stored in the database.
func setupIntegrationServer(t *testing.T) (*api.Server, *storage.Storage) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "api_integration_*.db")
	require.NoError(t, err)
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	store, err := storage.NewStorage(tmpFile.Name())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.AddAllowedEmail(context.Background(), testEmail))
	policy, err := access.NewPolicy(access.Config{UseDynamicStore: true}, store)
	require.NoError(t, err)

	logger := logging.Discard()
	cfg := api.DefaultConfig()
	cfg.DefaultCurrency = "nok"
	server := api.NewServer(cfg, api.Dependencies{
		Repo:     store,
		Importer: importer.NewService(store, blobstore.Noop{}, importer.DefaultConfig(), logger),
		Policy:   policy,
	}, logger)
	return server, store
}

func uploadCSV(t *testing.T, server *api.Server, path, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", "statement.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Auth-Request-Email", testEmail)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestIntegration_BankStatementUpload(t *testing.T) {
	server, store := setupIntegrationServer(t)

	t.Run("preview finds two new rows", func(t *testing.T) {
		rec := uploadCSV(t, server, "/api/imports/preview", bankStatementCSV, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var preview dto.PreviewResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&preview))
		require.Len(t, preview.New, 2)
		assert.Empty(t, preview.Duplicates)
		assert.Equal(t, int64(2600000), preview.New[0].Transaction.Amount)
		assert.Equal(t, "income", preview.New[0].Transaction.Direction)
		assert.Equal(t, "expense", preview.New[1].Transaction.Direction)
	})

	t.Run("commit writes both rows", func(t *testing.T) {
		rec := uploadCSV(t, server, "/api/imports/commit", bankStatementCSV, map[string]string{"project": "studio"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var commit dto.CommitResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&commit))
		assert.Equal(t, 2, commit.Inserted)
		assert.Equal(t, 0, commit.Duplicates)

		list, err := store.ListEntries(context.Background(), storage.EntryFilters{Project: "studio"})
		require.NoError(t, err)
		assert.Equal(t, 2, list.TotalCount)
	})

	t.Run("uploading the same statement again inserts nothing", func(t *testing.T) {
		rec := uploadCSV(t, server, "/api/imports/commit", bankStatementCSV, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var commit dto.CommitResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&commit))
		assert.Equal(t, 0, commit.Inserted)
		assert.Equal(t, 2, commit.Duplicates)
		require.NotNil(t, commit.Preview)
		for _, d := range commit.Preview.Duplicates {
			assert.Equal(t, "archive_reference", d.Tier)
		}
	})

	t.Run("runs are listed newest first", func(t *testing.T) {
		rec := do(t, server, http.MethodGet, "/api/imports", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var runs dto.ImportRunListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
		require.Equal(t, 2, runs.Count)
		assert.Equal(t, 0, runs.Runs[0].Inserted)
		assert.Equal(t, 2, runs.Runs[1].Inserted)
		assert.Equal(t, "statement.csv", runs.Runs[1].Filename)
		assert.Equal(t, "csv", runs.Runs[1].Origin)
	})

	t.Run("summary reflects the statement", func(t *testing.T) {
		rec := do(t, server, http.MethodGet, "/api/summary", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var summary dto.SummaryResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
		require.Len(t, summary.Totals, 1)
		assert.Equal(t, "nok", summary.Totals[0].Currency)
		assert.Equal(t, int64(1400000), summary.Totals[0].Profit)
	})
}

func TestIntegration_UnsupportedUpload(t *testing.T) {
	server, _ := setupIntegrationServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "statement.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports/preview", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Auth-Request-Email", testEmail)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIntegration_AllowListFromDatabase(t *testing.T) {
	server, store := setupIntegrationServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	req.Header.Set("X-Auth-Request-Email", "bookkeeper@example.com")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, store.AddAllowedEmail(context.Background(), "bookkeeper@example.com"))

	rec = httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
