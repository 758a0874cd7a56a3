package handlers_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledgerbook/internal/api/dto"
	"github.com/eshaffer321/ledgerbook/internal/api/handlers"
	"github.com/eshaffer321/ledgerbook/internal/application/importer"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/logging"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

func newImportsHandler(repo *storage.MockRepository) *handlers.ImportsHandler {
	svc := importer.NewService(repo, nil, importer.DefaultConfig(), logging.Discard())
	return handlers.NewImportsHandler(repo, svc, "nok", logging.Discard())
}

// oversizeBankCSV is a valid bank export whose last row ends just past the
// upload limit.
func oversizeBankCSV() []byte {
	var b bytes.Buffer
	b.WriteString("date,amount,currency,arkivref\n")
	for b.Len() < handlers.MaxUploadBytes-64 {
		b.WriteString("2024-01-01,10.00,nok,001082396\n")
	}
	for b.Len() <= handlers.MaxUploadBytes-32 {
		b.WriteString("#")
	}
	b.WriteString("\n2024-01-02,1234.56,nok,LASTROW\n")
	return b.Bytes()
}

func TestImportsHandler_RejectsOversizeUploads(t *testing.T) {
	t.Run("multipart file over the limit is refused, not truncated", func(t *testing.T) {
		data := oversizeBankCSV()
		require.Greater(t, len(data), handlers.MaxUploadBytes)

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", "statement.csv")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		repo := storage.NewMockRepository()
		req := httptest.NewRequest(http.MethodPost, "/api/imports/preview", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()

		newImportsHandler(repo).Preview(rec, req)

		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
		var apiErr dto.APIError
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
		assert.Equal(t, dto.ErrCodeTooLarge, apiErr.Code)
		assert.False(t, repo.InsertEntriesCalled)
	})

	t.Run("JSON batch over the limit is refused", func(t *testing.T) {
		payload := `{"kind":"stripe","records":[{"description":"` +
			strings.Repeat("x", handlers.MaxUploadBytes) + `"}]}`
		req := httptest.NewRequest(http.MethodPost, "/api/imports/preview", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		newImportsHandler(storage.NewMockRepository()).Preview(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("small upload is accepted", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", "statement.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte("date,amount,currency,arkivref\n2024-01-02,1234.56,nok,LASTROW\n"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/imports/preview", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()

		newImportsHandler(storage.NewMockRepository()).Preview(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), "lastrow")
	})
}
