package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/stripehook"
	"github.com/eshaffer321/ledgerbook/internal/api"
	"github.com/eshaffer321/ledgerbook/internal/api/dto"
	"github.com/eshaffer321/ledgerbook/internal/application/importer"
	"github.com/eshaffer321/ledgerbook/internal/domain/access"
	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/logging"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

const (
	testEmail         = "owner@example.com"
	testWebhookSecret = "whsec_api_test"
)

func newTestServer(t *testing.T) (*api.Server, *storage.MockRepository) {
	t.Helper()
	repo := storage.NewMockRepository()
	logger := logging.Discard()

	policy, err := access.NewPolicy(access.Config{StaticAllowList: []string{testEmail}}, nil)
	require.NoError(t, err)

	cfg := api.DefaultConfig()
	cfg.DefaultCurrency = "nok"
	server := api.NewServer(cfg, api.Dependencies{
		Repo:     repo,
		Importer: importer.NewService(repo, nil, importer.DefaultConfig(), logger),
		Policy:   policy,
		Verifier: stripehook.NewVerifier(testWebhookSecret),
	}, logger)
	return server, repo
}

func do(t *testing.T, server *api.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-Request-Email", testEmail)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestServer_HealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response dto.HealthResponse
	err := json.NewDecoder(rec.Body).Decode(&response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response.Status)
}

func TestServer_RequiresAllowedEmail(t *testing.T) {
	server, _ := newTestServer(t)

	for _, email := range []string{"", "intruder@example.com"} {
		req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
		if email != "" {
			req.Header.Set("X-Auth-Request-Email", email)
		}
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code, "email %q", email)
		var apiErr dto.APIError
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
		assert.Equal(t, dto.ErrCodeForbidden, apiErr.Code)
	}
}

func TestServer_NilPolicyDeniesEverything(t *testing.T) {
	repo := storage.NewMockRepository()
	server := api.NewServer(api.DefaultConfig(), api.Dependencies{
		Repo:     repo,
		Importer: importer.NewService(repo, nil, importer.DefaultConfig(), logging.Discard()),
	}, logging.Discard())

	rec := do(t, server, http.MethodGet, "/api/summary", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_TransactionsEndpoints(t *testing.T) {
	t.Run("POST /api/transactions creates then reports duplicate", func(t *testing.T) {
		server, repo := newTestServer(t)
		body := dto.TransactionRequest{Kind: "stripe", Amount: "600.00", Currency: "usd", PaymentID: "pi_AAA", Date: "2024-03-01"}

		rec := do(t, server, http.MethodPost, "/api/transactions", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var created dto.CommitResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
		assert.Equal(t, 1, created.Inserted)
		require.Len(t, repo.Entries(), 1)
		assert.Equal(t, int64(60000), repo.Entries()[0].Amount)

		body.PaymentID = "PI_aaa"
		rec = do(t, server, http.MethodPost, "/api/transactions", body)
		assert.Equal(t, http.StatusConflict, rec.Code)

		var dup dto.CommitResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&dup))
		require.NotNil(t, dup.Preview)
		require.Len(t, dup.Preview.Duplicates, 1)
		assert.Equal(t, "payment_id", dup.Preview.Duplicates[0].Tier)
	})

	t.Run("POST /api/transactions rejects invalid input", func(t *testing.T) {
		server, _ := newTestServer(t)

		rec := do(t, server, http.MethodPost, "/api/transactions", dto.TransactionRequest{Kind: "stripe", Amount: "10"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, server, http.MethodPost, "/api/transactions", dto.TransactionRequest{Kind: "paypal", Amount: "10"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("GET /api/transactions filters and paginates", func(t *testing.T) {
		server, repo := newTestServer(t)
		day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		repo.Seed(
			ledger.Entry{SourceKind: ledger.SourceStripe, Direction: ledger.Income, Amount: 60000, Currency: "usd", PaymentID: "pi_1", SourceReference: "pi_1", Project: "website", OccurredOn: day},
			ledger.Entry{SourceKind: ledger.SourceBank, Direction: ledger.Expense, Amount: 49900, Currency: "nok", BankReference: "b1", SourceReference: "b1", OccurredOn: day},
		)

		rec := do(t, server, http.MethodGet, "/api/transactions?kind=bank", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var list dto.TransactionListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
		assert.Equal(t, 1, list.TotalCount)
		require.Len(t, list.Transactions, 1)
		assert.Equal(t, "499.00", list.Transactions[0].AmountFormatted)
		assert.Equal(t, "2024-03-01", list.Transactions[0].Date)

		rec = do(t, server, http.MethodGet, "/api/transactions?from=01-03-2024", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, server, http.MethodGet, "/api/transactions?direction=sideways", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("GET /api/transactions/{id}", func(t *testing.T) {
		server, repo := newTestServer(t)
		repo.Seed(ledger.Entry{SourceKind: ledger.SourceStripe, Amount: 100, Currency: "usd", PaymentID: "pi_1", SourceReference: "pi_1"})
		id := repo.Entries()[0].ID

		rec := do(t, server, http.MethodGet, "/api/transactions/"+strconv.FormatInt(id, 10), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var tx dto.TransactionResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&tx))
		assert.Equal(t, "pi_1", tx.PaymentID)

		rec = do(t, server, http.MethodGet, "/api/transactions/9999", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(t, server, http.MethodGet, "/api/transactions/abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_ImportsEndpoints(t *testing.T) {
	t.Run("POST /api/imports/preview with JSON records", func(t *testing.T) {
		server, repo := newTestServer(t)
		repo.Seed(ledger.Entry{SourceKind: ledger.SourceStripe, Amount: 60000, Currency: "usd", PaymentID: "pi_AAA", SourceReference: "pi_AAA"})

		rec := do(t, server, http.MethodPost, "/api/imports/preview", dto.ImportRequest{
			Kind: "stripe",
			Unit: "minor",
			Records: []map[string]any{
				{"payment_intent": "pi_aaa", "amount": 60000, "currency": "usd"},
				{"payment_intent": "pi_BBB", "amount": 1000, "currency": "usd"},
				{"amount": 5},
			},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var preview dto.PreviewResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&preview))
		assert.Len(t, preview.New, 1)
		assert.Len(t, preview.Duplicates, 1)
		assert.Len(t, preview.Rejected, 1)
		assert.Empty(t, repo.LastInserted)
	})

	t.Run("preview returns 503 when the ledger cannot be read", func(t *testing.T) {
		server, repo := newTestServer(t)
		repo.ExistingRowsErr = errors.New("connection reset")

		rec := do(t, server, http.MethodPost, "/api/imports/preview", dto.ImportRequest{
			Kind:    "stripe",
			Records: []map[string]any{{"payment_intent": "pi_1", "amount": 100, "currency": "usd"}},
		})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("empty batch is a validation error", func(t *testing.T) {
		server, _ := newTestServer(t)
		rec := do(t, server, http.MethodPost, "/api/imports/commit", dto.ImportRequest{Kind: "bank"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("commit then list and get runs", func(t *testing.T) {
		server, _ := newTestServer(t)

		rec := do(t, server, http.MethodPost, "/api/imports/commit", dto.ImportRequest{
			Kind:     "bank",
			Currency: "nok",
			Records: []map[string]any{
				{"arkivref": "670001", "amount": "26000,00", "date": "2024-03-01"},
				{"arkivref": "670001", "amount": "12000,00", "date": "2024-03-02"},
			},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var commit dto.CommitResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&commit))
		assert.Equal(t, 2, commit.Inserted)
		assert.Equal(t, []string{"670001"}, commit.Suppressed)

		rec = do(t, server, http.MethodGet, "/api/imports", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var runs dto.ImportRunListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
		require.Equal(t, 1, runs.Count)
		assert.Equal(t, storage.RunStatusCompleted, runs.Runs[0].Status)

		rec = do(t, server, http.MethodGet, "/api/imports/"+strconv.FormatInt(commit.RunID, 10), nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = do(t, server, http.MethodGet, "/api/imports/424242", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_SummaryEndpoint(t *testing.T) {
	server, repo := newTestServer(t)
	mar := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	repo.Seed(
		ledger.Entry{SourceKind: ledger.SourceBank, Direction: ledger.Income, Amount: 2600000, Currency: "nok", Project: "studio", OccurredOn: mar, SourceReference: "a"},
		ledger.Entry{SourceKind: ledger.SourceBank, Direction: ledger.Expense, Amount: 1200000, Currency: "nok", Project: "studio", OccurredOn: mar, SourceReference: "b"},
	)

	rec := do(t, server, http.MethodGet, "/api/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary dto.SummaryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	require.Len(t, summary.Rows, 1)
	assert.Equal(t, "2024-03", summary.Rows[0].Month)
	assert.Equal(t, int64(1400000), summary.Rows[0].Profit)
	assert.Equal(t, []string{"studio"}, summary.Projects)
}

func TestServer_ExtractionsWithoutBackend(t *testing.T) {
	server, _ := newTestServer(t)

	rec := do(t, server, http.MethodPost, "/api/extractions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_StripeWebhook(t *testing.T) {
	server, repo := newTestServer(t)
	payload := `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_hook","object":"payment_intent","amount":60000,"amount_received":60000,"currency":"usd","created":1709287200}}}`

	post := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBufferString(payload))
		req.Header.Set("Stripe-Signature", sig)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)
		return rec
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})

	rec := post(signed.Header)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ack dto.WebhookResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ack))
	assert.Equal(t, 1, ack.Inserted)

	// redelivery
	rec = post(signed.Header)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ack))
	assert.Equal(t, 0, ack.Inserted)
	assert.Len(t, repo.Entries(), 1)

	rec = post("t=1,v1=deadbeef")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_StripeWebhookSameAmountDistinctPayments(t *testing.T) {
	server, repo := newTestServer(t)

	deliver := func(eventID, intentID string) dto.WebhookResponse {
		t.Helper()
		payload := `{"id":"` + eventID + `","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"` + intentID +
			`","object":"payment_intent","amount":60000,"amount_received":60000,"currency":"usd","created":1709287200}}}`
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   []byte(payload),
			Secret:    testWebhookSecret,
			Timestamp: time.Now(),
		})
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBufferString(payload))
		req.Header.Set("Stripe-Signature", signed.Header)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var ack dto.WebhookResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&ack))
		return ack
	}

	first := deliver("evt_a", "pi_3OaaaaAAAAaaaaA1")
	assert.Equal(t, 1, first.Inserted)
	assert.False(t, first.NeedsReview)

	second := deliver("evt_b", "pi_3ObbbbBBBBbbbbB2")
	assert.Equal(t, 1, second.Inserted)
	assert.True(t, second.NeedsReview)

	again := deliver("evt_b", "pi_3ObbbbBBBBbbbbB2")
	assert.Equal(t, 0, again.Inserted)
	assert.Len(t, repo.Entries(), 2)
}
