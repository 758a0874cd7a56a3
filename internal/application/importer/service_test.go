package importer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/domain/normalizer"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/logging"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

type recordingStore struct {
	keys []string
	data [][]byte
}

func (r *recordingStore) Put(_ context.Context, key, _ string, body io.Reader) (string, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	r.keys = append(r.keys, key)
	r.data = append(r.data, b)
	return "gs://archive/" + key, nil
}

func (r *recordingStore) Get(context.Context, string) ([]byte, error)    { return nil, nil }
func (r *recordingStore) List(context.Context, string) ([]string, error) { return r.keys, nil }
func (r *recordingStore) Close() error                                   { return nil }

func newService(repo *storage.MockRepository, cfg Config) *Service {
	return NewService(repo, nil, cfg, logging.Discard())
}

func stripeRaw(id string, amount int64) normalizer.RawRecord {
	return normalizer.RawRecord{
		Kind:   ledger.SourceStripe,
		Origin: ledger.OriginWebhook,
		Unit:   ledger.UnitMinor,
		Fields: map[string]any{"payment_intent": id, "amount": amount, "currency": "usd"},
	}
}

func bankRaw(archive, bankRef, amount string) normalizer.RawRecord {
	fields := map[string]any{"amount": amount, "date": "2024-03-01", "description": "Innbetaling"}
	if archive != "" {
		fields["arkivref"] = archive
	}
	if bankRef != "" {
		fields["bankref"] = bankRef
	}
	return normalizer.RawRecord{
		Kind:            ledger.SourceBank,
		Origin:          ledger.OriginCSV,
		Unit:            ledger.UnitMajor,
		DefaultCurrency: "nok",
		Fields:          fields,
	}
}

func seededStripe(id string, amount int64) ledger.Entry {
	return ledger.Entry{
		SourceKind:      ledger.SourceStripe,
		Direction:       ledger.Income,
		Amount:          amount,
		Currency:        "usd",
		PaymentID:       id,
		SourceReference: id,
	}
}

func TestPreview_CaseOnlyPaymentIDIsDuplicate(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.Seed(seededStripe("pi_AAA", 60000))
	svc := newService(repo, DefaultConfig())

	preview, err := svc.Preview(context.Background(), Batch{Records: []normalizer.RawRecord{
		stripeRaw("pi_aaa", 60000),
		stripeRaw("pi_BBB", 1000),
	}})
	require.NoError(t, err)

	require.Len(t, preview.Duplicates, 1)
	assert.Equal(t, "pi_aaa", preview.Duplicates[0].ID)
	assert.Equal(t, "payment_id", preview.Duplicates[0].Tier)
	assert.False(t, preview.Duplicates[0].NeedsReview)

	require.Len(t, preview.New, 1)
	assert.Equal(t, "pi_bbb", preview.New[0].ID)
	assert.Equal(t, 1, preview.New[0].Index)
	assert.Equal(t, 2, preview.Candidates())
}

func TestPreview_RejectionsDoNotAbortBatch(t *testing.T) {
	svc := newService(storage.NewMockRepository(), DefaultConfig())

	preview, err := svc.Preview(context.Background(), Batch{Records: []normalizer.RawRecord{
		{Kind: ledger.SourceStripe, Fields: map[string]any{"amount": "abc", "currency": "usd", "payment_intent": "pi_1"}},
		stripeRaw("pi_2", 500),
		{Kind: "paypal", Fields: map[string]any{}},
	}})
	require.NoError(t, err)
	require.Len(t, preview.Rejected, 2)
	assert.Equal(t, 0, preview.Rejected[0].Index)
	assert.Equal(t, 2, preview.Rejected[1].Index)
	assert.NotEmpty(t, preview.Rejected[0].Reason)
	require.Len(t, preview.New, 1)
}

func TestPreview_EmptyBatch(t *testing.T) {
	svc := newService(storage.NewMockRepository(), DefaultConfig())
	_, err := svc.Preview(context.Background(), Batch{})
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestPreview_LookupFailureBlocksByDefault(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.ExistingRowsErr = errors.New("connection refused")
	svc := newService(repo, DefaultConfig())

	_, err := svc.Preview(context.Background(), Batch{Records: []normalizer.RawRecord{stripeRaw("pi_1", 100)}})
	assert.ErrorIs(t, err, ErrLookupUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPreview_LookupFailureWarnListsAllAsNew(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.ExistingRowsErr = errors.New("connection refused")
	cfg := DefaultConfig()
	cfg.LookupFailurePolicy = PolicyWarn
	svc := newService(repo, cfg)

	preview, err := svc.Preview(context.Background(), Batch{Records: []normalizer.RawRecord{
		stripeRaw("pi_1", 100),
		stripeRaw("pi_2", 200),
	}})
	require.NoError(t, err)
	assert.True(t, preview.CheckFailed)
	assert.Equal(t, "connection refused", preview.CheckError)
	assert.Len(t, preview.New, 2)
	assert.Empty(t, preview.Duplicates)
}

func TestCommit_InsertsNewRowsAndRecordsRun(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.Seed(seededStripe("pi_AAA", 60000))
	svc := newService(repo, DefaultConfig())

	result, err := svc.Commit(context.Background(), Batch{
		Kind:   ledger.SourceStripe,
		Origin: ledger.OriginCSV,
		Records: []normalizer.RawRecord{
			stripeRaw("pi_AAA", 60000),
			stripeRaw("pi_BBB", 1000),
			{Kind: ledger.SourceStripe, Fields: map[string]any{"amount": 1}},
		},
	}, CommitOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 1, result.Rejected)
	assert.NotEmpty(t, result.BatchID)

	stored := repo.Entries()
	require.Len(t, stored, 2)
	assert.Equal(t, "pi_BBB", stored[1].PaymentID)
	assert.Equal(t, "pi_BBB", stored[1].SourceReference)
	assert.Equal(t, result.BatchID, stored[1].BatchID)

	run, err := repo.GetImportRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.Candidates)
	assert.Equal(t, 1, run.Inserted)
	assert.Equal(t, 1, run.Duplicates)
	assert.Equal(t, 1, run.Rejected)
	assert.Equal(t, "stripe", run.SourceKind)
}

func TestCommit_LookupFailureRecordsFailedRun(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.ExistingRowsErr = errors.New("timeout")
	svc := newService(repo, DefaultConfig())

	_, err := svc.Commit(context.Background(), Batch{Records: []normalizer.RawRecord{stripeRaw("pi_1", 100)}}, CommitOptions{})
	require.ErrorIs(t, err, ErrLookupUnavailable)
	assert.False(t, repo.InsertEntriesCalled)

	runs, err := repo.ListImportRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, storage.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].ErrorMessage, "ledger lookup unavailable")
}

func TestCommit_HeuristicMatchNeedsForce(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.Seed(ledger.Entry{
		SourceKind:       ledger.SourceBank,
		Direction:        ledger.Income,
		Amount:           2600000,
		Currency:         "nok",
		ArchiveReference: "670001",
		SourceReference:  "670001",
	})
	svc := newService(repo, DefaultConfig())
	batch := Batch{Records: []normalizer.RawRecord{bankRaw("", "420189451", "26000,00")}}

	result, err := svc.Commit(context.Background(), batch, CommitOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	require.Len(t, result.Preview.Duplicates, 1)
	assert.Equal(t, "amount_currency", result.Preview.Duplicates[0].Tier)
	assert.True(t, result.Preview.Duplicates[0].NeedsReview)

	result, err = svc.Commit(context.Background(), batch, CommitOptions{Force: []string{" 420189451 "}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Forced)
	assert.Equal(t, 0, result.Duplicates)
}

func TestCommit_ForceIgnoredForReferenceMatch(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.Seed(seededStripe("pi_AAA", 60000))
	svc := newService(repo, DefaultConfig())

	result, err := svc.Commit(context.Background(), Batch{Records: []normalizer.RawRecord{stripeRaw("pi_AAA", 60000)}},
		CommitOptions{Force: []string{"pi_aaa"}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 0, result.Forced)
	assert.Equal(t, 1, result.Duplicates)
}

func TestCommit_ReferenceOnlyWritesHeuristicMatches(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.Seed(seededStripe("pi_3OaaaaAAAAaaaaA1", 60000))
	svc := newService(repo, DefaultConfig())
	opts := CommitOptions{ReferenceOnly: true}

	result, err := svc.Commit(context.Background(),
		Batch{Records: []normalizer.RawRecord{stripeRaw("pi_3ObbbbBBBBbbbbB2", 60000)}}, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 0, result.Duplicates)
	assert.Equal(t, []string{"pi_3obbbbbbbbbbbbb2"}, result.Flagged)

	// the payment id still decides
	result, err = svc.Commit(context.Background(),
		Batch{Records: []normalizer.RawRecord{stripeRaw("pi_3ObbbbBBBBbbbbB2", 60000)}}, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 1, result.Duplicates)
	assert.Empty(t, result.Flagged)
	assert.Len(t, repo.Entries(), 2)
}

func TestCommit_DuplicateArchiveReferencesInBatch(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newService(repo, DefaultConfig())

	result, err := svc.Commit(context.Background(), Batch{Records: []normalizer.RawRecord{
		bankRaw("670001", "", "26000,00"),
		bankRaw("670001", "", "12000,00"),
	}}, CommitOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, []string{"670001"}, result.Suppressed)

	stored := repo.Entries()
	require.Len(t, stored, 2)
	assert.Empty(t, stored[0].ArchiveReference)
	assert.Empty(t, stored[1].ArchiveReference)
	assert.Equal(t, "670001", stored[0].SourceReference)
	assert.Equal(t, "670001#2", stored[1].SourceReference)
}

func TestCommit_ConflictsAreCounted(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newService(repo, DefaultConfig())

	// same payment id twice in one batch: the second is refused by the
	// unique index, not by the matcher
	result, err := svc.Commit(context.Background(), Batch{Records: []normalizer.RawRecord{
		stripeRaw("pi_X", 100),
		stripeRaw("PI_X", 100),
	}}, CommitOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Conflicts)
}

func TestCommit_DryRunWritesNothing(t *testing.T) {
	repo := storage.NewMockRepository()
	archive := &recordingStore{}
	svc := NewService(repo, archive, DefaultConfig(), logging.Discard())

	result, err := svc.Commit(context.Background(), Batch{
		Records: []normalizer.RawRecord{stripeRaw("pi_1", 100)},
		Upload:  []byte("id,amount"),
	}, CommitOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pending)
	assert.Equal(t, 0, result.Inserted)
	assert.False(t, repo.InsertEntriesCalled)
	assert.Empty(t, archive.keys)

	run, err := repo.GetImportRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.True(t, run.DryRun)
}

func TestCommit_ArchivesUpload(t *testing.T) {
	repo := storage.NewMockRepository()
	archive := &recordingStore{}
	svc := NewService(repo, archive, DefaultConfig(), logging.Discard())

	result, err := svc.Commit(context.Background(), Batch{
		Records:     []normalizer.RawRecord{stripeRaw("pi_1", 100)},
		Filename:    "export.csv",
		ContentType: "text/csv",
		Upload:      []byte("id,amount"),
	}, CommitOptions{})
	require.NoError(t, err)
	require.Len(t, archive.keys, 1)
	assert.Equal(t, "imports/"+result.BatchID+"/export.csv", archive.keys[0])
	assert.Equal(t, "gs://archive/imports/"+result.BatchID+"/export.csv", result.ArchiveURI)
}

func TestCommit_InsertErrorFailsRun(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.InsertEntriesErr = errors.New("disk full")
	svc := newService(repo, DefaultConfig())

	_, err := svc.Commit(context.Background(), Batch{Records: []normalizer.RawRecord{stripeRaw("pi_1", 100)}}, CommitOptions{})
	require.Error(t, err)

	runs, _ := repo.ListImportRuns(context.Background(), 1)
	require.Len(t, runs, 1)
	assert.Equal(t, storage.RunStatusFailed, runs[0].Status)
}

func TestCommit_StartRunError(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.StartImportErr = errors.New("read-only database")
	svc := newService(repo, DefaultConfig())

	_, err := svc.Commit(context.Background(), Batch{Records: []normalizer.RawRecord{stripeRaw("pi_1", 100)}}, CommitOptions{})
	assert.Error(t, err)
	assert.False(t, repo.ExistingRowsCalled)
}

func TestParseLookupFailurePolicy(t *testing.T) {
	p, err := ParseLookupFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyBlock, p)

	p, err = ParseLookupFailurePolicy("WARN")
	require.NoError(t, err)
	assert.Equal(t, PolicyWarn, p)

	_, err = ParseLookupFailurePolicy("ignore")
	assert.Error(t, err)
}

func TestManualEntry_Record(t *testing.T) {
	rec, err := ManualEntry{Kind: "bank", Amount: "499.00", Date: "2024-03-03", Counterparty: "Clas Ohlson", Direction: "expense"}.Record("nok")
	require.NoError(t, err)
	assert.Equal(t, ledger.OriginManual, rec.Origin)

	entry, err := normalizer.Normalize(rec)
	require.NoError(t, err)
	assert.Equal(t, int64(49900), entry.Amount)
	assert.Equal(t, ledger.Expense, entry.Direction)
	assert.Equal(t, "2024-03-03|49900|clas ohlson", entry.CompositeKey)

	rec, err = ManualEntry{Kind: "stripe", Amount: "60000", AmountUnit: "minor", Currency: "usd", PaymentID: "pi_M"}.Record("")
	require.NoError(t, err)
	entry, err = normalizer.Normalize(rec)
	require.NoError(t, err)
	assert.Equal(t, int64(60000), entry.Amount)

	_, err = ManualEntry{Kind: "cash"}.Record("")
	assert.Error(t, err)
	_, err = ManualEntry{Kind: "bank", AmountUnit: "cents"}.Record("")
	assert.Error(t, err)
}
