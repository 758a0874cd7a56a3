package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/tabular"
	"github.com/eshaffer321/ledgerbook/internal/application/importer"
	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/config"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/logging"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

const stripeExport = "id,Created (UTC),Amount,Currency,Description\n" +
	"pi_AAA,2024-03-01 10:00,600.00,usd,Website build\n" +
	"pi_BBB,2024-03-02 11:00,125.50,usd,Hosting\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseImportFlags(t *testing.T) {
	flags, err := ParseImportFlags([]string{"-kind", "bank", "-force", "a, b,,c", "-dry-run", "one.csv", "two.xlsx"})
	require.NoError(t, err)
	assert.Equal(t, ledger.SourceBank, flags.Kind)
	assert.Equal(t, []string{"a", "b", "c"}, flags.Force)
	assert.True(t, flags.DryRun)
	assert.Equal(t, []string{"one.csv", "two.xlsx"}, flags.Files)

	_, err = ParseImportFlags([]string{"-kind", "paypal", "x.csv"})
	assert.Error(t, err)

	_, err = ParseImportFlags([]string{"-kind", "bank"})
	assert.Error(t, err, "files are required")
}

func TestParseServeFlags(t *testing.T) {
	flags, err := ParseServeFlags([]string{"-port", "9000", "-verbose"})
	require.NoError(t, err)
	assert.Equal(t, 9000, flags.Port)
	assert.True(t, flags.Verbose)
	assert.Equal(t, "config.yaml", flags.ConfigPath)
}

func TestImporterConfig(t *testing.T) {
	cfg := &config.Config{Import: config.ImportConfig{LookupFailurePolicy: "warn", LengthTolerance: 2}}
	icfg, err := ImporterConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, importer.PolicyWarn, icfg.LookupFailurePolicy)
	assert.Equal(t, 2, icfg.Matcher.LengthTolerance)

	cfg.Import.LookupFailurePolicy = "ignore"
	_, err = ImporterConfig(cfg)
	assert.Error(t, err)
}

func TestRunImport(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := importer.NewService(repo, nil, importer.DefaultConfig(), logging.Discard())
	path := writeFile(t, "payments.csv", stripeExport)
	ctx := context.Background()

	t.Run("preview writes nothing", func(t *testing.T) {
		var out bytes.Buffer
		err := RunImport(ctx, svc, &ImportFlags{Preview: true, Files: []string{path}}, "usd", &out, logging.Discard())
		require.NoError(t, err)
		assert.Contains(t, out.String(), "payments.csv: new=2 duplicates=0 rejected=0")
		assert.Contains(t, out.String(), "600.00 USD Website build")
		assert.Empty(t, repo.Entries())
	})

	t.Run("commit then re-import", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, RunImport(ctx, svc, &ImportFlags{Files: []string{path}}, "usd", &out, logging.Discard()))
		assert.Contains(t, out.String(), "Inserted=2 Duplicates=0")
		assert.Len(t, repo.Entries(), 2)

		out.Reset()
		require.NoError(t, RunImport(ctx, svc, &ImportFlags{Files: []string{path}}, "usd", &out, logging.Discard()))
		assert.Contains(t, out.String(), "Inserted=0 Duplicates=2")
	})

	t.Run("missing file does not stop the batch", func(t *testing.T) {
		other := writeFile(t, "more.csv", "id,Amount,Currency\npi_CCC,10.00,usd\n")
		var out bytes.Buffer
		err := RunImport(ctx, svc, &ImportFlags{Files: []string{"/does/not/exist.csv", other}}, "usd", &out, logging.Discard())
		assert.Error(t, err)
		assert.Contains(t, out.String(), "more.csv: Inserted=1")
	})
}

func TestReadFile_SniffsKind(t *testing.T) {
	path := writeFile(t, "statement.csv", "Dato;Forklaring;Inn;Ut;Arkivref\n01.03.2024;Faktura;100,00;;1\n")

	batch, err := ReadFile(path, tabular.Options{DefaultCurrency: "nok"})
	require.NoError(t, err)
	assert.Equal(t, ledger.SourceBank, batch.Kind)
	assert.Equal(t, ledger.OriginCSV, batch.Origin)
	assert.Equal(t, "statement.csv", batch.Filename)
	assert.Len(t, batch.Records, 1)
	assert.NotEmpty(t, batch.Upload)
}

func TestRunAllowList(t *testing.T) {
	repo := storage.NewMockRepository()
	ctx := context.Background()
	var out bytes.Buffer

	require.NoError(t, RunAllowList(ctx, repo, []string{"add", "Owner@Example.com", "bookkeeper@example.com"}, &out))
	allowed, err := repo.IsEmailAllowed(ctx, "owner@example.com")
	require.NoError(t, err)
	assert.True(t, allowed)

	out.Reset()
	require.NoError(t, RunAllowList(ctx, repo, []string{"list"}, &out))
	assert.Equal(t, "bookkeeper@example.com\nowner@example.com\n", out.String())

	require.NoError(t, RunAllowList(ctx, repo, []string{"remove", "bookkeeper@example.com"}, &out))
	emails, err := repo.ListAllowedEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"owner@example.com"}, emails)

	assert.Error(t, RunAllowList(ctx, repo, []string{"add", "Owner <owner@example.com>"}, &out))
	assert.Error(t, RunAllowList(ctx, repo, []string{"add", "not-an-email"}, &out))
	assert.Error(t, RunAllowList(ctx, repo, []string{"grant", "x@example.com"}, &out))
	assert.Error(t, RunAllowList(ctx, repo, nil, &out))
}
