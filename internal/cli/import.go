package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/csvsource"
	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/tabular"
	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/xlsxsource"
	"github.com/eshaffer321/ledgerbook/internal/application/importer"
	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/domain/normalizer"
)

// ReadFile turns an export on disk into a batch. The reader is chosen by
// extension: .xlsx goes through the workbook reader, everything else is CSV.
func ReadFile(path string, opts tabular.Options) (importer.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return importer.Batch{}, err
	}

	var records []normalizer.RawRecord
	contentType := "text/csv"
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		opts.Origin = ledger.OriginXLSX
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		records, err = xlsxsource.Read(bytes.NewReader(data), opts)
	} else {
		opts.Origin = ledger.OriginCSV
		records, err = csvsource.Read(bytes.NewReader(data), opts)
	}
	if err != nil {
		return importer.Batch{}, fmt.Errorf("%s: %w", path, err)
	}

	batch := importer.Batch{
		Records:     records,
		Kind:        opts.Kind,
		Origin:      opts.Origin,
		Filename:    filepath.Base(path),
		Upload:      data,
		ContentType: contentType,
	}
	if batch.Kind == "" && len(records) > 0 {
		batch.Kind = records[0].Kind
	}
	return batch, nil
}

// RunImport imports each file in turn. A failing file does not stop the
// others; all failures are returned together.
func RunImport(ctx context.Context, svc *importer.Service, flags *ImportFlags, defaultCurrency string, w io.Writer, logger *slog.Logger) error {
	currency := flags.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	opts := tabular.Options{
		Kind:            flags.Kind,
		DefaultCurrency: currency,
		DefaultProject:  flags.Project,
	}

	var errs []error
	for _, path := range flags.Files {
		batch, err := ReadFile(path, opts)
		if err != nil {
			logger.Error("failed to read file", "file", path, "error", err)
			errs = append(errs, err)
			continue
		}

		if flags.Preview {
			preview, err := svc.Preview(ctx, batch)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				continue
			}
			PrintPreview(w, batch.Filename, preview)
			continue
		}

		result, err := svc.Commit(ctx, batch, importer.CommitOptions{Force: flags.Force, DryRun: flags.DryRun})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		PrintCommitSummary(w, batch.Filename, result)
	}
	return errors.Join(errs...)
}
