// Package xlsxsource reads bank statements and Stripe exports saved as Excel
// workbooks. Only the first sheet is read.
package xlsxsource

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/tabular"
	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/domain/normalizer"
)

var ErrNoSheets = errors.New("workbook has no sheets")

// Read opens the workbook in r and converts the first sheet's rows.
func Read(r io.Reader, opts tabular.Options) ([]normalizer.RawRecord, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}

	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows from %q: %w", sheets[0], err)
	}

	if opts.Origin == "" {
		opts.Origin = ledger.OriginXLSX
	}
	return tabular.Records(rows, opts)
}
