// Package csvsource reads Stripe exports and bank statements saved as CSV.
package csvsource

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/tabular"
	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/domain/normalizer"
)

// Read parses r and returns one raw record per data row. The delimiter is
// sniffed from the first line; Norwegian bank exports use ';'.
func Read(r io.Reader, opts tabular.Options) ([]normalizer.RawRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = SniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	if opts.Origin == "" {
		opts.Origin = ledger.OriginCSV
	}
	return tabular.Records(rows, opts)
}

// SniffDelimiter picks the most frequent of ',', ';' and tab on the first
// non-empty line, ignoring quoted text.
func SniffDelimiter(data []byte) rune {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if len(bytes.TrimSpace([]byte(line))) == 0 {
			continue
		}
		counts := map[rune]int{}
		inQuotes := false
		for _, r := range line {
			switch {
			case r == '"':
				inQuotes = !inQuotes
			case !inQuotes && (r == ',' || r == ';' || r == '\t'):
				counts[r]++
			}
		}
		best, bestN := ',', 0
		for _, d := range []rune{',', ';', '\t'} {
			if counts[d] > bestN {
				best, bestN = d, counts[d]
			}
		}
		return best
	}
	return ','
}
