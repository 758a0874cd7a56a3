// Package tabular maps spreadsheet-shaped exports (a header row plus data
// rows) to raw import records. CSV and XLSX readers share it.
package tabular

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/domain/normalizer"
)

var (
	ErrNoHeader    = errors.New("file has no header row")
	ErrUnknownKind = errors.New("cannot tell whether this is a stripe export or a bank statement; pass the kind explicitly")
)

// Options control how rows become records.
type Options struct {
	Kind            ledger.SourceKind // empty = sniff from headers
	Origin          ledger.Origin
	DefaultCurrency string
	DefaultProject  string
}

// HeaderKey normalizes a column title: lowercased, parenthesised notes
// dropped, inner whitespace joined with underscores. "Created (UTC)" becomes
// "created" and "Payment Intent" becomes "payment_intent".
func HeaderKey(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	var b strings.Builder
	depth := 0
	for _, r := range h {
		switch {
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(strings.ToLower(b.String())), "_")
}

var stripeHeaders = map[string]bool{
	"payment_intent": true, "payment_intent_id": true, "charge_id": true, "balance_transaction": true,
}

var bankHeaders = map[string]bool{
	"arkivref": true, "arkivreferanse": true, "archive_reference": true, "bankref": true,
	"bank_reference": true, "bankreferanse": true, "inn": true, "ut": true,
	"bokføringsdato": true, "rentedato": true,
}

// SniffKind guesses the source kind from header keys and the first data row.
func SniffKind(headers []string, first []string) (ledger.SourceKind, bool) {
	for _, h := range headers {
		if stripeHeaders[h] {
			return ledger.SourceStripe, true
		}
	}
	for _, h := range headers {
		if bankHeaders[h] {
			return ledger.SourceBank, true
		}
	}
	for i, h := range headers {
		if h == "id" && i < len(first) {
			v := strings.TrimSpace(first[i])
			for _, p := range []string{"pi_", "ch_", "py_", "txn_"} {
				if strings.HasPrefix(v, p) {
					return ledger.SourceStripe, true
				}
			}
		}
	}
	return "", false
}

// Records converts a header row plus data rows. Blank rows are skipped.
func Records(rows [][]string, opts Options) ([]normalizer.RawRecord, error) {
	headerIdx := -1
	for i, row := range rows {
		if !blank(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, ErrNoHeader
	}

	headers := make([]string, len(rows[headerIdx]))
	for i, h := range rows[headerIdx] {
		headers[i] = HeaderKey(h)
	}
	data := rows[headerIdx+1:]

	kind := opts.Kind
	if kind == "" {
		var first []string
		for _, row := range data {
			if !blank(row) {
				first = row
				break
			}
		}
		sniffed, ok := SniffKind(headers, first)
		if !ok {
			return nil, ErrUnknownKind
		}
		kind = sniffed
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}

	records := make([]normalizer.RawRecord, 0, len(data))
	for _, row := range data {
		if blank(row) {
			continue
		}
		fields := make(map[string]any, len(headers))
		for i, h := range headers {
			if h == "" || i >= len(row) {
				continue
			}
			fields[h] = strings.TrimSpace(row[i])
		}
		records = append(records, normalizer.RawRecord{
			Kind:            kind,
			Origin:          opts.Origin,
			Unit:            ledger.UnitMajor,
			DefaultCurrency: opts.DefaultCurrency,
			DefaultProject:  opts.DefaultProject,
			Fields:          fields,
		})
	}
	return records, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
