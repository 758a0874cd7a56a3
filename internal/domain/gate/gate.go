// Package gate prepares a batch of new ledger entries for persistence.
//
// Stripe rows are unique by payment id and bank rows by archive reference.
// The two domains never overlap. When an archive reference appears more than
// once in the same batch it cannot be trusted for any of those rows, so it is
// cleared and the rows are written without it.
package gate

import (
	"fmt"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
)

// Prepare returns a copy of entries ready to insert. The input is not
// modified. Every returned entry has a SourceReference that is distinct
// within the batch.
func Prepare(entries []ledger.Entry) []ledger.Entry {
	out := make([]ledger.Entry, len(entries))
	copy(out, entries)

	archiveCounts := make(map[string]int)
	for _, e := range out {
		if e.SourceKind != ledger.SourceBank {
			continue
		}
		if ref := ledger.NormalizeID(e.ArchiveReference); ref != "" {
			archiveCounts[ref]++
		}
	}

	seen := make(map[string]int)
	for i := range out {
		e := &out[i]

		base := SourceReference(*e)
		key := string(e.SourceKind) + "\x00" + ledger.NormalizeID(base)
		seen[key]++
		if n := seen[key]; n > 1 {
			base = fmt.Sprintf("%s#%d", base, n)
		}
		e.SourceReference = base

		if e.SourceKind == ledger.SourceBank && archiveCounts[ledger.NormalizeID(e.ArchiveReference)] > 1 {
			e.ArchiveReference = ""
		}
	}

	return out
}

// SourceReference derives the reference a row is stored under, before batch
// suffixes. Stripe rows use the payment id. Bank rows use the bank reference,
// then the archive reference, then the composite key.
func SourceReference(e ledger.Entry) string {
	if e.SourceReference != "" {
		return e.SourceReference
	}
	switch e.SourceKind {
	case ledger.SourceStripe:
		return e.PaymentID
	case ledger.SourceBank:
		for _, ref := range []string{e.BankReference, e.ArchiveReference, e.CompositeKey} {
			if ledger.NormalizeID(ref) != "" {
				return ref
			}
		}
	}
	return ""
}

// SuppressedArchiveReferences lists the normalized archive references that
// Prepare would clear for this batch.
func SuppressedArchiveReferences(entries []ledger.Entry) []string {
	counts := make(map[string]int)
	var order []string
	for _, e := range entries {
		if e.SourceKind != ledger.SourceBank {
			continue
		}
		ref := ledger.NormalizeID(e.ArchiveReference)
		if ref == "" {
			continue
		}
		if counts[ref] == 0 {
			order = append(order, ref)
		}
		counts[ref]++
	}

	var dup []string
	for _, ref := range order {
		if counts[ref] > 1 {
			dup = append(dup, ref)
		}
	}
	return dup
}
