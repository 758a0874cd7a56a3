// Package matcher decides which imported transactions already exist in the
// ledger.
//
// Matching is tiered, and the first tier that finds a row wins:
//   - Tier 1: bank archive reference equals an existing bank row's archive reference
//   - Tier 2: Stripe payment id equals an existing Stripe row's payment id
//   - Tier 3: amount and currency are equal and identifier lengths differ by
//     at most Config.LengthTolerance (absorbs OCR misreads of a character)
//
// Identifiers are compared trimmed and case-insensitively. This is an
// existence check, not a best-match ranking: there is no scoring and no
// aggregation of multiple hits.
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultConfig())
//	result := m.FindDuplicates(candidates, existing)
//	if result.IsMatched(candidates[0].ID()) {
//		// already in the ledger
//	}
package matcher

import (
	"unicode/utf8"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
)

// Matcher matches candidate records against existing ledger rows.
// It holds no mutable state and is safe for concurrent use.
type Matcher struct {
	config Config
}

// NewMatcher creates a new matcher with the given config
func NewMatcher(config Config) *Matcher {
	if config.LengthTolerance < 0 {
		config.LengthTolerance = 0
	}
	return &Matcher{
		config: config,
	}
}

// FindDuplicates is the package-level shorthand for a default matcher.
func FindDuplicates(candidates []ledger.TransactionRecord, existing []ledger.LedgerRow) Result {
	return NewMatcher(DefaultConfig()).FindDuplicates(candidates, existing)
}

// FindDuplicates returns the normalized ids of candidates that already exist
// in the ledger, plus one detail per matched candidate.
func (m *Matcher) FindDuplicates(candidates []ledger.TransactionRecord, existing []ledger.LedgerRow) Result {
	result := Result{
		MatchedIDs: make(map[string]struct{}),
		Details:    make([]MatchDetail, 0),
	}

	for i, candidate := range candidates {
		detail, ok := m.match(candidate, existing)
		if !ok {
			continue
		}
		detail.CandidateIndex = i
		result.MatchedIDs[detail.CandidateID] = struct{}{}
		result.Details = append(result.Details, detail)
	}

	return result
}

// match runs the tiers in order for one candidate.
func (m *Matcher) match(candidate ledger.TransactionRecord, existing []ledger.LedgerRow) (MatchDetail, bool) {
	candidateID := candidate.ID()
	primary := ledger.NormalizeID(candidate.PrimaryID)

	tiers := []struct {
		tier  Tier
		match func(row ledger.LedgerRow) bool
	}{
		{
			tier: TierArchiveReference,
			match: func(row ledger.LedgerRow) bool {
				return candidate.SourceKind == ledger.SourceBank &&
					row.SourceKind == ledger.SourceBank &&
					primary != "" &&
					primary == ledger.NormalizeID(row.ArchiveReference)
			},
		},
		{
			tier: TierPaymentID,
			match: func(row ledger.LedgerRow) bool {
				return candidate.SourceKind == ledger.SourceStripe &&
					row.SourceKind == ledger.SourceStripe &&
					primary != "" &&
					primary == ledger.NormalizeID(row.PaymentID)
			},
		},
		{
			tier: TierAmountCurrency,
			match: func(row ledger.LedgerRow) bool {
				return m.amountCurrencyMatch(candidateID, candidate, row)
			},
		},
	}

	for _, t := range tiers {
		for _, row := range existing {
			if t.match(row) {
				return MatchDetail{
					CandidateID:      candidateID,
					LedgerID:         row.ID,
					LedgerIdentifier: row.Identifier(),
					Tier:             t.tier,
				}, true
			}
		}
	}

	return MatchDetail{}, false
}

// amountCurrencyMatch is the heuristic fallback. Identifier length is only a
// filter; the identifier contents are not compared.
func (m *Matcher) amountCurrencyMatch(candidateID string, candidate ledger.TransactionRecord, row ledger.LedgerRow) bool {
	if candidate.Amount != row.Amount {
		return false
	}
	if ledger.NormalizeID(candidate.Currency) != ledger.NormalizeID(row.Currency) {
		return false
	}
	diff := utf8.RuneCountInString(candidateID) - utf8.RuneCountInString(row.Identifier())
	if diff < 0 {
		diff = -diff
	}
	return diff <= m.config.LengthTolerance
}
