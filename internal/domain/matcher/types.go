package matcher

// Tier is a matching strategy ranked by confidence.
type Tier int

const (
	TierNone Tier = iota
	TierArchiveReference
	TierPaymentID
	TierAmountCurrency
)

// String returns the tier name used in logs and API responses.
func (t Tier) String() string {
	switch t {
	case TierArchiveReference:
		return "archive_reference"
	case TierPaymentID:
		return "payment_id"
	case TierAmountCurrency:
		return "amount_currency"
	default:
		return "none"
	}
}

// Config holds matcher configuration
type Config struct {
	LengthTolerance int // Max identifier length difference for the amount+currency tier (default: 5)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		LengthTolerance: 5,
	}
}

// MatchDetail records which ledger row a candidate matched and how.
type MatchDetail struct {
	CandidateIndex   int
	CandidateID      string // normalized
	LedgerID         int64
	LedgerIdentifier string // normalized
	Tier             Tier
}

// NeedsReview is true for heuristic matches, which can be false positives
// when two unrelated transactions share an amount and currency.
func (d MatchDetail) NeedsReview() bool {
	return d.Tier == TierAmountCurrency
}

// Result contains duplicate information for a candidate batch
type Result struct {
	MatchedIDs map[string]struct{}
	Details    []MatchDetail
}

// IsMatched reports whether a normalized candidate id was matched.
func (r Result) IsMatched(id string) bool {
	_, ok := r.MatchedIDs[id]
	return ok
}

// DetailFor returns the match detail for a candidate index, if any.
func (r Result) DetailFor(index int) (MatchDetail, bool) {
	for _, d := range r.Details {
		if d.CandidateIndex == index {
			return d, true
		}
	}
	return MatchDetail{}, false
}
