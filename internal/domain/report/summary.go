// Package report aggregates ledger entries into revenue, expense and profit
// figures per project, month and currency.
package report

import (
	"sort"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
)

// Unassigned is the project label for entries without a project.
const Unassigned = "unassigned"

// Summary is one (project, month, currency) bucket. Amounts are minor units.
type Summary struct {
	Project  string `json:"project"`
	Month    string `json:"month"` // YYYY-MM, empty when the entry has no date
	Currency string `json:"currency"`
	Revenue  int64  `json:"revenue"`
	Expenses int64  `json:"expenses"`
	Profit   int64  `json:"profit"`
	Count    int    `json:"count"`
}

// CurrencyTotal rolls summaries up per currency. Currencies are never summed
// together.
type CurrencyTotal struct {
	Currency string `json:"currency"`
	Revenue  int64  `json:"revenue"`
	Expenses int64  `json:"expenses"`
	Profit   int64  `json:"profit"`
	Count    int    `json:"count"`
}

type bucketKey struct {
	project  string
	month    string
	currency string
}

// Summarize groups entries and returns buckets sorted by month, project and
// currency.
func Summarize(entries []ledger.Entry) []Summary {
	buckets := make(map[bucketKey]*Summary)

	for _, e := range entries {
		key := bucketKey{
			project:  e.Project,
			currency: e.Currency,
		}
		if key.project == "" {
			key.project = Unassigned
		}
		if !e.OccurredOn.IsZero() {
			key.month = e.OccurredOn.UTC().Format("2006-01")
		}

		s, ok := buckets[key]
		if !ok {
			s = &Summary{Project: key.project, Month: key.month, Currency: key.currency}
			buckets[key] = s
		}
		if e.Direction == ledger.Expense {
			s.Expenses += e.Amount
		} else {
			s.Revenue += e.Amount
		}
		s.Count++
	}

	out := make([]Summary, 0, len(buckets))
	for _, s := range buckets {
		s.Profit = s.Revenue - s.Expenses
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		if out[i].Project != out[j].Project {
			return out[i].Project < out[j].Project
		}
		return out[i].Currency < out[j].Currency
	})
	return out
}

// Totals rolls summaries up per currency, sorted by currency.
func Totals(summaries []Summary) []CurrencyTotal {
	byCurrency := make(map[string]*CurrencyTotal)
	for _, s := range summaries {
		t, ok := byCurrency[s.Currency]
		if !ok {
			t = &CurrencyTotal{Currency: s.Currency}
			byCurrency[s.Currency] = t
		}
		t.Revenue += s.Revenue
		t.Expenses += s.Expenses
		t.Count += s.Count
	}

	out := make([]CurrencyTotal, 0, len(byCurrency))
	for _, t := range byCurrency {
		t.Profit = t.Revenue - t.Expenses
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// Projects returns the distinct project labels in summaries, sorted.
func Projects(summaries []Summary) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range summaries {
		if _, ok := seen[s.Project]; ok {
			continue
		}
		seen[s.Project] = struct{}{}
		out = append(out, s.Project)
	}
	sort.Strings(out)
	return out
}
