package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/ledgerbook/internal/application/importer"
	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
)

// PrintHeader prints the application header
func PrintHeader(w io.Writer, command string, dryRun bool) {
	mode := "COMMIT"
	if dryRun {
		mode = "DRY-RUN"
	}
	fmt.Fprintf(w, "ledgerbook: %s (%s mode)\n", command, mode)
}

// PrintPreview lists what a batch would import.
func PrintPreview(w io.Writer, filename string, p *importer.Preview) {
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "%s: new=%d duplicates=%d rejected=%d\n", filename, len(p.New), len(p.Duplicates), len(p.Rejected))
	if p.CheckFailed {
		fmt.Fprintf(w, "WARNING: ledger could not be checked (%s); every row is listed as new\n", p.CheckError)
	}

	for _, c := range p.New {
		fmt.Fprintf(w, "  + %s\n", describe(c.ID, c.Entry))
	}
	for _, d := range p.Duplicates {
		marker := "="
		if d.NeedsReview {
			marker = "?"
		}
		fmt.Fprintf(w, "  %s %s  [%s, ledger #%d]\n", marker, describe(d.ID, d.Entry), d.Tier, d.LedgerID)
	}
	for _, r := range p.Rejected {
		fmt.Fprintf(w, "  ! row %d: %s\n", r.Index+1, r.Reason)
	}
}

// PrintCommitSummary prints the commit result summary
func PrintCommitSummary(w io.Writer, filename string, r *importer.CommitResult) {
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "%s: Inserted=%d Duplicates=%d Rejected=%d Conflicts=%d Forced=%d\n",
		filename,
		r.Inserted,
		r.Duplicates,
		r.Rejected,
		r.Conflicts,
		r.Forced)

	if r.DryRun {
		fmt.Fprintf(w, "Dry run: %d rows would be written\n", r.Pending)
	}
	if len(r.Suppressed) > 0 {
		fmt.Fprintf(w, "Archive references repeated in this file and stored without them: %s\n", strings.Join(r.Suppressed, ", "))
	}
	if r.Preview != nil {
		for _, d := range r.Preview.Duplicates {
			if d.NeedsReview {
				fmt.Fprintf(w, "  ? %s matched ledger #%d on amount only; re-run with -force %s to import it\n", describe(d.ID, d.Entry), d.LedgerID, d.ID)
			}
		}
		for _, rej := range r.Preview.Rejected {
			fmt.Fprintf(w, "  ! row %d: %s\n", rej.Index+1, rej.Reason)
		}
	}
	if r.ArchiveURI != "" {
		fmt.Fprintf(w, "Archived upload: %s\n", r.ArchiveURI)
	}
	fmt.Fprintf(w, "Run #%d (batch %s)\n", r.RunID, r.BatchID)
}

func describe(id string, e ledger.Entry) string {
	date := "----------"
	if !e.OccurredOn.IsZero() {
		date = e.OccurredOn.Format("2006-01-02")
	}
	sign := ""
	if e.Direction == ledger.Expense {
		sign = "-"
	}
	return fmt.Sprintf("%s %-24s %s%s %s %s",
		date, id, sign, decimal.New(e.Amount, -2).StringFixed(2), strings.ToUpper(e.Currency), e.Description)
}
