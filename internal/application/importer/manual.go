package importer

import (
	"encoding/json"
	"fmt"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/domain/normalizer"
)

// ManualEntry is a transaction typed in by hand.
type ManualEntry struct {
	Kind             string      `json:"kind"`
	Amount           json.Number `json:"amount"`
	AmountUnit       string      `json:"amount_unit,omitempty"` // major (default) or minor
	Currency         string      `json:"currency,omitempty"`
	Date             string      `json:"date,omitempty"`
	Direction        string      `json:"direction,omitempty"`
	Description      string      `json:"description,omitempty"`
	Counterparty     string      `json:"counterparty,omitempty"`
	Project          string      `json:"project,omitempty"`
	PaymentID        string      `json:"payment_id,omitempty"`
	ArchiveReference string      `json:"archive_reference,omitempty"`
	BankReference    string      `json:"bank_reference,omitempty"`
}

// Record converts the entry to a raw record. Amounts default to major units
// because that is how people type them.
func (m ManualEntry) Record(defaultCurrency string) (normalizer.RawRecord, error) {
	kind, ok := ledger.ParseSourceKind(m.Kind)
	if !ok {
		return normalizer.RawRecord{}, fmt.Errorf("unknown source kind %q", m.Kind)
	}

	unit := ledger.UnitMajor
	switch m.AmountUnit {
	case "", string(ledger.UnitMajor):
	case string(ledger.UnitMinor):
		unit = ledger.UnitMinor
	default:
		return normalizer.RawRecord{}, fmt.Errorf("amount_unit must be major or minor, got %q", m.AmountUnit)
	}

	fields := map[string]any{}
	set := func(k, v string) {
		if v != "" {
			fields[k] = v
		}
	}
	if m.Amount != "" {
		fields["amount"] = m.Amount
	}
	set("currency", m.Currency)
	set("date", m.Date)
	set("direction", m.Direction)
	set("description", m.Description)
	set("counterparty", m.Counterparty)
	set("project", m.Project)
	set("payment_id", m.PaymentID)
	set("archive_reference", m.ArchiveReference)
	set("bank_reference", m.BankReference)

	return normalizer.RawRecord{
		Kind:            kind,
		Origin:          ledger.OriginManual,
		Unit:            unit,
		DefaultCurrency: defaultCurrency,
		Fields:          fields,
	}, nil
}
