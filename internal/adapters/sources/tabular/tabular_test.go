package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/domain/normalizer"
)

func TestHeaderKey(t *testing.T) {
	assert.Equal(t, "created", HeaderKey("Created (UTC)"))
	assert.Equal(t, "payment_intent", HeaderKey(" Payment  Intent "))
	assert.Equal(t, "beløp", HeaderKey("Beløp"))
	assert.Equal(t, "arkivref", HeaderKey("\ufeffArkivref"))
}

func TestSniffKind(t *testing.T) {
	kind, ok := SniffKind([]string{"id", "amount", "payment_intent"}, nil)
	assert.True(t, ok)
	assert.Equal(t, ledger.SourceStripe, kind)

	kind, ok = SniffKind([]string{"dato", "forklaring", "inn", "ut", "arkivref"}, nil)
	assert.True(t, ok)
	assert.Equal(t, ledger.SourceBank, kind)

	kind, ok = SniffKind([]string{"id", "amount"}, []string{"ch_123", "10.00"})
	assert.True(t, ok)
	assert.Equal(t, ledger.SourceStripe, kind)

	_, ok = SniffKind([]string{"date", "amount"}, []string{"2024-01-01", "10"})
	assert.False(t, ok)
}

func TestRecords_BankStatement(t *testing.T) {
	rows := [][]string{
		{"", ""},
		{"Dato", "Forklaring", "Inn", "Ut", "Arkivref"},
		{"01.03.2024", "Faktura 1001", "26000,00", "", "670001"},
		{"", "", "", "", ""},
		{"02.03.2024", "Kontor", "", "499,00", ""},
	}

	records, err := Records(rows, Options{Origin: ledger.OriginCSV, DefaultCurrency: "nok"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, ledger.SourceBank, records[0].Kind)
	assert.Equal(t, ledger.UnitMajor, records[0].Unit)
	assert.Equal(t, "670001", records[0].Fields["arkivref"])

	entries, rejected := normalizer.NormalizeBatch(records)
	require.Empty(t, rejected)
	assert.Equal(t, int64(2600000), entries[0].Amount)
	assert.Equal(t, ledger.Income, entries[0].Direction)
	assert.Equal(t, int64(49900), entries[1].Amount)
	assert.Equal(t, ledger.Expense, entries[1].Direction)
	assert.NotEmpty(t, entries[1].CompositeKey)
}

func TestRecords_UnknownKind(t *testing.T) {
	_, err := Records([][]string{{"date", "amount"}, {"2024-01-01", "10"}}, Options{})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Records(nil, Options{})
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestRecords_ExplicitKind(t *testing.T) {
	records, err := Records([][]string{{"date", "amount", "bankref"}, {"2024-01-01", "10", "9"}}, Options{Kind: ledger.SourceBank})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ledger.SourceBank, records[0].Kind)
}
