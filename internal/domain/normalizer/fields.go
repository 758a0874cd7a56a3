package normalizer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
)

// extractor pulls a value out of a raw field. ok is false when the field is
// absent or empty, so the next candidate in the list is tried.
type extractor func(v any) (any, bool)

// fieldRule is one (fieldName, extractor) pair.
type fieldRule struct {
	name    string
	extract extractor
}

// fieldRules lists the rules for one logical value, in priority order.
type fieldRules []fieldRule

// lookup returns the first value any rule yields.
func (rules fieldRules) lookup(fields map[string]any) (any, string, bool) {
	for _, rule := range rules {
		raw, ok := fields[rule.name]
		if !ok {
			continue
		}
		if v, ok := rule.extract(raw); ok {
			return v, rule.name, true
		}
	}
	return nil, "", false
}

// lookupString is lookup for values that must be strings.
func (rules fieldRules) lookupString(fields map[string]any) string {
	v, _, ok := rules.lookup(fields)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func text(v any) (any, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		s = t.String()
	default:
		return nil, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	return s, true
}

// stripeRef accepts only values shaped like a Stripe object id.
func stripeRef(v any) (any, bool) {
	s, ok := text(v)
	if !ok {
		return nil, false
	}
	id := s.(string)
	if !strings.Contains(id, "_") {
		return nil, false
	}
	return id, true
}

// nested reads obj[key] when the field holds an object, e.g. {"metadata": {"project": "x"}}.
func nested(key string) extractor {
	return func(v any) (any, bool) {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		return text(m[key])
	}
}

// raw passes any non-empty value through unchanged. Used for amounts, which
// ParseAmount interprets.
func raw(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, false
		}
	}
	return v, true
}

func rules(ex extractor, names ...string) fieldRules {
	out := make(fieldRules, 0, len(names))
	for _, n := range names {
		out = append(out, fieldRule{name: n, extract: ex})
	}
	return out
}

// shape is the per-source-kind field map.
type shape struct {
	paymentID    fieldRules
	archiveRef   fieldRules
	bankRef      fieldRules
	amount       fieldRules
	currency     fieldRules
	date         fieldRules
	direction    fieldRules
	counterparty fieldRules
	description  fieldRules
	project      fieldRules
}

var commonDescription = rules(text, "description", "beskrivelse", "forklaring", "tekst", "text", "memo", "statement_descriptor")

var commonProject = append(
	rules(text, "project", "prosjekt"),
	fieldRule{name: "metadata", extract: nested("project")},
)

var stripeShape = shape{
	paymentID: append(
		rules(stripeRef, "payment_intent", "payment_intent_id", "paymentintent", "payment_id", "stripe_payment_id", "primary_id"),
		rules(stripeRef, "id", "charge_id", "charge", "source_id")...,
	),
	amount:       rules(raw, "amount", "amount_minor", "gross", "net", "beløp", "belop"),
	currency:     rules(text, "currency", "valuta", "currency_code"),
	date:         rules(raw, "created", "created (utc)", "created_at", "date", "available_on", "dato"),
	direction:    rules(text, "type", "direction", "reporting_category"),
	counterparty: rules(text, "customer_email", "customer_name", "customer", "receipt_email", "counterparty", "name"),
	description:  commonDescription,
	project:      commonProject,
}

var bankShape = shape{
	archiveRef:   rules(text, "archive_reference", "archive_ref", "archiveref", "arkivref", "arkivreferanse", "arkiv_referanse", "primary_id"),
	bankRef:      rules(text, "bank_reference", "bank_ref", "bankref", "bankreferanse", "reference", "referanse", "ref", "secondary_id"),
	amount:       rules(raw, "amount", "beløp", "belop", "amount_minor", "sum", "inn", "ut", "credit", "debit"),
	currency:     rules(text, "currency", "valuta", "currency_code"),
	date:         rules(raw, "date", "booking_date", "bokføringsdato", "bokforingsdato", "dato", "rentedato", "value_date", "transaction_date", "created"),
	direction:    rules(text, "type", "direction", "transaksjonstype"),
	counterparty: rules(text, "counterparty", "mottaker", "avsender", "payee", "payer", "merchant", "name", "navn"),
	description:  commonDescription,
	project:      commonProject,
}

func shapeFor(kind ledger.SourceKind) (shape, bool) {
	switch kind {
	case ledger.SourceStripe:
		return stripeShape, true
	case ledger.SourceBank:
		return bankShape, true
	}
	return shape{}, false
}
