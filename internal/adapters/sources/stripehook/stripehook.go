// Package stripehook verifies Stripe webhook deliveries and turns succeeded
// payment intents into raw import records.
package stripehook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/domain/normalizer"
)

const EventPaymentIntentSucceeded = "payment_intent.succeeded"

var (
	ErrNoSecret         = errors.New("stripe webhook secret is not configured")
	ErrInvalidSignature = errors.New("invalid stripe signature")
	ErrIgnoredEvent     = errors.New("event type is not imported")
)

// Event is a verified delivery. Record is nil for ignored event types.
type Event struct {
	ID     string
	Type   string
	Record *normalizer.RawRecord
}

// Verifier checks the Stripe-Signature header against the endpoint secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier returns a verifier using Stripe's default five minute tolerance.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Parse verifies payload and decodes it. Event types other than
// payment_intent.succeeded return the event with ErrIgnoredEvent so callers
// can acknowledge them without importing anything.
func (v *Verifier) Parse(payload []byte, signature string) (*Event, error) {
	if v.secret == "" {
		return nil, ErrNoSecret
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Type != EventPaymentIntentSucceeded {
		return out, ErrIgnoredEvent
	}
	if evt.Data == nil {
		return nil, fmt.Errorf("event %s has no data", evt.ID)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	rec := PaymentIntentRecord(&pi)
	out.Record = &rec
	return out, nil
}

// PaymentIntentRecord maps a payment intent to a raw record. Stripe amounts
// are already in minor units.
func PaymentIntentRecord(pi *stripe.PaymentIntent) normalizer.RawRecord {
	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}

	fields := map[string]any{
		"payment_intent": pi.ID,
		"amount":         amount,
		"currency":       string(pi.Currency),
		"type":           "income",
	}
	if pi.Created > 0 {
		fields["created"] = pi.Created
	}
	if pi.Description != "" {
		fields["description"] = pi.Description
	}
	if pi.ReceiptEmail != "" {
		fields["receipt_email"] = pi.ReceiptEmail
	}
	if pi.Customer != nil && pi.Customer.ID != "" {
		fields["customer"] = pi.Customer.ID
	}
	if len(pi.Metadata) > 0 {
		meta := make(map[string]any, len(pi.Metadata))
		for k, v := range pi.Metadata {
			meta[k] = v
		}
		fields["metadata"] = meta
	}

	return normalizer.RawRecord{
		Kind:   ledger.SourceStripe,
		Origin: ledger.OriginWebhook,
		Unit:   ledger.UnitMinor,
		Fields: fields,
	}
}
