package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/eshaffer321/ledgerbook/internal/adapters/sources/stripehook"
	"github.com/eshaffer321/ledgerbook/internal/api/dto"
	"github.com/eshaffer321/ledgerbook/internal/api/middleware"
	"github.com/eshaffer321/ledgerbook/internal/application/importer"
	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/domain/normalizer"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

// maxWebhookBytes matches Stripe's documented payload ceiling.
const maxWebhookBytes = 65536

// WebhooksHandler receives Stripe deliveries. It sits outside the access
// policy; the signature is the authentication.
type WebhooksHandler struct {
	*Base
	verifier *stripehook.Verifier
	importer *importer.Service
}

// NewWebhooksHandler creates a new webhooks handler.
func NewWebhooksHandler(repo storage.Repository, verifier *stripehook.Verifier, svc *importer.Service, logger *slog.Logger) *WebhooksHandler {
	return &WebhooksHandler{
		Base:     NewBase(repo, logger),
		verifier: verifier,
		importer: svc,
	}
}

// Stripe handles POST /webhooks/stripe. Only the payment id decides whether a
// delivery is already imported; an amount match alone is written and flagged
// for review. A 503 makes Stripe retry later.
func (h *WebhooksHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	log := middleware.Logger(r.Context(), h.logger)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		h.WriteError(w, http.StatusRequestEntityTooLarge, dto.BadRequestError("payload too large"))
		return
	}

	evt, err := h.verifier.Parse(payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, stripehook.ErrIgnoredEvent):
		log.Debug("stripe event ignored", "event_id", evt.ID, "type", evt.Type)
		h.WriteJSON(w, http.StatusOK, dto.WebhookResponse{Received: true, EventID: evt.ID, Ignored: true})
		return
	case errors.Is(err, stripehook.ErrNoSecret):
		log.Error("stripe webhook received but no secret is configured")
		h.WriteError(w, http.StatusServiceUnavailable, dto.UnavailableError(err.Error()))
		return
	case err != nil:
		log.Warn("stripe webhook rejected", "error", err)
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid webhook"))
		return
	}

	result, err := h.importer.Commit(r.Context(), importer.Batch{
		Records:  []normalizer.RawRecord{*evt.Record},
		Kind:     ledger.SourceStripe,
		Origin:   ledger.OriginWebhook,
		Filename: evt.ID,
	}, importer.CommitOptions{ReferenceOnly: true})
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	if result.Rejected > 0 {
		log.Warn("stripe payment could not be normalized", "event_id", evt.ID, "reason", result.Preview.Rejected[0].Reason)
	}
	if len(result.Flagged) > 0 {
		log.Warn("stripe payment imported despite an amount match, needs review", "event_id", evt.ID, "ids", result.Flagged)
	}

	h.WriteJSON(w, http.StatusOK, dto.WebhookResponse{
		Received:    true,
		EventID:     evt.ID,
		Inserted:    result.Inserted,
		NeedsReview: len(result.Flagged) > 0,
	})
}
