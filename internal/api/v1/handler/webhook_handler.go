package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/EisukeHirata/profile-nanobanana/internal/api/v1/dto"
	"github.com/EisukeHirata/profile-nanobanana/internal/service"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
)

// maxWebhookBody matches the size Stripe documents as the upper bound for event payloads.
const maxWebhookBody = 1 << 20

// WebhookVerifier authenticates a raw webhook body.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signature string) (stripe.Event, error)
}

// WebhookHandler receives signed billing events. It is not behind user auth.
type WebhookHandler struct {
	verifier   WebhookVerifier
	reconciler service.Reconciler
	logger     zerolog.Logger
}

func NewWebhookHandler(verifier WebhookVerifier, reconciler service.Reconciler, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, reconciler: reconciler, logger: logger}
}

func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/webhooks/stripe", h.Stripe)
}

// Stripe godoc
// @Summary Receive Stripe webhook events
// @Description Verifies the Stripe-Signature header and reconciles the event into the credit ledger.
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} dto.WebhookResponseDTO
// @Failure 400 {object} dto.ErrorResponseDTO "signature verification failed"
// @Failure 500 {object} dto.ErrorResponseDTO "handler failed, provider retries"
// @Router /webhooks/stripe [post]
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read Stripe webhook payload")
		writeError(w, http.StatusBadRequest, "failed to read payload", h.logger)
		return
	}

	event, err := h.verifier.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn().Err(err).Msg("Signature verification failed for Stripe webhook")
		writeError(w, http.StatusBadRequest, "Webhook Error: "+err.Error(), h.logger)
		return
	}
	h.logger.Info().Str("event_id", event.ID).Str("event_type", string(event.Type)).Msg("Stripe webhook received")

	billingEvent, err := service.ParseStripeEvent(event)
	if err != nil {
		h.logger.Error().Err(err).Str("event_id", event.ID).Msg("Invalid Stripe event payload")
		writeError(w, http.StatusBadRequest, "invalid event payload", h.logger)
		return
	}

	var raw []byte
	if event.Data != nil {
		raw = event.Data.Raw
	}
	out, err := h.reconciler.Reconcile(r.Context(), billingEvent, raw)
	if err != nil {
		if errors.Is(err, service.ErrMalformedEvent) {
			writeError(w, http.StatusBadRequest, "invalid event payload", h.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Webhook handler failed", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dto.WebhookResponseDTO{Received: true, Duplicate: out.Duplicate}, h.logger)
}
