package handler

import (
	"encoding/json"
	"net/http"

	"github.com/EisukeHirata/profile-nanobanana/internal/api/v1/dto"
	"github.com/EisukeHirata/profile-nanobanana/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// SubscriptionHandler handles checkout and cancellation endpoints.
type SubscriptionHandler struct {
	stripeSvc *service.StripeService
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(stripeSvc *service.StripeService, v *validator.Validate, logger zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{stripeSvc: stripeSvc, validate: v, logger: logger}
}

// RegisterRoutes registers the subscription endpoints.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware func(http.Handler) http.Handler) {
	mux.Handle("/stripe/checkout", authMiddleware(http.HandlerFunc(h.Checkout)))
	mux.Handle("/stripe/cancel", authMiddleware(http.HandlerFunc(h.Cancel)))
}

// Checkout godoc
// @Summary Create a Stripe Checkout session
// @Description Creates a Checkout session for a credit pack (payment) or a subscription tier.
// @Tags billing
// @Accept json
// @Produce json
// @Param checkout body dto.CheckoutRequestDTO true "Checkout request"
// @Success 200 {object} dto.CheckoutResponseDTO
// @Failure 400 {object} dto.ErrorResponseDTO
// @Failure 401 {object} dto.ErrorResponseDTO
// @Failure 500 {object} dto.ErrorResponseDTO
// @Router /stripe/checkout [post]
func (h *SubscriptionHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	email, ok := userEmail(w, r, h.logger)
	if !ok {
		return
	}
	var req dto.CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload", h.logger)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing priceId or mode", h.logger)
		return
	}
	sess, err := h.stripeSvc.CreateCheckoutSession(r.Context(), email, req.PriceID, service.CheckoutMode(req.Mode))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dto.CheckoutResponseDTO{SessionID: sess.SessionID, URL: sess.URL}, h.logger)
}

// Cancel godoc
// @Summary Cancel the active subscription at period end
// @Tags billing
// @Produce json
// @Success 200 {object} dto.CancelSubscriptionResponseDTO
// @Failure 404 {object} dto.ErrorResponseDTO "no active subscription"
// @Router /stripe/cancel [post]
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	email, ok := userEmail(w, r, h.logger)
	if !ok {
		return
	}
	sub, err := h.stripeSvc.CancelSubscription(r.Context(), email)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dto.CancelSubscriptionResponseDTO{Success: true, Subscription: sub}, h.logger)
}
