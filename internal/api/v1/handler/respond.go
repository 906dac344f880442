package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/EisukeHirata/profile-nanobanana/internal/api/v1/dto"
	"github.com/EisukeHirata/profile-nanobanana/internal/middleware"
	"github.com/EisukeHirata/profile-nanobanana/internal/service"

	"github.com/rs/zerolog"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}, logger zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string, logger zerolog.Logger) {
	writeJSON(w, status, dto.ErrorResponseDTO{Error: msg}, logger)
}

// writeServiceError maps service errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, err error, logger zerolog.Logger) {
	var insufficient *service.InsufficientCreditsError
	var upstream *service.UpstreamGenerationError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusPaymentRequired, dto.InsufficientCreditsResponseDTO{
			Error:    "Insufficient credits",
			Credits:  insufficient.Available,
			Required: insufficient.Required,
		}, logger)
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Unauthorized", logger)
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error(), logger)
	case errors.Is(err, service.ErrInvalidImageIndex):
		writeError(w, http.StatusBadRequest, "Invalid image index", logger)
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", logger)
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", logger)
	case errors.Is(err, service.ErrNoActiveSubscription):
		writeError(w, http.StatusNotFound, "No active subscription found", logger)
	case errors.Is(err, service.ErrUpstreamRateLimited):
		writeError(w, http.StatusTooManyRequests, "Quota exceeded for the image model, try again later", logger)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "Image generation timed out, please try again", logger)
	case errors.As(err, &upstream):
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   upstream.Error(),
		}, logger)
	default:
		logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal Server Error", logger)
	}
}

func userEmail(w http.ResponseWriter, r *http.Request, logger zerolog.Logger) (string, bool) {
	email, ok := middleware.EmailFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", logger)
		return "", false
	}
	return email, true
}
