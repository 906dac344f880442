package handler

import (
	"net/http"

	"github.com/EisukeHirata/profile-nanobanana/internal/api/v1/dto"
	"github.com/EisukeHirata/profile-nanobanana/internal/service"

	"github.com/rs/zerolog"
)

type UserHandler struct {
	userService   service.UserService
	ledgerService service.LedgerService
	logger        zerolog.Logger
}

func NewUserHandler(userService service.UserService, ledgerService service.LedgerService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{userService: userService, ledgerService: ledgerService, logger: logger}
}

// RegisterRoutes mounts v1 user routes
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/users/me", authMw(http.HandlerFunc(h.handleUsers)))
	mux.Handle("/credits", authMw(http.HandlerFunc(h.getCredits)))
}

func (h *UserHandler) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.signIn(w, r)
	case http.MethodGet:
		h.getUser(w, r)
	default:
		http.NotFound(w, r)
	}
}

// signIn godoc
// @Summary Ensure the caller's profile exists
// @Description Creates the profile with the bootstrap credit on first sign-in.
// @Tags users
// @Produce json
// @Success 200 {object} dto.UserResponseDTO
// @Success 201 {object} dto.UserResponseDTO
// @Failure 401 {object} dto.ErrorResponseDTO
// @Router /users/me [post]
func (h *UserHandler) signIn(w http.ResponseWriter, r *http.Request) {
	email, ok := userEmail(w, r, h.logger)
	if !ok {
		return
	}
	profile, created, err := h.userService.SignIn(r.Context(), email)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, dto.NewUserResponse(profile, created), h.logger)
}

// getUser godoc
// @Summary Get the caller's profile
// @Tags users
// @Produce json
// @Success 200 {object} dto.UserResponseDTO
// @Failure 404 {object} dto.ErrorResponseDTO
// @Router /users/me [get]
func (h *UserHandler) getUser(w http.ResponseWriter, r *http.Request) {
	email, ok := userEmail(w, r, h.logger)
	if !ok {
		return
	}
	profile, err := h.userService.Get(r.Context(), email)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewUserResponse(profile, false), h.logger)
}

// getCredits godoc
// @Summary Get the caller's credit balance
// @Description Returns zero credits and the free tier when no profile exists.
// @Tags credits
// @Produce json
// @Success 200 {object} dto.CreditsResponseDTO
// @Router /credits [get]
func (h *UserHandler) getCredits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	email, ok := userEmail(w, r, h.logger)
	if !ok {
		return
	}
	balance, err := h.ledgerService.GetBalance(r.Context(), email)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewCreditsResponse(balance), h.logger)
}
