package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/EisukeHirata/profile-nanobanana/internal/api/v1/dto"
	"github.com/EisukeHirata/profile-nanobanana/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// maxGenerateBody bounds request bodies carrying base64 reference photos.
const maxGenerateBody = 32 << 20

type GenerationHandler struct {
	generationService service.GenerationService
	validate          *validator.Validate
	logger            zerolog.Logger
}

func NewGenerationHandler(generationService service.GenerationService, v *validator.Validate, logger zerolog.Logger) *GenerationHandler {
	return &GenerationHandler{generationService: generationService, validate: v, logger: logger}
}

// RegisterRoutes mounts generation and history routes
func (h *GenerationHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/generate", authMw(http.HandlerFunc(h.generate)))
	mux.Handle("/history", authMw(http.HandlerFunc(h.history)))
	mux.Handle("/generations/", authMw(http.HandlerFunc(h.handleGeneration)))
}

func (h *GenerationHandler) handleGeneration(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/generations/"), "/")
	parts := strings.Split(rest, "/")

	switch {
	case rest == "delete-image" && r.Method == http.MethodDelete:
		h.deleteImageByBody(w, r)
	case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodGet:
		h.getGeneration(w, r, parts[0])
	case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodDelete:
		h.deleteGeneration(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "images" && r.Method == http.MethodDelete:
		index, err := strconv.Atoi(parts[2])
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid image index", h.logger)
			return
		}
		h.deleteImage(w, r, parts[0], index)
	default:
		http.NotFound(w, r)
	}
}

// generate godoc
// @Summary Generate profile photos
// @Description Checks credits, calls the image model and debits only for images produced.
// @Tags generations
// @Accept json
// @Produce json
// @Param request body dto.GenerateRequestDTO true "Generation request"
// @Success 200 {object} dto.GenerateResponseDTO
// @Failure 400 {object} dto.ErrorResponseDTO
// @Failure 402 {object} dto.InsufficientCreditsResponseDTO
// @Failure 429 {object} dto.ErrorResponseDTO
// @Failure 500 {object} dto.ErrorResponseDTO
// @Router /generate [post]
func (h *GenerationHandler) generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	email, ok := userEmail(w, r, h.logger)
	if !ok {
		return
	}

	var req dto.GenerateRequestDTO
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGenerateBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload", h.logger)
		return
	}
	if len(req.Images) == 0 {
		writeError(w, http.StatusBadRequest, "No images provided", h.logger)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed: "+err.Error(), h.logger)
		return
	}

	res, err := h.generationService.Generate(r.Context(), email, service.GenerateRequest{
		Images:      req.Images,
		Scene:       req.Scene,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		ShotType:    req.ShotType,
		EyeContact:  req.EyeContact,
		Quality:     req.Quality,
		ImageCount:  req.ImageCount,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dto.GenerateResponseDTO{
		Success:          true,
		Message:          fmt.Sprintf("Generated %d images successfully", len(res.Images)),
		GenerationID:     res.GenerationID,
		Images:           res.Images,
		RemainingCredits: res.RemainingCredits,
		DebugResponse:    res.DebugResponse,
	}, h.logger)
}

// history godoc
// @Summary List the caller's generations
// @Tags generations
// @Produce json
// @Success 200 {object} dto.HistoryResponseDTO
// @Router /history [get]
func (h *GenerationHandler) history(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	email, ok := userEmail(w, r, h.logger)
	if !ok {
		return
	}
	items, err := h.generationService.History(r.Context(), email)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to fetch history")
		writeError(w, http.StatusInternalServerError, "Failed to fetch history", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewHistoryResponse(items), h.logger)
}

func (h *GenerationHandler) getGeneration(w http.ResponseWriter, r *http.Request, id string) {
	email, ok := userEmail(w, r, h.logger)
	if !ok {
		return
	}
	g, err := h.generationService.Get(r.Context(), email, id)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewGenerationResponse(g), h.logger)
}

func (h *GenerationHandler) deleteGeneration(w http.ResponseWriter, r *http.Request, id string) {
	email, ok := userEmail(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.generationService.Delete(r.Context(), email, id); err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true}, h.logger)
}

func (h *GenerationHandler) deleteImageByBody(w http.ResponseWriter, r *http.Request) {
	var req dto.DeleteImageRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload", h.logger)
		return
	}
	if req.GenerationID == "" || req.ImageIndex == nil {
		writeError(w, http.StatusBadRequest, "Missing generationId or imageIndex", h.logger)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed: "+err.Error(), h.logger)
		return
	}
	h.deleteImage(w, r, req.GenerationID, *req.ImageIndex)
}

func (h *GenerationHandler) deleteImage(w http.ResponseWriter, r *http.Request, id string, index int) {
	email, ok := userEmail(w, r, h.logger)
	if !ok {
		return
	}
	remaining, err := h.generationService.DeleteImage(r.Context(), email, id, index)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dto.DeleteImageResponseDTO{Success: true, Images: remaining}, h.logger)
}
