package dto

import (
	"time"

	"github.com/EisukeHirata/profile-nanobanana/internal/model"
)

// GenerateRequestDTO is the body of POST /generate
type GenerateRequestDTO struct {
	Images      []string `json:"images" validate:"required,min=1,dive,required"`
	Scene       string   `json:"scene" validate:"max=200"`
	Prompt      string   `json:"prompt" validate:"max=2000"`
	AspectRatio string   `json:"aspectRatio" validate:"omitempty,oneof=1:1 2:3 3:2 3:4 4:3 4:5 5:4 9:16 16:9 21:9"`
	ShotType    string   `json:"shotType" validate:"max=100"`
	EyeContact  string   `json:"eyeContact" validate:"max=100"`
	Quality     string   `json:"quality" validate:"omitempty,oneof=Standard Pro"`
	ImageCount  int      `json:"imageCount" validate:"gte=0"`
}

type GenerateResponseDTO struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message"`
	GenerationID     string   `json:"generationId,omitempty"`
	Images           []string `json:"images"`
	RemainingCredits int      `json:"remainingCredits"`
	DebugResponse    string   `json:"debug_response,omitempty"`
}

// HistoryItemDTO omits images; clients load them per generation
type HistoryItemDTO struct {
	ID        string   `json:"id"`
	Timestamp int64    `json:"timestamp"`
	Images    []string `json:"images"`
	Prompt    string   `json:"prompt"`
	Scene     string   `json:"scene"`
}

type HistoryResponseDTO struct {
	History []HistoryItemDTO `json:"history"`
}

func NewHistoryResponse(items []model.GenerationSummary) HistoryResponseDTO {
	out := HistoryResponseDTO{History: make([]HistoryItemDTO, 0, len(items))}
	for _, it := range items {
		out.History = append(out.History, HistoryItemDTO{
			ID:        it.ID,
			Timestamp: millis(it.CreatedAt),
			Images:    []string{},
			Prompt:    it.Prompt,
			Scene:     it.Scene,
		})
	}
	return out
}

type GenerationDTO struct {
	ID        string   `json:"id"`
	Timestamp int64    `json:"timestamp"`
	Images    []string `json:"images"`
	Prompt    string   `json:"prompt"`
	Scene     string   `json:"scene"`
}

type GenerationResponseDTO struct {
	Generation GenerationDTO `json:"generation"`
}

func NewGenerationResponse(g *model.Generation) GenerationResponseDTO {
	images := g.Images
	if images == nil {
		images = []string{}
	}
	return GenerationResponseDTO{Generation: GenerationDTO{
		ID:        g.ID,
		Timestamp: millis(g.CreatedAt),
		Images:    images,
		Prompt:    g.Prompt,
		Scene:     g.Scene,
	}}
}

// DeleteImageRequestDTO is the body of DELETE /generations/delete-image
type DeleteImageRequestDTO struct {
	GenerationID string `json:"generationId" validate:"required,uuid"`
	ImageIndex   *int   `json:"imageIndex" validate:"required"`
}

type DeleteImageResponseDTO struct {
	Success bool     `json:"success"`
	Images  []string `json:"images"`
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}
