package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/EisukeHirata/profile-nanobanana/internal/model"
	"github.com/EisukeHirata/profile-nanobanana/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// QualityPro selects the higher-cost model.
const QualityPro = "Pro"

const historyLimit = 100

// ImageStore moves generated images out of the database row. Optional.
type ImageStore interface {
	Store(ctx context.Context, owner, dataURI string) (string, error)
	Remove(ctx context.Context, url string) error
}

// GenerationSettings holds model selection and pricing for generation requests.
type GenerationSettings struct {
	ModelStandard        string
	ModelPro             string
	CostPerImageStandard int
	CostPerImagePro      int
	MaxImagesPerRequest  int
	Timeout              time.Duration
}

type GenerateRequest struct {
	Images      []string
	Scene       string
	Prompt      string
	AspectRatio string
	ShotType    string
	EyeContact  string
	Quality     string
	ImageCount  int
}

type GenerateResult struct {
	GenerationID     string
	Images           []string
	Charged          int
	RemainingCredits int
	DebugResponse    string
}

// GenerationService runs the entitlement-checked generation path and manages history.
type GenerationService interface {
	Generate(ctx context.Context, email string, req GenerateRequest) (*GenerateResult, error)
	History(ctx context.Context, email string) ([]model.GenerationSummary, error)
	Get(ctx context.Context, email, id string) (*model.Generation, error)
	Delete(ctx context.Context, email, id string) error
	// DeleteImage removes one image and returns the images left in the record.
	DeleteImage(ctx context.Context, email, id string, index int) ([]string, error)
}

type generationService struct {
	ledger    LedgerService
	repo      repository.GenerationRepository
	generator ImageGenerator
	store     ImageStore
	settings  GenerationSettings
	logger    zerolog.Logger
}

// NewGenerationService creates a GenerationService. store may be nil, in which case
// images are kept inline as data URIs.
func NewGenerationService(ledger LedgerService, repo repository.GenerationRepository, generator ImageGenerator, store ImageStore, settings GenerationSettings, logger zerolog.Logger) GenerationService {
	lg := logger.With().Str("service", "GenerationService").Logger()
	if settings.MaxImagesPerRequest <= 0 {
		settings.MaxImagesPerRequest = 4
	}
	return &generationService{
		ledger:    ledger,
		repo:      repo,
		generator: generator,
		store:     store,
		settings:  settings,
		logger:    lg,
	}
}

func (s *generationService) costAndModel(quality string) (int, string) {
	if quality == QualityPro {
		return s.settings.CostPerImagePro, s.settings.ModelPro
	}
	return s.settings.CostPerImageStandard, s.settings.ModelStandard
}

func (s *generationService) Generate(ctx context.Context, email string, req GenerateRequest) (*GenerateResult, error) {
	if len(req.Images) == 0 {
		return nil, fmt.Errorf("%w: no images provided", ErrInvalidRequest)
	}
	if req.ImageCount == 0 {
		req.ImageCount = 1
	}
	if req.ImageCount < 0 || req.ImageCount > s.settings.MaxImagesPerRequest {
		return nil, fmt.Errorf("%w: imageCount must be between 1 and %d", ErrInvalidRequest, s.settings.MaxImagesPerRequest)
	}

	perImage, modelName := s.costAndModel(req.Quality)
	cost := req.ImageCount * perImage

	balance, err := s.ledger.GetBalance(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}
	if balance.Credits < cost {
		return nil, &InsufficientCreditsError{Required: cost, Available: balance.Credits}
	}

	prompt := buildPrompt(req)
	s.logger.Info().Str("email", email).Str("model", modelName).Int("image_count", req.ImageCount).Msg("Starting generation")

	genCtx := ctx
	if s.settings.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.settings.Timeout)
		defer cancel()
	}

	var images []string
	var diag strings.Builder
	var lastErr error
	for i := 0; i < req.ImageCount; i++ {
		res, err := s.generator.GenerateImage(genCtx, ImageRequest{
			Model:       modelName,
			Prompt:      prompt,
			Images:      req.Images,
			AspectRatio: req.AspectRatio,
		})
		if err != nil {
			s.logger.Warn().Err(err).Int("iteration", i).Msg("Generation iteration failed")
			diag.WriteString("Error: " + err.Error() + "\n")
			lastErr = err
			if genCtx.Err() != nil {
				break
			}
			continue
		}
		diag.WriteString(res.Text)
		images = append(images, res.Images...)
	}
	if len(images) > req.ImageCount {
		images = images[:req.ImageCount]
	}

	if len(images) == 0 {
		s.logger.Warn().Str("email", email).Msg("No images were generated")
		return nil, NewUpstreamGenerationError(diag.String(), lastErr)
	}

	charged := len(images) * perImage
	remaining, err := s.ledger.Debit(ctx, email, charged)
	if err != nil {
		s.logger.Error().Err(err).Str("email", email).Int("amount", charged).Msg("Failed to debit credits after generation")
		return nil, err
	}

	stored := s.offload(ctx, email, images)
	rec := &model.Generation{
		ID:        uuid.NewString(),
		UserEmail: email,
		Prompt:    req.Prompt,
		Scene:     req.Scene,
		Images:    stored,
	}
	if rec.Prompt == "" {
		rec.Prompt = prompt
	}
	result := &GenerateResult{
		Images:           stored,
		Charged:          charged,
		RemainingCredits: remaining,
		DebugResponse:    diag.String(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		// The user has been charged and receives the images; history is best effort.
		s.logger.Error().Err(err).Str("email", email).Msg("Failed to save generation record")
	} else {
		result.GenerationID = rec.ID
	}

	s.logger.Info().Str("email", email).Int("produced", len(images)).Int("charged", charged).Int("remaining", remaining).Msg("Generation completed")
	return result, nil
}

func (s *generationService) offload(ctx context.Context, email string, images []string) []string {
	if s.store == nil {
		return images
	}
	out := make([]string, len(images))
	for i, img := range images {
		url, err := s.store.Store(ctx, email, img)
		if err != nil {
			s.logger.Warn().Err(err).Int("index", i).Msg("Failed to store image, keeping inline")
			out[i] = img
			continue
		}
		out[i] = url
	}
	return out
}

func (s *generationService) History(ctx context.Context, email string) ([]model.GenerationSummary, error) {
	return s.repo.ListByOwner(ctx, email, historyLimit)
}

func (s *generationService) Get(ctx context.Context, email, id string) (*model.Generation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil || g.UserEmail != email {
		return nil, ErrNotFound
	}
	return g, nil
}

func (s *generationService) Delete(ctx context.Context, email, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	images, err := s.repo.Delete(ctx, id, email)
	if err != nil {
		if errors.Is(err, repository.ErrGenerationNotFound) {
			return ErrNotFound
		}
		return err
	}
	for _, img := range images {
		s.removeStored(ctx, img)
	}
	return nil
}

func (s *generationService) DeleteImage(ctx context.Context, email, id string, index int) ([]string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	removed, remaining, err := s.repo.RemoveImage(ctx, id, email, index)
	switch {
	case errors.Is(err, repository.ErrGenerationNotFound):
		return nil, ErrNotFound
	case errors.Is(err, repository.ErrGenerationForbidden):
		return nil, ErrForbidden
	case errors.Is(err, repository.ErrImageIndexOutOfRange):
		return nil, ErrInvalidImageIndex
	case err != nil:
		return nil, err
	}
	s.removeStored(ctx, removed)
	if remaining == nil {
		remaining = []string{}
	}
	return remaining, nil
}

func (s *generationService) removeStored(ctx context.Context, img string) {
	if s.store == nil {
		return
	}
	if err := s.store.Remove(ctx, img); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to remove stored image")
	}
}

func buildPrompt(req GenerateRequest) string {
	var b strings.Builder
	b.WriteString("Generate a photorealistic profile picture based on the user's uploaded photos.\n")
	fmt.Fprintf(&b, "Scene: %s\n", req.Scene)
	fmt.Fprintf(&b, "Shot Type: %s\n", req.ShotType)
	fmt.Fprintf(&b, "Eye Contact: %s\n", req.EyeContact)
	fmt.Fprintf(&b, "Aspect Ratio: %s\n", req.AspectRatio)
	fmt.Fprintf(&b, "Additional Prompt: %s\n\n", req.Prompt)
	b.WriteString("Keep the subject's likeness and place them naturally in the scene. ")
	b.WriteString("Do not add fruit, food or novelty props unless the additional prompt asks for them. ")
	b.WriteString("Lighting and composition should suit a professional or social media profile.")
	return b.String()
}
