package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/EisukeHirata/profile-nanobanana/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSettings = GenerationSettings{
	ModelStandard:        "flash-image",
	ModelPro:             "pro-image",
	CostPerImageStandard: 1,
	CostPerImagePro:      5,
	MaxImagesPerRequest:  4,
	Timeout:              5 * time.Second,
}

type generationFixture struct {
	profiles  *memProfileRepo
	records   *memGenerationRepo
	generator *scriptedGenerator
	svc       GenerationService
}

func newGenerationFixture(credits int, store ImageStore, replies ...generatorReply) *generationFixture {
	f := &generationFixture{
		profiles:  newMemProfileRepo(),
		records:   newMemGenerationRepo(),
		generator: &scriptedGenerator{replies: replies},
	}
	f.profiles.seed(model.Profile{Email: "a@example.com", Credits: credits, SubscriptionTier: model.TierFree, SubscriptionStatus: model.StatusNone})
	ledger := NewLedgerService(f.profiles, testBootstrap, zerolog.Nop())
	f.svc = NewGenerationService(ledger, f.records, f.generator, store, testSettings, zerolog.Nop())
	return f
}

func imageReply(uri string) generatorReply {
	return generatorReply{result: ImageResult{Images: []string{uri}}}
}

func TestGenerateChargesOnlyProducedImages(t *testing.T) {
	f := newGenerationFixture(5, nil,
		imageReply("data:image/png;base64,AAA"),
		generatorReply{err: errors.New("upstream hiccup")},
		imageReply("data:image/png;base64,BBB"),
	)

	res, err := f.svc.Generate(context.Background(), "a@example.com", GenerateRequest{
		Images:     []string{"ref"},
		Scene:      "office",
		ImageCount: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, f.generator.calls)
	assert.Len(t, res.Images, 2)
	assert.Equal(t, 2, res.Charged)
	assert.Equal(t, 3, res.RemainingCredits)
	assert.Equal(t, 3, f.profiles.get("a@example.com").Credits)

	require.NotEmpty(t, res.GenerationID)
	rec, err := f.records.GetByID(context.Background(), res.GenerationID)
	require.NoError(t, err)
	assert.Equal(t, res.Images, rec.Images)
	assert.Equal(t, "office", rec.Scene)
}

func TestGenerateRejectsBeforeCallingUpstream(t *testing.T) {
	f := newGenerationFixture(2, nil, imageReply("data:image/png;base64,AAA"))

	_, err := f.svc.Generate(context.Background(), "a@example.com", GenerateRequest{
		Images:  []string{"ref"},
		Quality: QualityPro,
	})
	var insufficient *InsufficientCreditsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 5, insufficient.Required)
	assert.Equal(t, 2, insufficient.Available)
	assert.Zero(t, f.generator.calls)
	assert.Equal(t, 2, f.profiles.get("a@example.com").Credits)
}

func TestGenerateUnknownUserHasNoCredits(t *testing.T) {
	f := newGenerationFixture(0, nil)

	_, err := f.svc.Generate(context.Background(), "stranger@example.com", GenerateRequest{Images: []string{"ref"}})
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Zero(t, f.generator.calls)
}

func TestGenerateNothingProducedIsNotCharged(t *testing.T) {
	f := newGenerationFixture(5, nil,
		generatorReply{result: ImageResult{Text: "I cannot draw that"}},
		generatorReply{result: ImageResult{Text: "still no"}},
	)

	_, err := f.svc.Generate(context.Background(), "a@example.com", GenerateRequest{Images: []string{"ref"}, ImageCount: 2})
	var upstream *UpstreamGenerationError
	require.True(t, errors.As(err, &upstream))
	assert.ErrorIs(t, err, ErrUpstreamGeneration)
	assert.Contains(t, upstream.Error(), "I cannot draw that")
	assert.Equal(t, 5, f.profiles.get("a@example.com").Credits)
	assert.Empty(t, f.records.order)
}

func TestGenerateTimeoutIsNotCharged(t *testing.T) {
	f := newGenerationFixture(5, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Generate(ctx, "a@example.com", GenerateRequest{Images: []string{"ref"}, ImageCount: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.generator.calls)
	assert.Equal(t, 5, f.profiles.get("a@example.com").Credits)
}

func TestGenerateValidation(t *testing.T) {
	f := newGenerationFixture(50, nil)

	_, err := f.svc.Generate(context.Background(), "a@example.com", GenerateRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.svc.Generate(context.Background(), "a@example.com", GenerateRequest{Images: []string{"ref"}, ImageCount: 9})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, f.generator.calls)
}

func TestGenerateOffloadsToStore(t *testing.T) {
	store := &memImageStore{}
	f := newGenerationFixture(5, store, imageReply("data:image/png;base64,AAA"))

	res, err := f.svc.Generate(context.Background(), "a@example.com", GenerateRequest{Images: []string{"ref"}})
	require.NoError(t, err)
	assert.Equal(t, store.stored, res.Images)

	require.NoError(t, f.svc.Delete(context.Background(), "a@example.com", res.GenerationID))
	assert.Equal(t, store.stored, store.removed)
}

func TestGenerateRecordFailureStillReturnsImages(t *testing.T) {
	f := newGenerationFixture(5, nil, imageReply("data:image/png;base64,AAA"))
	f.records.failErr = errors.New("db down")

	res, err := f.svc.Generate(context.Background(), "a@example.com", GenerateRequest{Images: []string{"ref"}})
	require.NoError(t, err)
	assert.Empty(t, res.GenerationID)
	assert.Len(t, res.Images, 1)
	assert.Equal(t, 4, f.profiles.get("a@example.com").Credits)
}

func seedGeneration(t *testing.T, f *generationFixture, owner string, images ...string) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, f.records.Create(context.Background(), &model.Generation{ID: id, UserEmail: owner, Images: images}))
	return id
}

func TestDeleteImage(t *testing.T) {
	f := newGenerationFixture(0, nil)
	id := seedGeneration(t, f, "a@example.com", "img0", "img1", "img2")

	remaining, err := f.svc.DeleteImage(context.Background(), "a@example.com", id, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"img0", "img2"}, remaining)

	_, err = f.svc.DeleteImage(context.Background(), "b@example.com", id, 0)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.DeleteImage(context.Background(), "a@example.com", id, 2)
	assert.ErrorIs(t, err, ErrInvalidImageIndex)

	_, err = f.svc.DeleteImage(context.Background(), "a@example.com", id, -1)
	assert.ErrorIs(t, err, ErrInvalidImageIndex)

	_, err = f.svc.DeleteImage(context.Background(), "a@example.com", "not-a-uuid", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteLastImageRemovesRecord(t *testing.T) {
	f := newGenerationFixture(0, nil)
	id := seedGeneration(t, f, "a@example.com", "only")

	remaining, err := f.svc.DeleteImage(context.Background(), "a@example.com", id, 0)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	assert.NotNil(t, remaining)

	_, err = f.svc.Get(context.Background(), "a@example.com", id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistoryAndOwnership(t *testing.T) {
	f := newGenerationFixture(0, nil)
	first := seedGeneration(t, f, "a@example.com", "x")
	second := seedGeneration(t, f, "a@example.com", "y")
	other := seedGeneration(t, f, "b@example.com", "z")

	history, err := f.svc.History(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second, history[0].ID)
	assert.Equal(t, first, history[1].ID)

	_, err = f.svc.Get(context.Background(), "a@example.com", other)
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.svc.Delete(context.Background(), "a@example.com", other)
	assert.ErrorIs(t, err, ErrNotFound)

	g, err := f.svc.Get(context.Background(), "b@example.com", other)
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, g.Images)
}
