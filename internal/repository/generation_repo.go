package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/EisukeHirata/profile-nanobanana/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrGenerationNotFound is returned when no record matches the id.
	ErrGenerationNotFound = errors.New("generation_not_found")
	// ErrGenerationForbidden is returned when the record belongs to another user.
	ErrGenerationForbidden = errors.New("generation_forbidden")
	// ErrImageIndexOutOfRange is returned when an image index does not exist in the record.
	ErrImageIndexOutOfRange = errors.New("image_index_out_of_range")
)

// GenerationRepository stores completed generations and their images.
type GenerationRepository interface {
	Create(ctx context.Context, g *model.Generation) error
	// ListByOwner returns summaries newest first.
	ListByOwner(ctx context.Context, owner string, limit int) ([]model.GenerationSummary, error)
	// GetByID returns nil, nil when no record exists.
	GetByID(ctx context.Context, id string) (*model.Generation, error)
	// Delete removes the record owned by owner and returns its images.
	// Returns ErrGenerationNotFound when nothing matched.
	Delete(ctx context.Context, id, owner string) ([]string, error)
	// RemoveImage splices one image out of the record and deletes the record when it becomes empty.
	// It returns the removed image and the images left in their original order.
	RemoveImage(ctx context.Context, id, owner string, index int) (removed string, remaining []string, err error)
}

type generationRepo struct {
	pool *pgxpool.Pool
}

// NewGenerationRepo creates a new GenerationRepository.
func NewGenerationRepo(pool *pgxpool.Pool) GenerationRepository {
	return &generationRepo{pool: pool}
}

func (r *generationRepo) Create(ctx context.Context, g *model.Generation) error {
	const q = `
		INSERT INTO generations (id, user_email, prompt, scene, images, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`
	if err := r.pool.QueryRow(ctx, q, g.ID, g.UserEmail, g.Prompt, g.Scene, g.Images).Scan(&g.CreatedAt); err != nil {
		return fmt.Errorf("insert generation for %s: %w", g.UserEmail, err)
	}
	return nil
}

func (r *generationRepo) ListByOwner(ctx context.Context, owner string, limit int) ([]model.GenerationSummary, error) {
	const q = `
		SELECT id, prompt, scene, created_at
		FROM generations
		WHERE user_email = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, q, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list generations for %s: %w", owner, err)
	}
	defer rows.Close()

	summaries := []model.GenerationSummary{}
	for rows.Next() {
		var s model.GenerationSummary
		if err := rows.Scan(&s.ID, &s.Prompt, &s.Scene, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list generations rows: %w", err)
	}
	return summaries, nil
}

func (r *generationRepo) GetByID(ctx context.Context, id string) (*model.Generation, error) {
	const q = `
		SELECT id, user_email, prompt, scene, images, created_at
		FROM generations
		WHERE id = $1
	`
	var g model.Generation
	err := r.pool.QueryRow(ctx, q, id).Scan(&g.ID, &g.UserEmail, &g.Prompt, &g.Scene, &g.Images, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch generation %s: %w", id, err)
	}
	return &g, nil
}

func (r *generationRepo) Delete(ctx context.Context, id, owner string) ([]string, error) {
	const q = `DELETE FROM generations WHERE id = $1 AND user_email = $2 RETURNING images`
	var images []string
	if err := r.pool.QueryRow(ctx, q, id, owner).Scan(&images); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGenerationNotFound
		}
		return nil, fmt.Errorf("delete generation %s: %w", id, err)
	}
	return images, nil
}

func (r *generationRepo) RemoveImage(ctx context.Context, id, owner string, index int) (string, []string, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", nil, fmt.Errorf("starting transaction for image removal: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const selectQ = `SELECT user_email, images FROM generations WHERE id = $1 FOR UPDATE`
	var recordOwner string
	var images []string
	if err := tx.QueryRow(ctx, selectQ, id).Scan(&recordOwner, &images); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, ErrGenerationNotFound
		}
		return "", nil, fmt.Errorf("locking generation %s: %w", id, err)
	}
	if recordOwner != owner {
		return "", nil, ErrGenerationForbidden
	}
	if index < 0 || index >= len(images) {
		return "", nil, ErrImageIndexOutOfRange
	}

	removed := images[index]
	remaining := append(append([]string{}, images[:index]...), images[index+1:]...)

	if len(remaining) == 0 {
		const deleteQ = `DELETE FROM generations WHERE id = $1`
		if _, err := tx.Exec(ctx, deleteQ, id); err != nil {
			return "", nil, fmt.Errorf("deleting empty generation %s: %w", id, err)
		}
	} else {
		const updateQ = `UPDATE generations SET images = $2 WHERE id = $1`
		if _, err := tx.Exec(ctx, updateQ, id, remaining); err != nil {
			return "", nil, fmt.Errorf("updating images of generation %s: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", nil, fmt.Errorf("committing image removal for generation %s: %w", id, err)
	}
	return removed, remaining, nil
}
