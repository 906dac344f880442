package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EisukeHirata/profile-nanobanana/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BillingEventRepository records provider event ids so each event is applied at most once.
type BillingEventRepository interface {
	// Claim marks the event as being processed. claimed is false when the event was
	// already processed or is being processed by another delivery that has not gone stale.
	// Events that previously failed are reclaimed so provider retries can succeed.
	Claim(ctx context.Context, eventID, eventType string, payload []byte, staleAfter time.Duration) (claimed bool, err error)
	MarkProcessed(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, cause error) error
	ListRecent(ctx context.Context, limit int) ([]model.BillingEvent, error)
}

type billingEventRepo struct {
	pool *pgxpool.Pool
}

// NewBillingEventRepo creates a new BillingEventRepository.
func NewBillingEventRepo(pool *pgxpool.Pool) BillingEventRepository {
	return &billingEventRepo{pool: pool}
}

func (r *billingEventRepo) Claim(ctx context.Context, eventID, eventType string, payload []byte, staleAfter time.Duration) (bool, error) {
	const q = `
		INSERT INTO billing_events (event_id, event_type, payload, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, 'processing', 1, NOW(), NOW())
		ON CONFLICT (event_id) DO UPDATE
		SET status = 'processing',
			attempts = billing_events.attempts + 1,
			processing_error = NULL,
			updated_at = NOW()
		WHERE billing_events.status = 'failed'
		   OR (billing_events.status = 'processing'
		       AND billing_events.updated_at < NOW() - make_interval(secs => $4))
		RETURNING event_id
	`
	// Sent as text so the simple query protocol does not encode it as bytea.
	var body *string
	if len(payload) > 0 {
		s := string(payload)
		body = &s
	}
	var id string
	err := r.pool.QueryRow(ctx, q, eventID, eventType, body, staleAfter.Seconds()).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("claim billing event %s: %w", eventID, err)
	}
	return true, nil
}

func (r *billingEventRepo) MarkProcessed(ctx context.Context, eventID string) error {
	const q = `UPDATE billing_events SET status = 'processed', processing_error = NULL, updated_at = NOW() WHERE event_id = $1`
	if _, err := r.pool.Exec(ctx, q, eventID); err != nil {
		return fmt.Errorf("mark billing event %s processed: %w", eventID, err)
	}
	return nil
}

func (r *billingEventRepo) MarkFailed(ctx context.Context, eventID string, cause error) error {
	const q = `UPDATE billing_events SET status = 'failed', processing_error = $2, updated_at = NOW() WHERE event_id = $1`
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := r.pool.Exec(ctx, q, eventID, msg); err != nil {
		return fmt.Errorf("mark billing event %s failed: %w", eventID, err)
	}
	return nil
}

func (r *billingEventRepo) ListRecent(ctx context.Context, limit int) ([]model.BillingEvent, error) {
	const q = `
		SELECT event_id, event_type, status, attempts, processing_error, created_at, updated_at
		FROM billing_events
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list billing events: %w", err)
	}
	defer rows.Close()

	var events []model.BillingEvent
	for rows.Next() {
		var e model.BillingEvent
		var status string
		if err := rows.Scan(&e.EventID, &e.EventType, &status, &e.Attempts, &e.ProcessingError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan billing event: %w", err)
		}
		e.Status = model.BillingEventStatus(status)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list billing events rows: %w", err)
	}
	return events, nil
}
