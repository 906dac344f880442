package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/EisukeHirata/profile-nanobanana/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository persists the per-user credit ledger rows.
//
// Every write is a single statement so that concurrent requests never
// interleave a read-modify-write cycle. Statements that may create a row take
// the bootstrap amount so the first-time grant is applied exactly once.
type ProfileRepository interface {
	// GetByEmail returns nil, nil when no profile exists.
	GetByEmail(ctx context.Context, email string) (*model.Profile, error)
	// GetByCustomerID returns nil, nil when no profile references the customer.
	GetByCustomerID(ctx context.Context, customerID string) (*model.Profile, error)
	List(ctx context.Context, limit, offset int) ([]model.Profile, error)
	// EnsureProfile creates the profile with the bootstrap balance if it is absent.
	EnsureProfile(ctx context.Context, email string, bootstrap int) (created bool, err error)
	// AddCredits increments the balance, creating the profile with bootstrap+amount when absent.
	AddCredits(ctx context.Context, email string, bootstrap, amount int) (credits int, created bool, err error)
	// SetSubscription writes tier and status without touching credits or created_at.
	SetSubscription(ctx context.Context, email string, bootstrap int, tier model.SubscriptionTier, status model.SubscriptionStatus, customerID string) (created bool, err error)
	// SetCustomerID assigns the payment customer id unless one is already stored.
	SetCustomerID(ctx context.Context, email string, bootstrap int, customerID string) (created bool, err error)
	// Debit subtracts amount only when the balance covers it. ok is false otherwise.
	Debit(ctx context.Context, email string, amount int) (credits int, ok bool, err error)
}

type profileRepo struct {
	pool *pgxpool.Pool
}

// NewProfileRepo creates a new ProfileRepository.
func NewProfileRepo(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepo{pool: pool}
}

const profileColumns = `email, credits, subscription_tier, subscription_status, stripe_customer_id, created_at, updated_at`

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var p model.Profile
	var tier, status string
	if err := row.Scan(
		&p.Email,
		&p.Credits,
		&tier,
		&status,
		&p.StripeCustomerID,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.SubscriptionTier = model.SubscriptionTier(tier)
	p.SubscriptionStatus = model.SubscriptionStatus(status)
	return &p, nil
}

func (r *profileRepo) GetByEmail(ctx context.Context, email string) (*model.Profile, error) {
	const q = `SELECT ` + profileColumns + ` FROM profiles WHERE email = $1`
	p, err := scanProfile(r.pool.QueryRow(ctx, q, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch profile %s: %w", email, err)
	}
	return p, nil
}

func (r *profileRepo) GetByCustomerID(ctx context.Context, customerID string) (*model.Profile, error) {
	const q = `SELECT ` + profileColumns + ` FROM profiles WHERE stripe_customer_id = $1`
	p, err := scanProfile(r.pool.QueryRow(ctx, q, customerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch profile by customer %s: %w", customerID, err)
	}
	return p, nil
}

func (r *profileRepo) List(ctx context.Context, limit, offset int) ([]model.Profile, error) {
	const q = `SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list profiles rows: %w", err)
	}
	return profiles, nil
}

func (r *profileRepo) EnsureProfile(ctx context.Context, email string, bootstrap int) (bool, error) {
	const q = `
		INSERT INTO profiles (email, credits, subscription_tier, subscription_status, created_at, updated_at)
		VALUES ($1, $2, 'free', 'none', NOW(), NOW())
		ON CONFLICT (email) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, q, email, bootstrap)
	if err != nil {
		return false, fmt.Errorf("ensure profile %s: %w", email, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *profileRepo) AddCredits(ctx context.Context, email string, bootstrap, amount int) (int, bool, error) {
	// xmax = 0 only for a freshly inserted tuple.
	const q = `
		INSERT INTO profiles (email, credits, subscription_tier, subscription_status, created_at, updated_at)
		VALUES ($1, $2::int + $3::int, 'free', 'none', NOW(), NOW())
		ON CONFLICT (email) DO UPDATE
		SET credits = profiles.credits + $3::int,
			updated_at = NOW()
		RETURNING credits, (xmax = 0) AS created
	`
	var credits int
	var created bool
	if err := r.pool.QueryRow(ctx, q, email, bootstrap, amount).Scan(&credits, &created); err != nil {
		return 0, false, fmt.Errorf("add %d credits for %s: %w", amount, email, err)
	}
	return credits, created, nil
}

func (r *profileRepo) SetSubscription(ctx context.Context, email string, bootstrap int, tier model.SubscriptionTier, status model.SubscriptionStatus, customerID string) (bool, error) {
	const q = `
		INSERT INTO profiles (email, credits, subscription_tier, subscription_status, stripe_customer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NOW(), NOW())
		ON CONFLICT (email) DO UPDATE
		SET subscription_tier = EXCLUDED.subscription_tier,
			subscription_status = EXCLUDED.subscription_status,
			stripe_customer_id = COALESCE(profiles.stripe_customer_id, EXCLUDED.stripe_customer_id),
			updated_at = NOW()
		RETURNING (xmax = 0) AS created
	`
	var created bool
	if err := r.pool.QueryRow(ctx, q, email, bootstrap, string(tier), string(status), customerID).Scan(&created); err != nil {
		return false, fmt.Errorf("set subscription %s/%s for %s: %w", tier, status, email, err)
	}
	return created, nil
}

func (r *profileRepo) SetCustomerID(ctx context.Context, email string, bootstrap int, customerID string) (bool, error) {
	const q = `
		INSERT INTO profiles (email, credits, subscription_tier, subscription_status, stripe_customer_id, created_at, updated_at)
		VALUES ($1, $2, 'free', 'none', $3, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE
		SET stripe_customer_id = COALESCE(profiles.stripe_customer_id, EXCLUDED.stripe_customer_id),
			updated_at = NOW()
		RETURNING (xmax = 0) AS created
	`
	var created bool
	if err := r.pool.QueryRow(ctx, q, email, bootstrap, customerID).Scan(&created); err != nil {
		return false, fmt.Errorf("set stripe customer for %s: %w", email, err)
	}
	return created, nil
}

func (r *profileRepo) Debit(ctx context.Context, email string, amount int) (int, bool, error) {
	const q = `
		UPDATE profiles
		SET credits = credits - $2,
			updated_at = NOW()
		WHERE email = $1
		  AND credits >= $2
		RETURNING credits
	`
	var credits int
	if err := r.pool.QueryRow(ctx, q, email, amount).Scan(&credits); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("debit %d credits for %s: %w", amount, email, err)
	}
	return credits, true, nil
}
