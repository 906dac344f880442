package service

import (
	"context"
	"fmt"

	"github.com/EisukeHirata/profile-nanobanana/internal/model"
	"github.com/EisukeHirata/profile-nanobanana/internal/repository"

	"github.com/rs/zerolog"
)

// LedgerService owns each user's credit balance and subscription state.
type LedgerService interface {
	// GetBalance never fails for a missing profile; it returns the empty balance.
	GetBalance(ctx context.Context, email string) (model.Balance, error)
	GetProfile(ctx context.Context, email string) (*model.Profile, error)
	// EnsureProfile grants the bootstrap credit when the identity signs in for the first time.
	EnsureProfile(ctx context.Context, email string) (created bool, err error)
	AddCredits(ctx context.Context, email string, amount int) (int, error)
	SetSubscriptionState(ctx context.Context, email string, tier model.SubscriptionTier, status model.SubscriptionStatus, customerID string) error
	SetCustomerID(ctx context.Context, email, customerID string) error
	Debit(ctx context.Context, email string, amount int) (int, error)
	// IdentityForCustomer resolves the email stored for a payment customer. Empty when unknown.
	IdentityForCustomer(ctx context.Context, customerID string) (string, error)
}

type ledgerService struct {
	repo      repository.ProfileRepository
	bootstrap int
	logger    zerolog.Logger
}

// NewLedgerService creates a LedgerService. bootstrap is the one-time grant for new profiles.
func NewLedgerService(repo repository.ProfileRepository, bootstrap int, logger zerolog.Logger) LedgerService {
	lg := logger.With().Str("service", "LedgerService").Logger()
	return &ledgerService{repo: repo, bootstrap: bootstrap, logger: lg}
}

func (s *ledgerService) GetBalance(ctx context.Context, email string) (model.Balance, error) {
	p, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return model.EmptyBalance(), err
	}
	if p == nil {
		return model.EmptyBalance(), nil
	}
	return p.Balance(), nil
}

func (s *ledgerService) GetProfile(ctx context.Context, email string) (*model.Profile, error) {
	p, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *ledgerService) EnsureProfile(ctx context.Context, email string) (bool, error) {
	created, err := s.repo.EnsureProfile(ctx, email, s.bootstrap)
	if err != nil {
		return false, err
	}
	if created {
		s.logger.Info().Str("email", email).Int("credits", s.bootstrap).Msg("Profile created with bootstrap credits")
	}
	return created, nil
}

func (s *ledgerService) AddCredits(ctx context.Context, email string, amount int) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: negative credit amount %d", ErrInvalidRequest, amount)
	}
	credits, created, err := s.repo.AddCredits(ctx, email, s.bootstrap, amount)
	if err != nil {
		return 0, err
	}
	s.logger.Info().
		Str("email", email).
		Int("amount", amount).
		Int("credits", credits).
		Bool("new_profile", created).
		Msg("Credits added")
	return credits, nil
}

func (s *ledgerService) SetSubscriptionState(ctx context.Context, email string, tier model.SubscriptionTier, status model.SubscriptionStatus, customerID string) error {
	created, err := s.repo.SetSubscription(ctx, email, s.bootstrap, tier, status, customerID)
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("email", email).
		Str("tier", string(tier)).
		Str("status", string(status)).
		Bool("new_profile", created).
		Msg("Subscription state updated")
	return nil
}

func (s *ledgerService) SetCustomerID(ctx context.Context, email, customerID string) error {
	created, err := s.repo.SetCustomerID(ctx, email, s.bootstrap, customerID)
	if err != nil {
		return err
	}
	if created {
		s.logger.Info().Str("email", email).Msg("Profile created while linking payment customer")
	}
	return nil
}

func (s *ledgerService) Debit(ctx context.Context, email string, amount int) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: negative debit amount %d", ErrInvalidRequest, amount)
	}
	credits, ok, err := s.repo.Debit(ctx, email, amount)
	if err != nil {
		return 0, err
	}
	if !ok {
		bal, err := s.GetBalance(ctx, email)
		if err != nil {
			return 0, err
		}
		return bal.Credits, &InsufficientCreditsError{Required: amount, Available: bal.Credits}
	}
	s.logger.Debug().Str("email", email).Int("amount", amount).Int("credits", credits).Msg("Credits debited")
	return credits, nil
}

func (s *ledgerService) IdentityForCustomer(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", nil
	}
	p, err := s.repo.GetByCustomerID(ctx, customerID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", nil
	}
	return p.Email, nil
}
