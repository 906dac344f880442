package service

import (
	"context"

	"github.com/EisukeHirata/profile-nanobanana/internal/model"
)

type UserService interface {
	// SignIn makes sure the caller has a profile. A first sign-in grants the bootstrap credit.
	SignIn(ctx context.Context, email string) (*model.Profile, bool, error)
	Get(ctx context.Context, email string) (*model.Profile, error)
}

type userService struct {
	ledger LedgerService
}

func NewUserService(ledger LedgerService) UserService {
	return &userService{ledger: ledger}
}

func (s *userService) SignIn(ctx context.Context, email string) (*model.Profile, bool, error) {
	created, err := s.ledger.EnsureProfile(ctx, email)
	if err != nil {
		return nil, false, err
	}
	p, err := s.ledger.GetProfile(ctx, email)
	if err != nil {
		return nil, false, err
	}
	return p, created, nil
}

func (s *userService) Get(ctx context.Context, email string) (*model.Profile, error) {
	return s.ledger.GetProfile(ctx, email)
}
