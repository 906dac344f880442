package service

import (
	"context"
	"errors"
	"testing"

	"github.com/EisukeHirata/profile-nanobanana/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerBalanceForUnknownIdentity(t *testing.T) {
	ledger := NewLedgerService(newMemProfileRepo(), testBootstrap, zerolog.Nop())

	bal, err := ledger.GetBalance(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.EmptyBalance(), bal)

	_, err = ledger.GetProfile(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedgerEnsureProfileGrantsBootstrapOnce(t *testing.T) {
	repo := newMemProfileRepo()
	ledger := NewLedgerService(repo, 3, zerolog.Nop())

	created, err := ledger.EnsureProfile(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = ledger.EnsureProfile(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 3, repo.get("a@example.com").Credits)
}

func TestLedgerAddCredits(t *testing.T) {
	repo := newMemProfileRepo()
	repo.seed(model.Profile{Email: "old@example.com", Credits: 7})
	ledger := NewLedgerService(repo, testBootstrap, zerolog.Nop())

	credits, err := ledger.AddCredits(context.Background(), "new@example.com", 10)
	require.NoError(t, err)
	assert.Equal(t, testBootstrap+10, credits)

	credits, err = ledger.AddCredits(context.Background(), "old@example.com", 10)
	require.NoError(t, err)
	assert.Equal(t, 17, credits)

	_, err = ledger.AddCredits(context.Background(), "old@example.com", -1)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLedgerDebit(t *testing.T) {
	repo := newMemProfileRepo()
	repo.seed(model.Profile{Email: "a@example.com", Credits: 2})
	ledger := NewLedgerService(repo, testBootstrap, zerolog.Nop())

	_, err := ledger.Debit(context.Background(), "a@example.com", 5)
	var insufficient *InsufficientCreditsError
	require.True(t, errors.As(err, &insufficient))
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, 5, insufficient.Required)
	assert.Equal(t, 2, insufficient.Available)
	assert.Equal(t, 2, repo.get("a@example.com").Credits)

	remaining, err := ledger.Debit(context.Background(), "a@example.com", 2)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestLedgerSubscriptionStateKeepsCredits(t *testing.T) {
	repo := newMemProfileRepo()
	repo.seed(model.Profile{Email: "a@example.com", Credits: 9, StripeCustomerID: customerID("cus_first")})
	ledger := NewLedgerService(repo, testBootstrap, zerolog.Nop())

	require.NoError(t, ledger.SetSubscriptionState(context.Background(), "a@example.com", model.TierPremium, model.StatusActive, "cus_second"))

	p := repo.get("a@example.com")
	assert.Equal(t, 9, p.Credits)
	assert.Equal(t, model.TierPremium, p.SubscriptionTier)
	assert.Equal(t, "cus_first", *p.StripeCustomerID)

	email, err := ledger.IdentityForCustomer(context.Background(), "cus_first")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", email)

	email, err = ledger.IdentityForCustomer(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, email)
}
