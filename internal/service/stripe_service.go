package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/EisukeHirata/profile-nanobanana/internal/config"
	"github.com/EisukeHirata/profile-nanobanana/internal/model"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	customerpkg "github.com/stripe/stripe-go/v82/customer"
	subscriptionpkg "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// CheckoutSession is what the client needs to redirect to the hosted checkout page.
type CheckoutSession struct {
	SessionID string
	URL       string
}

// CanceledSubscription summarizes a subscription scheduled to end.
type CanceledSubscription struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}

// StripeService manages Stripe integration
type StripeService struct {
	webhookSecret string
	baseURL       string
	ledger        LedgerService
	catalog       *PriceCatalog
	logger        zerolog.Logger
}

// NewStripeService initializes Stripe key and returns service with a scoped logger
func NewStripeService(cfg *config.Config, ledger LedgerService, catalog *PriceCatalog, logger zerolog.Logger) *StripeService {
	stripe.Key = cfg.StripeSecretKey
	lg := logger.With().Str("service", "StripeService").Logger()
	return &StripeService{
		webhookSecret: cfg.StripeWebhookSecret,
		baseURL:       strings.TrimRight(cfg.AppBaseURL, "/"),
		ledger:        ledger,
		catalog:       catalog,
		logger:        lg,
	}
}

// VerifyWebhook checks the signature header against the raw body and decodes the event.
func (s *StripeService) VerifyWebhook(payload []byte, signature string) (stripe.Event, error) {
	if signature == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing signature header", ErrWebhookVerification)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrWebhookVerification, err)
	}
	return event, nil
}

// GetOrCreateCustomer returns the stored customer id or creates a customer and stores it.
func (s *StripeService) GetOrCreateCustomer(ctx context.Context, email string) (string, error) {
	profile, err := s.ledger.GetProfile(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("fetch profile: %w", err)
	}
	if profile != nil && profile.StripeCustomerID != nil && *profile.StripeCustomerID != "" {
		return *profile.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Email:    stripe.String(email),
		Metadata: map[string]string{"email": email},
	}
	params.Context = ctx
	cust, err := customerpkg.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("Failed to create Stripe customer")
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := s.ledger.SetCustomerID(ctx, email, cust.ID); err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("Failed to store stripe customer id in profiles")
		return "", fmt.Errorf("store stripe customer id: %w", err)
	}
	// A concurrent checkout may have stored a different customer first; that one wins.
	profile, err = s.ledger.GetProfile(ctx, email)
	if err == nil && profile.StripeCustomerID != nil && *profile.StripeCustomerID != "" {
		return *profile.StripeCustomerID, nil
	}
	return cust.ID, nil
}

// CreateCheckoutSession creates a Stripe Checkout session for a credit pack or subscription.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, email, priceID string, mode CheckoutMode) (*CheckoutSession, error) {
	switch mode {
	case CheckoutModePayment:
		if !s.catalog.IsPackPrice(priceID) {
			return nil, fmt.Errorf("%w: unknown credit pack price %s", ErrInvalidRequest, priceID)
		}
	case CheckoutModeSubscription:
		if !s.catalog.IsSubscriptionPrice(priceID) {
			return nil, fmt.Errorf("%w: unknown subscription price %s", ErrInvalidRequest, priceID)
		}
	default:
		return nil, fmt.Errorf("%w: invalid mode %q", ErrInvalidRequest, mode)
	}

	customerID, err := s.GetOrCreateCustomer(ctx, email)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          []*stripe.CheckoutSessionLineItemParams{{Price: stripe.String(priceID), Quantity: stripe.Int64(1)}},
		Mode:               stripe.String(string(mode)),
		SuccessURL:         stripe.String(s.baseURL + "/profile?success=true"),
		CancelURL:          stripe.String(s.baseURL + "/?canceled=true"),
		Metadata: map[string]string{
			metadataIdentityKey: email,
			metadataPriceKey:    priceID,
		},
	}
	if mode == CheckoutModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metadataIdentityKey: email},
		}
	}
	params.Context = ctx
	sess, err := checkoutsession.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("price_id", priceID).Str("mode", string(mode)).Msg("Failed to create Stripe checkout session")
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{SessionID: sess.ID, URL: sess.URL}, nil
}

// CancelSubscription schedules the user's active subscription to end at period end.
func (s *StripeService) CancelSubscription(ctx context.Context, email string) (*CanceledSubscription, error) {
	profile, err := s.ledger.GetProfile(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoActiveSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	if profile.StripeCustomerID == nil || *profile.StripeCustomerID == "" {
		return nil, ErrNoActiveSubscription
	}

	listParams := &stripe.SubscriptionListParams{
		Customer: profile.StripeCustomerID,
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	listParams.Limit = stripe.Int64(1)
	listParams.Context = ctx
	iter := subscriptionpkg.List(listParams)
	var subID string
	if iter.Next() {
		subID = iter.Subscription().ID
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	if subID == "" {
		return nil, ErrNoActiveSubscription
	}

	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx
	sub, err := subscriptionpkg.Update(subID, params)
	if err != nil {
		s.logger.Error().Err(err).Str("subscription_id", subID).Msg("Failed to cancel subscription")
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}
	s.logger.Info().Str("email", email).Str("subscription_id", subID).Msg("Subscription set to cancel at period end")
	return &CanceledSubscription{ID: sub.ID, Status: string(sub.Status), CancelAtPeriodEnd: sub.CancelAtPeriodEnd}, nil
}

// SubscriptionPrice fetches a subscription's first item price and current status.
func (s *StripeService) SubscriptionPrice(ctx context.Context, subscriptionID string) (string, model.SubscriptionStatus, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscriptionpkg.Get(subscriptionID, params)
	if err != nil {
		return "", model.StatusNone, fmt.Errorf("fetch subscription: %w", err)
	}
	status, ok := model.ParseSubscriptionStatus(string(sub.Status))
	if !ok {
		s.logger.Warn().Str("subscription_id", subscriptionID).Str("status", string(sub.Status)).Msg("Unrecognized subscription status")
	}
	return subscriptionPriceID(sub), status, nil
}

// CheckoutPriceID fetches the price of a checkout session's first line item.
func (s *StripeService) CheckoutPriceID(ctx context.Context, sessionID string) (string, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Limit = stripe.Int64(1)
	params.Context = ctx
	iter := checkoutsession.ListLineItems(params)
	var priceID string
	if iter.Next() {
		if item := iter.LineItem(); item.Price != nil {
			priceID = item.Price.ID
		}
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("list checkout line items: %w", err)
	}
	return priceID, nil
}
