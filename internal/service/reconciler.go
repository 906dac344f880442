package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/EisukeHirata/profile-nanobanana/internal/model"
	"github.com/EisukeHirata/profile-nanobanana/internal/pubsub"
	"github.com/EisukeHirata/profile-nanobanana/internal/repository"

	"github.com/rs/zerolog"
)

// claimStaleAfter is how long an event may stay in processing before another
// delivery is allowed to take it over.
const claimStaleAfter = 5 * time.Minute

// BillingProvider looks up provider objects that webhook payloads only reference.
type BillingProvider interface {
	SubscriptionPrice(ctx context.Context, subscriptionID string) (priceID string, status model.SubscriptionStatus, err error)
	CheckoutPriceID(ctx context.Context, sessionID string) (string, error)
}

// ReconcileOutcome describes the ledger mutation an event produced.
type ReconcileOutcome struct {
	EventID             string                   `json:"event_id"`
	EventType           string                   `json:"event_type"`
	Duplicate           bool                     `json:"duplicate,omitempty"`
	Email               string                   `json:"email,omitempty"`
	CreditsAdded        int                      `json:"credits_added,omitempty"`
	Balance             int                      `json:"balance,omitempty"`
	SubscriptionUpdated bool                     `json:"subscription_updated,omitempty"`
	Tier                model.SubscriptionTier   `json:"tier,omitempty"`
	Status              model.SubscriptionStatus `json:"status,omitempty"`
	Skipped             string                   `json:"skipped,omitempty"`
}

// Mutated reports whether the ledger changed.
func (o ReconcileOutcome) Mutated() bool {
	return o.CreditsAdded > 0 || o.SubscriptionUpdated
}

// Reconciler turns verified billing events into ledger mutations.
type Reconciler interface {
	Reconcile(ctx context.Context, event BillingEvent, payload []byte) (ReconcileOutcome, error)
}

type reconciler struct {
	ledger    LedgerService
	catalog   *PriceCatalog
	provider  BillingProvider
	events    repository.BillingEventRepository
	publisher pubsub.Publisher
	topic     string
	logger    zerolog.Logger
}

// NewReconciler creates a Reconciler. events, publisher and provider may be nil:
// without events there is no protection against redelivered events, without a
// publisher no notifications are sent, and without a provider references that
// are not embedded in the payload cannot be resolved.
func NewReconciler(
	ledger LedgerService,
	catalog *PriceCatalog,
	provider BillingProvider,
	events repository.BillingEventRepository,
	publisher pubsub.Publisher,
	topic string,
	logger zerolog.Logger,
) Reconciler {
	lg := logger.With().Str("service", "Reconciler").Logger()
	return &reconciler{
		ledger:    ledger,
		catalog:   catalog,
		provider:  provider,
		events:    events,
		publisher: publisher,
		topic:     topic,
		logger:    lg,
	}
}

func (r *reconciler) Reconcile(ctx context.Context, event BillingEvent, payload []byte) (ReconcileOutcome, error) {
	out := ReconcileOutcome{EventID: event.EventID(), EventType: event.EventType()}

	if _, ok := event.(UnknownEvent); ok {
		r.logger.Info().Str("event_id", out.EventID).Str("event_type", out.EventType).Msg("Ignoring unhandled billing event")
		out.Skipped = "unhandled event type"
		return out, nil
	}

	if r.events != nil {
		claimed, err := r.events.Claim(ctx, out.EventID, out.EventType, payload, claimStaleAfter)
		if err != nil {
			return out, err
		}
		if !claimed {
			r.logger.Info().Str("event_id", out.EventID).Str("event_type", out.EventType).Msg("Billing event already handled, skipping")
			out.Duplicate = true
			return out, nil
		}
	}

	out, err := r.apply(ctx, event, out)
	if err != nil {
		r.logger.Error().Err(err).Str("event_id", out.EventID).Str("event_type", out.EventType).Msg("Failed to reconcile billing event")
		if r.events != nil {
			if markErr := r.events.MarkFailed(ctx, out.EventID, err); markErr != nil {
				r.logger.Error().Err(markErr).Str("event_id", out.EventID).Msg("Failed to record billing event failure")
			}
		}
		return out, err
	}

	if r.events != nil {
		if err := r.events.MarkProcessed(ctx, out.EventID); err != nil {
			// The mutation is committed; a lingering claim only delays takeover of a redelivery.
			r.logger.Error().Err(err).Str("event_id", out.EventID).Msg("Failed to mark billing event processed")
		}
	}

	if out.Mutated() {
		r.notify(ctx, out)
	}
	return out, nil
}

func (r *reconciler) apply(ctx context.Context, event BillingEvent, out ReconcileOutcome) (ReconcileOutcome, error) {
	switch ev := event.(type) {
	case CheckoutCompleted:
		return r.applyCheckout(ctx, ev, out)
	case InvoicePaid:
		return r.applyInvoice(ctx, ev, out)
	case SubscriptionChanged:
		return r.applySubscriptionChange(ctx, ev, out)
	case PaymentIntentSucceeded:
		return r.applyPaymentIntent(ctx, ev, out)
	default:
		out.Skipped = "unhandled event type"
		return out, nil
	}
}

func (r *reconciler) applyCheckout(ctx context.Context, ev CheckoutCompleted, out ReconcileOutcome) (ReconcileOutcome, error) {
	if ev.Identity == "" {
		r.logger.Error().Str("session_id", ev.SessionID).Msg("Checkout session has no userId metadata")
		out.Skipped = "missing identity"
		return out, nil
	}
	out.Email = ev.Identity

	switch ev.Mode {
	case CheckoutModePayment:
		if !ev.Paid() {
			r.logger.Info().Str("session_id", ev.SessionID).Str("payment_status", ev.PaymentStatus).Msg("Checkout payment not settled yet")
			out.Skipped = "payment not settled"
			return out, nil
		}
		priceID := ev.PriceID
		if priceID == "" && r.provider != nil {
			id, err := r.provider.CheckoutPriceID(ctx, ev.SessionID)
			if err != nil {
				return out, fmt.Errorf("resolve checkout price for session %s: %w", ev.SessionID, err)
			}
			priceID = id
		}
		credits, ok := r.catalog.PackCredits(priceID, ev.AmountTotal)
		if !ok {
			r.logUnresolved(ev.EventID(), priceID, ev.AmountTotal)
			out.Skipped = ErrUnresolvedPrice.Error()
			return out, nil
		}
		return r.addCredits(ctx, out, ev.Identity, credits)

	case CheckoutModeSubscription:
		if ev.SubscriptionID == "" {
			r.logger.Error().Str("session_id", ev.SessionID).Msg("Subscription checkout has no subscription id")
			out.Skipped = "missing subscription"
			return out, nil
		}
		if r.provider == nil {
			return out, fmt.Errorf("resolve subscription %s: no billing provider configured", ev.SubscriptionID)
		}
		priceID, status, err := r.provider.SubscriptionPrice(ctx, ev.SubscriptionID)
		if err != nil {
			return out, fmt.Errorf("resolve subscription %s: %w", ev.SubscriptionID, err)
		}
		tier, ok := r.catalog.Tier(priceID)
		if !ok {
			r.logUnresolved(ev.EventID(), priceID, 0)
		}
		if err := r.ledger.SetSubscriptionState(ctx, ev.Identity, tier, status, ev.CustomerID); err != nil {
			return out, err
		}
		out.SubscriptionUpdated = true
		out.Tier = tier
		out.Status = status
		if monthly := r.catalog.MonthlyCredits(tier); monthly > 0 {
			return r.addCredits(ctx, out, ev.Identity, monthly)
		}
		return out, nil
	}

	r.logger.Warn().Str("session_id", ev.SessionID).Str("mode", string(ev.Mode)).Msg("Ignoring checkout session with unsupported mode")
	out.Skipped = "unsupported checkout mode"
	return out, nil
}

func (r *reconciler) applyInvoice(ctx context.Context, ev InvoicePaid, out ReconcileOutcome) (ReconcileOutcome, error) {
	if !ev.IsRenewal() {
		r.logger.Debug().Str("invoice_id", ev.InvoiceID).Str("billing_reason", ev.BillingReason).Msg("Invoice is not a renewal, skipping")
		out.Skipped = "not a renewal"
		return out, nil
	}
	email, err := r.ledger.IdentityForCustomer(ctx, ev.CustomerID)
	if err != nil {
		return out, err
	}
	if email == "" {
		r.logger.Warn().Str("invoice_id", ev.InvoiceID).Str("stripe_customer_id", ev.CustomerID).Msg("No profile for invoice customer")
		out.Skipped = "unknown customer"
		return out, nil
	}
	out.Email = email

	priceID := ev.PriceID
	if priceID == "" && ev.SubscriptionID != "" && r.provider != nil {
		id, _, err := r.provider.SubscriptionPrice(ctx, ev.SubscriptionID)
		if err != nil {
			return out, fmt.Errorf("resolve subscription %s: %w", ev.SubscriptionID, err)
		}
		priceID = id
	}
	tier, ok := r.catalog.Tier(priceID)
	if !ok {
		r.logUnresolved(ev.EventID(), priceID, 0)
		out.Skipped = ErrUnresolvedPrice.Error()
		return out, nil
	}
	return r.addCredits(ctx, out, email, r.catalog.MonthlyCredits(tier))
}

func (r *reconciler) applySubscriptionChange(ctx context.Context, ev SubscriptionChanged, out ReconcileOutcome) (ReconcileOutcome, error) {
	email, err := r.ledger.IdentityForCustomer(ctx, ev.CustomerID)
	if err != nil {
		return out, err
	}
	if email == "" {
		email = ev.Identity
	}
	if email == "" {
		r.logger.Warn().Str("subscription_id", ev.SubscriptionID).Str("stripe_customer_id", ev.CustomerID).Msg("No profile for subscription customer")
		out.Skipped = "unknown customer"
		return out, nil
	}
	out.Email = email

	tier := model.TierFree
	if ev.Status.KeepsTier() {
		t, ok := r.catalog.Tier(ev.PriceID)
		if !ok {
			r.logUnresolved(ev.EventID(), ev.PriceID, 0)
		}
		tier = t
	}
	if err := r.ledger.SetSubscriptionState(ctx, email, tier, ev.Status, ev.CustomerID); err != nil {
		return out, err
	}
	out.SubscriptionUpdated = true
	out.Tier = tier
	out.Status = ev.Status
	return out, nil
}

func (r *reconciler) applyPaymentIntent(ctx context.Context, ev PaymentIntentSucceeded, out ReconcileOutcome) (ReconcileOutcome, error) {
	if ev.PriceID == "" {
		out.Skipped = "no price metadata"
		return out, nil
	}
	email, err := r.ledger.IdentityForCustomer(ctx, ev.CustomerID)
	if err != nil {
		return out, err
	}
	if email == "" {
		r.logger.Warn().Str("payment_intent_id", ev.PaymentIntentID).Str("stripe_customer_id", ev.CustomerID).Msg("No profile for payment intent customer")
		out.Skipped = "unknown customer"
		return out, nil
	}
	out.Email = email

	credits, ok := r.catalog.PackCredits(ev.PriceID, ev.AmountCents)
	if !ok {
		r.logUnresolved(ev.EventID(), ev.PriceID, ev.AmountCents)
		out.Skipped = ErrUnresolvedPrice.Error()
		return out, nil
	}
	return r.addCredits(ctx, out, email, credits)
}

func (r *reconciler) addCredits(ctx context.Context, out ReconcileOutcome, email string, amount int) (ReconcileOutcome, error) {
	balance, err := r.ledger.AddCredits(ctx, email, amount)
	if err != nil {
		return out, err
	}
	out.CreditsAdded = amount
	out.Balance = balance
	return out, nil
}

func (r *reconciler) logUnresolved(eventID, priceID string, amountCents int64) {
	r.logger.Error().
		Err(ErrUnresolvedPrice).
		Str("event_id", eventID).
		Str("price_id", priceID).
		Int64("amount_cents", amountCents).
		Msg("Could not map price to credits or tier")
}

func (r *reconciler) notify(ctx context.Context, out ReconcileOutcome) {
	if r.publisher == nil || r.topic == "" {
		return
	}
	payload, err := json.Marshal(out)
	if err != nil {
		r.logger.Error().Err(err).Str("event_id", out.EventID).Msg("Failed to marshal billing notification")
		return
	}
	msgID, err := r.publisher.Publish(ctx, r.topic, payload)
	if err != nil {
		r.logger.Warn().Err(err).Str("event_id", out.EventID).Msg("Failed to publish billing notification")
		return
	}
	r.logger.Debug().Str("event_id", out.EventID).Str("message_id", msgID).Msg("Billing notification published")
}
