package model

import "time"

// SubscriptionTier is a named subscription level with a recurring credit allotment.
type SubscriptionTier string

const (
	TierFree    SubscriptionTier = "free"
	TierBasic   SubscriptionTier = "basic"
	TierPro     SubscriptionTier = "pro"
	TierPremium SubscriptionTier = "premium"
)

// SubscriptionStatus mirrors the payment provider's subscription status.
type SubscriptionStatus string

const (
	StatusNone              SubscriptionStatus = "none"
	StatusActive            SubscriptionStatus = "active"
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusPaused            SubscriptionStatus = "paused"
)

var knownStatuses = map[SubscriptionStatus]struct{}{
	StatusNone:              {},
	StatusActive:            {},
	StatusTrialing:          {},
	StatusCanceled:          {},
	StatusPastDue:           {},
	StatusIncomplete:        {},
	StatusIncompleteExpired: {},
	StatusUnpaid:            {},
	StatusPaused:            {},
}

// ParseSubscriptionStatus maps a provider status string onto a known status.
// Empty input maps to StatusNone; unknown values are returned as-is with ok=false.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, bool) {
	if s == "" {
		return StatusNone, true
	}
	st := SubscriptionStatus(s)
	_, ok := knownStatuses[st]
	return st, ok
}

// KeepsTier reports whether a subscription in this status retains its paid tier.
func (s SubscriptionStatus) KeepsTier() bool {
	return s == StatusActive || s == StatusTrialing
}

// Profile is the ledger row for a single user identity (email).
type Profile struct {
	Email              string             `db:"email" json:"email"`
	Credits            int                `db:"credits" json:"credits"`
	SubscriptionTier   SubscriptionTier   `db:"subscription_tier" json:"subscription_tier"`
	SubscriptionStatus SubscriptionStatus `db:"subscription_status" json:"subscription_status"`
	StripeCustomerID   *string            `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

// Balance is the read model served to entitlement checks.
type Balance struct {
	Credits int                `json:"credits"`
	Tier    SubscriptionTier   `json:"tier"`
	Status  SubscriptionStatus `json:"status"`
}

// Balance projects the profile onto its balance view.
func (p *Profile) Balance() Balance {
	return Balance{Credits: p.Credits, Tier: p.SubscriptionTier, Status: p.SubscriptionStatus}
}

// EmptyBalance is returned for identities without a profile.
func EmptyBalance() Balance {
	return Balance{Credits: 0, Tier: TierFree, Status: StatusNone}
}
