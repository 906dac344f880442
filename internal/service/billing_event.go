package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/EisukeHirata/profile-nanobanana/internal/model"

	"github.com/stripe/stripe-go/v82"
)

// ErrMalformedEvent is returned when a verified event carries a payload that cannot be decoded.
var ErrMalformedEvent = errors.New("malformed billing event")

const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventInvoicePaymentSucceed  = "invoice.payment_succeeded"
	EventSubscriptionUpdated    = "customer.subscription.updated"
	EventSubscriptionDeleted    = "customer.subscription.deleted"
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
)

// BillingReasonSubscriptionCycle marks an invoice raised by a recurring renewal.
const BillingReasonSubscriptionCycle = "subscription_cycle"

// Checkout metadata keys written when a session is created.
const (
	metadataIdentityKey = "userId"
	metadataPriceKey    = "priceId"
)

// BillingEvent is a provider event reduced to the fields reconciliation needs.
// The concrete type is one of CheckoutCompleted, InvoicePaid, SubscriptionChanged,
// PaymentIntentSucceeded or UnknownEvent.
type BillingEvent interface {
	EventID() string
	EventType() string
	billingEvent()
}

type eventHeader struct {
	ID   string
	Type string
}

func (h eventHeader) EventID() string   { return h.ID }
func (h eventHeader) EventType() string { return h.Type }
func (eventHeader) billingEvent()       {}

// CheckoutMode distinguishes one-time purchases from subscription sign-ups.
type CheckoutMode string

const (
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
)

type CheckoutCompleted struct {
	eventHeader
	SessionID      string
	Mode           CheckoutMode
	PaymentStatus  string
	Identity       string
	PriceID        string // from metadata or an expanded line item
	AmountTotal    int64
	CustomerID     string
	SubscriptionID string
}

// Paid reports whether the session's payment has settled.
func (c CheckoutCompleted) Paid() bool {
	return c.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid)
}

type InvoicePaid struct {
	eventHeader
	InvoiceID      string
	CustomerID     string
	BillingReason  string
	PriceID        string
	SubscriptionID string
}

// IsRenewal reports whether the invoice was raised by a recurring cycle.
func (i InvoicePaid) IsRenewal() bool {
	return i.BillingReason == BillingReasonSubscriptionCycle
}

type SubscriptionChanged struct {
	eventHeader
	Deleted        bool
	SubscriptionID string
	CustomerID     string
	Status         model.SubscriptionStatus
	PriceID        string
	Identity       string
}

type PaymentIntentSucceeded struct {
	eventHeader
	PaymentIntentID string
	CustomerID      string
	PriceID         string
	AmountCents     int64
}

// UnknownEvent is any event type reconciliation does not act on.
type UnknownEvent struct {
	eventHeader
}

// ParseStripeEvent converts a verified provider event into a BillingEvent.
func ParseStripeEvent(event stripe.Event) (BillingEvent, error) {
	h := eventHeader{ID: event.ID, Type: string(event.Type)}
	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}

	switch h.Type {
	case EventCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(raw, &cs); err != nil {
			return nil, fmt.Errorf("%w: checkout.session: %v", ErrMalformedEvent, err)
		}
		ev := CheckoutCompleted{
			eventHeader:   h,
			SessionID:     cs.ID,
			Mode:          CheckoutMode(cs.Mode),
			PaymentStatus: string(cs.PaymentStatus),
			Identity:      cs.Metadata[metadataIdentityKey],
			PriceID:       cs.Metadata[metadataPriceKey],
			AmountTotal:   cs.AmountTotal,
		}
		if ev.PriceID == "" && cs.LineItems != nil && len(cs.LineItems.Data) > 0 && cs.LineItems.Data[0].Price != nil {
			ev.PriceID = cs.LineItems.Data[0].Price.ID
		}
		if cs.Customer != nil {
			ev.CustomerID = cs.Customer.ID
		}
		if cs.Subscription != nil {
			ev.SubscriptionID = cs.Subscription.ID
		}
		return ev, nil

	case EventInvoicePaymentSucceed:
		var inv invoicePayload
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: invoice: %v", ErrMalformedEvent, err)
		}
		return InvoicePaid{
			eventHeader:    h,
			InvoiceID:      inv.ID,
			CustomerID:     expandableID(inv.Customer),
			BillingReason:  inv.BillingReason,
			PriceID:        inv.firstLinePriceID(),
			SubscriptionID: inv.subscriptionID(),
		}, nil

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: subscription: %v", ErrMalformedEvent, err)
		}
		status, _ := model.ParseSubscriptionStatus(string(sub.Status))
		ev := SubscriptionChanged{
			eventHeader:    h,
			Deleted:        h.Type == EventSubscriptionDeleted,
			SubscriptionID: sub.ID,
			Status:         status,
			PriceID:        subscriptionPriceID(&sub),
			Identity:       sub.Metadata[metadataIdentityKey],
		}
		if sub.Customer != nil {
			ev.CustomerID = sub.Customer.ID
		}
		return ev, nil

	case EventPaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: payment_intent: %v", ErrMalformedEvent, err)
		}
		ev := PaymentIntentSucceeded{
			eventHeader:     h,
			PaymentIntentID: pi.ID,
			PriceID:         pi.Metadata[metadataPriceKey],
			AmountCents:     pi.AmountReceived,
		}
		if pi.Customer != nil {
			ev.CustomerID = pi.Customer.ID
		}
		return ev, nil
	}

	return UnknownEvent{eventHeader: h}, nil
}

func subscriptionPriceID(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return ""
	}
	return sub.Items.Data[0].Price.ID
}

// invoicePayload decodes the invoice fields across API versions: the price of a
// line item moved from price.id to pricing.price_details.price, and the
// subscription id moved under parent.subscription_details.
type invoicePayload struct {
	ID            string          `json:"id"`
	Customer      json.RawMessage `json:"customer"`
	BillingReason string          `json:"billing_reason"`
	Subscription  json.RawMessage `json:"subscription"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription json.RawMessage `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines *struct {
		Data []struct {
			Price *struct {
				ID string `json:"id"`
			} `json:"price"`
			Pricing *struct {
				PriceDetails *struct {
					Price json.RawMessage `json:"price"`
				} `json:"price_details"`
			} `json:"pricing"`
		} `json:"data"`
	} `json:"lines"`
}

func (p invoicePayload) firstLinePriceID() string {
	if p.Lines == nil || len(p.Lines.Data) == 0 {
		return ""
	}
	line := p.Lines.Data[0]
	if line.Price != nil && line.Price.ID != "" {
		return line.Price.ID
	}
	if line.Pricing != nil && line.Pricing.PriceDetails != nil {
		return expandableID(line.Pricing.PriceDetails.Price)
	}
	return ""
}

func (p invoicePayload) subscriptionID() string {
	if id := expandableID(p.Subscription); id != "" {
		return id
	}
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		return expandableID(p.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

// expandableID reads a provider reference that is either a bare id or an expanded object.
func expandableID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}
