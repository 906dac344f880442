package dto

import (
	"time"

	"github.com/EisukeHirata/profile-nanobanana/internal/model"
)

// UserResponseDTO is returned by the /users/me endpoints
type UserResponseDTO struct {
	Email              string    `json:"email"`
	Credits            int       `json:"credits"`
	SubscriptionTier   string    `json:"subscription_tier"`
	SubscriptionStatus string    `json:"subscription_status"`
	HasCustomer        bool      `json:"has_customer"`
	Created            bool      `json:"created,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func NewUserResponse(p *model.Profile, created bool) UserResponseDTO {
	return UserResponseDTO{
		Email:              p.Email,
		Credits:            p.Credits,
		SubscriptionTier:   string(p.SubscriptionTier),
		SubscriptionStatus: string(p.SubscriptionStatus),
		HasCustomer:        p.StripeCustomerID != nil && *p.StripeCustomerID != "",
		Created:            created,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

// CreditsResponseDTO is the entitlement view of the ledger
type CreditsResponseDTO struct {
	Credits int    `json:"credits"`
	Tier    string `json:"tier"`
	Status  string `json:"status"`
}

func NewCreditsResponse(b model.Balance) CreditsResponseDTO {
	return CreditsResponseDTO{Credits: b.Credits, Tier: string(b.Tier), Status: string(b.Status)}
}
