package dto

// CheckoutRequestDTO is the body of POST /stripe/checkout
type CheckoutRequestDTO struct {
	PriceID string `json:"priceId" validate:"required"`
	Mode    string `json:"mode" validate:"required,oneof=payment subscription"`
}

type CheckoutResponseDTO struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type CancelSubscriptionResponseDTO struct {
	Success      bool        `json:"success"`
	Subscription interface{} `json:"subscription"`
}

type WebhookResponseDTO struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// ErrorResponseDTO is the body of every error response
type ErrorResponseDTO struct {
	Error string `json:"error"`
}

// InsufficientCreditsResponseDTO is returned with 402
type InsufficientCreditsResponseDTO struct {
	Error    string `json:"error"`
	Credits  int    `json:"credits"`
	Required int    `json:"required"`
}
