package service

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidImageIndex    = errors.New("invalid image index")
	ErrWebhookVerification  = errors.New("webhook verification failed")
	ErrUnresolvedPrice      = errors.New("unresolved price mapping")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrUpstreamGeneration   = errors.New("upstream generation failed")
	ErrUpstreamRateLimited  = errors.New("upstream quota exceeded")
	ErrInvalidRequest       = errors.New("invalid request")
)

// InsufficientCreditsError carries the amounts compared by the entitlement check.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientCreditsError) Unwrap() error { return ErrInsufficientCredits }

// upstreamExcerptLimit bounds the provider diagnostic surfaced to callers.
const upstreamExcerptLimit = 200

// UpstreamGenerationError is returned when no usable image came back from the provider.
type UpstreamGenerationError struct {
	Excerpt string
	Cause   error
}

func NewUpstreamGenerationError(diagnostic string, cause error) *UpstreamGenerationError {
	return &UpstreamGenerationError{Excerpt: truncate(diagnostic, upstreamExcerptLimit), Cause: cause}
}

func (e *UpstreamGenerationError) Error() string {
	return fmt.Sprintf("no images were generated. Model response: %s...", e.Excerpt)
}

func (e *UpstreamGenerationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrUpstreamGeneration, e.Cause}
	}
	return []error{ErrUpstreamGeneration}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
