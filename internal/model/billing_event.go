package model

import "time"

// BillingEventStatus tracks processing of a provider webhook event.
type BillingEventStatus string

const (
	BillingEventProcessing BillingEventStatus = "processing"
	BillingEventProcessed  BillingEventStatus = "processed"
	BillingEventFailed     BillingEventStatus = "failed"
)

// BillingEvent records a provider event id so redeliveries are not applied twice.
type BillingEvent struct {
	EventID         string             `db:"event_id"`
	EventType       string             `db:"event_type"`
	Status          BillingEventStatus `db:"status"`
	Attempts        int                `db:"attempts"`
	ProcessingError *string            `db:"processing_error"`
	CreatedAt       time.Time          `db:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at"`
}
