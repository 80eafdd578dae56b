package domain

import "time"

// AttemptOutcome is the result of one delivery attempt.
type AttemptOutcome string

const (
	AttemptDelivered   AttemptOutcome = "delivered"
	AttemptFailed      AttemptOutcome = "failed"
	AttemptCircuitOpen AttemptOutcome = "circuit_open"
)

// DeliveryAttempt is the audit record of a single channel call made by the
// delivery pipeline.
type DeliveryAttempt struct {
	ID            string           `json:"id"`
	RequestID     string           `json:"request_id"`
	Channel       NotificationType `json:"channel"`
	AttemptNumber int              `json:"attempt_number"`
	Outcome       AttemptOutcome   `json:"outcome"`
	Error         *string          `json:"error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}
