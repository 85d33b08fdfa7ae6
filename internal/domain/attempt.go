package domain

import "time"

// DeliveryAttempt records a single delivery try for one recipient through one
// mechanism. Attempts are append-only.
type DeliveryAttempt struct {
	ID                  string
	Timestamp           time.Time
	Mechanism           Mechanism
	RecipientIdentifier string
	WasSuccessful       bool
	Notes               string
}
