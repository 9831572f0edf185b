package model

import "time"

// UnifiedTransaction is the read-only cross-provider projection used for the
// dashboard and export. Amount is dollars with two decimal places, regardless
// of the provider's native unit. It is derived, never persisted, and never the
// object of reconciliation.
type UnifiedTransaction struct {
	ID          string    `json:"id"`
	Amount      string    `json:"amount"`
	Description string    `json:"description"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
	Status      string    `json:"status"`
	Source      string    `json:"source"`
}
