package model

import "time"

// Transfer is a single value-movement record scoped to one provider.
// AmountMinor is the canonical integer minor-unit amount (cents for USD);
// provider-native units are converted at the boundary adapters.
type Transfer struct {
	ID                string         `db:"id"`
	Provider          Provider       `db:"provider"`
	AmountMinor       int64          `db:"amount_minor"`
	Currency          string         `db:"currency"`
	Description       string         `db:"description"`
	SenderID          string         `db:"sender_id"`
	ReceiverID        string         `db:"receiver_id"`
	SenderEmail       string         `db:"sender_email"`
	Status            TransferStatus `db:"status"`
	ExternalReference string         `db:"external_reference"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}
