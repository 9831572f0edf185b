package store

import (
	"context"
	"errors"
	"time"

	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
)

// ErrDuplicateExternalReference is returned when a create collides with an
// existing external reference for the same provider.
var ErrDuplicateExternalReference = errors.New("duplicate external reference")

// TransitionResult describes the outcome of a conditional status update.
type TransitionResult struct {
	// Transitioned is true when the row was updated, false when the stored
	// status was outside the allowed source set (redundant or illegal event).
	Transitioned bool
}

// TransferRepository provides access to per-provider transfer records.
//
// ApplyTransition must be implemented as a single conditional update keyed by
// the transfer's primary key, never as read-modify-write: concurrent webhook
// deliveries for the same transfer race, and only the row-level condition
// keeps the state machine honest under redelivery.
type TransferRepository interface {
	CreatePending(ctx context.Context, t *model.Transfer) error
	FindByExternalReference(ctx context.Context, provider model.Provider, externalRef string) (*model.Transfer, error)
	ApplyTransition(ctx context.Context, provider model.Provider, id string, target model.TransferStatus, allowedFrom []model.TransferStatus) (TransitionResult, error)
	ListByStatus(ctx context.Context, provider model.Provider, status model.TransferStatus) ([]model.Transfer, error)
	CountPendingOlderThan(ctx context.Context, provider model.Provider, cutoff time.Time) (int, error)
}
