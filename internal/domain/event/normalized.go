package event

import (
	"time"

	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
)

// Normalized is the provider-agnostic representation of one webhook
// notification. RawStatus preserves the provider's own event name for
// logging/diagnosis; Kind drives every downstream decision.
type Normalized struct {
	Provider   model.Provider
	ExternalID string
	RawStatus  string
	Kind       model.EventKind
	OccurredAt time.Time
}
