package normalizer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/event"
	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
)

// stripeEventKinds maps Stripe event types onto internal kinds. Disputes map
// to the RESOLVED path: a closed dispute is the only sanctioned way out of
// COMPLETED.
var stripeEventKinds = map[string]model.EventKind{
	"payment_intent.processing":     model.KindPending,
	"payment_intent.succeeded":      model.KindSettled,
	"payment_intent.payment_failed": model.KindFailed,
	"payment_intent.canceled":       model.KindCancelled,
	"charge.dispute.created":        model.KindDelayed,
	"charge.dispute.closed":         model.KindResolved,
}

type stripeEnvelope struct {
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

type StripeAdapter struct{}

func NewStripeAdapter() *StripeAdapter {
	return &StripeAdapter{}
}

func (a *StripeAdapter) Provider() model.Provider {
	return model.ProviderStripe
}

func (a *StripeAdapter) Normalize(body []byte) (event.Normalized, error) {
	var env stripeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return event.Normalized{}, fmt.Errorf("parse stripe event: %w", err)
	}

	kind, ok := stripeEventKinds[env.Type]
	if !ok {
		kind = model.KindUnhandled
	}

	var occurredAt time.Time
	if env.Created > 0 {
		occurredAt = time.Unix(env.Created, 0).UTC()
	}

	return event.Normalized{
		Provider:   model.ProviderStripe,
		ExternalID: env.Data.Object.ID,
		RawStatus:  env.Type,
		Kind:       kind,
		OccurredAt: occurredAt,
	}, nil
}
