package normalizer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/event"
	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
)

// paypalEventKinds maps payout-item and checkout events. HELD payouts park in
// DELAYED until PayPal releases or returns them.
var paypalEventKinds = map[string]model.EventKind{
	"PAYMENT.PAYOUTS-ITEM.SUCCEEDED": model.KindSettled,
	"PAYMENT.PAYOUTS-ITEM.FAILED":    model.KindFailed,
	"PAYMENT.PAYOUTS-ITEM.CANCELED":  model.KindCancelled,
	"PAYMENT.PAYOUTS-ITEM.HELD":      model.KindDelayed,
	"PAYMENT.PAYOUTS-ITEM.RETURNED":  model.KindFailed,
	"CHECKOUT.ORDER.APPROVED":        model.KindSettled,
	"CHECKOUT.ORDER.VOIDED":          model.KindCancelled,
}

type paypalEnvelope struct {
	EventType  string `json:"event_type"`
	CreateTime string `json:"create_time"`
	Resource   struct {
		ID           string `json:"id"`
		PayoutItemID string `json:"payout_item_id"`
	} `json:"resource"`
}

type PayPalAdapter struct{}

func NewPayPalAdapter() *PayPalAdapter {
	return &PayPalAdapter{}
}

func (a *PayPalAdapter) Provider() model.Provider {
	return model.ProviderPayPal
}

func (a *PayPalAdapter) Normalize(body []byte) (event.Normalized, error) {
	var env paypalEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return event.Normalized{}, fmt.Errorf("parse paypal event: %w", err)
	}

	kind, ok := paypalEventKinds[env.EventType]
	if !ok {
		kind = model.KindUnhandled
	}

	// Payout events carry the correlating id in payout_item_id; order events
	// carry it in the resource id.
	externalID := env.Resource.PayoutItemID
	if externalID == "" {
		externalID = env.Resource.ID
	}

	var occurredAt time.Time
	if env.CreateTime != "" {
		if t, err := time.Parse(time.RFC3339, env.CreateTime); err == nil {
			occurredAt = t.UTC()
		}
	}

	return event.Normalized{
		Provider:   model.ProviderPayPal,
		ExternalID: externalID,
		RawStatus:  env.EventType,
		Kind:       kind,
		OccurredAt: occurredAt,
	}, nil
}
