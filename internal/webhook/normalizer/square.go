package normalizer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/event"
	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
)

// Square signals everything through payment.updated; the interesting part is
// the payment status inside the envelope.
var squarePaymentKinds = map[string]model.EventKind{
	"APPROVED":  model.KindPending,
	"PENDING":   model.KindPending,
	"COMPLETED": model.KindSettled,
	"FAILED":    model.KindFailed,
	"CANCELED":  model.KindCancelled,
}

type squareEnvelope struct {
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
	Data      struct {
		Object struct {
			Payment struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

type SquareAdapter struct{}

func NewSquareAdapter() *SquareAdapter {
	return &SquareAdapter{}
}

func (a *SquareAdapter) Provider() model.Provider {
	return model.ProviderSquare
}

func (a *SquareAdapter) Normalize(body []byte) (event.Normalized, error) {
	var env squareEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return event.Normalized{}, fmt.Errorf("parse square event: %w", err)
	}

	payment := env.Data.Object.Payment

	kind := model.KindUnhandled
	if env.Type == "payment.updated" || env.Type == "payment.created" {
		if k, ok := squarePaymentKinds[payment.Status]; ok {
			kind = k
		}
	}

	var occurredAt time.Time
	if env.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, env.CreatedAt); err == nil {
			occurredAt = t.UTC()
		}
	}

	return event.Normalized{
		Provider:   model.ProviderSquare,
		ExternalID: payment.ID,
		RawStatus:  fmt.Sprintf("%s/%s", env.Type, payment.Status),
		Kind:       kind,
		OccurredAt: occurredAt,
	}, nil
}
