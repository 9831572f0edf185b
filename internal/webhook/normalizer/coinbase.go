package normalizer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/event"
	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
)

// coinbaseEventKinds covers the Commerce charge lifecycle, including the
// delayed/resolved pair for underpaid or late on-chain settlements.
var coinbaseEventKinds = map[string]model.EventKind{
	"charge:created":   model.KindPending,
	"charge:pending":   model.KindPending,
	"charge:confirmed": model.KindSettled,
	"charge:failed":    model.KindFailed,
	"charge:delayed":   model.KindDelayed,
	"charge:resolved":  model.KindResolved,
}

type coinbaseEnvelope struct {
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
	Data      struct {
		ID string `json:"id"`
	} `json:"data"`
}

type CoinbaseAdapter struct{}

func NewCoinbaseAdapter() *CoinbaseAdapter {
	return &CoinbaseAdapter{}
}

func (a *CoinbaseAdapter) Provider() model.Provider {
	return model.ProviderCoinbase
}

func (a *CoinbaseAdapter) Normalize(body []byte) (event.Normalized, error) {
	var env coinbaseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return event.Normalized{}, fmt.Errorf("parse coinbase event: %w", err)
	}

	kind, ok := coinbaseEventKinds[env.Type]
	if !ok {
		kind = model.KindUnhandled
	}

	var occurredAt time.Time
	if env.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, env.CreatedAt); err == nil {
			occurredAt = t.UTC()
		}
	}

	return event.Normalized{
		Provider:   model.ProviderCoinbase,
		ExternalID: env.Data.ID,
		RawStatus:  env.Type,
		Kind:       kind,
		OccurredAt: occurredAt,
	}, nil
}
