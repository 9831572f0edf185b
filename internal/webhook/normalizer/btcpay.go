package normalizer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/event"
	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
)

// btcpayEventKinds maps BTCPay invoice webhooks. A settled payment on a
// still-open invoice (partial payment) stays PENDING; expiry while paid-late
// comes through as InvoiceExpired and later InvoiceSettled if the operator
// marks it settled.
var btcpayEventKinds = map[string]model.EventKind{
	"InvoiceCreated":          model.KindPending,
	"InvoiceProcessing":       model.KindPending,
	"InvoicePaymentSettled":   model.KindPending,
	"InvoiceReceivedPayment":  model.KindPending,
	"InvoiceSettled":          model.KindSettled,
	"InvoiceExpired":          model.KindFailed,
	"InvoiceInvalid":          model.KindFailed,
}

type btcpayEnvelope struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	InvoiceID string `json:"invoiceId"`
}

type BTCPayAdapter struct{}

func NewBTCPayAdapter() *BTCPayAdapter {
	return &BTCPayAdapter{}
}

func (a *BTCPayAdapter) Provider() model.Provider {
	return model.ProviderBTCPay
}

func (a *BTCPayAdapter) Normalize(body []byte) (event.Normalized, error) {
	var env btcpayEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return event.Normalized{}, fmt.Errorf("parse btcpay event: %w", err)
	}

	kind, ok := btcpayEventKinds[env.Type]
	if !ok {
		kind = model.KindUnhandled
	}

	var occurredAt time.Time
	if env.Timestamp > 0 {
		occurredAt = time.Unix(env.Timestamp, 0).UTC()
	}

	return event.Normalized{
		Provider:   model.ProviderBTCPay,
		ExternalID: env.InvoiceID,
		RawStatus:  env.Type,
		Kind:       kind,
		OccurredAt: occurredAt,
	}, nil
}
