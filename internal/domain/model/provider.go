// Package model holds the provider-neutral domain types: providers, transfer
// records, statuses, and the transition rules between them.
package model

// Provider identifies a payment provider. The value doubles as the webhook
// path segment and the ledger source label, so it stays lowercase.
type Provider string

const (
	ProviderStripe   Provider = "stripe"
	ProviderCoinbase Provider = "coinbase"
	ProviderPayPal   Provider = "paypal"
	ProviderBTCPay   Provider = "btcpay"
	ProviderSquare   Provider = "square"
)

func (p Provider) String() string {
	return string(p)
}

// AllProviders returns every supported provider in a fixed order.
func AllProviders() []Provider {
	return []Provider{
		ProviderStripe,
		ProviderCoinbase,
		ProviderPayPal,
		ProviderBTCPay,
		ProviderSquare,
	}
}

// ValidProvider reports whether p names a supported provider.
func ValidProvider(p Provider) bool {
	switch p {
	case ProviderStripe, ProviderCoinbase, ProviderPayPal, ProviderBTCPay, ProviderSquare:
		return true
	}
	return false
}

// TransferStatus is the stored lifecycle state of a transfer.
type TransferStatus string

const (
	StatusPending   TransferStatus = "PENDING"
	StatusCompleted TransferStatus = "COMPLETED"
	StatusFailed    TransferStatus = "FAILED"
	StatusDelayed   TransferStatus = "DELAYED"
	StatusCancelled TransferStatus = "CANCELLED"
	StatusResolved  TransferStatus = "RESOLVED"
)

func (s TransferStatus) String() string {
	return string(s)
}

// EventKind is the provider-neutral meaning of a webhook event. Normalizer
// adapters collapse each provider's event vocabulary into these kinds; the
// state machine only ever sees kinds.
type EventKind string

const (
	KindPending   EventKind = "PENDING"
	KindSettled   EventKind = "SETTLED"
	KindFailed    EventKind = "FAILED"
	KindDelayed   EventKind = "DELAYED"
	KindCancelled EventKind = "CANCELLED"
	KindResolved  EventKind = "RESOLVED"

	// KindUnhandled marks event names the adapter recognizes as belonging to
	// the provider but has no mapping for. Always acknowledged, never applied.
	KindUnhandled EventKind = "UNHANDLED"
)

func (k EventKind) String() string {
	return string(k)
}
