// Package normalizer maps provider-specific webhook payloads onto the
// internal normalized event. Each provider contributes one adapter holding its
// event-name mapping table and external-id field path; nothing outside this
// package knows a provider's payload shape.
package normalizer

import (
	"fmt"

	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/event"
	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
)

// Adapter normalizes one provider's webhook envelope.
type Adapter interface {
	// Provider returns the provider this adapter handles.
	Provider() model.Provider

	// Normalize parses the raw body into a normalized event. Unknown event
	// names are not an error: they come back as KindUnhandled so the caller
	// can acknowledge them without touching state. An error means the body
	// could not be parsed at all.
	Normalize(body []byte) (event.Normalized, error)
}

// Registry holds one adapter per provider.
type Registry struct {
	adapters map[model.Provider]Adapter
}

// NewRegistry builds a registry with every supported provider adapter.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[model.Provider]Adapter)}
	for _, a := range []Adapter{
		NewStripeAdapter(),
		NewCoinbaseAdapter(),
		NewPayPalAdapter(),
		NewBTCPayAdapter(),
		NewSquareAdapter(),
	} {
		r.adapters[a.Provider()] = a
	}
	return r
}

// Normalize dispatches to the provider's adapter.
func (r *Registry) Normalize(provider model.Provider, body []byte) (event.Normalized, error) {
	adapter, ok := r.adapters[provider]
	if !ok {
		return event.Normalized{}, fmt.Errorf("no normalizer adapter for provider %q", provider)
	}
	return adapter.Normalize(body)
}

// Has reports whether an adapter is registered for provider.
func (r *Registry) Has(provider model.Provider) bool {
	_, ok := r.adapters[provider]
	return ok
}
