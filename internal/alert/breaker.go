package alert

import (
	"context"

	"github.com/xndrbrgs/pampampay-reconciler/internal/circuitbreaker"
)

// BreakerAlerter wraps another alerter with a circuit breaker so a dead alert
// endpoint cannot slow down the webhook path with connect timeouts.
type BreakerAlerter struct {
	inner   Alerter
	breaker *circuitbreaker.Breaker
}

// NewBreakerAlerter wraps inner with the given breaker.
func NewBreakerAlerter(inner Alerter, breaker *circuitbreaker.Breaker) *BreakerAlerter {
	return &BreakerAlerter{inner: inner, breaker: breaker}
}

func (b *BreakerAlerter) Send(ctx context.Context, alert Alert) error {
	if err := b.breaker.Allow(); err != nil {
		return err
	}
	if err := b.inner.Send(ctx, alert); err != nil {
		b.breaker.RecordFailure()
		return err
	}
	b.breaker.RecordSuccess()
	return nil
}
