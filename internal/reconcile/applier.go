package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xndrbrgs/pampampay-reconciler/internal/alert"
	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/event"
	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
	"github.com/xndrbrgs/pampampay-reconciler/internal/metrics"
	"github.com/xndrbrgs/pampampay-reconciler/internal/store"
	redisstore "github.com/xndrbrgs/pampampay-reconciler/internal/store/redis"
)

// ApplyResult reports what an event did to stored state.
type ApplyResult struct {
	// Matched is false when no transfer carries the event's external
	// reference. Not an error: the event may belong to another instance or a
	// discarded test artifact.
	Matched bool

	// Transitioned is true when the event actually moved the stored status.
	Transitioned bool
}

// Applier applies normalized webhook events to stored transfers, exactly once
// per effective transition no matter how often providers redeliver.
type Applier struct {
	repo      store.TransferRepository
	publisher redisstore.TransitionPublisher
	alerter   alert.Alerter
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewApplier(repo store.TransferRepository, publisher redisstore.TransitionPublisher, alerter alert.Alerter, logger *slog.Logger) *Applier {
	return &Applier{
		repo:      repo,
		publisher: publisher,
		alerter:   alerter,
		logger:    logger.With("component", "reconcile"),
		tracer:    otel.Tracer("reconcile"),
	}
}

// Apply looks up the transfer referenced by ev and applies the state-machine
// transition as one conditional update. It is safe to call concurrently and
// redundantly for the same external id: the update is a pure function of the
// stored status and the event kind, so re-application is a no-op once the
// target state is reached.
//
// A returned error is always a persistence fault; "no such transfer" and
// "nothing to do" are successful no-ops by design.
func (a *Applier) Apply(ctx context.Context, ev event.Normalized) (ApplyResult, error) {
	ctx, span := a.tracer.Start(ctx, "reconcile.apply", trace.WithAttributes(
		attribute.String("provider", ev.Provider.String()),
		attribute.String("kind", ev.Kind.String()),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.ReconcileApplyLatency.WithLabelValues(ev.Provider.String()).Observe(time.Since(start).Seconds())
	}()

	if ev.ExternalID == "" {
		metrics.ReconcileNoops.WithLabelValues(ev.Provider.String(), "missing_reference").Inc()
		a.logger.Warn("event carries no external reference",
			"provider", ev.Provider, "raw_status", ev.RawStatus)
		return ApplyResult{}, nil
	}

	transfer, err := a.repo.FindByExternalReference(ctx, ev.Provider, ev.ExternalID)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("lookup transfer %s/%s: %w", ev.Provider, ev.ExternalID, err)
	}
	if transfer == nil {
		metrics.ReconcileUnknownReference.WithLabelValues(ev.Provider.String()).Inc()
		a.logger.Info("event references unknown transfer",
			"provider", ev.Provider, "external_id", ev.ExternalID, "raw_status", ev.RawStatus)
		return ApplyResult{Matched: false}, nil
	}

	target, allowedFrom, ok := model.TransitionRule(ev.Kind)
	if !ok {
		metrics.ReconcileNoops.WithLabelValues(ev.Provider.String(), "unhandled_kind").Inc()
		return ApplyResult{Matched: true}, nil
	}

	res, err := a.repo.ApplyTransition(ctx, ev.Provider, transfer.ID, target, allowedFrom)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("apply transition %s -> %s for %s: %w", ev.Kind, target, transfer.ID, err)
	}
	if !res.Transitioned {
		metrics.ReconcileNoops.WithLabelValues(ev.Provider.String(), "redundant").Inc()
		a.logger.Debug("transition was a no-op",
			"provider", ev.Provider, "transfer_id", transfer.ID,
			"current_status", transfer.Status, "kind", ev.Kind)
		return ApplyResult{Matched: true, Transitioned: false}, nil
	}

	metrics.ReconcileTransitionsApplied.WithLabelValues(ev.Provider.String(), ev.Kind.String()).Inc()
	a.logger.Info("transfer transitioned",
		"provider", ev.Provider, "transfer_id", transfer.ID,
		"external_id", ev.ExternalID, "kind", ev.Kind, "new_status", target)

	a.publishTransition(ctx, ev, transfer.ID, target)

	if target == model.StatusFailed && a.alerter != nil {
		_ = a.alerter.Send(ctx, alert.Alert{
			Type:     alert.AlertTypeTransferFailed,
			Provider: ev.Provider.String(),
			Title:    "Transfer failed",
			Message:  fmt.Sprintf("transfer %s failed (%s)", transfer.ID, ev.RawStatus),
			Fields: map[string]string{
				"external_id": ev.ExternalID,
				"amount":      fmt.Sprintf("%d", transfer.AmountMinor),
				"currency":    transfer.Currency,
			},
		})
	}

	return ApplyResult{Matched: true, Transitioned: true}, nil
}

// publishTransition emits the applied transition for downstream consumers.
// Failures are logged only: the transition is already durable and the
// provider must still receive its 200.
func (a *Applier) publishTransition(ctx context.Context, ev event.Normalized, transferID string, newStatus model.TransferStatus) {
	if a.publisher == nil {
		return
	}

	occurredAt := ev.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	err := a.publisher.Publish(ctx, redisstore.TransitionMessage{
		Provider:   ev.Provider,
		TransferID: transferID,
		ExternalID: ev.ExternalID,
		Kind:       ev.Kind,
		NewStatus:  newStatus,
		OccurredAt: occurredAt,
	})
	if err != nil {
		metrics.StreamPublishesTotal.WithLabelValues("error").Inc()
		a.logger.Warn("transition publish failed", "transfer_id", transferID, "error", err)
		return
	}
	metrics.StreamPublishesTotal.WithLabelValues("ok").Inc()
}
