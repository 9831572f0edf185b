package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters and histograms for the webhook → reconcile path, partitioned by provider.

var (
	// Webhook boundary
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "webhook",
		Name:      "requests_total",
		Help:      "Total webhook requests by final outcome",
	}, []string{"provider", "outcome"})

	WebhookSignatureFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "webhook",
		Name:      "signature_failures_total",
		Help:      "Total webhook requests rejected for bad or missing signatures",
	}, []string{"provider"})

	WebhookUnhandledEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "webhook",
		Name:      "unhandled_events_total",
		Help:      "Total webhook events with an unrecognized provider event name",
	}, []string{"provider"})

	WebhookHandleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reconciler",
		Subsystem: "webhook",
		Name:      "handle_duration_seconds",
		Help:      "Webhook handling duration, verification through persistence",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"provider"})

	// Reconciliation applier
	ReconcileTransitionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "reconcile",
		Name:      "transitions_applied_total",
		Help:      "Total status transitions persisted",
	}, []string{"provider", "kind"})

	ReconcileNoops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "reconcile",
		Name:      "noops_total",
		Help:      "Total events accepted without a state change",
	}, []string{"provider", "reason"})

	ReconcileUnknownReference = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "reconcile",
		Name:      "unknown_reference_total",
		Help:      "Total events whose external reference matched no stored transfer",
	}, []string{"provider"})

	ReconcileApplyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reconciler",
		Subsystem: "reconcile",
		Name:      "apply_duration_seconds",
		Help:      "Reconciliation apply duration including the conditional update",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"provider"})

	StalePendingTransfers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "reconciler",
		Subsystem: "reconcile",
		Name:      "stale_pending_transfers",
		Help:      "PENDING transfers older than the configured staleness window",
	}, []string{"provider"})

	// Ledger projector
	ProjectorFetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reconciler",
		Subsystem: "ledger",
		Name:      "fetch_duration_seconds",
		Help:      "Per-provider fetch duration during ledger projection",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"provider"})

	ProjectorRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "ledger",
		Name:      "records_projected_total",
		Help:      "Total records emitted into the unified ledger view",
	}, []string{"provider"})

	// Transition stream
	StreamPublishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "stream",
		Name:      "publishes_total",
		Help:      "Total transition messages published to the transport",
	}, []string{"outcome"})

	// Alerting
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts delivered per channel",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts suppressed by the cooldown window",
	}, []string{"channel", "type"})
)
