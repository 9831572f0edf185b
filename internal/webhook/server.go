package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xndrbrgs/pampampay-reconciler/internal/config"
	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/event"
	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
	"github.com/xndrbrgs/pampampay-reconciler/internal/metrics"
	"github.com/xndrbrgs/pampampay-reconciler/internal/reconcile"
	"github.com/xndrbrgs/pampampay-reconciler/internal/webhook/normalizer"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

// Applier is the reconciliation entry point the server hands verified events
// to. *reconcile.Applier satisfies it; tests provide a mock.
type Applier interface {
	Apply(ctx context.Context, ev event.Normalized) (reconcile.ApplyResult, error)
}

// Server terminates provider webhooks. Response codes are a contract with
// provider retry machinery: 401 means the signature failed and redelivery is
// pointless, 5xx means a transient fault and the provider should redeliver,
// and everything else gets a 200 so providers do not hammer us over payloads
// we have chosen to ignore.
type Server struct {
	verifier   *Verifier
	normalizer *normalizer.Registry
	applier    Applier
	providers  map[model.Provider]config.ProviderConfig
	timeout    time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer
}

func NewServer(verifier *Verifier, registry *normalizer.Registry, applier Applier, providers map[model.Provider]config.ProviderConfig, applyTimeout time.Duration, logger *slog.Logger) *Server {
	return &Server{
		verifier:   verifier,
		normalizer: registry,
		applier:    applier,
		providers:  providers,
		timeout:    applyTimeout,
		logger:     logger.With("component", "webhook"),
		tracer:     otel.Tracer("webhook"),
	}
}

// Handler returns the HTTP handler for the webhook endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/{provider}", s.handleWebhook)
	return mux
}

// unknownProviderLabel is the metric label recorded for requests whose path
// segment does not match a configured provider. The raw segment is
// attacker-chosen and must never mint a label value, or any unauthenticated
// scan grows the metric registry without bound.
const unknownProviderLabel = "unknown"

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	provider := model.Provider(r.PathValue("provider"))

	pc, known := s.providers[provider]
	if !known || !pc.Enabled() || !s.normalizer.Has(provider) {
		metrics.WebhookRequestsTotal.WithLabelValues(unknownProviderLabel, "unknown_provider").Inc()
		metrics.WebhookHandleLatency.WithLabelValues(unknownProviderLabel).Observe(time.Since(start).Seconds())
		http.Error(w, `{"error":"unknown provider"}`, http.StatusNotFound)
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "webhook.receive", trace.WithAttributes(
		attribute.String("provider", provider.String()),
	))
	defer span.End()

	defer func() {
		metrics.WebhookHandleLatency.WithLabelValues(provider.String()).Observe(time.Since(start).Seconds())
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues(provider.String(), "body_read_error").Inc()
		http.Error(w, `{"error":"request body too large"}`, http.StatusRequestEntityTooLarge)
		return
	}

	if !s.verifier.Verify(provider, body, r.Header) {
		metrics.WebhookRequestsTotal.WithLabelValues(provider.String(), "unauthorized").Inc()
		metrics.WebhookSignatureFailures.WithLabelValues(provider.String()).Inc()
		s.logger.Warn("webhook signature verification failed",
			"provider", provider, "remote_addr", r.RemoteAddr)
		// Deliberately opaque: the response must not reveal whether the
		// header was missing, malformed, or just wrong.
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	ev, err := s.normalizer.Normalize(provider, body)
	if err != nil {
		// Authenticated but unparseable. The provider will not fix the payload
		// on redelivery, so acknowledge and keep the evidence in the logs.
		metrics.WebhookRequestsTotal.WithLabelValues(provider.String(), "malformed").Inc()
		s.logger.Warn("webhook body could not be normalized",
			"provider", provider, "error", err)
		writeReceived(w)
		return
	}

	if ev.Kind == model.KindUnhandled {
		metrics.WebhookRequestsTotal.WithLabelValues(provider.String(), "unhandled").Inc()
		metrics.WebhookUnhandledEvents.WithLabelValues(provider.String()).Inc()
		s.logger.Debug("ignoring unhandled event type",
			"provider", provider, "raw_status", ev.RawStatus)
		writeReceived(w)
		return
	}

	applyCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		applyCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.applier.Apply(applyCtx, ev)
	if err != nil {
		decision := reconcile.Classify(err)
		if decision.IsTransient() {
			metrics.WebhookRequestsTotal.WithLabelValues(provider.String(), "transient_error").Inc()
			s.logger.Error("webhook processing failed, requesting redelivery",
				"provider", provider, "external_id", ev.ExternalID,
				"reason", decision.Reason, "error", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		metrics.WebhookRequestsTotal.WithLabelValues(provider.String(), "terminal_error").Inc()
		s.logger.Error("webhook processing failed terminally, acknowledging",
			"provider", provider, "external_id", ev.ExternalID,
			"reason", decision.Reason, "error", err)
		writeReceived(w)
		return
	}

	switch {
	case res.Transitioned:
		metrics.WebhookRequestsTotal.WithLabelValues(provider.String(), "applied").Inc()
	case res.Matched:
		metrics.WebhookRequestsTotal.WithLabelValues(provider.String(), "noop").Inc()
	default:
		metrics.WebhookRequestsTotal.WithLabelValues(provider.String(), "unmatched").Inc()
	}
	writeReceived(w)
}

// writeReceived acknowledges the delivery. Every accepted outcome looks the
// same on the wire; providers only distinguish 2xx from everything else.
func writeReceived(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"received":true}`))
}
