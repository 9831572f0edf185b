package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xndrbrgs/pampampay-reconciler/internal/alert"
	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
	"github.com/xndrbrgs/pampampay-reconciler/internal/metrics"
	"github.com/xndrbrgs/pampampay-reconciler/internal/store"
)

// Sweeper watches for PENDING transfers that outlived the staleness window,
// meaning the provider's confirming webhook never arrived (or was lost). It
// only observes and alerts; status mutation stays on the webhook-confirmed
// path.
type Sweeper struct {
	repo       store.TransferRepository
	providers  []model.Provider
	alerter    alert.Alerter
	staleAfter time.Duration
	logger     *slog.Logger
	nowFunc    func() time.Time
}

func NewSweeper(repo store.TransferRepository, providers []model.Provider, alerter alert.Alerter, staleAfter time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		repo:       repo,
		providers:  providers,
		alerter:    alerter,
		staleAfter: staleAfter,
		logger:     logger.With("component", "sweeper"),
		nowFunc:    time.Now,
	}
}

// Sweep counts stale PENDING transfers per provider, updates the gauge, and
// alerts when any are found.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := s.nowFunc().Add(-s.staleAfter)

	var firstErr error
	for _, provider := range s.providers {
		count, err := s.repo.CountPendingOlderThan(ctx, provider, cutoff)
		if err != nil {
			s.logger.Warn("stale pending count failed", "provider", provider, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("count stale pending for %s: %w", provider, err)
			}
			continue
		}

		metrics.StalePendingTransfers.WithLabelValues(provider.String()).Set(float64(count))

		if count == 0 {
			continue
		}

		s.logger.Warn("stale pending transfers detected",
			"provider", provider, "count", count, "older_than", s.staleAfter.String())

		if s.alerter != nil {
			_ = s.alerter.Send(ctx, alert.Alert{
				Type:     alert.AlertTypeStalePending,
				Provider: provider.String(),
				Title:    "Stale pending transfers",
				Message:  fmt.Sprintf("%d transfers pending for more than %s", count, s.staleAfter),
				Fields: map[string]string{
					"count": fmt.Sprintf("%d", count),
				},
			})
		}
	}
	return firstErr
}

// RunPeriodic sweeps at the given interval until the context is cancelled.
func (s *Sweeper) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	s.logger.Info("stale pending sweeper started",
		"interval", interval, "stale_after", s.staleAfter.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stale pending sweeper stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Warn("sweep failed", "error", err)
			}
		}
	}
}
