// Package ledger projects per-provider transfer tables into one read-only
// cross-provider view. The projection is computed per request and never
// written back; the provider tables stay the only source of truth.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
	"github.com/xndrbrgs/pampampay-reconciler/internal/metrics"
	"github.com/xndrbrgs/pampampay-reconciler/internal/store"
)

var minorUnitsPerDollar = decimal.NewFromInt(100)

// Filter narrows the projection to one calendar month. Zero values mean no
// filtering on that dimension; Month without Year is rejected at the API
// boundary before it reaches here.
type Filter struct {
	Month time.Month
	Year  int
}

func (f Filter) matches(t time.Time) bool {
	if f.Year != 0 && t.Year() != f.Year {
		return false
	}
	if f.Month != 0 && t.Month() != f.Month {
		return false
	}
	return true
}

// Projector fans out to every provider's transfer table concurrently and
// merges completed transfers into one deterministically ordered slice.
type Projector struct {
	repo      store.TransferRepository
	providers []model.Provider
	logger    *slog.Logger
}

func NewProjector(repo store.TransferRepository, providers []model.Provider, logger *slog.Logger) *Projector {
	return &Projector{
		repo:      repo,
		providers: providers,
		logger:    logger.With("component", "ledger"),
	}
}

// Project returns the unified view of completed transfers across all
// providers. One provider failing fails the whole projection: a partial
// ledger silently missing a provider's money is worse than an error.
func (p *Projector) Project(ctx context.Context, filter Filter) ([]model.UnifiedTransaction, error) {
	results := make([][]model.UnifiedTransaction, len(p.providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, provider := range p.providers {
		g.Go(func() error {
			start := time.Now()
			transfers, err := p.repo.ListByStatus(gctx, provider, model.StatusCompleted)
			metrics.ProjectorFetchLatency.WithLabelValues(provider.String()).Observe(time.Since(start).Seconds())
			if err != nil {
				return fmt.Errorf("list completed transfers for %s: %w", provider, err)
			}

			projected := make([]model.UnifiedTransaction, 0, len(transfers))
			for _, t := range transfers {
				if !filter.matches(t.CreatedAt) {
					continue
				}
				projected = append(projected, project(t))
			}
			metrics.ProjectorRecords.WithLabelValues(provider.String()).Add(float64(len(projected)))
			results[i] = projected
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []model.UnifiedTransaction
	for _, r := range results {
		merged = append(merged, r...)
	}

	// Newest first; equal timestamps fall back to id so pagination and export
	// stay stable across requests.
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.After(merged[j].CreatedAt)
		}
		return merged[i].ID < merged[j].ID
	})

	return merged, nil
}

// project converts one stored transfer into its unified form. Amounts are
// kept in integer minor units everywhere else; this is the only place the
// dollar string is produced.
func project(t model.Transfer) model.UnifiedTransaction {
	amount := decimal.NewFromInt(t.AmountMinor).Div(minorUnitsPerDollar)
	return model.UnifiedTransaction{
		ID:          t.ID,
		Amount:      amount.StringFixed(2),
		Description: t.Description,
		Email:       t.SenderEmail,
		CreatedAt:   t.CreatedAt,
		Status:      t.Status.String(),
		Source:      t.Provider.String(),
	}
}
