package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xndrbrgs/pampampay-reconciler/internal/alert"
	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/event"
	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
	"github.com/xndrbrgs/pampampay-reconciler/internal/store"
	redisstore "github.com/xndrbrgs/pampampay-reconciler/internal/store/redis"
)

type fakeRepo struct {
	mu        sync.Mutex
	transfers map[string]*model.Transfer // keyed provider + "/" + external ref

	findErr       error
	transitionErr error

	appliedTargets []model.TransferStatus
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{transfers: make(map[string]*model.Transfer)}
}

func (f *fakeRepo) put(t *model.Transfer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers[t.Provider.String()+"/"+t.ExternalReference] = t
}

func (f *fakeRepo) CreatePending(_ context.Context, t *model.Transfer) error {
	f.put(t)
	return nil
}

func (f *fakeRepo) FindByExternalReference(_ context.Context, provider model.Provider, externalRef string) (*model.Transfer, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transfers[provider.String()+"/"+externalRef]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeRepo) ApplyTransition(_ context.Context, provider model.Provider, id string, target model.TransferStatus, allowedFrom []model.TransferStatus) (store.TransitionResult, error) {
	if f.transitionErr != nil {
		return store.TransitionResult{}, f.transitionErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appliedTargets = append(f.appliedTargets, target)
	for _, t := range f.transfers {
		if t.Provider != provider || t.ID != id {
			continue
		}
		if t.Status == target {
			return store.TransitionResult{}, nil
		}
		for _, from := range allowedFrom {
			if t.Status == from {
				t.Status = target
				return store.TransitionResult{Transitioned: true}, nil
			}
		}
		return store.TransitionResult{}, nil
	}
	return store.TransitionResult{}, nil
}

func (f *fakeRepo) ListByStatus(_ context.Context, provider model.Provider, status model.TransferStatus) ([]model.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Transfer
	for _, t := range f.transfers {
		if t.Provider == provider && t.Status == status {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeRepo) CountPendingOlderThan(_ context.Context, provider model.Provider, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.transfers {
		if t.Provider == provider && t.Status == model.StatusPending && t.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

type fakeAlerter struct {
	mu   sync.Mutex
	sent []alert.Alert
	fail bool
}

func (f *fakeAlerter) Send(_ context.Context, a alert.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("alert channel down")
	}
	f.sent = append(f.sent, a)
	return nil
}

func (f *fakeAlerter) alerts() []alert.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]alert.Alert(nil), f.sent...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedTransfer(repo *fakeRepo, provider model.Provider, externalRef string, status model.TransferStatus) *model.Transfer {
	t := &model.Transfer{
		ID:                "tr-" + externalRef,
		Provider:          provider,
		AmountMinor:       5000,
		Currency:          "usd",
		Status:            status,
		ExternalReference: externalRef,
		CreatedAt:         time.Now().Add(-time.Hour),
	}
	repo.put(t)
	return t
}

func TestApplierTransitionsPendingToCompleted(t *testing.T) {
	repo := newFakeRepo()
	stream := redisstore.NewInMemoryStream()
	applier := NewApplier(repo, stream, nil, testLogger())

	seedTransfer(repo, model.ProviderCoinbase, "abc123", model.StatusPending)

	res, err := applier.Apply(context.Background(), event.Normalized{
		Provider:   model.ProviderCoinbase,
		ExternalID: "abc123",
		RawStatus:  "charge:confirmed",
		Kind:       model.KindSettled,
		OccurredAt: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.True(t, res.Transitioned)

	stored, err := repo.FindByExternalReference(context.Background(), model.ProviderCoinbase, "abc123")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)

	msgs := stream.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "tr-abc123", msgs[0].TransferID)
	assert.Equal(t, model.StatusCompleted, msgs[0].NewStatus)
}

func TestApplierRedeliveryIsNoop(t *testing.T) {
	repo := newFakeRepo()
	stream := redisstore.NewInMemoryStream()
	applier := NewApplier(repo, stream, nil, testLogger())

	seedTransfer(repo, model.ProviderCoinbase, "abc123", model.StatusPending)

	ev := event.Normalized{
		Provider:   model.ProviderCoinbase,
		ExternalID: "abc123",
		Kind:       model.KindSettled,
	}

	first, err := applier.Apply(context.Background(), ev)
	require.NoError(t, err)
	require.True(t, first.Transitioned)

	second, err := applier.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, second.Matched)
	assert.False(t, second.Transitioned, "redelivery must not re-apply")

	assert.Len(t, stream.Messages(), 1, "no-op transitions are not published")
}

func TestApplierUnknownReferenceIsNotAnError(t *testing.T) {
	repo := newFakeRepo()
	applier := NewApplier(repo, nil, nil, testLogger())

	res, err := applier.Apply(context.Background(), event.Normalized{
		Provider:   model.ProviderStripe,
		ExternalID: "zzz-unknown",
		Kind:       model.KindSettled,
	})
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.False(t, res.Transitioned)
	assert.Empty(t, repo.appliedTargets, "no transition attempted for unknown reference")
}

func TestApplierMissingReferenceIsNoop(t *testing.T) {
	repo := newFakeRepo()
	applier := NewApplier(repo, nil, nil, testLogger())

	res, err := applier.Apply(context.Background(), event.Normalized{
		Provider: model.ProviderStripe,
		Kind:     model.KindSettled,
	})
	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestApplierUnhandledKindIsNoop(t *testing.T) {
	repo := newFakeRepo()
	applier := NewApplier(repo, nil, nil, testLogger())

	seedTransfer(repo, model.ProviderStripe, "pi_1", model.StatusPending)

	res, err := applier.Apply(context.Background(), event.Normalized{
		Provider:   model.ProviderStripe,
		ExternalID: "pi_1",
		RawStatus:  "payment_intent.amount_capturable_updated",
		Kind:       model.KindUnhandled,
	})
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.False(t, res.Transitioned)

	stored, _ := repo.FindByExternalReference(context.Background(), model.ProviderStripe, "pi_1")
	assert.Equal(t, model.StatusPending, stored.Status)
}

func TestApplierIllegalTransitionFromTerminalIsNoop(t *testing.T) {
	repo := newFakeRepo()
	applier := NewApplier(repo, nil, nil, testLogger())

	seedTransfer(repo, model.ProviderPayPal, "po_9", model.StatusFailed)

	res, err := applier.Apply(context.Background(), event.Normalized{
		Provider:   model.ProviderPayPal,
		ExternalID: "po_9",
		Kind:       model.KindSettled,
	})
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.False(t, res.Transitioned)
}

func TestApplierLookupErrorPropagates(t *testing.T) {
	repo := newFakeRepo()
	repo.findErr = errors.New("connection refused")
	applier := NewApplier(repo, nil, nil, testLogger())

	_, err := applier.Apply(context.Background(), event.Normalized{
		Provider:   model.ProviderStripe,
		ExternalID: "pi_1",
		Kind:       model.KindSettled,
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "lookup transfer")
}

func TestApplierTransitionErrorPropagates(t *testing.T) {
	repo := newFakeRepo()
	repo.transitionErr = errors.New("deadlock detected")
	applier := NewApplier(repo, nil, nil, testLogger())

	seedTransfer(repo, model.ProviderStripe, "pi_1", model.StatusPending)

	_, err := applier.Apply(context.Background(), event.Normalized{
		Provider:   model.ProviderStripe,
		ExternalID: "pi_1",
		Kind:       model.KindSettled,
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "apply transition")
}

func TestApplierAlertsOnFailure(t *testing.T) {
	repo := newFakeRepo()
	alerter := &fakeAlerter{}
	applier := NewApplier(repo, nil, alerter, testLogger())

	seedTransfer(repo, model.ProviderSquare, "sq_1", model.StatusPending)

	res, err := applier.Apply(context.Background(), event.Normalized{
		Provider:   model.ProviderSquare,
		ExternalID: "sq_1",
		RawStatus:  "payment.updated/FAILED",
		Kind:       model.KindFailed,
	})
	require.NoError(t, err)
	require.True(t, res.Transitioned)

	alerts := alerter.alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.AlertTypeTransferFailed, alerts[0].Type)
	assert.Equal(t, "square", alerts[0].Provider)
	assert.Equal(t, "sq_1", alerts[0].Fields["external_id"])
}

func TestApplierAlertFailureDoesNotFailApply(t *testing.T) {
	repo := newFakeRepo()
	alerter := &fakeAlerter{fail: true}
	applier := NewApplier(repo, nil, alerter, testLogger())

	seedTransfer(repo, model.ProviderSquare, "sq_2", model.StatusPending)

	res, err := applier.Apply(context.Background(), event.Normalized{
		Provider:   model.ProviderSquare,
		ExternalID: "sq_2",
		Kind:       model.KindFailed,
	})
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
}

func TestApplierDisputeLifecycle(t *testing.T) {
	repo := newFakeRepo()
	applier := NewApplier(repo, nil, nil, testLogger())

	seedTransfer(repo, model.ProviderStripe, "pi_d", model.StatusPending)
	ctx := context.Background()

	res, err := applier.Apply(ctx, event.Normalized{
		Provider: model.ProviderStripe, ExternalID: "pi_d", Kind: model.KindDelayed,
	})
	require.NoError(t, err)
	require.True(t, res.Transitioned)

	res, err = applier.Apply(ctx, event.Normalized{
		Provider: model.ProviderStripe, ExternalID: "pi_d", Kind: model.KindResolved,
	})
	require.NoError(t, err)
	require.True(t, res.Transitioned)

	stored, _ := repo.FindByExternalReference(ctx, model.ProviderStripe, "pi_d")
	assert.Equal(t, model.StatusResolved, stored.Status)
}
