package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
)

func TestInMemoryStreamPublish(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStream()
	msg := TransitionMessage{
		Provider:   model.ProviderCoinbase,
		TransferID: "t1",
		ExternalID: "charge_1",
		Kind:       model.KindSettled,
		NewStatus:  model.StatusCompleted,
		OccurredAt: time.Now(),
	}

	require.NoError(t, s.Publish(context.Background(), msg))
	require.NoError(t, s.Publish(context.Background(), msg))

	got := s.Messages()
	assert.Len(t, got, 2)
	assert.Equal(t, "charge_1", got[0].ExternalID)

	// Messages returns a copy; mutating it must not affect the stream.
	got[0].ExternalID = "mutated"
	assert.Equal(t, "charge_1", s.Messages()[0].ExternalID)

	assert.NoError(t, s.Close())
}

func TestNewStreamRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := NewStream("not-a-url", "transitions")
	assert.Error(t, err)
}
