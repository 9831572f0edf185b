package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
)

// TransitionMessage is one applied status transition, published for
// downstream consumers (notification fan-out, analytics).
type TransitionMessage struct {
	Provider   model.Provider
	TransferID string
	ExternalID string
	Kind       model.EventKind
	NewStatus  model.TransferStatus
	OccurredAt time.Time
}

// TransitionPublisher publishes applied transitions. A publish failure must
// never fail the reconciliation that produced it.
type TransitionPublisher interface {
	Publish(ctx context.Context, msg TransitionMessage) error
	Close() error
}

// Stream publishes transitions onto a Redis stream.
type Stream struct {
	client *redis.Client
	stream string
}

func NewStream(url, stream string) (*Stream, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Stream{client: client, stream: stream}, nil
}

func (s *Stream) Publish(ctx context.Context, msg TransitionMessage) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"provider":    string(msg.Provider),
			"transfer_id": msg.TransferID,
			"external_id": msg.ExternalID,
			"kind":        string(msg.Kind),
			"new_status":  string(msg.NewStatus),
			"occurred_at": msg.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd transition: %w", err)
	}
	return nil
}

func (s *Stream) Close() error {
	return s.client.Close()
}

// InMemoryStream is a process-local publisher for tests and single-process
// deployments where Redis is not configured.
type InMemoryStream struct {
	mu       sync.Mutex
	messages []TransitionMessage
}

func NewInMemoryStream() *InMemoryStream {
	return &InMemoryStream{}
}

func (s *InMemoryStream) Publish(_ context.Context, msg TransitionMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns a copy of everything published so far.
func (s *InMemoryStream) Messages() []TransitionMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TransitionMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *InMemoryStream) Close() error {
	return nil
}
