package outbox

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

	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
)

type fakeStore struct {
	mu     sync.Mutex
	events []Event
	sent   []int64
	failed map[int64]string
}

func (s *fakeStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.events
	s.events = nil
	return batch, nil
}

func (s *fakeStore) MarkSent(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, ids...)
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = map[int64]string{}
	}
	s.failed[id] = errMsg
	return nil
}

type fakePublisher struct {
	fail map[string]bool
	got  []eventbus.Message
}

func (p *fakePublisher) PublishMessage(ctx context.Context, msg eventbus.Message) error {
	if p.fail[msg.ID] {
		return errors.New("broker down")
	}
	p.got = append(p.got, msg)
	return nil
}

func TestRelayRunOnce(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &fakeStore{events: []Event{
		{ID: 1, MessageID: "m-1", AggregateID: "o-1", Type: "order.paid", Payload: []byte(`{}`)},
		{ID: 2, MessageID: "m-2", AggregateID: "o-2", Type: "order.paid", Payload: []byte(`{}`)},
	}}
	pub := &fakePublisher{fail: map[string]bool{"m-2": true}}
	relay := NewRelay(log, store, NewDispatcher(log, pub), "test-relay")

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{1}, store.sent)
	assert.Equal(t, "broker down", store.failed[2])
	require.Len(t, pub.got, 1)
	assert.Equal(t, "m-1", pub.got[0].ID)
	assert.Equal(t, "order.paid", pub.got[0].RoutingKey)
}

func TestRelayRunOnceEmpty(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	relay := NewRelay(log, &fakeStore{}, NewDispatcher(log, &fakePublisher{}), "test-relay")
	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEventMessageRoundTrip(t *testing.T) {
	msg, err := eventbus.NewMessage(context.Background(), "order.cancelled", "o-9", map[string]string{"k": "v"})
	require.NoError(t, err)

	ev := FromMessage("order", msg)
	assert.Equal(t, StatusPending, ev.Status)
	assert.Equal(t, "order", ev.AggregateType)

	back := ev.Message()
	assert.Equal(t, msg.ID, back.ID)
	assert.Equal(t, msg.RoutingKey, back.RoutingKey)
	assert.Equal(t, msg.AggregateID, back.AggregateID)
	assert.JSONEq(t, string(msg.Payload), string(back.Payload))
}
