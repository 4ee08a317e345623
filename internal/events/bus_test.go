package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lexpraxis/backend-lexis/internal/events"
)

type memStore struct {
	mu     sync.Mutex
	events []events.Event
	fail   bool
}

func (m *memStore) Insert(_ context.Context, topic string, payload json.RawMessage) (events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return events.Event{}, errors.New("boom")
	}
	evt := events.Event{ID: uuid.New(), Topic: topic, Payload: payload, CreatedAt: time.Now().UTC()}
	m.events = append(m.events, evt)
	return evt, nil
}

func (m *memStore) ListRecent(_ context.Context, topic string, _ int) ([]events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.Event
	for _, evt := range m.events {
		if topic == "" || evt.Topic == topic {
			out = append(out, evt)
		}
	}
	return out, nil
}

type memSub struct {
	mu   sync.Mutex
	seen []events.Event
}

func (m *memSub) Notify(_ context.Context, evt events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, evt)
}

func TestBusPersistsThenFansOut(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	first := &memSub{}
	second := &memSub{}
	bus := &events.Bus{Store: store}
	bus.Subscribe(first)
	bus.Subscribe(second)

	err := bus.Emit(context.Background(), events.TopicReceivablePaid, map[string]string{"number": "REC-0001"})
	require.NoError(t, err)

	require.Len(t, store.events, 1)
	require.Len(t, first.seen, 1)
	require.Len(t, second.seen, 1)
	require.Equal(t, events.TopicReceivablePaid, first.seen[0].Topic)
	require.JSONEq(t, `{"number":"REC-0001"}`, string(first.seen[0].Payload))
}

func TestBusDoesNotDeliverUnstoredEvents(t *testing.T) {
	t.Parallel()

	store := &memStore{fail: true}
	sub := &memSub{}
	bus := &events.Bus{Store: store, Subs: []events.Subscriber{sub}}

	err := bus.Emit(context.Background(), events.TopicDocumentSent, map[string]string{})
	require.Error(t, err)
	require.Empty(t, sub.seen)
}

func TestKnownTopics(t *testing.T) {
	t.Parallel()

	require.True(t, events.Known(events.TopicReceivableImported))
	require.True(t, events.Known(events.TopicReceivableDueSoon))
	require.False(t, events.Known("receivable.unknown"))
}
