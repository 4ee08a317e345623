package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var ErrStoreUnavailable = errors.New("events: store unavailable")

// Event is one persisted domain event.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Subscriber receives every event after it is persisted. Subscribers must not
// block; slow work belongs on a queue.
type Subscriber interface {
	Notify(ctx context.Context, evt Event)
}

// Store persists events.
type Store interface {
	Insert(ctx context.Context, topic string, payload json.RawMessage) (Event, error)
	ListRecent(ctx context.Context, topic string, limit int) ([]Event, error)
}

// Bus persists domain events and fans them out to subscribers. Persistence
// comes first: an event that cannot be stored is not delivered anywhere.
type Bus struct {
	Store Store
	Subs  []Subscriber
}

// Emit records the event and notifies every subscriber. Subscriber failures
// are the subscriber's problem; Emit only fails when the event cannot be
// stored.
func (b *Bus) Emit(ctx context.Context, topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	evt, err := b.Store.Insert(ctx, topic, raw)
	if err != nil {
		return fmt.Errorf("persist event %s: %w", topic, err)
	}
	for _, sub := range b.Subs {
		sub.Notify(ctx, evt)
	}
	return nil
}

// Subscribe appends a subscriber. Not safe to call once Emit is in use.
func (b *Bus) Subscribe(sub Subscriber) {
	b.Subs = append(b.Subs, sub)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

func (s *pgStore) Insert(ctx context.Context, topic string, payload json.RawMessage) (Event, error) {
	if s == nil || s.pool == nil {
		return Event{}, ErrStoreUnavailable
	}
	var evt Event
	err := s.pool.QueryRow(ctx, `INSERT INTO domain_events (topic, payload)
VALUES ($1, $2)
RETURNING id, topic, payload, created_at`, topic, payload).
		Scan(&evt.ID, &evt.Topic, &evt.Payload, &evt.CreatedAt)
	return evt, err
}

func (s *pgStore) ListRecent(ctx context.Context, topic string, limit int) ([]Event, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT id, topic, payload, created_at FROM domain_events
WHERE ($1 = '' OR topic = $1)
ORDER BY created_at DESC
LIMIT $2`, topic, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.Topic, &evt.Payload, &evt.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// LogSubscriber writes one line per event. Useful as a default subscriber in
// environments with no webhook endpoints configured.
type LogSubscriber struct {
	Log zerolog.Logger
}

func (l LogSubscriber) Notify(_ context.Context, evt Event) {
	l.Log.Info().Str("topic", evt.Topic).Str("event_id", evt.ID.String()).Msg("domain event")
}
