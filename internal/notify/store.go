package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexpraxis/backend-lexis/internal/events"
)

var ErrStoreUnavailable = errors.New("notify: store unavailable")

var ErrNotFound = errors.New("notify: not found")

// Store defines the persistence operations webhook management requires.
type Store interface {
	CreateEndpoint(ctx context.Context, url, secret string, topics []string) (Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error)
	GetEndpoint(ctx context.Context, id uuid.UUID) (Endpoint, error)
	ListEndpoints(ctx context.Context) ([]Endpoint, error)
	DeleteEndpoint(ctx context.Context, id uuid.UUID) error
	ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]Endpoint, error)

	EnqueueDelivery(ctx context.Context, endpointID, eventID uuid.UUID, maxAttempt int) (Delivery, error)
	DequeueDueDeliveries(ctx context.Context, limit int) ([]Delivery, error)
	MarkDelivering(ctx context.Context, id uuid.UUID) error
	MarkDelivered(ctx context.Context, id uuid.UUID, status int, body string) error
	MarkFailedWithBackoff(ctx context.Context, id uuid.UUID, delay time.Duration, reason string) error
	MoveToDLQ(ctx context.Context, id uuid.UUID, reason string) error
	GetDelivery(ctx context.Context, id uuid.UUID) (Delivery, error)
	ResetDeliveryForReplay(ctx context.Context, id uuid.UUID) (Delivery, error)
	ListDeliveries(ctx context.Context, endpointID uuid.UUID, limit int) ([]Delivery, error)
	ListDLQ(ctx context.Context, limit int) ([]DLQEntry, error)

	GetEvent(ctx context.Context, id uuid.UUID) (events.Event, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const endpointColumns = `id, url, secret, topics, active, created_at, updated_at`

const deliveryColumns = `id, endpoint_id, event_id, state, attempt, max_attempt, next_run_at,
coalesce(last_error, ''), coalesce(response_status, 0), coalesce(response_body, ''), created_at, updated_at`

func (s *pgStore) CreateEndpoint(ctx context.Context, url, secret string, topics []string) (Endpoint, error) {
	if s == nil || s.pool == nil {
		return Endpoint{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO webhook_endpoints (url, secret, topics, active)
VALUES ($1, $2, $3, true)
RETURNING `+endpointColumns, url, secret, topics)
	return scanEndpoint(row)
}

func (s *pgStore) UpdateEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error) {
	if s == nil || s.pool == nil {
		return Endpoint{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE webhook_endpoints
SET url = $2, topics = $3, active = $4, updated_at = now()
WHERE id = $1
RETURNING `+endpointColumns, ep.ID, ep.URL, ep.Topics, ep.Active)
	out, err := scanEndpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Endpoint{}, ErrNotFound
	}
	return out, err
}

func (s *pgStore) GetEndpoint(ctx context.Context, id uuid.UUID) (Endpoint, error) {
	if s == nil || s.pool == nil {
		return Endpoint{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1`, id)
	ep, err := scanEndpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Endpoint{}, ErrNotFound
	}
	return ep, err
}

func (s *pgStore) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEndpoints(rows)
}

func (s *pgStore) DeleteEndpoint(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]Endpoint, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints
WHERE active AND ($1 = ANY(topics) OR '*' = ANY(topics))`, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEndpoints(rows)
}

func (s *pgStore) EnqueueDelivery(ctx context.Context, endpointID, eventID uuid.UUID, maxAttempt int) (Delivery, error) {
	if s == nil || s.pool == nil {
		return Delivery{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO webhook_deliveries (endpoint_id, event_id, state, max_attempt, next_run_at)
VALUES ($1, $2, $3, $4, now())
RETURNING `+deliveryColumns, endpointID, eventID, DeliveryPending, maxAttempt)
	return scanDelivery(row)
}

// DequeueDueDeliveries claims due rows with SKIP LOCKED so concurrent workers
// never double-claim a delivery.
func (s *pgStore) DequeueDueDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.pool.Query(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries
WHERE state IN ($1, $2) AND next_run_at <= now()
ORDER BY next_run_at
LIMIT $3
FOR UPDATE SKIP LOCKED`, DeliveryPending, DeliveryFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

func (s *pgStore) MarkDelivering(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE webhook_deliveries
SET state = $2, attempt = attempt + 1, updated_at = now()
WHERE id = $1`, id, DeliveryDelivering)
	return err
}

func (s *pgStore) MarkDelivered(ctx context.Context, id uuid.UUID, status int, body string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE webhook_deliveries
SET state = $2, response_status = $3, response_body = $4, updated_at = now()
WHERE id = $1`, id, DeliveryDelivered, status, body)
	return err
}

func (s *pgStore) MarkFailedWithBackoff(ctx context.Context, id uuid.UUID, delay time.Duration, reason string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE webhook_deliveries
SET state = $2, last_error = $3, next_run_at = now() + $4::interval, updated_at = now()
WHERE id = $1`, id, DeliveryFailed, reason, delay.String())
	return err
}

func (s *pgStore) MoveToDLQ(ctx context.Context, id uuid.UUID, reason string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `UPDATE webhook_deliveries
SET state = $2, last_error = $3, updated_at = now()
WHERE id = $1`, id, DeliveryDead, reason); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO webhook_dlq (delivery_id, reason) VALUES ($1, $2)`, id, reason); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *pgStore) GetDelivery(ctx context.Context, id uuid.UUID) (Delivery, error) {
	if s == nil || s.pool == nil {
		return Delivery{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = $1`, id)
	del, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, ErrNotFound
	}
	return del, err
}

// ResetDeliveryForReplay re-arms a dead delivery and clears its DLQ entry.
func (s *pgStore) ResetDeliveryForReplay(ctx context.Context, id uuid.UUID) (Delivery, error) {
	if s == nil || s.pool == nil {
		return Delivery{}, ErrStoreUnavailable
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Delivery{}, err
	}
	defer tx.Rollback(ctx)
	row := tx.QueryRow(ctx, `UPDATE webhook_deliveries
SET state = $2, attempt = 0, last_error = NULL, next_run_at = now(), updated_at = now()
WHERE id = $1
RETURNING `+deliveryColumns, id, DeliveryPending)
	del, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, ErrNotFound
	}
	if err != nil {
		return Delivery{}, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM webhook_dlq WHERE delivery_id = $1`, id); err != nil {
		return Delivery{}, err
	}
	return del, tx.Commit(ctx)
}

func (s *pgStore) ListDeliveries(ctx context.Context, endpointID uuid.UUID, limit int) ([]Delivery, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries
WHERE ($1 = '00000000-0000-0000-0000-000000000000'::uuid OR endpoint_id = $1)
ORDER BY updated_at DESC
LIMIT $2`, endpointID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

func (s *pgStore) ListDLQ(ctx context.Context, limit int) ([]DLQEntry, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT id, delivery_id, reason, created_at FROM webhook_dlq
ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DLQEntry
	for rows.Next() {
		var entry DLQEntry
		if err := rows.Scan(&entry.ID, &entry.DeliveryID, &entry.Reason, &entry.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *pgStore) GetEvent(ctx context.Context, id uuid.UUID) (events.Event, error) {
	if s == nil || s.pool == nil {
		return events.Event{}, ErrStoreUnavailable
	}
	var evt events.Event
	err := s.pool.QueryRow(ctx, `SELECT id, topic, payload, created_at FROM domain_events WHERE id = $1`, id).
		Scan(&evt.ID, &evt.Topic, &evt.Payload, &evt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return events.Event{}, ErrNotFound
	}
	return evt, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row rowScanner) (Endpoint, error) {
	var ep Endpoint
	err := row.Scan(&ep.ID, &ep.URL, &ep.Secret, &ep.Topics, &ep.Active, &ep.CreatedAt, &ep.UpdatedAt)
	return ep, err
}

func scanDelivery(row rowScanner) (Delivery, error) {
	var del Delivery
	err := row.Scan(&del.ID, &del.EndpointID, &del.EventID, &del.State, &del.Attempt, &del.MaxAttempt,
		&del.NextRunAt, &del.LastError, &del.ResponseStatus, &del.ResponseBody, &del.CreatedAt, &del.UpdatedAt)
	return del, err
}

func collectEndpoints(rows pgx.Rows) ([]Endpoint, error) {
	var out []Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func collectDeliveries(rows pgx.Rows) ([]Delivery, error) {
	var out []Delivery
	for rows.Next() {
		del, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, del)
	}
	return out, rows.Err()
}
