package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrStoreUnavailable = errors.New("crm: store unavailable")

var ErrNotFound = errors.New("crm: client not found")

// ListFilter narrows List results. Search matches name, document and email.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

// Store persists clients.
type Store interface {
	Insert(ctx context.Context, c Client) (Client, error)
	Update(ctx context.Context, c Client) (Client, error)
	Get(ctx context.Context, id uuid.UUID) (Client, error)
	List(ctx context.Context, f ListFilter) ([]Client, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const clientColumns = `id, name, document, email, phone, whatsapp, address, notes, created_at, updated_at`

func (s *pgStore) Insert(ctx context.Context, c Client) (Client, error) {
	if s == nil || s.pool == nil {
		return Client{}, ErrStoreUnavailable
	}
	addr, err := json.Marshal(c.Address)
	if err != nil {
		return Client{}, fmt.Errorf("encode address: %w", err)
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO clients (name, document, email, phone, whatsapp, address, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+clientColumns, c.Name, c.Document, c.Email, c.Phone, c.WhatsApp, addr, c.Notes)
	return scanClient(row)
}

func (s *pgStore) Update(ctx context.Context, c Client) (Client, error) {
	if s == nil || s.pool == nil {
		return Client{}, ErrStoreUnavailable
	}
	addr, err := json.Marshal(c.Address)
	if err != nil {
		return Client{}, fmt.Errorf("encode address: %w", err)
	}
	row := s.pool.QueryRow(ctx, `UPDATE clients
SET name = $2, document = $3, email = $4, phone = $5, whatsapp = $6, address = $7, notes = $8, updated_at = now()
WHERE id = $1
RETURNING `+clientColumns, c.ID, c.Name, c.Document, c.Email, c.Phone, c.WhatsApp, addr, c.Notes)
	out, err := scanClient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, ErrNotFound
	}
	return out, err
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (Client, error) {
	if s == nil || s.pool == nil {
		return Client{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	out, err := scanClient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, ErrNotFound
	}
	return out, err
}

func (s *pgStore) List(ctx context.Context, f ListFilter) ([]Client, int64, error) {
	if s == nil || s.pool == nil {
		return nil, 0, ErrStoreUnavailable
	}
	where := ""
	args := []any{}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+q+"%")
		where = fmt.Sprintf(` WHERE name ILIKE $%d OR document ILIKE $%d OR email ILIKE $%d`, len(args), len(args), len(args))
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM clients`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM clients%s ORDER BY name LIMIT $%d OFFSET $%d`,
		clientColumns, where, len(args)-1, len(args))
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (s *pgStore) Delete(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (Client, error) {
	var (
		c    Client
		addr []byte
	)
	err := row.Scan(&c.ID, &c.Name, &c.Document, &c.Email, &c.Phone, &c.WhatsApp, &addr, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Client{}, err
	}
	if len(addr) > 0 {
		if err := json.Unmarshal(addr, &c.Address); err != nil {
			return Client{}, fmt.Errorf("decode address: %w", err)
		}
	}
	return c, nil
}
