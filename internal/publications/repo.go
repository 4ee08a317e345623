package publications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrStoreUnavailable = errors.New("publications: store unavailable")

var ErrNotFound = errors.New("publications: not found")

// ListFilter narrows List results.
type ListFilter struct {
	Status     Status
	AssignedTo *uuid.UUID
	Search     string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// Store persists publications.
type Store interface {
	Insert(ctx context.Context, p Publication) (Publication, error)
	Get(ctx context.Context, id uuid.UUID) (Publication, error)
	List(ctx context.Context, f ListFilter) ([]Publication, int64, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
	Assign(ctx context.Context, id uuid.UUID, userID uuid.UUID, at time.Time) error
	Finish(ctx context.Context, id uuid.UUID, at time.Time) error
	Discard(ctx context.Context, id uuid.UUID, reason string) error
}

func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const publicationColumns = `id, case_number, court, journal, published_at, content, status,
assigned_to, assigned_at, finished_at, coalesce(discard_reason, ''), created_at, updated_at`

func (s *pgStore) Insert(ctx context.Context, p Publication) (Publication, error) {
	if s == nil || s.pool == nil {
		return Publication{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO publications (case_number, court, journal, published_at, content, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+publicationColumns,
		p.CaseNumber, p.Court, p.Journal, p.PublishedAt, p.Content, StatusNova)
	return scanPublication(row)
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (Publication, error) {
	if s == nil || s.pool == nil {
		return Publication{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+publicationColumns+` FROM publications WHERE id = $1`, id)
	p, err := scanPublication(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Publication{}, ErrNotFound
	}
	return p, err
}

func (s *pgStore) List(ctx context.Context, f ListFilter) ([]Publication, int64, error) {
	if s == nil || s.pool == nil {
		return nil, 0, ErrStoreUnavailable
	}
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.AssignedTo != nil {
		args = append(args, *f.AssignedTo)
		conds = append(conds, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+q+"%")
		conds = append(conds, fmt.Sprintf("(case_number ILIKE $%d OR content ILIKE $%d)", len(args), len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		conds = append(conds, fmt.Sprintf("published_at >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		conds = append(conds, fmt.Sprintf("published_at <= $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM publications`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM publications%s ORDER BY published_at DESC LIMIT $%d OFFSET $%d`,
		publicationColumns, where, len(args)-1, len(args))
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Publication
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (s *pgStore) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `UPDATE publications SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) Assign(ctx context.Context, id uuid.UUID, userID uuid.UUID, at time.Time) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `UPDATE publications
SET status = $2, assigned_to = $3, assigned_at = $4, updated_at = now()
WHERE id = $1`, id, StatusAtribuida, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) Finish(ctx context.Context, id uuid.UUID, at time.Time) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `UPDATE publications
SET status = $2, finished_at = $3, updated_at = now()
WHERE id = $1`, id, StatusFinalizada, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) Discard(ctx context.Context, id uuid.UUID, reason string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `UPDATE publications
SET status = $2, discard_reason = $3, updated_at = now()
WHERE id = $1`, id, StatusDescartada, reason)
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

func scanPublication(row rowScanner) (Publication, error) {
	var p Publication
	err := row.Scan(&p.ID, &p.CaseNumber, &p.Court, &p.Journal, &p.PublishedAt, &p.Content, &p.Status,
		&p.AssignedTo, &p.AssignedAt, &p.FinishedAt, &p.DiscardReason, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
