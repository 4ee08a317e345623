package projects

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

var ErrStoreUnavailable = errors.New("projects: store unavailable")

var ErrNotFound = errors.New("projects: not found")

// ListFilter narrows project listings. Search matches title and client name.
type ListFilter struct {
	Status Status
	Search string
	Limit  int
	Offset int
}

// Store persists projects and their tasks.
type Store interface {
	Insert(ctx context.Context, p Project) (Project, error)
	Update(ctx context.Context, p Project) (Project, error)
	Get(ctx context.Context, id uuid.UUID) (Project, error)
	List(ctx context.Context, f ListFilter) ([]Project, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error

	InsertTask(ctx context.Context, t Task) (Task, error)
	UpdateTask(ctx context.Context, t Task) (Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (Task, error)
	ListTasks(ctx context.Context, projectID uuid.UUID) ([]Task, error)
	MoveTask(ctx context.Context, id uuid.UUID, status TaskStatus, completedAt *time.Time) (Task, error)
	AssignTask(ctx context.Context, id uuid.UUID, userID *uuid.UUID) (Task, error)
	DeleteTask(ctx context.Context, id uuid.UUID) error
}

func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const projectColumns = `id, title, description, client_name, organization, budget, currency,
status, priority, progress, start_date, due_date, notes, created_at, updated_at`

const taskColumns = `id, project_id, title, description, status, priority, assigned_to,
due_date, completed_at, created_at, updated_at`

func (s *pgStore) Insert(ctx context.Context, p Project) (Project, error) {
	if s == nil || s.pool == nil {
		return Project{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO projects
(title, description, client_name, organization, budget, currency, status, priority, progress,
 start_date, due_date, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING `+projectColumns,
		p.Title, p.Description, p.ClientName, p.Organization, p.Budget, p.Currency,
		p.Status, p.Priority, p.Progress, p.StartDate, p.DueDate, p.Notes)
	return scanProject(row)
}

func (s *pgStore) Update(ctx context.Context, p Project) (Project, error) {
	if s == nil || s.pool == nil {
		return Project{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE projects
SET title = $2, description = $3, client_name = $4, organization = $5, budget = $6, currency = $7,
    status = $8, priority = $9, progress = $10, start_date = $11, due_date = $12, notes = $13,
    updated_at = now()
WHERE id = $1
RETURNING `+projectColumns,
		p.ID, p.Title, p.Description, p.ClientName, p.Organization, p.Budget, p.Currency,
		p.Status, p.Priority, p.Progress, p.StartDate, p.DueDate, p.Notes)
	out, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	return out, err
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (Project, error) {
	if s == nil || s.pool == nil {
		return Project{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	out, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	return out, err
}

func (s *pgStore) List(ctx context.Context, f ListFilter) ([]Project, int64, error) {
	if s == nil || s.pool == nil {
		return nil, 0, ErrStoreUnavailable
	}
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if f.Status != "" {
		args = append(args, f.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+q+"%")
		clauses = append(clauses, fmt.Sprintf("(title ILIKE $%d OR client_name ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM projects`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM projects%s ORDER BY due_date ASC, title LIMIT $%d OFFSET $%d`,
		projectColumns, where, len(args)-1, len(args))
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (s *pgStore) Delete(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) InsertTask(ctx context.Context, t Task) (Task, error) {
	if s == nil || s.pool == nil {
		return Task{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO project_tasks
(project_id, title, description, status, priority, assigned_to, due_date)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING `+taskColumns,
		t.ProjectID, t.Title, t.Description, t.Status, t.Priority, t.AssignedTo, t.DueDate)
	return scanTask(row)
}

func (s *pgStore) UpdateTask(ctx context.Context, t Task) (Task, error) {
	if s == nil || s.pool == nil {
		return Task{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE project_tasks
SET title = $2, description = $3, priority = $4, due_date = $5, updated_at = now()
WHERE id = $1
RETURNING `+taskColumns, t.ID, t.Title, t.Description, t.Priority, t.DueDate)
	out, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return out, err
}

func (s *pgStore) GetTask(ctx context.Context, id uuid.UUID) (Task, error) {
	if s == nil || s.pool == nil {
		return Task{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM project_tasks WHERE id = $1`, id)
	out, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return out, err
}

func (s *pgStore) ListTasks(ctx context.Context, projectID uuid.UUID) ([]Task, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+taskColumns+` FROM project_tasks
WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *pgStore) MoveTask(ctx context.Context, id uuid.UUID, status TaskStatus, completedAt *time.Time) (Task, error) {
	if s == nil || s.pool == nil {
		return Task{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE project_tasks
SET status = $2, completed_at = $3, updated_at = now()
WHERE id = $1
RETURNING `+taskColumns, id, status, completedAt)
	out, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return out, err
}

func (s *pgStore) AssignTask(ctx context.Context, id uuid.UUID, userID *uuid.UUID) (Task, error) {
	if s == nil || s.pool == nil {
		return Task{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE project_tasks
SET assigned_to = $2, updated_at = now()
WHERE id = $1
RETURNING `+taskColumns, id, userID)
	out, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return out, err
}

func (s *pgStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM project_tasks WHERE id = $1`, id)
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

func scanProject(row rowScanner) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.ClientName, &p.Organization, &p.Budget,
		&p.Currency, &p.Status, &p.Priority, &p.Progress, &p.StartDate, &p.DueDate, &p.Notes,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.AssignedTo, &t.DueDate, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}
