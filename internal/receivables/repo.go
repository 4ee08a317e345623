package receivables

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var ErrStoreUnavailable = errors.New("receivables: store unavailable")

var ErrNotFound = errors.New("receivables: not found")

// Store provides database accessors for receivables.
type Store interface {
	InsertBatch(ctx context.Context, recs []Receivable) ([]Receivable, error)
	Get(ctx context.Context, id uuid.UUID) (Receivable, error)
	List(ctx context.Context, filter ListFilter) ([]Receivable, int64, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (Receivable, error)
	MarkOverdue(ctx context.Context, asOf time.Time) ([]Receivable, error)
	ListDueWithin(ctx context.Context, from, to time.Time) ([]Receivable, error)
	TouchReminder(ctx context.Context, id uuid.UUID, at time.Time) error
	Summary(ctx context.Context, asOf time.Time, dueSoonUntil time.Time) (Summary, error)
}

// ListFilter narrows receivable listings.
type ListFilter struct {
	Status  Status
	Search  string
	DueFrom time.Time
	DueTo   time.Time
	Limit   int
	Offset  int
}

// Summary holds the dashboard aggregates computed in one round trip.
// CollectionRate is the paid share of everything ever receivable, 0 when
// nothing has been imported yet.
type Summary struct {
	TotalOpen      decimal.Decimal  `json:"totalOpen"`
	TotalOverdue   decimal.Decimal  `json:"totalOverdue"`
	TotalPaid      decimal.Decimal  `json:"totalPaid"`
	TotalDueSoon   decimal.Decimal  `json:"totalDueSoon"`
	CollectionRate float64          `json:"collectionRate"`
	CountByStatus  map[Status]int64 `json:"countByStatus"`
	CountDueSoon   int64            `json:"countDueSoon"`
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const receivableColumns = `id, number, client_name, client_email, client_phone, description, notes,
amount, currency, due_date, status, source_document_id, source_document_number,
source_document_type, installment_index, installment_count, collection_attempts,
paid_at, last_reminder_at, created_at, updated_at`

// InsertBatch persists an import batch inside one transaction so a failed run
// leaves no partial batch behind.
func (s *pgStore) InsertBatch(ctx context.Context, recs []Receivable) ([]Receivable, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if len(recs) == 0 {
		return nil, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	out := make([]Receivable, 0, len(recs))
	for _, rec := range recs {
		row := tx.QueryRow(ctx, `INSERT INTO receivables
(number, client_name, client_email, client_phone, description, notes, amount, currency,
 due_date, status, source_document_id, source_document_number, source_document_type,
 installment_index, installment_count)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
RETURNING `+receivableColumns,
			rec.Number, rec.ClientName, rec.ClientEmail, rec.ClientPhone, rec.Description, rec.Notes,
			rec.Amount, rec.Currency, rec.DueDate, rec.Status, rec.SourceDocumentID,
			rec.SourceDocumentNumber, rec.SourceDocumentType, rec.InstallmentIndex, rec.InstallmentCount)
		inserted, err := scanReceivable(row)
		if err != nil {
			return nil, err
		}
		out = append(out, inserted)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (Receivable, error) {
	if s == nil || s.pool == nil {
		return Receivable{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+receivableColumns+` FROM receivables WHERE id = $1`, id)
	rec, err := scanReceivable(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receivable{}, ErrNotFound
	}
	return rec, err
}

func (s *pgStore) List(ctx context.Context, filter ListFilter) ([]Receivable, int64, error) {
	if s == nil || s.pool == nil {
		return nil, 0, ErrStoreUnavailable
	}
	where, args := buildReceivableWhere(filter)
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM receivables %s ORDER BY due_date ASC, number ASC LIMIT $%d OFFSET $%d`,
		receivableColumns, where, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	recs := make([]Receivable, 0, limit)
	for rows.Next() {
		rec, err := scanReceivable(rows)
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM receivables `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

func (s *pgStore) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `UPDATE receivables SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (Receivable, error) {
	if s == nil || s.pool == nil {
		return Receivable{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE receivables
SET status = $2, paid_at = $3, updated_at = now()
WHERE id = $1
RETURNING `+receivableColumns, id, StatusPaid, paidAt)
	rec, err := scanReceivable(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receivable{}, ErrNotFound
	}
	return rec, err
}

// MarkOverdue flips every open receivable past its due date and returns the
// rows it changed so the caller can notify per receivable.
func (s *pgStore) MarkOverdue(ctx context.Context, asOf time.Time) ([]Receivable, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `UPDATE receivables
SET status = $1, updated_at = now()
WHERE status IN ($2, $3) AND due_date < $4
RETURNING `+receivableColumns, StatusOverdue, StatusNew, StatusPending, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReceivables(rows)
}

func (s *pgStore) ListDueWithin(ctx context.Context, from, to time.Time) ([]Receivable, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+receivableColumns+` FROM receivables
WHERE status IN ($1, $2) AND due_date >= $3 AND due_date <= $4
ORDER BY due_date ASC`, StatusNew, StatusPending, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReceivables(rows)
}

func (s *pgStore) TouchReminder(ctx context.Context, id uuid.UUID, at time.Time) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE receivables
SET last_reminder_at = $2, collection_attempts = collection_attempts + 1, updated_at = now()
WHERE id = $1`, id, at)
	return err
}

func (s *pgStore) Summary(ctx context.Context, asOf time.Time, dueSoonUntil time.Time) (Summary, error) {
	if s == nil || s.pool == nil {
		return Summary{}, ErrStoreUnavailable
	}
	sum := Summary{CountByStatus: make(map[Status]int64)}
	rows, err := s.pool.Query(ctx, `SELECT status, count(*), coalesce(sum(amount), 0) FROM receivables GROUP BY status`)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status Status
			count  int64
			amount decimal.Decimal
		)
		if err := rows.Scan(&status, &count, &amount); err != nil {
			return Summary{}, err
		}
		sum.CountByStatus[status] = count
		switch status {
		case StatusNew, StatusPending:
			sum.TotalOpen = sum.TotalOpen.Add(amount)
		case StatusOverdue:
			sum.TotalOverdue = amount
		case StatusPaid:
			sum.TotalPaid = amount
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}
	sum.CollectionRate = collectionRate(sum)

	err = s.pool.QueryRow(ctx, `SELECT count(*), coalesce(sum(amount), 0) FROM receivables
WHERE status IN ($1, $2) AND due_date >= $3 AND due_date <= $4`,
		StatusNew, StatusPending, asOf, dueSoonUntil).Scan(&sum.CountDueSoon, &sum.TotalDueSoon)
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func collectionRate(sum Summary) float64 {
	total := sum.TotalPaid.Add(sum.TotalOpen).Add(sum.TotalOverdue)
	if total.IsZero() {
		return 0
	}
	rate, _ := sum.TotalPaid.Div(total).Round(4).Float64()
	return rate
}

func buildReceivableWhere(filter ListFilter) (string, []any) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 4)
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		clauses = append(clauses, fmt.Sprintf("(number ILIKE $%d OR client_name ILIKE $%d OR description ILIKE $%d)",
			len(args), len(args), len(args)))
	}
	if !filter.DueFrom.IsZero() {
		args = append(args, filter.DueFrom)
		clauses = append(clauses, fmt.Sprintf("due_date >= $%d", len(args)))
	}
	if !filter.DueTo.IsZero() {
		args = append(args, filter.DueTo)
		clauses = append(clauses, fmt.Sprintf("due_date <= $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceivable(row rowScanner) (Receivable, error) {
	var rec Receivable
	err := row.Scan(&rec.ID, &rec.Number, &rec.ClientName, &rec.ClientEmail, &rec.ClientPhone,
		&rec.Description, &rec.Notes, &rec.Amount, &rec.Currency, &rec.DueDate, &rec.Status,
		&rec.SourceDocumentID, &rec.SourceDocumentNumber, &rec.SourceDocumentType,
		&rec.InstallmentIndex, &rec.InstallmentCount, &rec.CollectionAttempts,
		&rec.PaidAt, &rec.LastReminderAt, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func collectReceivables(rows pgx.Rows) ([]Receivable, error) {
	var recs []Receivable
	for rows.Next() {
		rec, err := scanReceivable(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
