package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrStoreUnavailable indicates the document store dependency is not configured.
var ErrStoreUnavailable = errors.New("billing: store unavailable")

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("billing: document not found")

// Store provides database accessors for billing documents.
type Store interface {
	Insert(ctx context.Context, doc Document) (Document, error)
	Replace(ctx context.Context, doc Document) (Document, error)
	Get(ctx context.Context, id uuid.UUID) (Document, error)
	List(ctx context.Context, filter ListFilter) ([]Document, int64, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]Document, error)
	SetStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error
	MarkEmailSent(ctx context.Context, id uuid.UUID) error
	NextSequence(ctx context.Context, docType DocumentType) (int64, error)
}

// ListFilter narrows document listings.
type ListFilter struct {
	Type   DocumentType
	Status DocumentStatus
	Search string
	Limit  int
	Offset int
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const documentColumns = `id, type, number, title, doc_date, due_date, currency, status,
sender, receiver, items, discount, fee, tax,
subtotal, discount_amount, fee_amount, tax_amount, total,
notes, email_sent, created_by, modified_by, created_at, updated_at`

// Insert persists a new document. The caller has already computed totals.
func (s *pgStore) Insert(ctx context.Context, doc Document) (Document, error) {
	if s == nil || s.pool == nil {
		return Document{}, ErrStoreUnavailable
	}
	sender, receiver, items, discount, fee, tax, err := encodeDocumentJSON(doc)
	if err != nil {
		return Document{}, err
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO billing_documents
(type, number, title, doc_date, due_date, currency, status, sender, receiver, items, discount, fee, tax,
 subtotal, discount_amount, fee_amount, tax_amount, total, notes, email_sent, created_by, modified_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
RETURNING `+documentColumns,
		doc.Type, doc.Number, doc.Title, doc.Date, doc.DueDate, doc.Currency, doc.Status,
		sender, receiver, items, discount, fee, tax,
		doc.Totals.Subtotal, doc.Totals.DiscountAmount, doc.Totals.FeeAmount, doc.Totals.TaxAmount, doc.Totals.Total,
		doc.Notes, doc.EmailSent, doc.CreatedBy, doc.ModifiedBy)
	return scanDocument(row)
}

// Replace overwrites every mutable field of the document in one statement,
// honouring the replace-on-submit contract: items and adjustments are swapped
// atomically, never patched.
func (s *pgStore) Replace(ctx context.Context, doc Document) (Document, error) {
	if s == nil || s.pool == nil {
		return Document{}, ErrStoreUnavailable
	}
	sender, receiver, items, discount, fee, tax, err := encodeDocumentJSON(doc)
	if err != nil {
		return Document{}, err
	}
	row := s.pool.QueryRow(ctx, `UPDATE billing_documents SET
title = $2, doc_date = $3, due_date = $4, currency = $5, status = $6,
sender = $7, receiver = $8, items = $9, discount = $10, fee = $11, tax = $12,
subtotal = $13, discount_amount = $14, fee_amount = $15, tax_amount = $16, total = $17,
notes = $18, modified_by = $19, updated_at = now()
WHERE id = $1
RETURNING `+documentColumns,
		doc.ID, doc.Title, doc.Date, doc.DueDate, doc.Currency, doc.Status,
		sender, receiver, items, discount, fee, tax,
		doc.Totals.Subtotal, doc.Totals.DiscountAmount, doc.Totals.FeeAmount, doc.Totals.TaxAmount, doc.Totals.Total,
		doc.Notes, doc.ModifiedBy)
	out, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return out, err
}

// Get fetches a document by id.
func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (Document, error) {
	if s == nil || s.pool == nil {
		return Document{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM billing_documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return doc, err
}

// List fetches documents matching the filter plus the unpaged total count.
func (s *pgStore) List(ctx context.Context, filter ListFilter) ([]Document, int64, error) {
	if s == nil || s.pool == nil {
		return nil, 0, ErrStoreUnavailable
	}
	where, args := buildDocumentWhere(filter)
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM billing_documents %s ORDER BY doc_date DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		documentColumns, where, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	docs := make([]Document, 0, limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM billing_documents `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// ListByIDs fetches the documents with the given ids, preserving no order.
func (s *pgStore) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]Document, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+documentColumns+` FROM billing_documents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]Document, 0, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SetStatus updates only the lifecycle status.
func (s *pgStore) SetStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `UPDATE billing_documents SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkEmailSent flags that the document was emailed at least once.
func (s *pgStore) MarkEmailSent(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE billing_documents SET email_sent = true, updated_at = now() WHERE id = $1`, id)
	return err
}

// NextSequence increments and returns the per-type document number sequence.
func (s *pgStore) NextSequence(ctx context.Context, docType DocumentType) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	var seq int64
	err := s.pool.QueryRow(ctx, `INSERT INTO billing_sequences (doc_type, current)
VALUES ($1, 1)
ON CONFLICT (doc_type) DO UPDATE SET current = billing_sequences.current + 1
RETURNING current`, docType).Scan(&seq)
	return seq, err
}

func buildDocumentWhere(filter ListFilter) (string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if filter.Type != "" {
		args = append(args, filter.Type)
		clauses = append(clauses, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		clauses = append(clauses, fmt.Sprintf("(number ILIKE $%d OR title ILIKE $%d)", len(args), len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func encodeDocumentJSON(doc Document) (sender, receiver, items, discount, fee, tax []byte, err error) {
	if sender, err = json.Marshal(doc.Sender); err != nil {
		return
	}
	if receiver, err = json.Marshal(doc.Receiver); err != nil {
		return
	}
	if doc.Items == nil {
		doc.Items = []LineItem{}
	}
	if items, err = json.Marshal(doc.Items); err != nil {
		return
	}
	if discount, err = json.Marshal(doc.Discount); err != nil {
		return
	}
	if fee, err = json.Marshal(doc.Fee); err != nil {
		return
	}
	tax, err = json.Marshal(doc.Tax)
	return
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var (
		doc                                 Document
		sender, receiver, items             []byte
		discount, fee, tax                  []byte
		subtotal, discountAmt, feeAmt       decimal.Decimal
		taxAmt, total                       decimal.Decimal
		createdAt, updatedAt                time.Time
	)
	err := row.Scan(&doc.ID, &doc.Type, &doc.Number, &doc.Title, &doc.Date, &doc.DueDate, &doc.Currency, &doc.Status,
		&sender, &receiver, &items, &discount, &fee, &tax,
		&subtotal, &discountAmt, &feeAmt, &taxAmt, &total,
		&doc.Notes, &doc.EmailSent, &doc.CreatedBy, &doc.ModifiedBy, &createdAt, &updatedAt)
	if err != nil {
		return Document{}, err
	}
	if err := json.Unmarshal(sender, &doc.Sender); err != nil {
		return Document{}, fmt.Errorf("decode sender: %w", err)
	}
	if err := json.Unmarshal(receiver, &doc.Receiver); err != nil {
		return Document{}, fmt.Errorf("decode receiver: %w", err)
	}
	if err := json.Unmarshal(items, &doc.Items); err != nil {
		return Document{}, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal(discount, &doc.Discount); err != nil {
		return Document{}, fmt.Errorf("decode discount: %w", err)
	}
	if err := json.Unmarshal(fee, &doc.Fee); err != nil {
		return Document{}, fmt.Errorf("decode fee: %w", err)
	}
	if err := json.Unmarshal(tax, &doc.Tax); err != nil {
		return Document{}, fmt.Errorf("decode tax: %w", err)
	}
	doc.Totals = Totals{Subtotal: subtotal, DiscountAmount: discountAmt, FeeAmount: feeAmt, TaxAmount: taxAmt, Total: total}
	doc.CreatedAt = createdAt
	doc.UpdatedAt = updatedAt
	return doc, nil
}
