package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lexpraxis/backend-lexis/internal/common"
	"github.com/lexpraxis/backend-lexis/internal/events"
)

// DocumentInput is the full submitted state of a document. Edits resubmit the
// entire payload: line items and adjustments are replaced wholesale, never
// merged with what is stored.
type DocumentInput struct {
	Type     DocumentType    `json:"type" validate:"required,oneof=invoice estimate"`
	Title    string          `json:"title" validate:"required,max=200"`
	Date     time.Time       `json:"date" validate:"required"`
	DueDate  time.Time       `json:"dueDate" validate:"required"`
	Currency Currency        `json:"currency" validate:"required,oneof=BRL USD EUR"`
	Status   DocumentStatus  `json:"status" validate:"omitempty,oneof=DRAFT SENT PENDING PAID OVERDUE"`
	Sender   Party           `json:"sender" validate:"required"`
	Receiver Party           `json:"receiver" validate:"required"`
	Items    []LineItemInput `json:"items" validate:"dive"`
	Discount AdjustmentInput `json:"discount"`
	Fee      AdjustmentInput `json:"fee"`
	Tax      AdjustmentInput `json:"tax"`
	Notes    string          `json:"notes" validate:"max=2000"`
}

// LineItemInput is one submitted line item. Amount is never accepted from the
// client; it is always recomputed server side.
type LineItemInput struct {
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Tax         decimal.Decimal `json:"tax"`
	TaxType     AdjustmentType  `json:"taxType" validate:"omitempty,oneof=percentage fixed"`
}

// AdjustmentInput is a submitted document-level adjustment.
type AdjustmentInput struct {
	Value decimal.Decimal `json:"value"`
	Type  AdjustmentType  `json:"type" validate:"omitempty,oneof=percentage fixed"`
}

// SendInput describes an email dispatch of a document.
type SendInput struct {
	To      []string `json:"to" validate:"required,min=1,dive,email"`
	CC      []string `json:"cc" validate:"omitempty,dive,email"`
	Subject string   `json:"subject" validate:"max=300"`
	Message string   `json:"message" validate:"max=5000"`
}

// Emitter publishes domain events. Satisfied by events.Bus.
type Emitter interface {
	Emit(ctx context.Context, topic string, payload any) error
}

// Service carries billing document use cases.
type Service struct {
	Store  Store
	Email  common.EmailSender
	Events Emitter
	From   string
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Create validates a submission, computes totals and persists a new document.
func (s *Service) Create(ctx context.Context, in DocumentInput, userID uuid.UUID) (Document, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Document{}, err
	}
	doc, err := s.assemble(in)
	if err != nil {
		return Document{}, err
	}
	seq, err := s.Store.NextSequence(ctx, doc.Type)
	if err != nil {
		return Document{}, fmt.Errorf("allocate document number: %w", err)
	}
	doc.Number = FormatNumber(doc.Type, seq)
	doc.CreatedBy = userID
	doc.ModifiedBy = userID
	return s.Store.Insert(ctx, doc)
}

// Update replaces the document with the submitted state. Items, adjustments
// and totals are swapped in a single statement so no reader can observe a
// partially edited document.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in DocumentInput, userID uuid.UUID) (Document, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Document{}, err
	}
	current, err := s.Store.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if in.Type != current.Type {
		return Document{}, common.NewValidationError("document type cannot change after creation", nil)
	}
	doc, err := s.assemble(in)
	if err != nil {
		return Document{}, err
	}
	doc.ID = id
	doc.Number = current.Number
	doc.CreatedBy = current.CreatedBy
	doc.ModifiedBy = userID
	return s.Store.Replace(ctx, doc)
}

// Get returns a single document.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Document, error) {
	return s.Store.Get(ctx, id)
}

// List returns documents matching the filter plus the unpaged count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Document, int64, error) {
	return s.Store.List(ctx, filter)
}

// SetStatus moves a document through its lifecycle.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) (Document, error) {
	switch status {
	case StatusDraft, StatusSent, StatusPending, StatusPaid, StatusOverdue:
	default:
		return Document{}, common.NewValidationError("unknown document status", nil)
	}
	if err := s.Store.SetStatus(ctx, id, status); err != nil {
		return Document{}, err
	}
	return s.Store.Get(ctx, id)
}

// Send emails the document to the given recipients and records the dispatch.
func (s *Service) Send(ctx context.Context, id uuid.UUID, in SendInput) (Document, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Document{}, err
	}
	doc, err := s.Store.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	subject := in.Subject
	if subject == "" {
		label := "Fatura"
		if doc.Type == TypeEstimate {
			label = "Orcamento"
		}
		subject = fmt.Sprintf("%s %s", label, doc.Number)
	}
	msg := common.EmailMessage{
		From:     s.From,
		To:       in.To,
		CC:       in.CC,
		Subject:  subject,
		HTMLBody: renderDocumentEmail(doc, in.Message),
	}
	if s.Email != nil {
		if err := s.Email.Send(msg); err != nil {
			return Document{}, fmt.Errorf("send document email: %w", err)
		}
	}
	if err := s.Store.MarkEmailSent(ctx, id); err != nil {
		return Document{}, err
	}
	if doc.Status == StatusDraft {
		if err := s.Store.SetStatus(ctx, id, StatusSent); err != nil {
			return Document{}, err
		}
	}
	if s.Events != nil {
		_ = s.Events.Emit(ctx, events.TopicDocumentSent, map[string]any{
			"documentId": doc.ID,
			"number":     doc.Number,
			"recipients": in.To,
		})
	}
	return s.Store.Get(ctx, id)
}

// assemble builds the persisted aggregate from a submission, recomputing every
// derived amount from scratch.
func (s *Service) assemble(in DocumentInput) (Document, error) {
	for i, item := range in.Items {
		if item.Quantity.IsNegative() {
			return Document{}, common.NewValidationError("line item quantity cannot be negative",
				[]common.FieldError{{Field: fmt.Sprintf("items[%d].quantity", i), Rule: "gte"}})
		}
		if item.Rate.IsNegative() {
			return Document{}, common.NewValidationError("line item rate cannot be negative",
				[]common.FieldError{{Field: fmt.Sprintf("items[%d].rate", i), Rule: "gte"}})
		}
	}
	items := make([]LineItem, len(in.Items))
	for i, item := range in.Items {
		taxType := item.TaxType
		if taxType == "" {
			taxType = AdjustmentPercentage
		}
		items[i] = LineItem{
			ID:          uuid.New().String(),
			Description: item.Description,
			Quantity:    item.Quantity,
			Rate:        item.Rate,
			Tax:         item.Tax,
			TaxType:     taxType,
			Amount:      ItemAmount(item.Quantity, item.Rate, item.Tax, taxType),
		}
	}
	discount := normalizeAdjustment(in.Discount)
	fee := normalizeAdjustment(in.Fee)
	tax := normalizeAdjustment(in.Tax)

	status := in.Status
	if status == "" {
		status = StatusDraft
	}
	return Document{
		Type:     in.Type,
		Title:    in.Title,
		Date:     in.Date,
		DueDate:  in.DueDate,
		Currency: in.Currency,
		Status:   status,
		Sender:   in.Sender,
		Receiver: in.Receiver,
		Items:    items,
		Discount: discount,
		Fee:      fee,
		Tax:      tax,
		Totals:   Resolve(Subtotal(items), discount, fee, tax),
		Notes:    in.Notes,
	}, nil
}

func normalizeAdjustment(in AdjustmentInput) AdjustmentSpec {
	t := in.Type
	if t == "" {
		t = AdjustmentPercentage
	}
	return AdjustmentSpec{Value: in.Value, Type: t}
}

// FormatNumber renders the human document number, e.g. INV-0007.
func FormatNumber(docType DocumentType, seq int64) string {
	prefix := "INV"
	if docType == TypeEstimate {
		prefix = "EST"
	}
	return fmt.Sprintf("%s-%04d", prefix, seq)
}

func renderDocumentEmail(doc Document, message string) string {
	var b strings.Builder
	b.WriteString("<h2>" + doc.Title + "</h2>")
	b.WriteString("<p>" + doc.Number + "</p>")
	if message != "" {
		b.WriteString("<p>" + message + "</p>")
	}
	b.WriteString("<table>")
	for _, item := range doc.Items {
		b.WriteString("<tr><td>" + item.Description + "</td><td>" + FormatCurrency(item.Amount, doc.Currency) + "</td></tr>")
	}
	b.WriteString("</table>")
	b.WriteString("<p><strong>Total: " + FormatCurrency(doc.Totals.Total, doc.Currency) + "</strong></p>")
	b.WriteString("<p>Vencimento: " + doc.DueDate.Format("02/01/2006") + "</p>")
	return b.String()
}
