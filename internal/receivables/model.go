package receivables

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the receivable lifecycle state. The labels are the ones the
// practice staff see, kept in Portuguese on purpose.
type Status string

const (
	StatusNew     Status = "nova"
	StatusPending Status = "pendente"
	StatusPaid    Status = "paga"
	StatusOverdue Status = "vencida"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusPending, StatusPaid, StatusOverdue:
		return true
	}
	return false
}

// Receivable is one expected payment, usually an installment imported from a
// billing document. The source-document triple (id, number, type) keeps the
// trace back to the document the import created it from; the id is nil for
// receivables entered by hand, and the number and type stay readable even if
// the document is later deleted.
type Receivable struct {
	ID                   uuid.UUID       `json:"id"`
	Number               string          `json:"number"`
	ClientName           string          `json:"clientName"`
	ClientEmail          string          `json:"clientEmail,omitempty"`
	ClientPhone          string          `json:"clientPhone,omitempty"`
	Description          string          `json:"description"`
	Notes                string          `json:"notes,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	DueDate              time.Time       `json:"dueDate"`
	Status               Status          `json:"status"`
	SourceDocumentID     *uuid.UUID      `json:"sourceDocumentId,omitempty"`
	SourceDocumentNumber string          `json:"sourceDocumentNumber,omitempty"`
	SourceDocumentType   string          `json:"sourceDocumentType,omitempty"`
	InstallmentIndex     int             `json:"installmentIndex"`
	InstallmentCount     int             `json:"installmentCount"`
	CollectionAttempts   int             `json:"collectionAttempts"`
	PaidAt               *time.Time      `json:"paidAt,omitempty"`
	LastReminderAt       *time.Time      `json:"lastReminderAt,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}
