package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentType distinguishes invoices from estimates.
type DocumentType string

const (
	TypeInvoice  DocumentType = "invoice"
	TypeEstimate DocumentType = "estimate"
)

// DocumentStatus tracks the document lifecycle. Transitions are last write
// wins; OVERDUE is derived from the due date for unpaid sent documents.
type DocumentStatus string

const (
	StatusDraft   DocumentStatus = "DRAFT"
	StatusSent    DocumentStatus = "SENT"
	StatusPending DocumentStatus = "PENDING"
	StatusPaid    DocumentStatus = "PAID"
	StatusOverdue DocumentStatus = "OVERDUE"
)

// Currency enumerates supported document currencies.
type Currency string

const (
	CurrencyBRL Currency = "BRL"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// Valid reports whether the currency is one of the supported codes.
func (c Currency) Valid() bool {
	switch c {
	case CurrencyBRL, CurrencyUSD, CurrencyEUR:
		return true
	}
	return false
}

// LineItem is one billed service line. Amount is derived by the engine and
// never accepted from callers.
type LineItem struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Tax         decimal.Decimal `json:"tax"`
	TaxType     AdjustmentType  `json:"tax_type"`
	Amount      decimal.Decimal `json:"amount"`
}

// Party identifies the sender or receiver of a billing document.
type Party struct {
	Name     string `json:"name"`
	Document string `json:"document,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	ZipCode  string `json:"zip_code,omitempty"`
	Country  string `json:"country,omitempty"`
}

// Document is a billing document aggregate. Items and adjustments are replaced
// as a whole on every edit; partial mutation is not supported.
type Document struct {
	ID         uuid.UUID      `json:"id"`
	Type       DocumentType   `json:"type"`
	Number     string         `json:"number"`
	Title      string         `json:"title"`
	Date       time.Time      `json:"date"`
	DueDate    time.Time      `json:"due_date"`
	Currency   Currency       `json:"currency"`
	Status     DocumentStatus `json:"status"`
	Sender     Party          `json:"sender"`
	Receiver   Party          `json:"receiver"`
	Items      []LineItem     `json:"items"`
	Discount   AdjustmentSpec `json:"discount"`
	Fee        AdjustmentSpec `json:"fee"`
	Tax        AdjustmentSpec `json:"tax"`
	Totals     Totals         `json:"totals"`
	Notes      string         `json:"notes,omitempty"`
	EmailSent  bool           `json:"email_sent"`
	CreatedBy  uuid.UUID      `json:"created_by"`
	ModifiedBy uuid.UUID      `json:"last_modified_by"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Importable reports whether the document may feed the receivables importer:
// only unpaid invoices qualify. Estimates and paid invoices are excluded.
func (d Document) Importable() bool {
	return d.Type == TypeInvoice && d.Status != StatusPaid
}
