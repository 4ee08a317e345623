package receivables

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lexpraxis/backend-lexis/internal/billing"
	"github.com/lexpraxis/backend-lexis/internal/common"
)

// DocumentImportConfig is the user's configuration for one selected document:
// how many installments, when the first falls due, plus optional overrides for
// the client contact snapshot kept on each receivable. Blank contact fields
// fall back to the document receiver.
type DocumentImportConfig struct {
	DocumentID       uuid.UUID `json:"documentId" validate:"required"`
	InstallmentCount int       `json:"installmentCount" validate:"required,min=1,max=120"`
	StartDate        time.Time `json:"startDate" validate:"required"`
	ClientName       string    `json:"clientName" validate:"omitempty,max=160"`
	ClientPhone      string    `json:"clientPhone" validate:"omitempty,max=32"`
	ClientEmail      string    `json:"clientEmail" validate:"omitempty,email"`
	Notes            string    `json:"notes" validate:"omitempty,max=2000"`
}

// ImportConfiguration is the user's selection for one import run, one entry
// per document. Imports are deliberately not idempotent: running the same
// configuration twice produces two fresh batches of receivables.
type ImportConfiguration struct {
	Documents []DocumentImportConfig `json:"documents" validate:"required,min=1,dive"`
}

// DocumentIDs returns the ids of every selected document.
func (c ImportConfiguration) DocumentIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(c.Documents))
	for i, dc := range c.Documents {
		ids[i] = dc.DocumentID
	}
	return ids
}

// Draft is a receivable produced by reconciliation, not yet persisted.
type Draft struct {
	Number               string
	SourceDocumentID     uuid.UUID
	SourceDocumentNumber string
	SourceDocumentType   string
	ClientName           string
	ClientEmail          string
	ClientPhone          string
	Description          string
	Notes                string
	Amount               decimal.Decimal
	Currency             string
	DueDate              time.Time
	InstallmentIndex     int
	InstallmentCount     int
}

// Reconcile turns selected billing documents into receivable drafts, one per
// installment per document. Only invoices that are not already paid qualify;
// any other selected document fails the whole run so nothing is half imported.
// Every draft carries the full source-document triple (id, number, type).
func Reconcile(cfg ImportConfiguration, docs []billing.Document) ([]Draft, error) {
	if len(cfg.Documents) == 0 {
		return nil, common.NewValidationError("select at least one document to import", nil)
	}
	byID := make(map[uuid.UUID]billing.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}

	var details []common.FieldError
	drafts := make([]Draft, 0, len(cfg.Documents))
	for _, dc := range cfg.Documents {
		doc, ok := byID[dc.DocumentID]
		if !ok {
			details = append(details, common.FieldError{Field: dc.DocumentID.String(), Rule: "exists"})
			continue
		}
		if !doc.Importable() {
			details = append(details, common.FieldError{Field: doc.Number, Rule: "importable"})
			continue
		}
		plan, err := BuildPlan(doc.Totals.Total, dc.InstallmentCount, dc.StartDate)
		if err != nil {
			return nil, err
		}
		clientName := dc.ClientName
		if clientName == "" {
			clientName = doc.Receiver.Name
		}
		clientEmail := dc.ClientEmail
		if clientEmail == "" {
			clientEmail = doc.Receiver.Email
		}
		clientPhone := dc.ClientPhone
		if clientPhone == "" {
			clientPhone = doc.Receiver.Phone
		}
		for _, inst := range plan.Installments {
			drafts = append(drafts, Draft{
				Number:               receivableNumber(doc.Number, inst.Index, dc.InstallmentCount),
				SourceDocumentID:     doc.ID,
				SourceDocumentNumber: doc.Number,
				SourceDocumentType:   string(doc.Type),
				ClientName:           clientName,
				ClientEmail:          clientEmail,
				ClientPhone:          clientPhone,
				Description:          installmentDescription(doc.Title, inst.Index, dc.InstallmentCount),
				Notes:                dc.Notes,
				Amount:               inst.Amount,
				Currency:             string(doc.Currency),
				DueDate:              inst.DueDate,
				InstallmentIndex:     inst.Index,
				InstallmentCount:     dc.InstallmentCount,
			})
		}
	}
	if len(details) > 0 {
		return nil, common.NewValidationError("only unpaid invoices can be imported", details)
	}
	return drafts, nil
}

// receivableNumber derives the record number from the source document number,
// e.g. REC-INV-0042-2/4.
func receivableNumber(docNumber string, index, count int) string {
	return fmt.Sprintf("REC-%s-%d/%d", docNumber, index, count)
}

// installmentDescription labels a single installment. A one-shot import keeps
// the bare document title.
func installmentDescription(title string, index, count int) string {
	if count <= 1 {
		return title
	}
	return fmt.Sprintf("%s - Parcela %d/%d", title, index, count)
}
