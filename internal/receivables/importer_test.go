package receivables_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lexpraxis/backend-lexis/internal/billing"
	"github.com/lexpraxis/backend-lexis/internal/common"
	"github.com/lexpraxis/backend-lexis/internal/receivables"
)

func invoice(title string, total string, status billing.DocumentStatus) billing.Document {
	return billing.Document{
		ID:       uuid.New(),
		Type:     billing.TypeInvoice,
		Number:   "INV-0042",
		Title:    title,
		Currency: billing.CurrencyBRL,
		Status:   status,
		Receiver: billing.Party{Name: "Cliente Beta", Email: "beta@example.com", Phone: "+55 11 98888-0000"},
		Totals:   billing.Totals{Total: decimal.RequireFromString(total)},
	}
}

func importCfg(doc billing.Document, count int, start time.Time) receivables.ImportConfiguration {
	return receivables.ImportConfiguration{Documents: []receivables.DocumentImportConfig{{
		DocumentID:       doc.ID,
		InstallmentCount: count,
		StartDate:        start,
	}}}
}

func TestReconcileEmptySelectionIsRejected(t *testing.T) {
	t.Parallel()

	_, err := receivables.Reconcile(receivables.ImportConfiguration{}, nil)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestReconcileSplitsDocumentIntoInstallments(t *testing.T) {
	t.Parallel()

	doc := invoice("Honorarios acao trabalhista", "3200", billing.StatusSent)
	drafts, err := receivables.Reconcile(importCfg(doc, 4, day(2025, time.January, 1)), []billing.Document{doc})
	require.NoError(t, err)
	require.Len(t, drafts, 4)

	for i, d := range drafts {
		require.Equal(t, doc.ID, d.SourceDocumentID, "every installment traces to its document")
		require.Equal(t, "INV-0042", d.SourceDocumentNumber)
		require.Equal(t, "invoice", d.SourceDocumentType)
		require.Equal(t, "Cliente Beta", d.ClientName)
		require.Equal(t, "BRL", d.Currency)
		require.Equal(t, i+1, d.InstallmentIndex)
		require.Equal(t, 4, d.InstallmentCount)
		require.True(t, dec("800").Equal(d.Amount))
	}
	require.Equal(t, "REC-INV-0042-1/4", drafts[0].Number)
	require.Equal(t, "REC-INV-0042-4/4", drafts[3].Number)
	require.Equal(t, "Honorarios acao trabalhista - Parcela 1/4", drafts[0].Description)
	require.Equal(t, "Honorarios acao trabalhista - Parcela 4/4", drafts[3].Description)
	require.Equal(t, day(2025, time.January, 31), drafts[1].DueDate)
}

func TestReconcileSingleInstallmentKeepsTitle(t *testing.T) {
	t.Parallel()

	doc := invoice("Parecer societario", "1500", billing.StatusPending)
	drafts, err := receivables.Reconcile(importCfg(doc, 1, day(2025, time.July, 10)), []billing.Document{doc})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Equal(t, "Parecer societario", drafts[0].Description)
	require.Equal(t, "REC-INV-0042-1/1", drafts[0].Number)
}

func TestReconcileClientSnapshotFromConfig(t *testing.T) {
	t.Parallel()

	doc := invoice("Consultoria", "900", billing.StatusSent)
	cfg := receivables.ImportConfiguration{Documents: []receivables.DocumentImportConfig{{
		DocumentID:       doc.ID,
		InstallmentCount: 1,
		StartDate:        day(2025, time.March, 1),
		ClientName:       "Beta Participacoes Ltda",
		ClientPhone:      "+55 21 97777-1111",
		Notes:            "pagamento via boleto",
	}}}
	drafts, err := receivables.Reconcile(cfg, []billing.Document{doc})
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	require.Equal(t, "Beta Participacoes Ltda", drafts[0].ClientName)
	require.Equal(t, "+55 21 97777-1111", drafts[0].ClientPhone)
	require.Equal(t, "beta@example.com", drafts[0].ClientEmail, "blank config fields fall back to the receiver")
	require.Equal(t, "pagamento via boleto", drafts[0].Notes)
}

func TestReconcilePerDocumentConfiguration(t *testing.T) {
	t.Parallel()

	a := invoice("Caso A", "1000", billing.StatusSent)
	b := invoice("Caso B", "600", billing.StatusSent)
	b.Number = "INV-0043"
	cfg := receivables.ImportConfiguration{Documents: []receivables.DocumentImportConfig{
		{DocumentID: a.ID, InstallmentCount: 2, StartDate: day(2025, time.April, 1)},
		{DocumentID: b.ID, InstallmentCount: 1, StartDate: day(2025, time.June, 1)},
	}}
	drafts, err := receivables.Reconcile(cfg, []billing.Document{a, b})
	require.NoError(t, err)
	require.Len(t, drafts, 3)

	require.Equal(t, "REC-INV-0042-1/2", drafts[0].Number)
	require.Equal(t, "REC-INV-0042-2/2", drafts[1].Number)
	require.Equal(t, "REC-INV-0043-1/1", drafts[2].Number)
	require.Equal(t, day(2025, time.June, 1), drafts[2].DueDate)
}

func TestReconcileRejectsPaidInvoice(t *testing.T) {
	t.Parallel()

	ok := invoice("Aberta", "100", billing.StatusSent)
	paid := invoice("Quitada", "100", billing.StatusPaid)
	cfg := receivables.ImportConfiguration{Documents: []receivables.DocumentImportConfig{
		{DocumentID: ok.ID, InstallmentCount: 1, StartDate: day(2025, time.May, 1)},
		{DocumentID: paid.ID, InstallmentCount: 1, StartDate: day(2025, time.May, 1)},
	}}
	_, err := receivables.Reconcile(cfg, []billing.Document{ok, paid})

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestReconcileRejectsEstimates(t *testing.T) {
	t.Parallel()

	doc := invoice("Orcamento", "100", billing.StatusSent)
	doc.Type = billing.TypeEstimate
	_, err := receivables.Reconcile(importCfg(doc, 1, day(2025, time.May, 1)), []billing.Document{doc})

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
}

func TestReconcileRejectsUnknownDocument(t *testing.T) {
	t.Parallel()

	unknown := billing.Document{ID: uuid.New()}
	_, err := receivables.Reconcile(importCfg(unknown, 1, day(2025, time.May, 1)), nil)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
}
