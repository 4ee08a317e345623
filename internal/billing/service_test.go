package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lexpraxis/backend-lexis/internal/billing"
	"github.com/lexpraxis/backend-lexis/internal/common"
)

type fakeStore struct {
	mu   sync.Mutex
	docs map[uuid.UUID]billing.Document
	seq  map[billing.DocumentType]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs: make(map[uuid.UUID]billing.Document),
		seq:  make(map[billing.DocumentType]int64),
	}
}

func (f *fakeStore) Insert(_ context.Context, doc billing.Document) (billing.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc.ID = uuid.New()
	doc.CreatedAt = time.Now().UTC()
	doc.UpdatedAt = doc.CreatedAt
	f.docs[doc.ID] = doc
	return doc, nil
}

func (f *fakeStore) Replace(_ context.Context, doc billing.Document) (billing.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[doc.ID]; !ok {
		return billing.Document{}, billing.ErrNotFound
	}
	doc.UpdatedAt = time.Now().UTC()
	f.docs[doc.ID] = doc
	return doc, nil
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (billing.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return billing.Document{}, billing.ErrNotFound
	}
	return doc, nil
}

func (f *fakeStore) List(_ context.Context, _ billing.ListFilter) ([]billing.Document, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]billing.Document, 0, len(f.docs))
	for _, doc := range f.docs {
		out = append(out, doc)
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) ListByIDs(_ context.Context, ids []uuid.UUID) ([]billing.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]billing.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := f.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *fakeStore) SetStatus(_ context.Context, id uuid.UUID, status billing.DocumentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return billing.ErrNotFound
	}
	doc.Status = status
	f.docs[id] = doc
	return nil
}

func (f *fakeStore) MarkEmailSent(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return billing.ErrNotFound
	}
	doc.EmailSent = true
	f.docs[id] = doc
	return nil
}

func (f *fakeStore) NextSequence(_ context.Context, docType billing.DocumentType) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq[docType]++
	return f.seq[docType], nil
}

func validInput() billing.DocumentInput {
	return billing.DocumentInput{
		Type:     billing.TypeInvoice,
		Title:    "Honorarios processo 0001234-56",
		Date:     time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		DueDate:  time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
		Currency: billing.CurrencyBRL,
		Sender:   billing.Party{Name: "Escritorio Alfa"},
		Receiver: billing.Party{Name: "Cliente Beta", Email: "beta@example.com"},
		Items: []billing.LineItemInput{
			{Description: "Consultoria", Quantity: dec("10"), Rate: dec("300")},
			{Description: "Diligencia", Quantity: dec("1"), Rate: dec("450"), Tax: dec("10"), TaxType: billing.AdjustmentPercentage},
		},
		Discount: billing.AdjustmentInput{Value: dec("5"), Type: billing.AdjustmentPercentage},
	}
}

func TestServiceCreateComputesTotalsAndNumber(t *testing.T) {
	t.Parallel()

	svc := &billing.Service{Store: newFakeStore()}
	doc, err := svc.Create(context.Background(), validInput(), uuid.New())
	require.NoError(t, err)

	require.Equal(t, "INV-0001", doc.Number)
	require.Equal(t, billing.StatusDraft, doc.Status)
	// 10*300 + (450 + 45) = 3495; discount 5% = 174.75
	require.True(t, dec("3495").Equal(doc.Totals.Subtotal))
	require.True(t, dec("174.75").Equal(doc.Totals.DiscountAmount))
	require.True(t, dec("3320.25").Equal(doc.Totals.Total))
	require.Len(t, doc.Items, 2)
	for _, item := range doc.Items {
		require.NotEmpty(t, item.ID)
	}
}

func TestServiceCreateRejectsInvalidPayload(t *testing.T) {
	t.Parallel()

	svc := &billing.Service{Store: newFakeStore()}

	in := validInput()
	in.Title = ""
	_, err := svc.Create(context.Background(), in, uuid.New())
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)

	in = validInput()
	in.Items[0].Quantity = dec("-1")
	_, err = svc.Create(context.Background(), in, uuid.New())
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestServiceUpdateReplacesItemsWholesale(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := &billing.Service{Store: store}
	doc, err := svc.Create(context.Background(), validInput(), uuid.New())
	require.NoError(t, err)

	in := validInput()
	in.Items = []billing.LineItemInput{
		{Description: "Parecer", Quantity: dec("1"), Rate: dec("1000")},
	}
	in.Discount = billing.AdjustmentInput{}
	updated, err := svc.Update(context.Background(), doc.ID, in, uuid.New())
	require.NoError(t, err)

	require.Len(t, updated.Items, 1)
	require.Equal(t, doc.Number, updated.Number, "number survives edits")
	require.True(t, dec("1000").Equal(updated.Totals.Total))
	require.True(t, updated.Totals.DiscountAmount.IsZero())
}

func TestServiceUpdateKeepsAuthorship(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := &billing.Service{Store: store}
	author := uuid.New()
	editor := uuid.New()

	doc, err := svc.Create(context.Background(), validInput(), author)
	require.NoError(t, err)
	require.Equal(t, author, doc.CreatedBy)
	require.Equal(t, author, doc.ModifiedBy)

	updated, err := svc.Update(context.Background(), doc.ID, validInput(), editor)
	require.NoError(t, err)
	require.Equal(t, author, updated.CreatedBy, "creator survives edits")
	require.Equal(t, editor, updated.ModifiedBy)
}

func TestServiceUpdateRejectsTypeChange(t *testing.T) {
	t.Parallel()

	svc := &billing.Service{Store: newFakeStore()}
	doc, err := svc.Create(context.Background(), validInput(), uuid.New())
	require.NoError(t, err)

	in := validInput()
	in.Type = billing.TypeEstimate
	_, err = svc.Update(context.Background(), doc.ID, in, uuid.New())
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestServiceSendMarksDocumentAndEmitsEvent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	email := &common.InMemoryEmail{}
	emitter := &captureEmitter{}
	svc := &billing.Service{Store: store, Email: email, Events: emitter}

	doc, err := svc.Create(context.Background(), validInput(), uuid.New())
	require.NoError(t, err)

	sent, err := svc.Send(context.Background(), doc.ID, billing.SendInput{To: []string{"beta@example.com"}})
	require.NoError(t, err)

	require.True(t, sent.EmailSent)
	require.Equal(t, billing.StatusSent, sent.Status)
	require.Len(t, email.Outbox, 1)
	require.Contains(t, email.Outbox[0].Subject, doc.Number)
	require.Equal(t, []string{"document.sent"}, emitter.topics)
}

type captureEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (c *captureEmitter) Emit(_ context.Context, topic string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	return nil
}

func TestDocumentImportable(t *testing.T) {
	t.Parallel()

	doc := billing.Document{Type: billing.TypeInvoice, Status: billing.StatusSent}
	require.True(t, doc.Importable())

	doc.Status = billing.StatusPaid
	require.False(t, doc.Importable())

	doc = billing.Document{Type: billing.TypeEstimate, Status: billing.StatusDraft}
	require.False(t, doc.Importable())
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	require.Equal(t, "INV-0007", billing.FormatNumber(billing.TypeInvoice, 7))
	require.Equal(t, "EST-0123", billing.FormatNumber(billing.TypeEstimate, 123))
}
