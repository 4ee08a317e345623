package receivables_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/lexpraxis/backend-lexis/internal/billing"
	"github.com/lexpraxis/backend-lexis/internal/common"
	"github.com/lexpraxis/backend-lexis/internal/receivables"
)

type fakeStore struct {
	mu   sync.Mutex
	recs map[uuid.UUID]receivables.Receivable

	summaryCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: make(map[uuid.UUID]receivables.Receivable)}
}

func (f *fakeStore) InsertBatch(_ context.Context, recs []receivables.Receivable) ([]receivables.Receivable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]receivables.Receivable, 0, len(recs))
	for _, rec := range recs {
		rec.ID = uuid.New()
		rec.CreatedAt = time.Now().UTC()
		rec.UpdatedAt = rec.CreatedAt
		f.recs[rec.ID] = rec
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (receivables.Receivable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return receivables.Receivable{}, receivables.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) List(_ context.Context, _ receivables.ListFilter) ([]receivables.Receivable, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]receivables.Receivable, 0, len(f.recs))
	for _, rec := range f.recs {
		out = append(out, rec)
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) SetStatus(_ context.Context, id uuid.UUID, status receivables.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return receivables.ErrNotFound
	}
	rec.Status = status
	f.recs[id] = rec
	return nil
}

func (f *fakeStore) MarkPaid(_ context.Context, id uuid.UUID, paidAt time.Time) (receivables.Receivable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return receivables.Receivable{}, receivables.ErrNotFound
	}
	rec.Status = receivables.StatusPaid
	rec.PaidAt = &paidAt
	f.recs[id] = rec
	return rec, nil
}

func (f *fakeStore) MarkOverdue(_ context.Context, asOf time.Time) ([]receivables.Receivable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var flipped []receivables.Receivable
	for id, rec := range f.recs {
		if (rec.Status == receivables.StatusNew || rec.Status == receivables.StatusPending) && rec.DueDate.Before(asOf) {
			rec.Status = receivables.StatusOverdue
			f.recs[id] = rec
			flipped = append(flipped, rec)
		}
	}
	return flipped, nil
}

func (f *fakeStore) ListDueWithin(_ context.Context, from, to time.Time) ([]receivables.Receivable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []receivables.Receivable
	for _, rec := range f.recs {
		if rec.Status == receivables.StatusPaid || rec.Status == receivables.StatusOverdue {
			continue
		}
		if !rec.DueDate.Before(from) && !rec.DueDate.After(to) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) TouchReminder(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return receivables.ErrNotFound
	}
	rec.LastReminderAt = &at
	rec.CollectionAttempts++
	f.recs[id] = rec
	return nil
}

func (f *fakeStore) Summary(_ context.Context, _ time.Time, _ time.Time) (receivables.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaryCalls++
	sum := receivables.Summary{CountByStatus: make(map[receivables.Status]int64)}
	for _, rec := range f.recs {
		sum.CountByStatus[rec.Status]++
	}
	return sum, nil
}

type fakeDocs struct {
	docs []billing.Document
}

func (f *fakeDocs) ListByIDs(_ context.Context, ids []uuid.UUID) ([]billing.Document, error) {
	byID := make(map[uuid.UUID]billing.Document, len(f.docs))
	for _, doc := range f.docs {
		byID[doc.ID] = doc
	}
	var out []billing.Document
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
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

func (c *captureEmitter) count(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.topics {
		if t == topic {
			n++
		}
	}
	return n
}

func TestServiceImportCreatesNumberedBatch(t *testing.T) {
	t.Parallel()

	doc := invoice("Honorarios", "3200", billing.StatusSent)
	store := newFakeStore()
	emitter := &captureEmitter{}
	svc := &receivables.Service{Store: store, Docs: &fakeDocs{docs: []billing.Document{doc}}, Events: emitter}

	recs, err := svc.Import(context.Background(), importCfg(doc, 4, day(2025, time.January, 1)))
	require.NoError(t, err)
	require.Len(t, recs, 4)

	for i, rec := range recs {
		require.Equal(t, fmt.Sprintf("REC-INV-0042-%d/4", i+1), rec.Number)
		require.Equal(t, receivables.StatusNew, rec.Status)
		require.NotNil(t, rec.SourceDocumentID)
		require.Equal(t, doc.ID, *rec.SourceDocumentID)
		require.Equal(t, "INV-0042", rec.SourceDocumentNumber)
		require.Equal(t, "invoice", rec.SourceDocumentType)
	}
	require.Equal(t, 4, emitter.count("receivable.imported"))
}

func TestServiceImportIsNotIdempotent(t *testing.T) {
	t.Parallel()

	doc := invoice("Honorarios", "1000", billing.StatusSent)
	store := newFakeStore()
	svc := &receivables.Service{Store: store, Docs: &fakeDocs{docs: []billing.Document{doc}}}
	cfg := importCfg(doc, 2, day(2025, time.January, 1))

	first, err := svc.Import(context.Background(), cfg)
	require.NoError(t, err)
	second, err := svc.Import(context.Background(), cfg)
	require.NoError(t, err)

	// A repeated run is a fresh batch of records, never a merge; the derived
	// numbers repeat but the records do not.
	require.Len(t, first, 2)
	require.Len(t, second, 2)
	require.Equal(t, first[0].Number, second[0].Number)
	require.NotEqual(t, first[0].ID, second[0].ID)
	recs, _, err := store.List(context.Background(), receivables.ListFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 4)
}

func TestServiceImportEmptySelection(t *testing.T) {
	t.Parallel()

	svc := &receivables.Service{Store: newFakeStore(), Docs: &fakeDocs{}}
	_, err := svc.Import(context.Background(), receivables.ImportConfiguration{})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestServiceGetFlipsNewToPending(t *testing.T) {
	t.Parallel()

	doc := invoice("Honorarios", "500", billing.StatusSent)
	store := newFakeStore()
	svc := &receivables.Service{Store: store, Docs: &fakeDocs{docs: []billing.Document{doc}}}
	recs, err := svc.Import(context.Background(), importCfg(doc, 1, day(2025, time.January, 1)))
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), recs[0].ID)
	require.NoError(t, err)
	require.Equal(t, receivables.StatusPending, got.Status)

	again, err := svc.Get(context.Background(), recs[0].ID)
	require.NoError(t, err)
	require.Equal(t, receivables.StatusPending, again.Status)
}

func TestServiceMarkPaidEmitsEvent(t *testing.T) {
	t.Parallel()

	doc := invoice("Honorarios", "500", billing.StatusSent)
	store := newFakeStore()
	emitter := &captureEmitter{}
	svc := &receivables.Service{Store: store, Docs: &fakeDocs{docs: []billing.Document{doc}}, Events: emitter}
	recs, err := svc.Import(context.Background(), importCfg(doc, 1, day(2025, time.January, 1)))
	require.NoError(t, err)

	paid, err := svc.MarkPaid(context.Background(), recs[0].ID)
	require.NoError(t, err)
	require.Equal(t, receivables.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	require.Equal(t, 1, emitter.count("receivable.paid"))
}

func TestServiceSweepOverdue(t *testing.T) {
	t.Parallel()

	doc := invoice("Honorarios", "500", billing.StatusSent)
	store := newFakeStore()
	emitter := &captureEmitter{}
	now := day(2025, time.June, 15)
	svc := &receivables.Service{
		Store:  store,
		Docs:   &fakeDocs{docs: []billing.Document{doc}},
		Events: emitter,
		Now:    func() time.Time { return now },
	}
	_, err := svc.Import(context.Background(), importCfg(doc, 2, day(2025, time.May, 1)))
	require.NoError(t, err)

	// Installments due May 1 and May 31 are both past June 15.
	flipped, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, flipped)
	require.Equal(t, 2, emitter.count("receivable.overdue"))

	again, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	require.Zero(t, again)
}

func TestServiceSendReminder(t *testing.T) {
	t.Parallel()

	doc := invoice("Honorarios", "500", billing.StatusSent)
	store := newFakeStore()
	email := &common.InMemoryEmail{}
	emitter := &captureEmitter{}
	svc := &receivables.Service{Store: store, Docs: &fakeDocs{docs: []billing.Document{doc}}, Email: email, Events: emitter}
	recs, err := svc.Import(context.Background(), importCfg(doc, 1, day(2025, time.September, 1)))
	require.NoError(t, err)

	rec, err := svc.SendReminder(context.Background(), recs[0].ID)
	require.NoError(t, err)
	require.NotNil(t, rec.LastReminderAt)
	require.Equal(t, 1, rec.CollectionAttempts)
	require.Len(t, email.Outbox, 1)
	require.Equal(t, []string{"beta@example.com"}, email.Outbox[0].To)
	require.Equal(t, 1, emitter.count("receivable.reminder"))

	_, err = svc.MarkPaid(context.Background(), recs[0].ID)
	require.NoError(t, err)
	_, err = svc.SendReminder(context.Background(), recs[0].ID)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
}

func TestServiceSendRemindersBatch(t *testing.T) {
	t.Parallel()

	doc := invoice("Honorarios", "1000", billing.StatusSent)
	store := newFakeStore()
	email := &common.InMemoryEmail{}
	svc := &receivables.Service{Store: store, Docs: &fakeDocs{docs: []billing.Document{doc}}, Email: email}
	recs, err := svc.Import(context.Background(), importCfg(doc, 2, day(2025, time.October, 1)))
	require.NoError(t, err)

	_, err = svc.MarkPaid(context.Background(), recs[1].ID)
	require.NoError(t, err)

	missing := uuid.New()
	report, err := svc.SendReminders(context.Background(), []uuid.UUID{recs[0].ID, recs[1].ID, missing})
	require.NoError(t, err)

	require.Equal(t, 1, report.Sent)
	require.Len(t, report.Failed, 2, "paid and unknown receivables are reported, not fatal")
	require.Len(t, email.Outbox, 1)

	_, err = svc.SendReminders(context.Background(), nil)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestServiceReminderCountsAttempts(t *testing.T) {
	t.Parallel()

	doc := invoice("Honorarios", "700", billing.StatusSent)
	store := newFakeStore()
	svc := &receivables.Service{Store: store, Docs: &fakeDocs{docs: []billing.Document{doc}}, Email: &common.InMemoryEmail{}}
	recs, err := svc.Import(context.Background(), importCfg(doc, 1, day(2025, time.November, 1)))
	require.NoError(t, err)

	_, err = svc.SendReminder(context.Background(), recs[0].ID)
	require.NoError(t, err)
	rec, err := svc.SendReminder(context.Background(), recs[0].ID)
	require.NoError(t, err)
	require.Equal(t, 2, rec.CollectionAttempts)
}

func TestServiceDashboardUsesCache(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := newFakeStore()
	svc := &receivables.Service{Store: store, Cache: rdb, CacheTTL: time.Minute}

	_, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	_, err = svc.Dashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, store.summaryCalls, "second read must come from Redis")
}
