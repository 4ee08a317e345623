package publications_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lexpraxis/backend-lexis/internal/common"
	"github.com/lexpraxis/backend-lexis/internal/publications"
)

type fakeStore struct {
	pubs map[uuid.UUID]publications.Publication
}

func newFakeStore() *fakeStore {
	return &fakeStore{pubs: map[uuid.UUID]publications.Publication{}}
}

func (f *fakeStore) Insert(_ context.Context, p publications.Publication) (publications.Publication, error) {
	p.ID = uuid.New()
	p.Status = publications.StatusNova
	p.CreatedAt = time.Now()
	f.pubs[p.ID] = p
	return p, nil
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (publications.Publication, error) {
	p, ok := f.pubs[id]
	if !ok {
		return publications.Publication{}, publications.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) List(_ context.Context, filter publications.ListFilter) ([]publications.Publication, int64, error) {
	var out []publications.Publication
	for _, p := range f.pubs {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p)
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) SetStatus(_ context.Context, id uuid.UUID, status publications.Status) error {
	p, ok := f.pubs[id]
	if !ok {
		return publications.ErrNotFound
	}
	p.Status = status
	f.pubs[id] = p
	return nil
}

func (f *fakeStore) Assign(_ context.Context, id, userID uuid.UUID, at time.Time) error {
	p, ok := f.pubs[id]
	if !ok {
		return publications.ErrNotFound
	}
	p.Status = publications.StatusAtribuida
	p.AssignedTo = &userID
	p.AssignedAt = &at
	f.pubs[id] = p
	return nil
}

func (f *fakeStore) Finish(_ context.Context, id uuid.UUID, at time.Time) error {
	p, ok := f.pubs[id]
	if !ok {
		return publications.ErrNotFound
	}
	p.Status = publications.StatusFinalizada
	p.FinishedAt = &at
	f.pubs[id] = p
	return nil
}

func (f *fakeStore) Discard(_ context.Context, id uuid.UUID, reason string) error {
	p, ok := f.pubs[id]
	if !ok {
		return publications.ErrNotFound
	}
	p.Status = publications.StatusDescartada
	p.DiscardReason = reason
	f.pubs[id] = p
	return nil
}

func newPublication(t *testing.T, svc *publications.Service) publications.Publication {
	t.Helper()
	p, err := svc.Create(context.Background(), publications.PublicationInput{
		CaseNumber:  "0001234-56.2025.8.26.0100",
		Court:       "TJSP",
		Journal:     "DJE-SP",
		PublishedAt: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Content:     "Intimacao da parte autora para manifestacao em 15 dias.",
	})
	require.NoError(t, err)
	return p
}

func TestGetFlipsNovaToPendente(t *testing.T) {
	svc := &publications.Service{Store: newFakeStore()}
	p := newPublication(t, svc)
	require.Equal(t, publications.StatusNova, p.Status)

	seen, err := svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, publications.StatusPendente, seen.Status)

	again, err := svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, publications.StatusPendente, again.Status)
}

func TestAssignSetsResponsible(t *testing.T) {
	svc := &publications.Service{Store: newFakeStore()}
	p := newPublication(t, svc)
	lawyer := uuid.New()

	assigned, err := svc.Assign(context.Background(), p.ID, lawyer)
	require.NoError(t, err)
	require.Equal(t, publications.StatusAtribuida, assigned.Status)
	require.NotNil(t, assigned.AssignedTo)
	require.Equal(t, lawyer, *assigned.AssignedTo)
	require.NotNil(t, assigned.AssignedAt)
}

func TestFinishRequiresAssignment(t *testing.T) {
	svc := &publications.Service{Store: newFakeStore()}
	p := newPublication(t, svc)

	_, err := svc.Finish(context.Background(), p.ID)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_TRANSITION", appErr.Code)

	_, err = svc.Assign(context.Background(), p.ID, uuid.New())
	require.NoError(t, err)

	done, err := svc.Finish(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, publications.StatusFinalizada, done.Status)
	require.NotNil(t, done.FinishedAt)
}

func TestDiscardKeepsFinished(t *testing.T) {
	svc := &publications.Service{Store: newFakeStore()}
	p := newPublication(t, svc)

	discarded, err := svc.Discard(context.Background(), p.ID, "duplicada")
	require.NoError(t, err)
	require.Equal(t, publications.StatusDescartada, discarded.Status)
	require.Equal(t, "duplicada", discarded.DiscardReason)

	q := newPublication(t, svc)
	_, err = svc.Assign(context.Background(), q.ID, uuid.New())
	require.NoError(t, err)
	_, err = svc.Finish(context.Background(), q.ID)
	require.NoError(t, err)

	_, err = svc.Discard(context.Background(), q.ID, "engano")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_TRANSITION", appErr.Code)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	svc := &publications.Service{Store: newFakeStore()}
	_, _, err := svc.List(context.Background(), publications.ListFilter{Status: "arquivada"})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
}
