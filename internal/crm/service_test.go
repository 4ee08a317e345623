package crm_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lexpraxis/backend-lexis/internal/common"
	"github.com/lexpraxis/backend-lexis/internal/crm"
)

type fakeStore struct {
	clients map[uuid.UUID]crm.Client
}

func newFakeStore() *fakeStore {
	return &fakeStore{clients: map[uuid.UUID]crm.Client{}}
}

func (f *fakeStore) Insert(_ context.Context, c crm.Client) (crm.Client, error) {
	c.ID = uuid.New()
	f.clients[c.ID] = c
	return c, nil
}

func (f *fakeStore) Update(_ context.Context, c crm.Client) (crm.Client, error) {
	if _, ok := f.clients[c.ID]; !ok {
		return crm.Client{}, crm.ErrNotFound
	}
	f.clients[c.ID] = c
	return c, nil
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (crm.Client, error) {
	c, ok := f.clients[id]
	if !ok {
		return crm.Client{}, crm.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) List(_ context.Context, filter crm.ListFilter) ([]crm.Client, int64, error) {
	var out []crm.Client
	for _, c := range f.clients {
		if filter.Search == "" || strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter.Search)) {
			out = append(out, c)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.clients[id]; !ok {
		return crm.ErrNotFound
	}
	delete(f.clients, id)
	return nil
}

func validInput() crm.ClientInput {
	return crm.ClientInput{
		Name:     "Carvalho & Dias Advocacia",
		Document: "12.345.678/0001-90",
		Email:    "Contato@CarvalhoDias.adv.br",
		Phone:    "+55 11 99999-0000",
		Address: crm.AddressInput{
			Street:  "Av. Paulista",
			Number:  "1000",
			City:    "Sao Paulo",
			State:   "sp",
			ZipCode: "01310-100",
		},
	}
}

func TestCreateNormalizesDocumentAndEmail(t *testing.T) {
	svc := &crm.Service{Store: newFakeStore()}

	client, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, "12345678000190", client.Document)
	require.Equal(t, "contato@carvalhodias.adv.br", client.Email)
	require.Equal(t, "SP", client.Address.State)
}

func TestCreateRejectsMissingName(t *testing.T) {
	svc := &crm.Service{Store: newFakeStore()}

	in := validInput()
	in.Name = ""
	_, err := svc.Create(context.Background(), in)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestUpdateUnknownClient(t *testing.T) {
	svc := &crm.Service{Store: newFakeStore()}

	_, err := svc.Update(context.Background(), uuid.New(), validInput())
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestDeleteThenGet(t *testing.T) {
	svc := &crm.Service{Store: newFakeStore()}

	client, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), client.ID))

	_, err = svc.Get(context.Background(), client.ID)
	require.Error(t, err)
}
