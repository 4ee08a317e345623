package crm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lexpraxis/backend-lexis/internal/common"
)

// ClientInput is the write payload for both create and update.
type ClientInput struct {
	Name     string       `json:"name" validate:"required,min=2,max=160"`
	Document string       `json:"document" validate:"required,min=11,max=18"`
	Email    string       `json:"email" validate:"omitempty,email"`
	Phone    string       `json:"phone" validate:"omitempty,max=20"`
	WhatsApp string       `json:"whatsapp" validate:"omitempty,max=20"`
	Address  AddressInput `json:"address"`
	Notes    string       `json:"notes" validate:"max=2000"`
}

type AddressInput struct {
	Street     string `json:"street" validate:"max=160"`
	Number     string `json:"number" validate:"max=20"`
	Complement string `json:"complement" validate:"max=80"`
	District   string `json:"district" validate:"max=80"`
	City       string `json:"city" validate:"max=80"`
	State      string `json:"state" validate:"omitempty,len=2"`
	ZipCode    string `json:"zipCode" validate:"omitempty,min=8,max=9"`
}

type Service struct {
	Store Store
}

func (s *Service) Create(ctx context.Context, in ClientInput) (Client, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Client{}, err
	}
	return s.Store.Insert(ctx, fromInput(uuid.Nil, in))
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in ClientInput) (Client, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Client{}, err
	}
	out, err := s.Store.Update(ctx, fromInput(id, in))
	if errors.Is(err, ErrNotFound) {
		return Client{}, errClientNotFound()
	}
	return out, err
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Client, error) {
	out, err := s.Store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Client{}, errClientNotFound()
	}
	return out, err
}

func (s *Service) List(ctx context.Context, search string, page, perPage int) ([]Client, common.Pagination, error) {
	clients, total, err := s.Store.List(ctx, ListFilter{
		Search: search,
		Limit:  perPage,
		Offset: common.Offset(page, perPage),
	})
	if err != nil {
		return nil, common.Pagination{}, err
	}
	return clients, common.Pagination{Page: page, PerPage: perPage, TotalItems: total}, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.Store.Delete(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return errClientNotFound()
	}
	return err
}

func fromInput(id uuid.UUID, in ClientInput) Client {
	return Client{
		ID:       id,
		Name:     strings.TrimSpace(in.Name),
		Document: normalizeDocument(in.Document),
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:    strings.TrimSpace(in.Phone),
		WhatsApp: strings.TrimSpace(in.WhatsApp),
		Address: Address{
			Street:     in.Address.Street,
			Number:     in.Address.Number,
			Complement: in.Address.Complement,
			District:   in.Address.District,
			City:       in.Address.City,
			State:      strings.ToUpper(in.Address.State),
			ZipCode:    in.Address.ZipCode,
		},
		Notes: in.Notes,
	}
}

// normalizeDocument strips formatting so CPF/CNPJ compare as digits.
func normalizeDocument(doc string) string {
	var b strings.Builder
	for _, r := range doc {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func errClientNotFound() error {
	return common.NewAppError("NOT_FOUND", "client not found", http.StatusNotFound, nil)
}
