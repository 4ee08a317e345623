package publications

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lexpraxis/backend-lexis/internal/common"
)

// PublicationInput captures a new publication record.
type PublicationInput struct {
	CaseNumber  string    `json:"caseNumber" validate:"required,max=60"`
	Court       string    `json:"court" validate:"required,max=160"`
	Journal     string    `json:"journal" validate:"required,max=160"`
	PublishedAt time.Time `json:"publishedAt" validate:"required"`
	Content     string    `json:"content" validate:"required"`
}

// Service owns publication triage. Writes are last-write-wins.
type Service struct {
	Store Store
	Now   func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) Create(ctx context.Context, in PublicationInput) (Publication, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Publication{}, err
	}
	return s.Store.Insert(ctx, Publication{
		CaseNumber:  in.CaseNumber,
		Court:       in.Court,
		Journal:     in.Journal,
		PublishedAt: in.PublishedAt,
		Content:     in.Content,
	})
}

// Get returns one publication. Viewing a nova publication flips it to
// pendente, mirroring the unread-to-read transition of the inbox.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Publication, error) {
	p, err := s.Store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Publication{}, errPublicationNotFound()
	}
	if err != nil {
		return Publication{}, err
	}
	if p.Status == StatusNova {
		if err := s.Store.SetStatus(ctx, id, StatusPendente); err != nil {
			return Publication{}, err
		}
		p.Status = StatusPendente
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Publication, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, common.NewValidationError("unknown status filter", nil)
	}
	return s.Store.List(ctx, f)
}

// Assign routes the publication to a responsible user.
func (s *Service) Assign(ctx context.Context, id, userID uuid.UUID) (Publication, error) {
	if userID == uuid.Nil {
		return Publication{}, common.NewValidationError("assignee is required", nil)
	}
	if err := s.Store.Assign(ctx, id, userID, s.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Publication{}, errPublicationNotFound()
		}
		return Publication{}, err
	}
	return s.Store.Get(ctx, id)
}

// Finish closes the publication. Only assigned publications can be finished.
func (s *Service) Finish(ctx context.Context, id uuid.UUID) (Publication, error) {
	p, err := s.Store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Publication{}, errPublicationNotFound()
	}
	if err != nil {
		return Publication{}, err
	}
	if p.Status != StatusAtribuida {
		return Publication{}, common.NewAppError("INVALID_TRANSITION",
			"only assigned publications can be finished", http.StatusConflict, nil)
	}
	if err := s.Store.Finish(ctx, id, s.now()); err != nil {
		return Publication{}, err
	}
	return s.Store.Get(ctx, id)
}

// Discard drops the publication from the triage flow. Finished publications
// stay finished.
func (s *Service) Discard(ctx context.Context, id uuid.UUID, reason string) (Publication, error) {
	p, err := s.Store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Publication{}, errPublicationNotFound()
	}
	if err != nil {
		return Publication{}, err
	}
	if p.Status == StatusFinalizada {
		return Publication{}, common.NewAppError("INVALID_TRANSITION",
			"finished publications cannot be discarded", http.StatusConflict, nil)
	}
	if err := s.Store.Discard(ctx, id, reason); err != nil {
		return Publication{}, err
	}
	return s.Store.Get(ctx, id)
}

func errPublicationNotFound() error {
	return common.NewAppError("NOT_FOUND", "publication not found", http.StatusNotFound, nil)
}
