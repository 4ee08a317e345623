package projects

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lexpraxis/backend-lexis/internal/common"
)

// ProjectInput is the write payload for both create and update.
type ProjectInput struct {
	Title        string          `json:"title" validate:"required,min=2,max=200"`
	Description  string          `json:"description" validate:"max=4000"`
	ClientName   string          `json:"clientName" validate:"required,min=2,max=160"`
	Organization string          `json:"organization" validate:"max=160"`
	Budget       decimal.Decimal `json:"budget"`
	Currency     string          `json:"currency" validate:"omitempty,oneof=BRL USD EUR"`
	Status       Status          `json:"status" validate:"omitempty"`
	Priority     Priority        `json:"priority" validate:"omitempty"`
	Progress     int             `json:"progress" validate:"min=0,max=100"`
	StartDate    time.Time       `json:"startDate" validate:"required"`
	DueDate      time.Time       `json:"dueDate" validate:"required"`
	Notes        string          `json:"notes" validate:"max=4000"`
}

// TaskInput is the write payload for a board task.
type TaskInput struct {
	Title       string     `json:"title" validate:"required,min=2,max=200"`
	Description string     `json:"description" validate:"max=4000"`
	Priority    Priority   `json:"priority" validate:"omitempty"`
	AssignedTo  *uuid.UUID `json:"assignedTo"`
	DueDate     *time.Time `json:"dueDate"`
}

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

func (s *Service) Create(ctx context.Context, in ProjectInput) (Project, error) {
	p, err := s.fromInput(in)
	if err != nil {
		return Project{}, err
	}
	return s.Store.Insert(ctx, p)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in ProjectInput) (Project, error) {
	p, err := s.fromInput(in)
	if err != nil {
		return Project{}, err
	}
	p.ID = id
	out, err := s.Store.Update(ctx, p)
	if errors.Is(err, ErrNotFound) {
		return Project{}, errProjectNotFound()
	}
	return out, err
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Project, error) {
	p, err := s.Store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Project{}, errProjectNotFound()
	}
	return p, err
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Project, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, common.NewValidationError("unknown project status", nil)
	}
	return s.Store.List(ctx, f)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.Store.Delete(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return errProjectNotFound()
	}
	return err
}

// AddTask creates a task on the board, in the first column unless marked
// otherwise later.
func (s *Service) AddTask(ctx context.Context, projectID uuid.UUID, in TaskInput) (Task, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Task{}, err
	}
	priority := in.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return Task{}, common.NewValidationError("unknown task priority", nil)
	}
	if _, err := s.Get(ctx, projectID); err != nil {
		return Task{}, err
	}
	return s.Store.InsertTask(ctx, Task{
		ProjectID:   projectID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Status:      TaskNotStarted,
		Priority:    priority,
		AssignedTo:  in.AssignedTo,
		DueDate:     in.DueDate,
	})
}

func (s *Service) UpdateTask(ctx context.Context, id uuid.UUID, in TaskInput) (Task, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Task{}, err
	}
	priority := in.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return Task{}, common.NewValidationError("unknown task priority", nil)
	}
	out, err := s.Store.UpdateTask(ctx, Task{
		ID:          id,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Priority:    priority,
		DueDate:     in.DueDate,
	})
	if errors.Is(err, ErrNotFound) {
		return Task{}, errTaskNotFound()
	}
	return out, err
}

func (s *Service) Tasks(ctx context.Context, projectID uuid.UUID) ([]Task, error) {
	if _, err := s.Get(ctx, projectID); err != nil {
		return nil, err
	}
	return s.Store.ListTasks(ctx, projectID)
}

// MoveTask drags a task to another column. Completion stamps the task; moving
// it back clears the stamp.
func (s *Service) MoveTask(ctx context.Context, id uuid.UUID, status TaskStatus) (Task, error) {
	if !status.Valid() {
		return Task{}, common.NewValidationError("unknown task status", nil)
	}
	var completedAt *time.Time
	if status == TaskCompleted {
		now := s.now()
		completedAt = &now
	}
	out, err := s.Store.MoveTask(ctx, id, status, completedAt)
	if errors.Is(err, ErrNotFound) {
		return Task{}, errTaskNotFound()
	}
	return out, err
}

// AssignTask hands the task to a user, or back to nobody when userID is nil.
func (s *Service) AssignTask(ctx context.Context, id uuid.UUID, userID *uuid.UUID) (Task, error) {
	out, err := s.Store.AssignTask(ctx, id, userID)
	if errors.Is(err, ErrNotFound) {
		return Task{}, errTaskNotFound()
	}
	return out, err
}

func (s *Service) DeleteTask(ctx context.Context, id uuid.UUID) error {
	err := s.Store.DeleteTask(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return errTaskNotFound()
	}
	return err
}

func (s *Service) fromInput(in ProjectInput) (Project, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Project{}, err
	}
	status := in.Status
	if status == "" {
		status = StatusNew
	}
	if !status.Valid() {
		return Project{}, common.NewValidationError("unknown project status", nil)
	}
	priority := in.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return Project{}, common.NewValidationError("unknown project priority", nil)
	}
	if in.DueDate.Before(in.StartDate) {
		return Project{}, common.NewValidationError("due date cannot precede start date", nil)
	}
	currency := in.Currency
	if currency == "" {
		currency = "BRL"
	}
	return Project{
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		ClientName:   strings.TrimSpace(in.ClientName),
		Organization: strings.TrimSpace(in.Organization),
		Budget:       in.Budget,
		Currency:     currency,
		Status:       status,
		Priority:     priority,
		Progress:     in.Progress,
		StartDate:    in.StartDate,
		DueDate:      in.DueDate,
		Notes:        in.Notes,
	}, nil
}

func errProjectNotFound() error {
	return common.NewAppError("NOT_FOUND", "project not found", http.StatusNotFound, nil)
}

func errTaskNotFound() error {
	return common.NewAppError("NOT_FOUND", "task not found", http.StatusNotFound, nil)
}
