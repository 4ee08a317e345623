package projects

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the project lifecycle state, in the labels the practice staff
// use.
type Status string

const (
	StatusNew        Status = "novo"
	StatusAnalysis   Status = "analise"
	StatusInProgress Status = "andamento"
	StatusWaiting    Status = "aguardando"
	StatusReview     Status = "revisao"
	StatusDone       Status = "concluido"
	StatusCancelled  Status = "cancelado"
	StatusArchived   Status = "arquivado"
)

// Valid reports whether s is a known project state.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusAnalysis, StatusInProgress, StatusWaiting,
		StatusReview, StatusDone, StatusCancelled, StatusArchived:
		return true
	}
	return false
}

// Priority applies to both projects and tasks.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Project is one matter the practice works on.
type Project struct {
	ID           uuid.UUID       `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	ClientName   string          `json:"clientName"`
	Organization string          `json:"organization,omitempty"`
	Budget       decimal.Decimal `json:"budget"`
	Currency     string          `json:"currency"`
	Status       Status          `json:"status"`
	Priority     Priority        `json:"priority"`
	Progress     int             `json:"progress"`
	StartDate    time.Time       `json:"startDate"`
	DueDate      time.Time       `json:"dueDate"`
	Notes        string          `json:"notes,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// TaskStatus is a board column.
type TaskStatus string

const (
	TaskNotStarted TaskStatus = "not_started"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskOnHold     TaskStatus = "on_hold"
	TaskCancelled  TaskStatus = "cancelled"
)

// Valid reports whether s is a known board column.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskNotStarted, TaskInProgress, TaskCompleted, TaskOnHold, TaskCancelled:
		return true
	}
	return false
}

// Task is one unit of work on a project board. Moves between columns are last
// write wins.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   uuid.UUID  `json:"projectId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	AssignedTo  *uuid.UUID `json:"assignedTo,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}
