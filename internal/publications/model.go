package publications

import (
	"time"

	"github.com/google/uuid"
)

// Status is the triage state of a diario-oficial publication.
type Status string

const (
	StatusNova       Status = "nova"
	StatusPendente   Status = "pendente"
	StatusAtribuida  Status = "atribuida"
	StatusFinalizada Status = "finalizada"
	StatusDescartada Status = "descartada"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNova, StatusPendente, StatusAtribuida, StatusFinalizada, StatusDescartada:
		return true
	}
	return false
}

// Publication is a court publication captured from the diario oficial and
// routed to a responsible lawyer.
type Publication struct {
	ID            uuid.UUID  `json:"id"`
	CaseNumber    string     `json:"caseNumber"`
	Court         string     `json:"court"`
	Journal       string     `json:"journal"`
	PublishedAt   time.Time  `json:"publishedAt"`
	Content       string     `json:"content"`
	Status        Status     `json:"status"`
	AssignedTo    *uuid.UUID `json:"assignedTo,omitempty"`
	AssignedAt    *time.Time `json:"assignedAt,omitempty"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
	DiscardReason string     `json:"discardReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}
