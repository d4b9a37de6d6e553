package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/betwatch/casekeeper/pkg/domain/types"
)

// Assignment links an incident to a case. At most one assignment per incident is active; inactive
// rows are kept as history.
type Assignment struct {
	ID            string        `json:"id"`
	IncidentID    int64         `json:"incidentId"`
	CaseID        int64         `json:"caseId"`
	AssignedBy    types.ActorID `json:"assignedBy"`
	AssignedAt    time.Time     `json:"assignedAt"`
	Reason        string        `json:"reason,omitempty"`
	Active        bool          `json:"active"`
	DeactivatedBy types.ActorID `json:"deactivatedBy,omitempty"`
	DeactivatedAt *time.Time    `json:"deactivatedAt,omitempty"`
}

// NewAssignment creates an active assignment with a time-ordered ID
func NewAssignment(incidentID, caseID int64, by types.ActorID, reason string, at time.Time) *Assignment {
	return &Assignment{
		ID:         uuid.Must(uuid.NewV7()).String(),
		IncidentID: incidentID,
		CaseID:     caseID,
		AssignedBy: by,
		AssignedAt: at.UTC(),
		Reason:     reason,
		Active:     true,
	}
}

// Deactivate returns a deactivated copy of the assignment
func (a *Assignment) Deactivate(by types.ActorID, at time.Time) *Assignment {
	copied := a.Clone()
	t := at.UTC()
	copied.Active = false
	copied.DeactivatedBy = by
	copied.DeactivatedAt = &t
	return copied
}

// Clone returns a deep copy
func (a *Assignment) Clone() *Assignment {
	if a == nil {
		return nil
	}
	copied := *a
	if a.DeactivatedAt != nil {
		t := *a.DeactivatedAt
		copied.DeactivatedAt = &t
	}
	return &copied
}
