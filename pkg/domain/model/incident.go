package model

import (
	"cmp"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/types"
)

// Incident is a detection candidate produced by a bot execution. CaseID mirrors the active assignment
// and is nil while the incident is unassigned.
type Incident struct {
	ID          int64         `json:"id"`
	CaseID      *int64        `json:"caseId"`
	ExecutionID *int64        `json:"executionId,omitempty"`
	Data        Document      `json:"dataJson"`
	CreatedBy   types.ActorID `json:"createdBy"`
	UpdatedBy   types.ActorID `json:"updatedBy"`
	ArchivedAt  *time.Time    `json:"archivedAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// IsArchived reports whether the incident has been archived
func (i *Incident) IsArchived() bool {
	return i.ArchivedAt != nil
}

// Clone returns a deep copy
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}
	copied := *i
	if i.CaseID != nil {
		v := *i.CaseID
		copied.CaseID = &v
	}
	if i.ExecutionID != nil {
		v := *i.ExecutionID
		copied.ExecutionID = &v
	}
	if i.ArchivedAt != nil {
		v := *i.ArchivedAt
		copied.ArchivedAt = &v
	}
	copied.Data = i.Data.Clone()
	return &copied
}

// IncidentFilter selects incidents for ListIncidents. Time bounds apply to CreatedAt and are inclusive.
type IncidentFilter struct {
	CaseID *int64
	From   *time.Time
	To     *time.Time
}

// Validate rejects an inverted time window
func (f IncidentFilter) Validate() error {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return goerr.Wrap(ErrValidation, "from must not be after to",
			goerr.V("from", *f.From), goerr.V("to", *f.To))
	}
	return nil
}

// Match reports whether inc satisfies the filter
func (f IncidentFilter) Match(inc *Incident) bool {
	if f.CaseID != nil && (inc.CaseID == nil || *inc.CaseID != *f.CaseID) {
		return false
	}
	if f.From != nil && inc.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && inc.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

// IncidentCursor is the position after which the next page of incidents starts
type IncidentCursor struct {
	CreatedAt time.Time
	ID        int64
}

// CursorOf returns the cursor positioned at inc
func CursorOf(inc *Incident) IncidentCursor {
	return IncidentCursor{CreatedAt: inc.CreatedAt, ID: inc.ID}
}

// Precedes reports whether the cursor sorts strictly before inc in (CreatedAt, ID) order
func (c IncidentCursor) Precedes(inc *Incident) bool {
	if !c.CreatedAt.Equal(inc.CreatedAt) {
		return c.CreatedAt.Before(inc.CreatedAt)
	}
	return c.ID < inc.ID
}

// CompareIncidents orders incidents by creation time, then by ID
func CompareIncidents(a, b *Incident) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
