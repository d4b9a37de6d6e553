package model

import (
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/types"
)

// Case is the investigative unit an analyst manages. Cases are never deleted; they end in a terminal
// state instead.
type Case struct {
	ID             int64           `json:"id"`
	Description    string          `json:"description"`
	State          types.CaseState `json:"stateId"`
	AffectedUserID string          `json:"affectedUserId,omitempty"`
	CloseDate      *time.Time      `json:"closeDate,omitempty"`
	CloseDetail    string          `json:"closeDetail,omitempty"`
	CloseEvidence  string          `json:"closeEvidence,omitempty"`
	OpenedBy       types.ActorID   `json:"openedBy"`
	UpdatedBy      types.ActorID   `json:"updatedBy"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Closure is the data required to enter a state that requires closure
type Closure struct {
	Date     time.Time
	Detail   string
	Evidence string
}

// Validate checks that detail and date are populated
func (c *Closure) Validate() error {
	if c == nil {
		return goerr.Wrap(ErrValidation, "closure is required")
	}
	if strings.TrimSpace(c.Detail) == "" {
		return goerr.Wrap(ErrValidation, "closure detail is required")
	}
	if c.Date.IsZero() {
		return goerr.Wrap(ErrValidation, "closure date is required")
	}
	return nil
}

// HasClosure reports whether any closure field is populated
func (c *Case) HasClosure() bool {
	return c.CloseDate != nil || c.CloseDetail != "" || c.CloseEvidence != ""
}

// ApplyClosure copies closure fields onto the case
func (c *Case) ApplyClosure(closure *Closure) {
	date := closure.Date.UTC()
	c.CloseDate = &date
	c.CloseDetail = closure.Detail
	c.CloseEvidence = closure.Evidence
}

// Validate checks field invariants against the state graph. Closure fields must be populated if and
// only if the state requires closure.
func (c *Case) Validate(graph *StateGraph) error {
	if !graph.Has(c.State) {
		return goerr.Wrap(ErrValidation, "unknown case state", goerr.V(ToStateKey, c.State))
	}
	if err := c.OpenedBy.Validate(); err != nil {
		return goerr.Wrap(ErrValidation, "invalid opened_by", goerr.V("error", err.Error()))
	}

	if graph.RequiresClosure(c.State) {
		if c.CloseDate == nil || c.CloseDate.IsZero() || strings.TrimSpace(c.CloseDetail) == "" {
			return goerr.Wrap(ErrValidation, "closure fields are required in this state",
				goerr.V(CaseIDKey, c.ID), goerr.V(ToStateKey, c.State))
		}
	} else if c.HasClosure() {
		return goerr.Wrap(ErrValidation, "closure fields must be empty in this state",
			goerr.V(CaseIDKey, c.ID), goerr.V(ToStateKey, c.State))
	}
	return nil
}

// Clone returns a deep copy
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	copied := *c
	if c.CloseDate != nil {
		d := *c.CloseDate
		copied.CloseDate = &d
	}
	return &copied
}
