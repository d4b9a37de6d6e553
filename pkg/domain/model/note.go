package model

import (
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/types"
)

// Note is an annotation on a case
type Note struct {
	ID               int64         `json:"id"`
	CaseID           int64         `json:"caseId"`
	Author           types.ActorID `json:"author"`
	Comment          string        `json:"comment"`
	AttachmentRef    string        `json:"attachmentRef,omitempty"`
	UpdatedBy        types.ActorID `json:"updatedBy"`
	EditedAfterGrace bool          `json:"editedAfterGrace"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// Validate checks required fields
func (n *Note) Validate() error {
	if strings.TrimSpace(n.Comment) == "" {
		return goerr.Wrap(ErrValidation, "note comment is required", goerr.V(CaseIDKey, n.CaseID))
	}
	if err := n.Author.Validate(); err != nil {
		return goerr.Wrap(ErrValidation, "invalid note author", goerr.V("error", err.Error()))
	}
	return nil
}

// Clone returns a copy
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	copied := *n
	return &copied
}

// NoteEditPolicy decides what happens to an edit after the grace period
type NoteEditPolicy string

const (
	// NoteEditReject refuses edits and deletes after the grace period
	NoteEditReject NoteEditPolicy = "reject"
	// NoteEditFlag allows them but marks the note as edited after grace
	NoteEditFlag NoteEditPolicy = "flag"
)

// Validate checks the policy is known
func (p NoteEditPolicy) Validate() error {
	switch p {
	case NoteEditReject, NoteEditFlag:
		return nil
	}
	return goerr.Wrap(ErrValidation, "unknown note edit policy", goerr.V("policy", string(p)))
}

// NotePolicy controls note mutation after creation. A zero GracePeriod disables the limit.
type NotePolicy struct {
	GracePeriod time.Duration
	OnExpired   NoteEditPolicy
}

// DefaultNotePolicy rejects edits 15 minutes after creation
func DefaultNotePolicy() NotePolicy {
	return NotePolicy{GracePeriod: 15 * time.Minute, OnExpired: NoteEditReject}
}

// CheckEdit decides whether a mutation of n at now is allowed. flagged is true when the edit is
// allowed only because the policy flags instead of rejecting.
func (p NotePolicy) CheckEdit(n *Note, now time.Time) (flagged bool, err error) {
	if p.GracePeriod <= 0 || !now.After(n.CreatedAt.Add(p.GracePeriod)) {
		return false, nil
	}
	if p.OnExpired == NoteEditFlag {
		return true, nil
	}
	return false, goerr.Wrap(ErrInvalidState, "note grace period has expired",
		goerr.V(NoteIDKey, n.ID), goerr.V("grace_period", p.GracePeriod.String()))
}
