package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Error kinds. Every error surfaced by the engine wraps exactly one of these (PartialFailureError
// additionally unwraps to its sub-failures) so the API boundary can map them with errors.Is.
var (
	// ErrValidation is malformed input; not retried
	ErrValidation = goerr.New("validation error")
	// ErrNotFound is a referenced entity that does not exist
	ErrNotFound = goerr.New("not found")
	// ErrConflict is an invariant violation under concurrent mutation; retry after re-reading
	ErrConflict = goerr.New("conflict")
	// ErrInvalidTransition is a state change not declared in the transition graph
	ErrInvalidTransition = goerr.New("invalid state transition")
	// ErrInvalidState is an operation not allowed in the entity's current state
	ErrInvalidState = goerr.New("invalid state")
	// ErrPartialFailure is a multi-step operation that partially succeeded
	ErrPartialFailure = goerr.New("partial failure")
	// ErrPersistence is storage being unavailable; retried by the caller with backoff
	ErrPersistence = goerr.New("persistence error")
)

// Context keys for error values
const (
	CaseIDKey       = "case_id"
	IncidentIDKey   = "incident_id"
	NoteIDKey       = "note_id"
	AssignmentIDKey = "assignment_id"
	ExecutionIDKey  = "execution_id"
	FromStateKey    = "from_state"
	ToStateKey      = "to_state"
	TableNameKey    = "table_name"
	ActorKey        = "actor"
)

// WrapPersistence marks a storage backend error as ErrPersistence while keeping the original cause
// reachable through errors.Is/As.
func WrapPersistence(err error, msg string, opts ...goerr.Option) error {
	if err == nil {
		return nil
	}
	return goerr.Wrap(errors.Join(ErrPersistence, err), msg, opts...)
}

// IncidentFailure is one failed sub-step of a multi-incident operation
type IncidentFailure struct {
	IncidentID int64
	Err        error
}

// PartialFailureError reports which incidents of a multi-incident operation were processed and which
// were not. CaseID identifies the already-committed case so the caller can retry only Failed.
type PartialFailureError struct {
	CaseID    int64
	Succeeded []int64
	Failed    []IncidentFailure
}

func (e *PartialFailureError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		ids = append(ids, fmt.Sprintf("%d", f.IncidentID))
	}
	return fmt.Sprintf("partial failure on case %d: %d succeeded, failed incidents [%s]",
		e.CaseID, len(e.Succeeded), strings.Join(ids, ", "))
}

// Is matches ErrPartialFailure
func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}

// Unwrap exposes the sub-failure causes, so errors.Is(err, ErrConflict) holds when any incident
// failed on a conflict.
func (e *PartialFailureError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		errs = append(errs, f.Err)
	}
	return errs
}

// FailedIDs returns the failed incident IDs in ascending order
func (e *PartialFailureError) FailedIDs() []int64 {
	ids := make([]int64, 0, len(e.Failed))
	for _, f := range e.Failed {
		ids = append(ids, f.IncidentID)
	}
	slices.Sort(ids)
	return ids
}
