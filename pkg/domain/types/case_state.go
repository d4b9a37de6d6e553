package types

import (
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// CaseState is a case lifecycle state. Which states exist and how they connect is declared by
// model.StateGraph; this type only guarantees the identifier is well formed.
type CaseState string

// Default lifecycle states
const (
	CaseStateOpen          CaseState = "OPEN"
	CaseStateInvestigating CaseState = "INVESTIGATING"
	CaseStateResolved      CaseState = "RESOLVED"
	CaseStateClosed        CaseState = "CLOSED"
)

var statePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// DefaultCaseStates returns the default states in lifecycle order
func DefaultCaseStates() []CaseState {
	return []CaseState{
		CaseStateOpen,
		CaseStateInvestigating,
		CaseStateResolved,
		CaseStateClosed,
	}
}

// Validate checks the identifier format
func (s CaseState) Validate() error {
	if s == "" {
		return goerr.New("case state cannot be empty")
	}
	if !statePattern.MatchString(string(s)) {
		return goerr.New("case state must be uppercase alphanumeric with underscores", goerr.V("state", s))
	}
	return nil
}

// String returns the string representation of the case state
func (s CaseState) String() string {
	return string(s)
}

// ParseCaseState normalizes case and surrounding spaces, then validates the identifier
func ParseCaseState(s string) (CaseState, error) {
	state := CaseState(strings.ToUpper(strings.TrimSpace(s)))
	if err := state.Validate(); err != nil {
		return "", err
	}
	return state, nil
}
