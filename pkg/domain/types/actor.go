package types

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// ActorID identifies the user or system principal performing a mutation.
// It is supplied by the identity boundary and recorded as-is.
type ActorID string

// Validate checks that the actor ID is present
func (a ActorID) Validate() error {
	if strings.TrimSpace(string(a)) == "" {
		return goerr.New("actor ID is required")
	}
	return nil
}

// String returns the string representation of ActorID
func (a ActorID) String() string {
	return string(a)
}
