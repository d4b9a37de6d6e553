package interfaces

import (
	"context"
)

// Repository defines the interface for data persistence. Plain accessors are read only; every
// mutation goes through RunInTx so the business write and its audit entry commit together.
type Repository interface {
	Case() CaseRepository
	Incident() IncidentRepository
	Assignment() AssignmentRepository
	Note() NoteRepository
	Audit() AuditRepository
	BotExecution() BotExecutionRepository

	// RunInTx runs fn in a single atomic unit of work. If fn returns an error nothing it wrote is
	// kept. Backends may call fn more than once on contention, so fn must not have side effects
	// outside tx.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Close releases backend resources
	Close() error
}
