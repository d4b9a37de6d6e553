package interfaces

import (
	"context"

	"github.com/betwatch/casekeeper/pkg/domain/model"
)

// CaseRepository defines read access to cases
type CaseRepository interface {
	// Get retrieves a case by ID
	Get(ctx context.Context, id int64) (*model.Case, error)

	// List retrieves cases ordered by ID with optional filtering
	List(ctx context.Context, opts ...ListCaseOption) ([]*model.Case, error)
}

// IncidentRepository defines read access to incidents
type IncidentRepository interface {
	// Get retrieves an incident by ID
	Get(ctx context.Context, id int64) (*model.Incident, error)

	// List returns at most limit incidents matching filter, ordered by (CreatedAt, ID) ascending,
	// starting strictly after the cursor when one is given.
	List(ctx context.Context, filter model.IncidentFilter, after *model.IncidentCursor, limit int) ([]*model.Incident, error)
}

// AssignmentRepository defines read access to case-incident assignments
type AssignmentRepository interface {
	// GetActive returns the active assignment of an incident, or nil, nil if there is none
	GetActive(ctx context.Context, incidentID int64) (*model.Assignment, error)

	// ListByCase returns assignments of a case ordered by AssignedAt. Inactive rows are included
	// only with includeHistory.
	ListByCase(ctx context.Context, caseID int64, includeHistory bool) ([]*model.Assignment, error)

	// ListByIncident returns the full assignment history of an incident ordered by AssignedAt
	ListByIncident(ctx context.Context, incidentID int64) ([]*model.Assignment, error)
}

// NoteRepository defines read access to case notes
type NoteRepository interface {
	Get(ctx context.Context, id int64) (*model.Note, error)

	// ListByCase returns notes of a case ordered by CreatedAt, then ID
	ListByCase(ctx context.Context, caseID int64) ([]*model.Note, error)
}

// AuditRepository is the read surface of the audit log
type AuditRepository interface {
	// List returns entries matching q ordered by Timestamp, then ID
	List(ctx context.Context, q model.AuditQuery) ([]*model.AuditLogEntry, error)
}

// BotExecutionRepository defines read access to bot executions
type BotExecutionRepository interface {
	Get(ctx context.Context, id int64) (*model.BotExecution, error)

	// List returns executions ordered by ExecutedAt, optionally only those of botID
	List(ctx context.Context, botID string) ([]*model.BotExecution, error)
}
