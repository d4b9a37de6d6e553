package interfaces

import (
	"context"

	"github.com/betwatch/casekeeper/pkg/domain/model"
)

// Tx is the set of reads and writes available inside a transaction.
// Get methods return model.ErrNotFound when the entity does not exist.
type Tx interface {
	GetCase(ctx context.Context, id int64) (*model.Case, error)
	// CreateCase assigns ID and sets Version to 1
	CreateCase(ctx context.Context, c *model.Case) (*model.Case, error)
	// UpdateCase stores c if c.Version matches the stored version and increments it.
	// A stale version fails with model.ErrConflict.
	UpdateCase(ctx context.Context, c *model.Case) (*model.Case, error)

	GetIncident(ctx context.Context, id int64) (*model.Incident, error)
	// CreateIncident assigns ID
	CreateIncident(ctx context.Context, inc *model.Incident) (*model.Incident, error)
	UpdateIncident(ctx context.Context, inc *model.Incident) (*model.Incident, error)

	// GetActiveAssignment returns nil, nil when the incident has no active assignment.
	// Backends lock the incident's assignment slot for the rest of the transaction.
	GetActiveAssignment(ctx context.Context, incidentID int64) (*model.Assignment, error)
	ListActiveAssignmentsByCase(ctx context.Context, caseID int64) ([]*model.Assignment, error)
	// CreateAssignment stores a new assignment. An active assignment fails with model.ErrConflict if
	// the incident already has one. The incident's CaseID follows the active assignment.
	CreateAssignment(ctx context.Context, a *model.Assignment) error
	// UpdateAssignment stores a deactivated assignment and clears the incident's CaseID
	UpdateAssignment(ctx context.Context, a *model.Assignment) error

	GetNote(ctx context.Context, id int64) (*model.Note, error)
	// CreateNote assigns ID
	CreateNote(ctx context.Context, n *model.Note) (*model.Note, error)
	UpdateNote(ctx context.Context, n *model.Note) (*model.Note, error)
	DeleteNote(ctx context.Context, id int64) error

	// CreateBotExecution assigns ID
	CreateBotExecution(ctx context.Context, e *model.BotExecution) (*model.BotExecution, error)

	// AppendAudit stores an audit entry. There is no update or delete counterpart.
	AppendAudit(ctx context.Context, e *model.AuditLogEntry) error
}
