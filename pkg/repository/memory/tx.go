package memory

import (
	"context"
	"slices"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
)

type memoryTx struct {
	s    *store
	undo []func()
}

var _ interfaces.Tx = &memoryTx{}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func setWithUndo[K comparable, V any](tx *memoryTx, m map[K]V, key K, value V) {
	prev, existed := m[key]
	m[key] = value
	tx.undo = append(tx.undo, func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
}

func deleteWithUndo[K comparable, V any](tx *memoryTx, m map[K]V, key K) {
	prev, existed := m[key]
	if !existed {
		return
	}
	delete(m, key)
	tx.undo = append(tx.undo, func() {
		m[key] = prev
	})
}

func (tx *memoryTx) GetCase(ctx context.Context, id int64) (*model.Case, error) {
	return tx.s.getCase(id)
}

func (tx *memoryTx) CreateCase(ctx context.Context, c *model.Case) (*model.Case, error) {
	created := c.Clone()
	created.ID = tx.s.nextID("case")
	created.Version = 1
	setWithUndo(tx, tx.s.cases, created.ID, created)
	return created.Clone(), nil
}

func (tx *memoryTx) UpdateCase(ctx context.Context, c *model.Case) (*model.Case, error) {
	stored, exists := tx.s.cases[c.ID]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "case not found", goerr.V(model.CaseIDKey, c.ID))
	}
	if stored.Version != c.Version {
		return nil, goerr.Wrap(model.ErrConflict, "case was modified concurrently",
			goerr.V(model.CaseIDKey, c.ID), goerr.V("version", c.Version), goerr.V("stored_version", stored.Version))
	}

	updated := c.Clone()
	updated.Version = stored.Version + 1
	setWithUndo(tx, tx.s.cases, updated.ID, updated)
	return updated.Clone(), nil
}

func (tx *memoryTx) GetIncident(ctx context.Context, id int64) (*model.Incident, error) {
	return tx.s.getIncident(id)
}

func (tx *memoryTx) CreateIncident(ctx context.Context, inc *model.Incident) (*model.Incident, error) {
	created := inc.Clone()
	created.ID = tx.s.nextID("incident")
	setWithUndo(tx, tx.s.incidents, created.ID, created)
	return created.Clone(), nil
}

func (tx *memoryTx) UpdateIncident(ctx context.Context, inc *model.Incident) (*model.Incident, error) {
	if _, exists := tx.s.incidents[inc.ID]; !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "incident not found", goerr.V(model.IncidentIDKey, inc.ID))
	}
	updated := inc.Clone()
	setWithUndo(tx, tx.s.incidents, updated.ID, updated)
	return updated.Clone(), nil
}

func (tx *memoryTx) GetActiveAssignment(ctx context.Context, incidentID int64) (*model.Assignment, error) {
	id, ok := tx.s.active[incidentID]
	if !ok {
		return nil, nil
	}
	return tx.s.assignments[id].Clone(), nil
}

func (tx *memoryTx) ListActiveAssignmentsByCase(ctx context.Context, caseID int64) ([]*model.Assignment, error) {
	var out []*model.Assignment
	for _, id := range tx.s.active {
		if a := tx.s.assignments[id]; a.CaseID == caseID {
			out = append(out, a.Clone())
		}
	}
	slices.SortFunc(out, compareAssignments)
	return out, nil
}

func (tx *memoryTx) CreateAssignment(ctx context.Context, a *model.Assignment) error {
	inc, exists := tx.s.incidents[a.IncidentID]
	if !exists {
		return goerr.Wrap(model.ErrNotFound, "incident not found", goerr.V(model.IncidentIDKey, a.IncidentID))
	}
	if _, dup := tx.s.assignments[a.ID]; dup {
		return goerr.Wrap(model.ErrConflict, "assignment already exists", goerr.V(model.AssignmentIDKey, a.ID))
	}

	if a.Active {
		if current, ok := tx.s.active[a.IncidentID]; ok {
			return goerr.Wrap(model.ErrConflict, "incident already has an active assignment",
				goerr.V(model.IncidentIDKey, a.IncidentID), goerr.V(model.AssignmentIDKey, current))
		}
		setWithUndo(tx, tx.s.active, a.IncidentID, a.ID)

		linked := inc.Clone()
		caseID := a.CaseID
		linked.CaseID = &caseID
		setWithUndo(tx, tx.s.incidents, linked.ID, linked)
	}

	setWithUndo(tx, tx.s.assignments, a.ID, a.Clone())
	return nil
}

func (tx *memoryTx) UpdateAssignment(ctx context.Context, a *model.Assignment) error {
	stored, exists := tx.s.assignments[a.ID]
	if !exists {
		return goerr.Wrap(model.ErrNotFound, "assignment not found", goerr.V(model.AssignmentIDKey, a.ID))
	}
	if a.Active && !stored.Active {
		return goerr.Wrap(model.ErrInvalidState, "inactive assignment cannot be reactivated",
			goerr.V(model.AssignmentIDKey, a.ID))
	}

	setWithUndo(tx, tx.s.assignments, a.ID, a.Clone())

	if !a.Active && tx.s.active[a.IncidentID] == a.ID {
		deleteWithUndo(tx, tx.s.active, a.IncidentID)
		if inc, ok := tx.s.incidents[a.IncidentID]; ok {
			unlinked := inc.Clone()
			unlinked.CaseID = nil
			setWithUndo(tx, tx.s.incidents, unlinked.ID, unlinked)
		}
	}
	return nil
}

func (tx *memoryTx) GetNote(ctx context.Context, id int64) (*model.Note, error) {
	return tx.s.getNote(id)
}

func (tx *memoryTx) CreateNote(ctx context.Context, n *model.Note) (*model.Note, error) {
	created := n.Clone()
	created.ID = tx.s.nextID("note")
	setWithUndo(tx, tx.s.notes, created.ID, created)
	return created.Clone(), nil
}

func (tx *memoryTx) UpdateNote(ctx context.Context, n *model.Note) (*model.Note, error) {
	if _, exists := tx.s.notes[n.ID]; !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "note not found", goerr.V(model.NoteIDKey, n.ID))
	}
	updated := n.Clone()
	setWithUndo(tx, tx.s.notes, updated.ID, updated)
	return updated.Clone(), nil
}

func (tx *memoryTx) DeleteNote(ctx context.Context, id int64) error {
	if _, exists := tx.s.notes[id]; !exists {
		return goerr.Wrap(model.ErrNotFound, "note not found", goerr.V(model.NoteIDKey, id))
	}
	deleteWithUndo(tx, tx.s.notes, id)
	return nil
}

func (tx *memoryTx) CreateBotExecution(ctx context.Context, e *model.BotExecution) (*model.BotExecution, error) {
	created := e.Clone()
	created.ID = tx.s.nextID("bot_execution")
	setWithUndo(tx, tx.s.executions, created.ID, created)
	return created.Clone(), nil
}

func (tx *memoryTx) AppendAudit(ctx context.Context, e *model.AuditLogEntry) error {
	n := len(tx.s.audit)
	tx.s.audit = append(tx.s.audit, e.Clone())
	tx.undo = append(tx.undo, func() {
		tx.s.audit = tx.s.audit[:n]
	})
	return nil
}
