package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
)

// AssignmentUseCase owns the linkage between incidents and cases. An incident has at most one
// active assignment; history is kept as deactivated rows.
type AssignmentUseCase struct {
	env *engine
}

// Assign links an incident to a case. Assigning to the case it is already actively linked to
// returns the existing assignment without writing anything.
func (uc *AssignmentUseCase) Assign(ctx context.Context, incidentID, caseID int64, assignedBy types.ActorID, reason string) (*model.Assignment, error) {
	if err := validateActor(assignedBy); err != nil {
		return nil, err
	}

	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	var result *model.Assignment
	err := uc.env.repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		a, err := uc.assignInTx(ctx, tx, incidentID, caseID, assignedBy, reason, uc.env.now())
		if err != nil {
			return err
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to assign incident",
			goerr.V(model.IncidentIDKey, incidentID), goerr.V(model.CaseIDKey, caseID))
	}
	return result, nil
}

// Reassign moves an incident to another case. The prior assignment is deactivated and the new one
// created in the same transaction. An unassigned incident is simply assigned.
func (uc *AssignmentUseCase) Reassign(ctx context.Context, incidentID, newCaseID int64, assignedBy types.ActorID, reason string) (*model.Assignment, error) {
	if err := validateActor(assignedBy); err != nil {
		return nil, err
	}

	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	var result *model.Assignment
	err := uc.env.repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		now := uc.env.now()

		inc, target, err := uc.loadTarget(ctx, tx, incidentID, newCaseID)
		if err != nil {
			return err
		}

		if err := uc.checkAssignable(inc, target); err != nil {
			return err
		}

		current, err := tx.GetActiveAssignment(ctx, incidentID)
		if err != nil {
			return goerr.Wrap(err, "failed to get active assignment")
		}
		if current != nil && current.CaseID == newCaseID {
			result = current
			return nil
		}

		if current != nil {
			from, err := tx.GetCase(ctx, current.CaseID)
			if err != nil {
				return goerr.Wrap(err, "failed to get current case", goerr.V(model.CaseIDKey, current.CaseID))
			}
			if uc.env.graph.IsTerminal(from.State) {
				return goerr.Wrap(model.ErrInvalidState, "incident is linked to a case in a terminal state",
					goerr.V(model.CaseIDKey, from.ID), goerr.V(model.FromStateKey, from.State))
			}
			if _, err := uc.deactivateInTx(ctx, tx, current, assignedBy, now); err != nil {
				return err
			}
		}

		created, err := uc.createInTx(ctx, tx, incidentID, newCaseID, assignedBy, reason, now)
		if err != nil {
			return err
		}
		if err := uc.recordLinkChange(ctx, tx, inc, assignedBy, now); err != nil {
			return err
		}
		result = created
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to reassign incident",
			goerr.V(model.IncidentIDKey, incidentID), goerr.V(model.CaseIDKey, newCaseID))
	}
	return result, nil
}

// Unassign deactivates the incident's active assignment
func (uc *AssignmentUseCase) Unassign(ctx context.Context, incidentID int64, actor types.ActorID) (*model.Assignment, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}

	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	var result *model.Assignment
	err := uc.env.repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		current, err := tx.GetActiveAssignment(ctx, incidentID)
		if err != nil {
			return goerr.Wrap(err, "failed to get active assignment")
		}
		if current == nil {
			if _, err := tx.GetIncident(ctx, incidentID); err != nil {
				return goerr.Wrap(err, "failed to get incident")
			}
			return goerr.Wrap(model.ErrNotFound, "incident has no active assignment")
		}

		c, err := tx.GetCase(ctx, current.CaseID)
		if err != nil {
			return goerr.Wrap(err, "failed to get case", goerr.V(model.CaseIDKey, current.CaseID))
		}
		if uc.env.graph.IsTerminal(c.State) {
			return goerr.Wrap(model.ErrInvalidState, "incident is linked to a case in a terminal state",
				goerr.V(model.CaseIDKey, c.ID), goerr.V(model.FromStateKey, c.State))
		}

		inc, err := tx.GetIncident(ctx, incidentID)
		if err != nil {
			return goerr.Wrap(err, "failed to get incident")
		}

		now := uc.env.now()
		deactivated, err := uc.deactivateInTx(ctx, tx, current, actor, now)
		if err != nil {
			return err
		}
		if err := uc.recordLinkChange(ctx, tx, inc, actor, now); err != nil {
			return err
		}
		result = deactivated
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to unassign incident", goerr.V(model.IncidentIDKey, incidentID))
	}
	return result, nil
}

// ListAssignmentsForCase returns the case's active assignments, plus deactivated ones with includeHistory
func (uc *AssignmentUseCase) ListAssignmentsForCase(ctx context.Context, caseID int64, includeHistory bool) ([]*model.Assignment, error) {
	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	if _, err := uc.env.repo.Case().Get(ctx, caseID); err != nil {
		return nil, goerr.Wrap(err, "failed to get case", goerr.V(model.CaseIDKey, caseID))
	}
	assignments, err := uc.env.repo.Assignment().ListByCase(ctx, caseID, includeHistory)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list assignments", goerr.V(model.CaseIDKey, caseID))
	}
	return assignments, nil
}

// ListAssignmentsForIncident returns the full assignment history of an incident
func (uc *AssignmentUseCase) ListAssignmentsForIncident(ctx context.Context, incidentID int64) ([]*model.Assignment, error) {
	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	if _, err := uc.env.repo.Incident().Get(ctx, incidentID); err != nil {
		return nil, goerr.Wrap(err, "failed to get incident", goerr.V(model.IncidentIDKey, incidentID))
	}
	assignments, err := uc.env.repo.Assignment().ListByIncident(ctx, incidentID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list assignments", goerr.V(model.IncidentIDKey, incidentID))
	}
	return assignments, nil
}

// assignInTx is the shared assign step. Checks run in order: existence, state, then conflict.
func (uc *AssignmentUseCase) assignInTx(ctx context.Context, tx interfaces.Tx, incidentID, caseID int64, by types.ActorID, reason string, now time.Time) (*model.Assignment, error) {
	inc, target, err := uc.loadTarget(ctx, tx, incidentID, caseID)
	if err != nil {
		return nil, err
	}

	if err := uc.checkAssignable(inc, target); err != nil {
		return nil, err
	}

	current, err := tx.GetActiveAssignment(ctx, incidentID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get active assignment")
	}
	if current != nil && current.CaseID == caseID {
		return current, nil
	}
	if current != nil {
		return nil, goerr.Wrap(model.ErrConflict, "incident is actively assigned to another case",
			goerr.V("active_case_id", current.CaseID), goerr.V(model.AssignmentIDKey, current.ID))
	}

	created, err := uc.createInTx(ctx, tx, incidentID, caseID, by, reason, now)
	if err != nil {
		return nil, err
	}
	if err := uc.recordLinkChange(ctx, tx, inc, by, now); err != nil {
		return nil, err
	}
	return created, nil
}

func (uc *AssignmentUseCase) loadTarget(ctx context.Context, tx interfaces.Tx, incidentID, caseID int64) (*model.Incident, *model.Case, error) {
	inc, err := tx.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to get incident")
	}
	c, err := tx.GetCase(ctx, caseID)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to get case")
	}
	return inc, c, nil
}

func (uc *AssignmentUseCase) checkAssignable(inc *model.Incident, target *model.Case) error {
	if uc.env.graph.IsTerminal(target.State) {
		return goerr.Wrap(model.ErrInvalidState, "case is in a terminal state",
			goerr.V(model.CaseIDKey, target.ID), goerr.V(model.FromStateKey, target.State))
	}
	if inc.IsArchived() {
		return goerr.Wrap(model.ErrInvalidState, "incident is archived", goerr.V(model.IncidentIDKey, inc.ID))
	}
	return nil
}

func (uc *AssignmentUseCase) createInTx(ctx context.Context, tx interfaces.Tx, incidentID, caseID int64, by types.ActorID, reason string, now time.Time) (*model.Assignment, error) {
	a := model.NewAssignment(incidentID, caseID, by, reason, now)
	if err := tx.CreateAssignment(ctx, a); err != nil {
		return nil, goerr.Wrap(err, "failed to create assignment")
	}
	if err := uc.env.recorder.Record(ctx, tx, types.TableAssignments, nil, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (uc *AssignmentUseCase) deactivateInTx(ctx context.Context, tx interfaces.Tx, current *model.Assignment, by types.ActorID, now time.Time) (*model.Assignment, error) {
	deactivated := current.Deactivate(by, now)
	if err := tx.UpdateAssignment(ctx, deactivated); err != nil {
		return nil, goerr.Wrap(err, "failed to deactivate assignment", goerr.V(model.AssignmentIDKey, current.ID))
	}
	if err := uc.env.recorder.Record(ctx, tx, types.TableAssignments, current, deactivated); err != nil {
		return nil, err
	}
	return deactivated, nil
}

// recordLinkChange audits the incident after an assignment write moved its case link. before is
// the incident as read at the start of the transaction; nothing is written when the link is unchanged.
func (uc *AssignmentUseCase) recordLinkChange(ctx context.Context, tx interfaces.Tx, before *model.Incident, by types.ActorID, now time.Time) error {
	after, err := tx.GetIncident(ctx, before.ID)
	if err != nil {
		return goerr.Wrap(err, "failed to reload incident", goerr.V(model.IncidentIDKey, before.ID))
	}
	if sameCaseLink(before.CaseID, after.CaseID) {
		return nil
	}

	after.UpdatedBy = by
	after.UpdatedAt = now
	updated, err := tx.UpdateIncident(ctx, after)
	if err != nil {
		return goerr.Wrap(err, "failed to update incident", goerr.V(model.IncidentIDKey, before.ID))
	}
	return uc.env.recorder.Record(ctx, tx, types.TableIncidents, before, updated)
}

func sameCaseLink(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
