package usecase

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
	"github.com/betwatch/casekeeper/pkg/utils/logging"
)

// CaseUseCase coordinates the case lifecycle. It is the entry point the API layer talks to.
type CaseUseCase struct {
	env        *engine
	assignment *AssignmentUseCase
}

// CaseUpdate holds the editable case fields. Nil fields are left unchanged.
type CaseUpdate struct {
	Description    *string
	AffectedUserID *string
}

// OpenCase creates a case in the initial state of the workflow
func (uc *CaseUseCase) OpenCase(ctx context.Context, description, affectedUserID string, openedBy types.ActorID) (*model.Case, error) {
	if err := validateActor(openedBy); err != nil {
		return nil, err
	}
	if strings.TrimSpace(description) == "" {
		return nil, goerr.Wrap(model.ErrValidation, "case description is required")
	}

	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	created, err := uc.open(ctx, description, affectedUserID, openedBy)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open case")
	}

	uc.env.notify(ctx, &model.CaseEvent{
		Type:        model.CaseEventOpened,
		CaseID:      created.ID,
		Description: created.Description,
		To:          created.State,
		Actor:       openedBy,
		At:          created.CreatedAt,
	})
	return created, nil
}

func (uc *CaseUseCase) open(ctx context.Context, description, affectedUserID string, openedBy types.ActorID) (*model.Case, error) {
	var result *model.Case
	err := uc.env.repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		now := uc.env.now()
		c := &model.Case{
			Description:    description,
			State:          uc.env.graph.Initial(),
			AffectedUserID: affectedUserID,
			OpenedBy:       openedBy,
			UpdatedBy:      openedBy,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := c.Validate(uc.env.graph); err != nil {
			return err
		}

		created, err := tx.CreateCase(ctx, c)
		if err != nil {
			return goerr.Wrap(err, "failed to create case")
		}
		if err := uc.env.recorder.Record(ctx, tx, types.TableCases, nil, created); err != nil {
			return err
		}
		result = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// OpenCaseFromIncidents opens a case and assigns the given incidents to it. The case is committed
// first and each incident is assigned in its own transaction. If any assignment fails the case is
// returned together with a *model.PartialFailureError listing the failed incidents.
func (uc *CaseUseCase) OpenCaseFromIncidents(ctx context.Context, incidentIDs []int64, description string, openedBy types.ActorID) (*model.Case, error) {
	if len(incidentIDs) == 0 {
		return nil, goerr.Wrap(model.ErrValidation, "at least one incident is required")
	}
	if err := validateActor(openedBy); err != nil {
		return nil, err
	}
	if strings.TrimSpace(description) == "" {
		return nil, goerr.Wrap(model.ErrValidation, "case description is required")
	}

	ids := make([]int64, 0, len(incidentIDs))
	for _, id := range incidentIDs {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}

	created, err := func() (*model.Case, error) {
		ctx, cancel := uc.env.bound(ctx)
		defer cancel()
		return uc.open(ctx, description, "", openedBy)
	}()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open case")
	}

	partial := &model.PartialFailureError{CaseID: created.ID}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			partial.Failed = append(partial.Failed, model.IncidentFailure{
				IncidentID: id,
				Err:        goerr.Wrap(err, "not attempted", goerr.V(model.IncidentIDKey, id)),
			})
			continue
		}

		if err := uc.assignOne(ctx, id, created.ID, openedBy); err != nil {
			partial.Failed = append(partial.Failed, model.IncidentFailure{IncidentID: id, Err: err})
			continue
		}
		partial.Succeeded = append(partial.Succeeded, id)
	}

	uc.env.notify(ctx, &model.CaseEvent{
		Type:        model.CaseEventOpened,
		CaseID:      created.ID,
		Description: created.Description,
		To:          created.State,
		Actor:       openedBy,
		IncidentIDs: partial.Succeeded,
		At:          created.CreatedAt,
	})

	if len(partial.Failed) > 0 {
		logging.From(ctx).Warn("case opened with unassigned incidents",
			"case_id", created.ID,
			"succeeded", partial.Succeeded,
			"failed", partial.FailedIDs(),
		)
		return created, partial
	}
	return created, nil
}

func (uc *CaseUseCase) assignOne(ctx context.Context, incidentID, caseID int64, by types.ActorID) error {
	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	return uc.env.repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		_, err := uc.assignment.assignInTx(ctx, tx, incidentID, caseID, by, "", uc.env.now())
		return err
	})
}

// GetCase returns the case or model.ErrNotFound
func (uc *CaseUseCase) GetCase(ctx context.Context, id int64) (*model.Case, error) {
	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	c, err := uc.env.repo.Case().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get case", goerr.V(model.CaseIDKey, id))
	}
	return c, nil
}

// ListCases returns cases ordered by ID, optionally only those in state
func (uc *CaseUseCase) ListCases(ctx context.Context, state *types.CaseState) ([]*model.Case, error) {
	var opts []interfaces.ListCaseOption
	if state != nil {
		if !uc.env.graph.Has(*state) {
			return nil, goerr.Wrap(model.ErrValidation, "unknown case state", goerr.V(model.ToStateKey, *state))
		}
		opts = append(opts, interfaces.WithState(*state))
	}

	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	cases, err := uc.env.repo.Case().List(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list cases")
	}
	return cases, nil
}

// UpdateCase edits descriptive fields. Cases in a terminal state are immutable.
func (uc *CaseUseCase) UpdateCase(ctx context.Context, id int64, update CaseUpdate, actor types.ActorID) (*model.Case, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if update.Description != nil && strings.TrimSpace(*update.Description) == "" {
		return nil, goerr.Wrap(model.ErrValidation, "case description must not be empty", goerr.V(model.CaseIDKey, id))
	}

	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	var result *model.Case
	err := uc.env.repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		cur, err := tx.GetCase(ctx, id)
		if err != nil {
			return goerr.Wrap(err, "failed to get case")
		}
		if uc.env.graph.IsTerminal(cur.State) {
			return goerr.Wrap(model.ErrInvalidState, "case is in a terminal state", goerr.V(model.FromStateKey, cur.State))
		}

		next := cur.Clone()
		if update.Description != nil {
			next.Description = *update.Description
		}
		if update.AffectedUserID != nil {
			next.AffectedUserID = *update.AffectedUserID
		}
		if next.Description == cur.Description && next.AffectedUserID == cur.AffectedUserID {
			result = cur
			return nil
		}
		next.UpdatedBy = actor
		next.UpdatedAt = uc.env.now()

		updated, err := tx.UpdateCase(ctx, next)
		if err != nil {
			return goerr.Wrap(err, "failed to update case")
		}
		if err := uc.env.recorder.Record(ctx, tx, types.TableCases, cur, updated); err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update case", goerr.V(model.CaseIDKey, id))
	}
	return result, nil
}

// Transition moves a case along a declared edge of the workflow. Moving to the current state is a
// no-op that writes nothing. Entering a state that requires closure needs closure detail and date;
// reaching a terminal state archives the linked incidents when archive-on-close is enabled.
func (uc *CaseUseCase) Transition(ctx context.Context, id int64, target types.CaseState, actor types.ActorID, closure *model.Closure) (*model.Case, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if !uc.env.graph.Has(target) {
		return nil, goerr.Wrap(model.ErrValidation, "unknown target state",
			goerr.V(model.CaseIDKey, id), goerr.V(model.ToStateKey, target))
	}

	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	var (
		result  *model.Case
		from    types.CaseState
		changed bool
	)
	err := uc.env.repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		changed = false

		cur, err := tx.GetCase(ctx, id)
		if err != nil {
			return goerr.Wrap(err, "failed to get case")
		}
		if cur.State == target {
			result = cur
			return nil
		}
		if uc.env.graph.IsTerminal(cur.State) {
			return goerr.Wrap(errors.Join(model.ErrInvalidTransition, model.ErrValidation),
				"case is in a terminal state", goerr.V(model.FromStateKey, cur.State), goerr.V(model.ToStateKey, target))
		}
		if !uc.env.graph.CanTransition(cur.State, target) {
			return goerr.Wrap(model.ErrInvalidTransition, "transition is not declared",
				goerr.V(model.FromStateKey, cur.State), goerr.V(model.ToStateKey, target))
		}

		now := uc.env.now()
		next := cur.Clone()
		next.State = target
		next.UpdatedBy = actor
		next.UpdatedAt = now
		if uc.env.graph.RequiresClosure(target) {
			if err := closure.Validate(); err != nil {
				return goerr.Wrap(err, "closure is incomplete", goerr.V(model.ToStateKey, target))
			}
			next.ApplyClosure(closure)
		}
		if err := next.Validate(uc.env.graph); err != nil {
			return err
		}

		updated, err := tx.UpdateCase(ctx, next)
		if err != nil {
			return goerr.Wrap(err, "failed to update case")
		}
		if err := uc.env.recorder.Record(ctx, tx, types.TableCases, cur, updated); err != nil {
			return err
		}

		if uc.env.archiveOnClose && uc.env.graph.IsTerminal(target) {
			if err := uc.archiveLinked(ctx, tx, id, actor); err != nil {
				return err
			}
		}

		result = updated
		from = cur.State
		changed = true
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to transition case",
			goerr.V(model.CaseIDKey, id), goerr.V(model.ToStateKey, target))
	}

	if changed {
		uc.env.notify(ctx, &model.CaseEvent{
			Type:        model.CaseEventTransitioned,
			CaseID:      result.ID,
			Description: result.Description,
			From:        from,
			To:          result.State,
			Actor:       actor,
			At:          result.UpdatedAt,
		})
	}
	return result, nil
}

func (uc *CaseUseCase) archiveLinked(ctx context.Context, tx interfaces.Tx, caseID int64, actor types.ActorID) error {
	active, err := tx.ListActiveAssignmentsByCase(ctx, caseID)
	if err != nil {
		return goerr.Wrap(err, "failed to list linked incidents")
	}

	now := uc.env.now()
	for _, a := range active {
		inc, err := tx.GetIncident(ctx, a.IncidentID)
		if err != nil {
			return goerr.Wrap(err, "failed to get linked incident", goerr.V(model.IncidentIDKey, a.IncidentID))
		}
		if inc.IsArchived() {
			continue
		}
		if _, err := archiveInTx(ctx, tx, uc.env, inc, actor, now); err != nil {
			return err
		}
	}
	return nil
}

// CloseCase transitions the case into the workflow's closing state with today's closure date
func (uc *CaseUseCase) CloseCase(ctx context.Context, id int64, detail, evidence string, actor types.ActorID) (*model.Case, error) {
	target, ok := uc.closingState()
	if !ok {
		return nil, goerr.Wrap(model.ErrValidation, "workflow has no state that requires closure")
	}
	return uc.Transition(ctx, id, target, actor, &model.Closure{
		Date:     uc.env.now(),
		Detail:   detail,
		Evidence: evidence,
	})
}

func (uc *CaseUseCase) closingState() (types.CaseState, bool) {
	if uc.env.graph.RequiresClosure(types.CaseStateClosed) {
		return types.CaseStateClosed, true
	}
	for _, s := range uc.env.graph.States() {
		if s.RequiresClosure {
			return s.ID, true
		}
	}
	return "", false
}
