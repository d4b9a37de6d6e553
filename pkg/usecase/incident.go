package usecase

import (
	"context"
	"iter"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
	"github.com/betwatch/casekeeper/pkg/utils/logging"
)

// IncidentUseCase owns incident records and detection ingestion
type IncidentUseCase struct {
	env        *engine
	assignment *AssignmentUseCase
}

// RegisterIncident stores a new incident. With a non-nil caseID the incident is actively assigned to
// that case in the same transaction.
func (uc *IncidentUseCase) RegisterIncident(ctx context.Context, caseID *int64, payload model.Document, actor types.ActorID) (*model.Incident, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}

	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	created, err := uc.register(ctx, caseID, nil, payload, actor)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to register incident")
	}
	return created, nil
}

func (uc *IncidentUseCase) register(ctx context.Context, caseID, executionID *int64, payload model.Document, actor types.ActorID) (*model.Incident, error) {
	if payload.IsZero() {
		return nil, goerr.Wrap(model.ErrValidation, "incident payload must be a JSON object")
	}

	var result *model.Incident
	err := uc.env.repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		now := uc.env.now()

		if caseID != nil {
			c, err := tx.GetCase(ctx, *caseID)
			if err != nil {
				return goerr.Wrap(err, "failed to get case", goerr.V(model.CaseIDKey, *caseID))
			}
			if uc.env.graph.IsTerminal(c.State) {
				return goerr.Wrap(model.ErrInvalidState, "case is in a terminal state",
					goerr.V(model.CaseIDKey, c.ID), goerr.V(model.FromStateKey, c.State))
			}
		}

		inc := &model.Incident{
			CaseID:      caseID,
			ExecutionID: executionID,
			Data:        payload.Clone(),
			CreatedBy:   actor,
			UpdatedBy:   actor,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		created, err := tx.CreateIncident(ctx, inc)
		if err != nil {
			return goerr.Wrap(err, "failed to create incident")
		}
		if err := uc.env.recorder.Record(ctx, tx, types.TableIncidents, nil, created); err != nil {
			return err
		}

		if caseID != nil {
			if _, err := uc.assignment.createInTx(ctx, tx, created.ID, *caseID, actor, "", now); err != nil {
				return err
			}
		}

		result = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetIncident returns the incident or model.ErrNotFound
func (uc *IncidentUseCase) GetIncident(ctx context.Context, id int64) (*model.Incident, error) {
	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	inc, err := uc.env.repo.Incident().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get incident", goerr.V(model.IncidentIDKey, id))
	}
	return inc, nil
}

// ListIncidents iterates incidents matching filter in creation order. Pages are fetched lazily and
// every range over the sequence starts from the beginning. Iteration stops after the first error.
func (uc *IncidentUseCase) ListIncidents(ctx context.Context, filter model.IncidentFilter) iter.Seq2[*model.Incident, error] {
	return func(yield func(*model.Incident, error) bool) {
		if err := filter.Validate(); err != nil {
			yield(nil, err)
			return
		}

		var cursor *model.IncidentCursor
		for {
			page, err := uc.listPage(ctx, filter, cursor)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, inc := range page {
				if !yield(inc, nil) {
					return
				}
			}
			if len(page) < uc.env.pageSize {
				return
			}

			next := model.CursorOf(page[len(page)-1])
			cursor = &next
		}
	}
}

func (uc *IncidentUseCase) listPage(ctx context.Context, filter model.IncidentFilter, cursor *model.IncidentCursor) ([]*model.Incident, error) {
	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	page, err := uc.env.repo.Incident().List(ctx, filter, cursor, uc.env.pageSize)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list incidents")
	}
	return page, nil
}

// ArchiveIncident marks an incident as archived. Linked incidents can only be archived once their
// case has reached a terminal state. Archiving twice is a no-op.
func (uc *IncidentUseCase) ArchiveIncident(ctx context.Context, id int64, actor types.ActorID) (*model.Incident, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}

	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	var result *model.Incident
	err := uc.env.repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		inc, err := tx.GetIncident(ctx, id)
		if err != nil {
			return goerr.Wrap(err, "failed to get incident")
		}
		if inc.IsArchived() {
			result = inc
			return nil
		}

		if inc.CaseID != nil {
			c, err := tx.GetCase(ctx, *inc.CaseID)
			if err != nil {
				return goerr.Wrap(err, "failed to get case", goerr.V(model.CaseIDKey, *inc.CaseID))
			}
			if !uc.env.graph.IsTerminal(c.State) {
				return goerr.Wrap(model.ErrInvalidState, "incident is linked to an active case",
					goerr.V(model.CaseIDKey, c.ID), goerr.V(model.FromStateKey, c.State))
			}
		}

		archived, err := archiveInTx(ctx, tx, uc.env, inc, actor, uc.env.now())
		if err != nil {
			return err
		}
		result = archived
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to archive incident", goerr.V(model.IncidentIDKey, id))
	}
	return result, nil
}

func archiveInTx(ctx context.Context, tx interfaces.Tx, env *engine, inc *model.Incident, actor types.ActorID, now time.Time) (*model.Incident, error) {
	next := inc.Clone()
	next.ArchivedAt = &now
	next.UpdatedBy = actor
	next.UpdatedAt = now

	updated, err := tx.UpdateIncident(ctx, next)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update incident", goerr.V(model.IncidentIDKey, inc.ID))
	}
	if err := env.recorder.Record(ctx, tx, types.TableIncidents, inc, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// IngestResult is the outcome of one IngestExecution call
type IngestResult struct {
	Execution   *model.BotExecution
	IncidentIDs []int64
}

// IngestExecution stores a bot execution and registers each payload as an unassigned incident
// referencing it. The execution commits first; incidents are registered independently with bounded
// concurrency. On error the result still lists the incidents that were registered.
func (uc *IncidentUseCase) IngestExecution(ctx context.Context, exec *model.BotExecution, payloads []model.Document) (*IngestResult, error) {
	if exec == nil {
		return nil, goerr.Wrap(model.ErrValidation, "bot execution is required")
	}
	pending := exec.Clone()
	if pending.IncidentsDetected == 0 {
		pending.IncidentsDetected = int64(len(payloads))
	}
	if pending.IncidentsDetected != int64(len(payloads)) {
		return nil, goerr.Wrap(model.ErrValidation, "incidents detected does not match payload count",
			goerr.V("incidents_detected", pending.IncidentsDetected), goerr.V("payloads", len(payloads)))
	}
	if err := pending.Validate(); err != nil {
		return nil, err
	}
	for i, p := range payloads {
		if p.IsZero() {
			return nil, goerr.Wrap(model.ErrValidation, "incident payload must be a JSON object", goerr.V("index", i))
		}
	}

	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	var created *model.BotExecution
	err := uc.env.repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		pending.CreatedAt = uc.env.now()
		pending.ExecutedAt = pending.ExecutedAt.UTC().Truncate(time.Microsecond)

		e, err := tx.CreateBotExecution(ctx, pending)
		if err != nil {
			return goerr.Wrap(err, "failed to create bot execution")
		}
		if err := uc.env.recorder.Record(ctx, tx, types.TableBotExecutions, nil, e); err != nil {
			return err
		}
		created = e
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to ingest execution", goerr.V("bot_id", exec.BotID))
	}

	result := &IngestResult{Execution: created}
	actor := types.ActorID("bot:" + created.BotID)
	executionID := created.ID
	ids := make([]int64, len(payloads))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(uc.env.ingestConcurrency)
	for i, payload := range payloads {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return goerr.Wrap(err, "ingestion cancelled", goerr.V("index", i))
			}
			inc, err := uc.register(egCtx, nil, &executionID, payload, actor)
			if err != nil {
				return goerr.Wrap(err, "failed to register incident", goerr.V("index", i))
			}
			ids[i] = inc.ID
			return nil
		})
	}
	waitErr := eg.Wait()

	for _, id := range ids {
		if id != 0 {
			result.IncidentIDs = append(result.IncidentIDs, id)
		}
	}

	logging.From(ctx).Info("ingested bot execution",
		"execution_id", created.ID,
		"bot_id", created.BotID,
		"registered", len(result.IncidentIDs),
		"payloads", len(payloads),
	)

	if waitErr != nil {
		return result, goerr.Wrap(waitErr, "failed to ingest execution", goerr.V(model.ExecutionIDKey, created.ID))
	}
	return result, nil
}

// GetExecution returns a bot execution or model.ErrNotFound
func (uc *IncidentUseCase) GetExecution(ctx context.Context, id int64) (*model.BotExecution, error) {
	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	e, err := uc.env.repo.BotExecution().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get bot execution", goerr.V(model.ExecutionIDKey, id))
	}
	return e, nil
}

// ListExecutions returns executions ordered by execution time, optionally of one bot only
func (uc *IncidentUseCase) ListExecutions(ctx context.Context, botID string) ([]*model.BotExecution, error) {
	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	list, err := uc.env.repo.BotExecution().List(ctx, botID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list bot executions", goerr.V("bot_id", botID))
	}
	return list, nil
}
