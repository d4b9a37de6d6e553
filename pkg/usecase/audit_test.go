package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
	"github.com/betwatch/casekeeper/pkg/repository/memory"
	"github.com/betwatch/casekeeper/pkg/usecase"
)

func TestAuditRecorder_Record(t *testing.T) {
	uc, repo, _ := setup(t)
	ctx := context.Background()

	err := repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		return uc.Audit.Record(ctx, tx, types.TableCases, nil, nil)
	})
	gt.Error(t, err).Is(model.ErrValidation)

	var typedNil *model.Case
	err = repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		return uc.Audit.Record(ctx, tx, types.TableCases, typedNil, nil)
	})
	gt.Error(t, err).Is(model.ErrValidation)

	err = repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		return uc.Audit.Record(ctx, tx, types.TableName("users"), nil, map[string]int{"id": 1})
	})
	gt.Error(t, err).Is(model.ErrValidation)

	gt.Array(t, auditEntries(t, uc, "")).Length(0)
}

func TestAuditRecorder_Completeness(t *testing.T) {
	uc, _, clock := setup(t)
	ctx := context.Background()

	start := clock.Now()
	c := openCase(t, uc, "complete")
	inc := registerIncident(t, uc, `{"n":1}`)
	_, err := uc.Assignment.Assign(ctx, inc.ID, c.ID, analyst, "")
	gt.NoError(t, err).Required()
	n, err := uc.Note.AddNote(ctx, c.ID, analyst, "note", "")
	gt.NoError(t, err).Required()
	_, err = uc.Note.UpdateNote(ctx, n.ID, "edited", "", analyst)
	gt.NoError(t, err).Required()
	_, err = uc.Case.Transition(ctx, c.ID, types.CaseStateInvestigating, analyst, nil)
	gt.NoError(t, err).Required()

	// rejected mutations leave no trace
	_, err = uc.Case.Transition(ctx, c.ID, types.CaseStateOpen, analyst, nil)
	gt.Error(t, err).Is(model.ErrInvalidTransition)

	counts := map[types.TableName]int{}
	for _, e := range auditEntries(t, uc, "") {
		counts[e.TableName]++
		gt.B(t, !e.Timestamp.Before(start)).Describef("audit %s is older than the mutation", e.ID).True()
	}
	gt.Value(t, counts).Equal(map[types.TableName]int{
		types.TableCases:       2,
		types.TableIncidents:   2,
		types.TableAssignments: 1,
		types.TableNotes:       2,
	})
}

func TestAuditRecorder_LinkChanges(t *testing.T) {
	uc, _, clock := setup(t)
	ctx := context.Background()

	c1 := openCase(t, uc, "first")
	c2 := openCase(t, uc, "second")
	inc := registerIncident(t, uc, `{"n":1}`)

	steps := []struct {
		name        string
		run         func() error
		incidents   int
		assignments int
	}{
		{"assign", func() error {
			_, err := uc.Assignment.Assign(ctx, inc.ID, c1.ID, analyst, "")
			return err
		}, 1, 1},
		{"reassign", func() error {
			_, err := uc.Assignment.Reassign(ctx, inc.ID, c2.ID, analyst, "")
			return err
		}, 1, 2},
		{"unassign", func() error {
			_, err := uc.Assignment.Unassign(ctx, inc.ID, analyst)
			return err
		}, 1, 1},
	}

	for _, step := range steps {
		clock.Advance(time.Second)
		before := len(auditEntries(t, uc, types.TableIncidents))
		beforeAssignments := len(auditEntries(t, uc, types.TableAssignments))

		gt.NoError(t, step.run()).Required()

		incidents := auditEntries(t, uc, types.TableIncidents)
		gt.Value(t, len(incidents)-before).Equal(step.incidents)
		gt.Value(t, len(auditEntries(t, uc, types.TableAssignments))-beforeAssignments).Equal(step.assignments)
		gt.Value(t, incidents[len(incidents)-1].Operation()).Equal(model.AuditUpdate)
	}

	got, err := uc.Incident.GetIncident(ctx, inc.ID)
	gt.NoError(t, err).Required()
	gt.Bool(t, got.CaseID == nil).True()
}

func TestAuditRecorder_FailureAbortsMutation(t *testing.T) {
	base := memory.New()
	ok := usecase.New(base)
	c, err := ok.Case.OpenCase(context.Background(), "seed", "", analyst)
	gt.NoError(t, err).Required()
	inc, err := ok.Incident.RegisterIncident(context.Background(), nil, mustDocument(t, `{"n":1}`), analyst)
	gt.NoError(t, err).Required()

	broken := usecase.New(&failingAuditRepository{Repository: base})
	ctx := context.Background()

	_, err = broken.Case.OpenCase(ctx, "never stored", "", analyst)
	gt.Error(t, err).Is(model.ErrPersistence)

	_, err = broken.Assignment.Assign(ctx, inc.ID, c.ID, analyst, "")
	gt.Error(t, err).Is(model.ErrPersistence)

	_, err = broken.Case.Transition(ctx, c.ID, types.CaseStateInvestigating, analyst, nil)
	gt.Error(t, err).Is(model.ErrPersistence)

	cases, err := base.Case().List(ctx)
	gt.NoError(t, err).Required()
	gt.Array(t, cases).Length(1)
	gt.Value(t, cases[0].State).Equal(types.CaseStateOpen)

	active, err := base.Assignment().GetActive(ctx, inc.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, active).Nil()
}

func TestAuditRecorder_ListAuditEntries(t *testing.T) {
	uc, _, clock := setup(t)
	ctx := context.Background()

	openCase(t, uc, "first")
	clock.Advance(time.Hour)
	mid := clock.Now()
	openCase(t, uc, "second")

	entries, err := uc.Audit.ListAuditEntries(ctx, model.AuditQuery{TableName: types.TableCases, From: &mid})
	gt.NoError(t, err).Required()
	gt.Array(t, entries).Length(1)

	to := mid.Add(-time.Hour)
	_, err = uc.Audit.ListAuditEntries(ctx, model.AuditQuery{From: &mid, To: &to})
	gt.Error(t, err).Is(model.ErrValidation)

	_, err = uc.Audit.ListAuditEntries(ctx, model.AuditQuery{TableName: "users"})
	gt.Error(t, err).Is(model.ErrValidation)
}
