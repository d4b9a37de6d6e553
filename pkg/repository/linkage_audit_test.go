package repository_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
	"github.com/betwatch/casekeeper/pkg/usecase"
)

// tickingClock returns strictly increasing times so audit entries of separate steps sort apart
func tickingClock() func() time.Time {
	base := now()
	var ticks atomic.Int64
	return func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * time.Millisecond)
	}
}

func auditCounts(t *testing.T, uc *usecase.UseCases) map[types.TableName]int {
	t.Helper()

	entries, err := uc.Audit.ListAuditEntries(context.Background(), model.AuditQuery{})
	gt.NoError(t, err).Required()
	counts := map[types.TableName]int{}
	for _, e := range entries {
		counts[e.TableName]++
	}
	return counts
}

// lastIncidentLink returns the caseId of the old and new snapshots of the latest case-incidents entry
func lastIncidentLink(t *testing.T, uc *usecase.UseCases) (oldCase, newCase any) {
	t.Helper()

	entries, err := uc.Audit.ListAuditEntries(context.Background(), model.AuditQuery{TableName: types.TableIncidents})
	gt.NoError(t, err).Required()
	if len(entries) == 0 {
		t.Fatal("no case-incidents entry")
	}
	last := entries[len(entries)-1]

	var before, after map[string]any
	if len(last.Old) > 0 {
		gt.NoError(t, json.Unmarshal(last.Old, &before)).Required()
	}
	gt.NoError(t, json.Unmarshal(last.New, &after)).Required()
	return before["caseId"], after["caseId"]
}

func runLinkageAuditTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	const actor = types.ActorID("analyst-1")

	t.Run("Every link change audits the incident once", func(t *testing.T) {
		uc := usecase.New(newRepo(t), usecase.WithClock(tickingClock()))
		ctx := context.Background()

		c1, err := uc.Case.OpenCase(ctx, "first", "", actor)
		gt.NoError(t, err).Required()
		c2, err := uc.Case.OpenCase(ctx, "second", "", actor)
		gt.NoError(t, err).Required()
		doc, err := model.ParseDocument([]byte(`{"userId":"u-1"}`))
		gt.NoError(t, err).Required()
		inc, err := uc.Incident.RegisterIncident(ctx, nil, doc, actor)
		gt.NoError(t, err).Required()

		base := auditCounts(t, uc)
		gt.Value(t, base[types.TableIncidents]).Equal(1)

		_, err = uc.Assignment.Assign(ctx, inc.ID, c1.ID, actor, "")
		gt.NoError(t, err).Required()
		counts := auditCounts(t, uc)
		gt.Value(t, counts[types.TableIncidents]).Equal(2)
		gt.Value(t, counts[types.TableAssignments]).Equal(1)
		oldCase, newCase := lastIncidentLink(t, uc)
		gt.Value(t, oldCase).Nil()
		gt.Value(t, newCase).Equal(any(float64(c1.ID)))

		// deactivate and create on the assignment side, one link change on the incident
		_, err = uc.Assignment.Reassign(ctx, inc.ID, c2.ID, actor, "moved")
		gt.NoError(t, err).Required()
		counts = auditCounts(t, uc)
		gt.Value(t, counts[types.TableIncidents]).Equal(3)
		gt.Value(t, counts[types.TableAssignments]).Equal(3)
		oldCase, newCase = lastIncidentLink(t, uc)
		gt.Value(t, oldCase).Equal(any(float64(c1.ID)))
		gt.Value(t, newCase).Equal(any(float64(c2.ID)))

		_, err = uc.Assignment.Unassign(ctx, inc.ID, actor)
		gt.NoError(t, err).Required()
		counts = auditCounts(t, uc)
		gt.Value(t, counts[types.TableIncidents]).Equal(4)
		gt.Value(t, counts[types.TableAssignments]).Equal(4)
		oldCase, newCase = lastIncidentLink(t, uc)
		gt.Value(t, oldCase).Equal(any(float64(c2.ID)))
		gt.Value(t, newCase).Nil()

		got, err := uc.Incident.GetIncident(ctx, inc.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, got.CaseID == nil).True()
		gt.Value(t, got.UpdatedBy).Equal(actor)
	})

	t.Run("No-op assign writes nothing", func(t *testing.T) {
		uc := usecase.New(newRepo(t), usecase.WithClock(tickingClock()))
		ctx := context.Background()

		c, err := uc.Case.OpenCase(ctx, "same", "", actor)
		gt.NoError(t, err).Required()
		doc, err := model.ParseDocument([]byte(`{"n":1}`))
		gt.NoError(t, err).Required()
		inc, err := uc.Incident.RegisterIncident(ctx, nil, doc, actor)
		gt.NoError(t, err).Required()
		_, err = uc.Assignment.Assign(ctx, inc.ID, c.ID, actor, "")
		gt.NoError(t, err).Required()

		before := auditCounts(t, uc)
		_, err = uc.Assignment.Assign(ctx, inc.ID, c.ID, actor, "")
		gt.NoError(t, err).Required()
		gt.Value(t, auditCounts(t, uc)).Equal(before)
	})

	t.Run("Register with case audits the incident once", func(t *testing.T) {
		uc := usecase.New(newRepo(t), usecase.WithClock(tickingClock()))
		ctx := context.Background()

		c, err := uc.Case.OpenCase(ctx, "direct", "", actor)
		gt.NoError(t, err).Required()
		doc, err := model.ParseDocument([]byte(`{"n":1}`))
		gt.NoError(t, err).Required()
		caseID := c.ID
		_, err = uc.Incident.RegisterIncident(ctx, &caseID, doc, actor)
		gt.NoError(t, err).Required()

		counts := auditCounts(t, uc)
		gt.Value(t, counts[types.TableIncidents]).Equal(1)
		gt.Value(t, counts[types.TableAssignments]).Equal(1)
	})
}
