package repository_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
)

func appendAudit(t *testing.T, repo interfaces.Repository, table types.TableName, oldSnap, newSnap string, at time.Time) *model.AuditLogEntry {
	t.Helper()

	var o, n json.RawMessage
	if oldSnap != "" {
		o = json.RawMessage(oldSnap)
	}
	if newSnap != "" {
		n = json.RawMessage(newSnap)
	}
	entry, err := model.NewAuditLogEntry(table, o, n, at)
	gt.NoError(t, err).Required()

	err = repo.RunInTx(context.Background(), func(ctx context.Context, tx interfaces.Tx) error {
		return tx.AppendAudit(ctx, entry)
	})
	gt.NoError(t, err).Required()
	return entry
}

func runAuditRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Snapshots round trip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		at := now()
		created := appendAudit(t, repo, types.TableCases, "", `{"id":1,"stateId":"OPEN"}`, at)
		updated := appendAudit(t, repo, types.TableCases, `{"id":1,"stateId":"OPEN"}`, `{"id":1,"stateId":"INVESTIGATING"}`, at.Add(time.Millisecond))
		deleted := appendAudit(t, repo, types.TableNotes, `{"id":7}`, "", at.Add(2*time.Millisecond))

		from := at
		to := at.Add(2 * time.Millisecond)
		entries, err := repo.Audit().List(ctx, model.AuditQuery{From: &from, To: &to})
		gt.NoError(t, err).Required()

		byID := map[string]*model.AuditLogEntry{}
		for _, e := range entries {
			byID[e.ID] = e
		}

		got := byID[created.ID]
		gt.Value(t, got).NotNil()
		gt.Value(t, got.Operation()).Equal(model.AuditCreate)
		gt.Bool(t, got.Old == nil).True()

		got = byID[updated.ID]
		gt.Value(t, got).NotNil()
		gt.Value(t, got.Operation()).Equal(model.AuditUpdate)
		var oldCase, newCase map[string]any
		gt.NoError(t, json.Unmarshal(got.Old, &oldCase)).Required()
		gt.NoError(t, json.Unmarshal(got.New, &newCase)).Required()
		gt.Value(t, oldCase["stateId"]).Equal("OPEN")
		gt.Value(t, newCase["stateId"]).Equal("INVESTIGATING")
		gt.Bool(t, got.Timestamp.Equal(at.Add(time.Millisecond))).True()

		got = byID[deleted.ID]
		gt.Value(t, got).NotNil()
		gt.Value(t, got.Operation()).Equal(model.AuditDelete)
		gt.Value(t, got.TableName).Equal(types.TableNotes)
	})

	t.Run("List filters by table and orders by timestamp", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		base := now().Add(-time.Hour)
		late := appendAudit(t, repo, types.TableBotExecutions, "", `{"id":2}`, base.Add(2*time.Second))
		early := appendAudit(t, repo, types.TableBotExecutions, "", `{"id":1}`, base.Add(time.Second))
		appendAudit(t, repo, types.TableIncidents, "", `{"id":3}`, base.Add(time.Second))

		from := base
		to := base.Add(3 * time.Second)
		entries, err := repo.Audit().List(ctx, model.AuditQuery{
			TableName: types.TableBotExecutions,
			From:      &from,
			To:        &to,
		})
		gt.NoError(t, err).Required()
		gt.Array(t, entries).Length(2)
		gt.Value(t, entries[0].ID).Equal(early.ID)
		gt.Value(t, entries[1].ID).Equal(late.ID)

		limited, err := repo.Audit().List(ctx, model.AuditQuery{From: &from, To: &to, Limit: 1})
		gt.NoError(t, err).Required()
		gt.Array(t, limited).Length(1)
	})
}
