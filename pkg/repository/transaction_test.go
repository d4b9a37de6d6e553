package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
)

func runTransactionTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Error rolls back every write including audit", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		c := createCase(t, repo, "rollback")
		inc := createIncident(t, repo, `{"a":1}`, now())
		errAbort := errors.New("abort")

		var entryID string
		err := repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
			a := model.NewAssignment(inc.ID, c.ID, "analyst-1", "", now())
			if err := tx.CreateAssignment(ctx, a); err != nil {
				return err
			}

			cur, err := tx.GetCase(ctx, c.ID)
			if err != nil {
				return err
			}
			cur.State = types.CaseStateInvestigating
			if _, err := tx.UpdateCase(ctx, cur); err != nil {
				return err
			}

			snap, err := model.Snapshot(a)
			if err != nil {
				return err
			}
			entry, err := model.NewAuditLogEntry(types.TableAssignments, nil, snap, now())
			if err != nil {
				return err
			}
			entryID = entry.ID
			if err := tx.AppendAudit(ctx, entry); err != nil {
				return err
			}
			return errAbort
		})
		gt.Error(t, err).Is(errAbort)

		active, err := repo.Assignment().GetActive(ctx, inc.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, active == nil).True()

		gotCase, err := repo.Case().Get(ctx, c.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, gotCase.State).Equal(types.CaseStateOpen)
		gt.Value(t, gotCase.Version).Equal(c.Version)

		gotInc, err := repo.Incident().Get(ctx, inc.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, gotInc.CaseID == nil).True()

		entries, err := repo.Audit().List(ctx, model.AuditQuery{TableName: types.TableAssignments})
		gt.NoError(t, err).Required()
		for _, e := range entries {
			gt.Value(t, e.ID).NotEqual(entryID)
		}
	})

	t.Run("Created entity is visible inside the same transaction", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		err := repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
			ts := now()
			c, err := tx.CreateCase(ctx, &model.Case{
				Description: "same tx",
				State:       types.CaseStateOpen,
				OpenedBy:    "analyst-1",
				UpdatedBy:   "analyst-1",
				CreatedAt:   ts,
				UpdatedAt:   ts,
			})
			if err != nil {
				return err
			}
			got, err := tx.GetCase(ctx, c.ID)
			if err != nil {
				return err
			}
			if got.Description != "same tx" {
				return errors.New("case not visible")
			}
			return nil
		})
		gt.NoError(t, err)
	})

	t.Run("Cancelled context does not commit", func(t *testing.T) {
		repo := newRepo(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		err := repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
			called = true
			return nil
		})
		gt.Error(t, err)
		gt.Bool(t, called).False()
	})
}
