package repository_test

import (
	"context"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
)

func runAssignmentRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Active assignment links the incident", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		c := createCase(t, repo, "link")
		inc := createIncident(t, repo, `{"a":1}`, now())
		a := assign(t, repo, inc.ID, c.ID)

		active, err := repo.Assignment().GetActive(ctx, inc.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, active.ID).Equal(a.ID)
		gt.Value(t, active.CaseID).Equal(c.ID)
		gt.Value(t, active.Reason).Equal("triage")

		got, err := repo.Incident().Get(ctx, inc.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, got.CaseID != nil && *got.CaseID == c.ID).True()
	})

	t.Run("Second active assignment conflicts", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		c1 := createCase(t, repo, "first")
		c2 := createCase(t, repo, "second")
		inc := createIncident(t, repo, `{"a":1}`, now())
		assign(t, repo, inc.ID, c1.ID)

		err := repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
			return tx.CreateAssignment(ctx, model.NewAssignment(inc.ID, c2.ID, "analyst-1", "", now()))
		})
		gt.Error(t, err).Is(model.ErrConflict)

		active, err := repo.Assignment().GetActive(ctx, inc.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, active.CaseID).Equal(c1.ID)
	})

	t.Run("Deactivation keeps history and unlinks", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		c := createCase(t, repo, "history")
		inc := createIncident(t, repo, `{"a":1}`, now())
		a := assign(t, repo, inc.ID, c.ID)

		err := repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
			cur, err := tx.GetActiveAssignment(ctx, inc.ID)
			if err != nil {
				return err
			}
			return tx.UpdateAssignment(ctx, cur.Deactivate("analyst-2", now()))
		})
		gt.NoError(t, err).Required()

		active, err := repo.Assignment().GetActive(ctx, inc.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, active == nil).True()

		got, err := repo.Incident().Get(ctx, inc.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, got.CaseID == nil).True()

		history, err := repo.Assignment().ListByIncident(ctx, inc.ID)
		gt.NoError(t, err).Required()
		gt.Array(t, history).Length(1)
		gt.Value(t, history[0].ID).Equal(a.ID)
		gt.Bool(t, history[0].Active).False()
		gt.Value(t, history[0].DeactivatedBy).Equal(types.ActorID("analyst-2"))
		gt.Bool(t, history[0].DeactivatedAt != nil).True()

		current, err := repo.Assignment().ListByCase(ctx, c.ID, false)
		gt.NoError(t, err).Required()
		gt.Array(t, current).Length(0)

		all, err := repo.Assignment().ListByCase(ctx, c.ID, true)
		gt.NoError(t, err).Required()
		gt.Array(t, all).Length(1)
	})

	t.Run("Active assignments by case inside a transaction", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		c := createCase(t, repo, "by case")
		inc1 := createIncident(t, repo, `{"a":1}`, now())
		inc2 := createIncident(t, repo, `{"a":2}`, now())
		assign(t, repo, inc1.ID, c.ID)
		assign(t, repo, inc2.ID, c.ID)

		var got []*model.Assignment
		err := repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
			var err error
			got, err = tx.ListActiveAssignmentsByCase(ctx, c.ID)
			return err
		})
		gt.NoError(t, err).Required()
		gt.Array(t, got).Length(2)
	})

	t.Run("Concurrent assignment of one incident yields one active row", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		inc := createIncident(t, repo, `{"a":1}`, now())
		var caseIDs []int64
		for i := 0; i < 8; i++ {
			caseIDs = append(caseIDs, createCase(t, repo, "race").ID)
		}

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for _, caseID := range caseIDs {
			wg.Add(1)
			go func(caseID int64) {
				defer wg.Done()
				err := repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
					cur, err := tx.GetActiveAssignment(ctx, inc.ID)
					if err != nil {
						return err
					}
					if cur != nil {
						return model.ErrConflict
					}
					return tx.CreateAssignment(ctx, model.NewAssignment(inc.ID, caseID, "analyst-1", "", now()))
				})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}(caseID)
		}
		wg.Wait()

		gt.Value(t, succeeded).Equal(1)

		history, err := repo.Assignment().ListByIncident(ctx, inc.ID)
		gt.NoError(t, err).Required()
		active := 0
		for _, a := range history {
			if a.Active {
				active++
			}
		}
		gt.Value(t, active).Equal(1)
	})
}
