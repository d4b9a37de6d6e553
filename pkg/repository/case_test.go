package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
)

func runCaseRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create assigns ID and version", func(t *testing.T) {
		repo := newRepo(t)

		case1 := createCase(t, repo, "phishing cluster")
		case2 := createCase(t, repo, "bonus abuse")

		gt.Value(t, case1.ID).NotEqual(int64(0))
		gt.Value(t, case2.ID).NotEqual(case1.ID)
		gt.Value(t, case1.Version).Equal(int64(1))

		got, err := repo.Case().Get(context.Background(), case1.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Description).Equal("phishing cluster")
		gt.Value(t, got.State).Equal(types.CaseStateOpen)
		gt.Value(t, got.OpenedBy).Equal(types.ActorID("analyst-1"))
		gt.Bool(t, got.CreatedAt.Equal(case1.CreatedAt)).True()
		gt.Bool(t, got.CloseDate == nil).True()
	})

	t.Run("Get returns not found", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.Case().Get(context.Background(), time.Now().UnixNano())
		gt.Error(t, err).Is(model.ErrNotFound)
	})

	t.Run("Update bumps version and rejects stale writes", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		created := createCase(t, repo, "account takeover")

		closeDate := now()
		err := repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
			c, err := tx.GetCase(ctx, created.ID)
			if err != nil {
				return err
			}
			c.State = types.CaseStateClosed
			c.CloseDate = &closeDate
			c.CloseDetail = "confirmed fraud"
			c.UpdatedBy = "analyst-2"
			_, err = tx.UpdateCase(ctx, c)
			return err
		})
		gt.NoError(t, err).Required()

		got, err := repo.Case().Get(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Version).Equal(int64(2))
		gt.Value(t, got.State).Equal(types.CaseStateClosed)
		gt.Value(t, got.CloseDetail).Equal("confirmed fraud")
		gt.Bool(t, got.CloseDate != nil && got.CloseDate.Equal(closeDate)).True()

		err = repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
			_, err := tx.UpdateCase(ctx, created) // still version 1
			return err
		})
		gt.Error(t, err).Is(model.ErrConflict)
	})

	t.Run("Update of missing case is not found", func(t *testing.T) {
		repo := newRepo(t)

		err := repo.RunInTx(context.Background(), func(ctx context.Context, tx interfaces.Tx) error {
			_, err := tx.UpdateCase(ctx, &model.Case{ID: time.Now().UnixNano(), Version: 1, State: types.CaseStateOpen})
			return err
		})
		gt.Error(t, err).Is(model.ErrNotFound)
	})

	t.Run("List filters by state", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		open := createCase(t, repo, "open one")
		closing := createCase(t, repo, "closed one")
		err := repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
			c, err := tx.GetCase(ctx, closing.ID)
			if err != nil {
				return err
			}
			c.State = types.CaseStateInvestigating
			_, err = tx.UpdateCase(ctx, c)
			return err
		})
		gt.NoError(t, err).Required()

		investigating, err := repo.Case().List(ctx, interfaces.WithState(types.CaseStateInvestigating))
		gt.NoError(t, err).Required()

		ids := map[int64]bool{}
		for _, c := range investigating {
			gt.Value(t, c.State).Equal(types.CaseStateInvestigating)
			ids[c.ID] = true
		}
		gt.Bool(t, ids[closing.ID]).True()
		gt.Bool(t, ids[open.ID]).False()

		all, err := repo.Case().List(ctx)
		gt.NoError(t, err).Required()
		gt.Number(t, len(all)).GreaterOrEqual(2)
	})
}
