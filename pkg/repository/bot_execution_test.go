package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
)

func runBotExecutionRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create, get and list by bot", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		botID := fmt.Sprintf("velocity-%d", time.Now().UnixNano())
		base := now().Add(-time.Hour)

		var created []*model.BotExecution
		for i, at := range []time.Time{base.Add(time.Minute), base} {
			err := repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
				e, err := tx.CreateBotExecution(ctx, &model.BotExecution{
					BotID:             botID,
					ExecutedAt:        at,
					RecordsProcessed:  int64(1000 * (i + 1)),
					IncidentsDetected: int64(i),
					CreatedAt:         now(),
				})
				if err != nil {
					return err
				}
				created = append(created, e)
				return nil
			})
			gt.NoError(t, err).Required()
		}

		got, err := repo.BotExecution().Get(ctx, created[0].ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.BotID).Equal(botID)
		gt.Value(t, got.RecordsProcessed).Equal(int64(1000))

		list, err := repo.BotExecution().List(ctx, botID)
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(2)
		gt.Value(t, list[0].ID).Equal(created[1].ID)
		gt.Value(t, list[1].ID).Equal(created[0].ID)

		_, err = repo.BotExecution().Get(ctx, time.Now().UnixNano())
		gt.Error(t, err).Is(model.ErrNotFound)
	})
}
