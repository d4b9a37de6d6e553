package repository_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
)

func runIncidentRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create and Get keep payload order", func(t *testing.T) {
		repo := newRepo(t)

		created := createIncident(t, repo, `{"userId":"u-9","amount":1250.5,"rules":["velocity","geo"]}`, now())
		gt.Value(t, created.ID).NotEqual(int64(0))
		gt.Bool(t, created.CaseID == nil).True()

		got, err := repo.Incident().Get(context.Background(), created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Data.Keys()).Equal([]string{"userId", "amount", "rules"})

		raw, err := json.Marshal(got.Data)
		gt.NoError(t, err).Required()
		gt.Value(t, string(raw)).Equal(`{"userId":"u-9","amount":1250.5,"rules":["velocity","geo"]}`)
	})

	t.Run("Get returns not found", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.Incident().Get(context.Background(), time.Now().UnixNano())
		gt.Error(t, err).Is(model.ErrNotFound)
	})

	t.Run("List pages by creation time with inclusive bounds", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		base := now().Add(-time.Hour)
		var ids []int64
		for i := 0; i < 5; i++ {
			inc := createIncident(t, repo, `{"n":1}`, base.Add(time.Duration(i)*time.Minute))
			ids = append(ids, inc.ID)
		}

		from := base.Add(time.Minute)
		to := base.Add(3 * time.Minute)
		filter := model.IncidentFilter{From: &from, To: &to}

		page1, err := repo.Incident().List(ctx, filter, nil, 2)
		gt.NoError(t, err).Required()
		gt.Array(t, page1).Length(2)
		gt.Value(t, page1[0].ID).Equal(ids[1])
		gt.Value(t, page1[1].ID).Equal(ids[2])

		cursor := model.CursorOf(page1[1])
		page2, err := repo.Incident().List(ctx, filter, &cursor, 2)
		gt.NoError(t, err).Required()
		gt.Array(t, page2).Length(1)
		gt.Value(t, page2[0].ID).Equal(ids[3])

		cursor = model.CursorOf(page2[0])
		page3, err := repo.Incident().List(ctx, filter, &cursor, 2)
		gt.NoError(t, err).Required()
		gt.Array(t, page3).Length(0)
	})

	t.Run("List filters by case", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		c := createCase(t, repo, "filter by case")
		inc1 := createIncident(t, repo, `{"a":1}`, now())
		createIncident(t, repo, `{"a":2}`, now())
		assign(t, repo, inc1.ID, c.ID)

		caseID := c.ID
		got, err := repo.Incident().List(ctx, model.IncidentFilter{CaseID: &caseID}, nil, 0)
		gt.NoError(t, err).Required()
		gt.Array(t, got).Length(1)
		gt.Value(t, got[0].ID).Equal(inc1.ID)
	})

	t.Run("Update stores archive timestamp", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		inc := createIncident(t, repo, `{"a":1}`, now())
		archived := now()
		err := repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
			cur, err := tx.GetIncident(ctx, inc.ID)
			if err != nil {
				return err
			}
			cur.ArchivedAt = &archived
			cur.UpdatedBy = "analyst-3"
			_, err = tx.UpdateIncident(ctx, cur)
			return err
		})
		gt.NoError(t, err).Required()

		got, err := repo.Incident().Get(ctx, inc.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, got.IsArchived()).True()
		gt.Bool(t, got.ArchivedAt.Equal(archived)).True()
		gt.Value(t, got.Data.Keys()).Equal([]string{"a"})
	})
}
