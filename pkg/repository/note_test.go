package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
)

func createNote(t *testing.T, repo interfaces.Repository, caseID int64, comment string, at time.Time) *model.Note {
	t.Helper()

	var created *model.Note
	err := repo.RunInTx(context.Background(), func(ctx context.Context, tx interfaces.Tx) error {
		var err error
		created, err = tx.CreateNote(ctx, &model.Note{
			CaseID:    caseID,
			Author:    "analyst-1",
			Comment:   comment,
			UpdatedBy: "analyst-1",
			CreatedAt: at,
			UpdatedAt: at,
		})
		return err
	})
	gt.NoError(t, err).Required()
	return created
}

func runNoteRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create, update and list in order", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		c := createCase(t, repo, "notes")
		base := now().Add(-time.Minute)
		first := createNote(t, repo, c.ID, "called the customer", base)
		second := createNote(t, repo, c.ID, "requested documents", base.Add(time.Second))
		gt.Value(t, first.ID).NotEqual(second.ID)

		err := repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
			n, err := tx.GetNote(ctx, first.ID)
			if err != nil {
				return err
			}
			n.Comment = "called the customer twice"
			n.AttachmentRef = "gs://evidence/call.mp3"
			n.UpdatedBy = "analyst-2"
			n.EditedAfterGrace = true
			_, err = tx.UpdateNote(ctx, n)
			return err
		})
		gt.NoError(t, err).Required()

		got, err := repo.Note().Get(ctx, first.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Comment).Equal("called the customer twice")
		gt.Value(t, got.AttachmentRef).Equal("gs://evidence/call.mp3")
		gt.Bool(t, got.EditedAfterGrace).True()
		gt.Bool(t, got.CreatedAt.Equal(first.CreatedAt)).True()

		notes, err := repo.Note().ListByCase(ctx, c.ID)
		gt.NoError(t, err).Required()
		gt.Array(t, notes).Length(2)
		gt.Value(t, notes[0].ID).Equal(first.ID)
		gt.Value(t, notes[1].ID).Equal(second.ID)
	})

	t.Run("Delete removes the note", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		c := createCase(t, repo, "delete")
		n := createNote(t, repo, c.ID, "typo", now())

		err := repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
			return tx.DeleteNote(ctx, n.ID)
		})
		gt.NoError(t, err).Required()

		_, err = repo.Note().Get(ctx, n.ID)
		gt.Error(t, err).Is(model.ErrNotFound)

		err = repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
			return tx.DeleteNote(ctx, n.ID)
		})
		gt.Error(t, err).Is(model.ErrNotFound)
	})
}
