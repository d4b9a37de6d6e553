package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
)

// NoteUseCase manages the annotation log of a case. Edits and deletions after the grace period
// follow the configured NotePolicy.
type NoteUseCase struct {
	env *engine
}

func (uc *NoteUseCase) AddNote(ctx context.Context, caseID int64, author types.ActorID, comment, attachmentRef string) (*model.Note, error) {
	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	var result *model.Note
	err := uc.env.repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		now := uc.env.now()
		n := &model.Note{
			CaseID:        caseID,
			Author:        author,
			Comment:       comment,
			AttachmentRef: attachmentRef,
			UpdatedBy:     author,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := n.Validate(); err != nil {
			return err
		}
		if _, err := tx.GetCase(ctx, caseID); err != nil {
			return goerr.Wrap(err, "failed to get case")
		}

		created, err := tx.CreateNote(ctx, n)
		if err != nil {
			return goerr.Wrap(err, "failed to create note")
		}
		if err := uc.env.recorder.Record(ctx, tx, types.TableNotes, nil, created); err != nil {
			return err
		}
		result = created
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to add note", goerr.V(model.CaseIDKey, caseID))
	}
	return result, nil
}

// UpdateNote replaces the comment and attachment of a note
func (uc *NoteUseCase) UpdateNote(ctx context.Context, noteID int64, comment, attachmentRef string, actor types.ActorID) (*model.Note, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}

	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	var result *model.Note
	err := uc.env.repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		cur, err := tx.GetNote(ctx, noteID)
		if err != nil {
			return goerr.Wrap(err, "failed to get note")
		}

		now := uc.env.now()
		flagged, err := uc.env.notePolicy.CheckEdit(cur, now)
		if err != nil {
			return err
		}

		next := cur.Clone()
		next.Comment = comment
		next.AttachmentRef = attachmentRef
		next.UpdatedBy = actor
		next.UpdatedAt = now
		next.EditedAfterGrace = cur.EditedAfterGrace || flagged
		if err := next.Validate(); err != nil {
			return err
		}

		updated, err := tx.UpdateNote(ctx, next)
		if err != nil {
			return goerr.Wrap(err, "failed to update note")
		}
		if err := uc.env.recorder.Record(ctx, tx, types.TableNotes, cur, updated); err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update note", goerr.V(model.NoteIDKey, noteID))
	}
	return result, nil
}

// DeleteNote removes a note. The audit entry keeps its last content.
func (uc *NoteUseCase) DeleteNote(ctx context.Context, noteID int64, actor types.ActorID) error {
	if err := validateActor(actor); err != nil {
		return err
	}

	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	err := uc.env.repo.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		cur, err := tx.GetNote(ctx, noteID)
		if err != nil {
			return goerr.Wrap(err, "failed to get note")
		}
		if _, err := uc.env.notePolicy.CheckEdit(cur, uc.env.now()); err != nil {
			return err
		}

		if err := tx.DeleteNote(ctx, noteID); err != nil {
			return goerr.Wrap(err, "failed to delete note")
		}
		return uc.env.recorder.Record(ctx, tx, types.TableNotes, cur, nil)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to delete note", goerr.V(model.NoteIDKey, noteID), goerr.V(model.ActorKey, actor))
	}
	return nil
}

// ListNotes returns the notes of a case in creation order
func (uc *NoteUseCase) ListNotes(ctx context.Context, caseID int64) ([]*model.Note, error) {
	ctx, cancel := uc.env.bound(ctx)
	defer cancel()

	if _, err := uc.env.repo.Case().Get(ctx, caseID); err != nil {
		return nil, goerr.Wrap(err, "failed to get case", goerr.V(model.CaseIDKey, caseID))
	}
	notes, err := uc.env.repo.Note().ListByCase(ctx, caseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list notes", goerr.V(model.CaseIDKey, caseID))
	}
	return notes, nil
}
