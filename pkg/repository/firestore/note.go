package firestore

import (
	"cmp"
	"context"
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"github.com/betwatch/casekeeper/pkg/domain/model"
)

type noteRepository struct {
	f *Firestore
}

func (r *noteRepository) Get(ctx context.Context, id int64) (*model.Note, error) {
	docSnap, err := r.f.collection(collNotes).Doc(docID(id)).Get(ctx)
	if err != nil {
		return nil, mapError(err, "note not found", goerr.V(model.NoteIDKey, id))
	}
	var n model.Note
	if err := docSnap.DataTo(&n); err != nil {
		return nil, model.WrapPersistence(err, "failed to decode note", goerr.V(model.NoteIDKey, id))
	}
	return &n, nil
}

func (r *noteRepository) ListByCase(ctx context.Context, caseID int64) ([]*model.Note, error) {
	iter := r.f.collection(collNotes).Where("CaseID", "==", caseID).Documents(ctx)
	defer iter.Stop()

	notes := []*model.Note{}
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, model.WrapPersistence(err, "failed to iterate notes", goerr.V(model.CaseIDKey, caseID))
		}
		var n model.Note
		if err := docSnap.DataTo(&n); err != nil {
			return nil, model.WrapPersistence(err, "failed to decode note", goerr.V("doc_id", docSnap.Ref.ID))
		}
		notes = append(notes, &n)
	}

	slices.SortFunc(notes, func(a, b *model.Note) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return notes, nil
}
