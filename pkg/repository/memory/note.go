package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/model"
)

type noteRepository struct {
	s *store
}

func (s *store) getNote(id int64) (*model.Note, error) {
	n, exists := s.notes[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "note not found", goerr.V(model.NoteIDKey, id))
	}
	return n.Clone(), nil
}

func (r *noteRepository) Get(ctx context.Context, id int64) (*model.Note, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return r.s.getNote(id)
}

func (r *noteRepository) ListByCase(ctx context.Context, caseID int64) ([]*model.Note, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	notes := []*model.Note{}
	for _, n := range r.s.notes {
		if n.CaseID == caseID {
			notes = append(notes, n.Clone())
		}
	}
	slices.SortFunc(notes, func(a, b *model.Note) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return notes, nil
}
