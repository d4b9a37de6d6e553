package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
)

type caseRepository struct {
	s *store
}

func (s *store) getCase(id int64) (*model.Case, error) {
	c, exists := s.cases[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "case not found", goerr.V(model.CaseIDKey, id))
	}
	return c.Clone(), nil
}

func (r *caseRepository) Get(ctx context.Context, id int64) (*model.Case, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return r.s.getCase(id)
}

func (r *caseRepository) List(ctx context.Context, opts ...interfaces.ListCaseOption) ([]*model.Case, error) {
	cfg := interfaces.BuildListCaseConfig(opts...)

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	cases := make([]*model.Case, 0, len(r.s.cases))
	for _, c := range r.s.cases {
		if state := cfg.State(); state != nil && c.State != *state {
			continue
		}
		cases = append(cases, c.Clone())
	}

	slices.SortFunc(cases, func(a, b *model.Case) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return cases, nil
}
