package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/model"
)

type botExecutionRepository struct {
	s *store
}

func (r *botExecutionRepository) Get(ctx context.Context, id int64) (*model.BotExecution, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, exists := r.s.executions[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "bot execution not found", goerr.V(model.ExecutionIDKey, id))
	}
	return e.Clone(), nil
}

func (r *botExecutionRepository) List(ctx context.Context, botID string) ([]*model.BotExecution, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*model.BotExecution{}
	for _, e := range r.s.executions {
		if botID != "" && e.BotID != botID {
			continue
		}
		out = append(out, e.Clone())
	}
	slices.SortFunc(out, func(a, b *model.BotExecution) int {
		if c := a.ExecutedAt.Compare(b.ExecutedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
