package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/betwatch/casekeeper/pkg/domain/model"
)

type assignmentRepository struct {
	s *store
}

func compareAssignments(a, b *model.Assignment) int {
	if c := a.AssignedAt.Compare(b.AssignedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func (r *assignmentRepository) GetActive(ctx context.Context, incidentID int64) (*model.Assignment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.active[incidentID]
	if !ok {
		return nil, nil
	}
	return r.s.assignments[id].Clone(), nil
}

func (r *assignmentRepository) ListByCase(ctx context.Context, caseID int64, includeHistory bool) ([]*model.Assignment, error) {
	return r.list(func(a *model.Assignment) bool {
		return a.CaseID == caseID && (includeHistory || a.Active)
	}), nil
}

func (r *assignmentRepository) ListByIncident(ctx context.Context, incidentID int64) ([]*model.Assignment, error) {
	return r.list(func(a *model.Assignment) bool {
		return a.IncidentID == incidentID
	}), nil
}

func (r *assignmentRepository) list(match func(a *model.Assignment) bool) []*model.Assignment {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*model.Assignment{}
	for _, a := range r.s.assignments {
		if match(a) {
			out = append(out, a.Clone())
		}
	}
	slices.SortFunc(out, compareAssignments)
	return out
}
