package memory

import (
	"context"
	"slices"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/model"
)

type incidentRepository struct {
	s *store
}

func (s *store) getIncident(id int64) (*model.Incident, error) {
	inc, exists := s.incidents[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "incident not found", goerr.V(model.IncidentIDKey, id))
	}
	return inc.Clone(), nil
}

func (r *incidentRepository) Get(ctx context.Context, id int64) (*model.Incident, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return r.s.getIncident(id)
}

func (r *incidentRepository) List(ctx context.Context, filter model.IncidentFilter, after *model.IncidentCursor, limit int) ([]*model.Incident, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []*model.Incident
	for _, inc := range r.s.incidents {
		if !filter.Match(inc) {
			continue
		}
		if after != nil && !after.Precedes(inc) {
			continue
		}
		matched = append(matched, inc)
	}

	slices.SortFunc(matched, model.CompareIncidents)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*model.Incident, len(matched))
	for i, inc := range matched {
		out[i] = inc.Clone()
	}
	return out, nil
}
