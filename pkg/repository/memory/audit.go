package memory

import (
	"context"
	"slices"

	"github.com/betwatch/casekeeper/pkg/domain/model"
)

type auditRepository struct {
	s *store
}

func (r *auditRepository) List(ctx context.Context, q model.AuditQuery) ([]*model.AuditLogEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	entries := []*model.AuditLogEntry{}
	for _, e := range r.s.audit {
		if q.Match(e) {
			entries = append(entries, e.Clone())
		}
	}

	slices.SortStableFunc(entries, model.CompareAuditEntries)
	if q.Limit > 0 && len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}
	return entries, nil
}
