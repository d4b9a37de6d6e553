package http

import (
	"net/http"

	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
)

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries, err := s.uc.Audit.ListAuditEntries(r.Context(), model.AuditQuery{
		TableName: types.TableName(r.URL.Query().Get("table")),
		From:      from,
		To:        to,
		Limit:     limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*model.AuditLogEntry{}
	}
	writeJSON(w, r, http.StatusOK, entries)
}
