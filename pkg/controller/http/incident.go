package http

import (
	"context"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
	"github.com/betwatch/casekeeper/pkg/utils/errutil"
)

const (
	defaultIncidentLimit = 100
	maxIncidentLimit     = 1000
)

type registerIncidentRequest struct {
	CaseID *int64         `json:"caseId"`
	Data   model.Document `json:"data"`
}

type listIncidentsResponse struct {
	Incidents []*model.Incident `json:"incidents"`
	// Truncated is set when more incidents matched than limit
	Truncated bool `json:"truncated"`
}

type assignRequest struct {
	CaseID int64  `json:"caseId"`
	Reason string `json:"reason"`
}

type ingestRequest struct {
	BotID             string           `json:"botId"`
	ExecutedAt        time.Time        `json:"executedAt"`
	RecordsProcessed  int64            `json:"recordsProcessed"`
	IncidentsDetected int64            `json:"incidentsDetected"`
	Incidents         []model.Document `json:"incidents"`
}

type ingestResponse struct {
	Execution   *model.BotExecution `json:"execution"`
	IncidentIDs []int64             `json:"incidentIds"`
	Error       string              `json:"error,omitempty"`
}

func (s *Server) listIncidents(w http.ResponseWriter, r *http.Request) {
	caseID, err := queryID(r, "caseId")
	if err != nil {
		writeError(w, r, err)
		return
	}
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
	limit, err := queryInt(r, "limit", defaultIncidentLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if limit == 0 || limit > maxIncidentLimit {
		writeError(w, r, goerr.Wrap(model.ErrValidation, "limit out of range", goerr.V("limit", limit)))
		return
	}

	resp := listIncidentsResponse{Incidents: []*model.Incident{}}
	filter := model.IncidentFilter{CaseID: caseID, From: from, To: to}
	for inc, err := range s.uc.Incident.ListIncidents(r.Context(), filter) {
		if err != nil {
			writeError(w, r, err)
			return
		}
		if len(resp.Incidents) == limit {
			resp.Truncated = true
			break
		}
		resp.Incidents = append(resp.Incidents, inc)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) registerIncident(w http.ResponseWriter, r *http.Request) {
	var req registerIncidentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	inc, err := s.uc.Incident.RegisterIncident(r.Context(), req.CaseID, req.Data, actorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, inc)
}

func (s *Server) getIncident(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "incidentID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	inc, err := s.uc.Incident.GetIncident(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, inc)
}

func (s *Server) archiveIncident(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "incidentID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	inc, err := s.uc.Incident.ArchiveIncident(r.Context(), id, actorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, inc)
}

func (s *Server) listIncidentAssignments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "incidentID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	assignments, err := s.uc.Assignment.ListAssignmentsForIncident(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, assignments)
}

func (s *Server) assignIncident(w http.ResponseWriter, r *http.Request) {
	s.handleAssign(w, r, s.uc.Assignment.Assign)
}

func (s *Server) reassignIncident(w http.ResponseWriter, r *http.Request) {
	s.handleAssign(w, r, s.uc.Assignment.Reassign)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, incidentID, caseID int64, by types.ActorID, reason string) (*model.Assignment, error)) {
	id, err := pathID(r, "incidentID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	a, err := fn(r.Context(), id, req.CaseID, actorFromContext(r.Context()), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, a)
}

func (s *Server) unassignIncident(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "incidentID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	a, err := s.uc.Assignment.Unassign(r.Context(), id, actorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, a)
}

func (s *Server) ingestExecution(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.uc.Incident.IngestExecution(r.Context(), &model.BotExecution{
		BotID:             req.BotID,
		ExecutedAt:        req.ExecutedAt,
		RecordsProcessed:  req.RecordsProcessed,
		IncidentsDetected: req.IncidentsDetected,
	}, req.Incidents)
	if err != nil && result == nil {
		writeError(w, r, err)
		return
	}

	resp := ingestResponse{Execution: result.Execution, IncidentIDs: result.IncidentIDs}
	if err != nil {
		errutil.Handle(r.Context(), err, "incident registration failed during ingestion")
		resp.Error = err.Error()
		writeJSON(w, r, http.StatusMultiStatus, resp)
		return
	}
	writeJSON(w, r, http.StatusCreated, resp)
}

func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "executionID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.uc.Incident.GetExecution(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, e)
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	list, err := s.uc.Incident.ListExecutions(r.Context(), r.URL.Query().Get("botId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}
