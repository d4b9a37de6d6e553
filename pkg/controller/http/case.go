package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
	"github.com/betwatch/casekeeper/pkg/usecase"
)

type openCaseRequest struct {
	Description    string `json:"description"`
	AffectedUserID string `json:"affectedUserId"`
}

type openFromIncidentsRequest struct {
	IncidentIDs []int64 `json:"incidentIds"`
	Description string  `json:"description"`
}

type partialFailureResponse struct {
	Case      *model.Case      `json:"case"`
	Succeeded []int64          `json:"succeeded"`
	Failed    []failedIncident `json:"failed"`
}

type failedIncident struct {
	IncidentID int64  `json:"incidentId"`
	Status     int    `json:"status"`
	Error      string `json:"error"`
}

type updateCaseRequest struct {
	Description    *string `json:"description"`
	AffectedUserID *string `json:"affectedUserId"`
}

type closureRequest struct {
	Date     time.Time `json:"date"`
	Detail   string    `json:"detail"`
	Evidence string    `json:"evidence"`
}

type transitionRequest struct {
	State   types.CaseState `json:"state"`
	Closure *closureRequest `json:"closure"`
}

type closeCaseRequest struct {
	Detail   string `json:"detail"`
	Evidence string `json:"evidence"`
}

type workflowResponse struct {
	Initial types.CaseState         `json:"initial"`
	States  []model.StateDefinition `json:"states"`
	Edges   []model.StateEdge       `json:"edges"`
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	graph := s.uc.StateGraph()
	writeJSON(w, r, http.StatusOK, workflowResponse{
		Initial: graph.Initial(),
		States:  graph.States(),
		Edges:   graph.Edges(),
	})
}

func (s *Server) listCases(w http.ResponseWriter, r *http.Request) {
	var state *types.CaseState
	if raw := r.URL.Query().Get("state"); raw != "" {
		st := types.CaseState(raw)
		state = &st
	}

	cases, err := s.uc.Case.ListCases(r.Context(), state)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, cases)
}

func (s *Server) openCase(w http.ResponseWriter, r *http.Request) {
	var req openCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.uc.Case.OpenCase(r.Context(), req.Description, req.AffectedUserID, actorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, c)
}

func (s *Server) openCaseFromIncidents(w http.ResponseWriter, r *http.Request) {
	var req openFromIncidentsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.uc.Case.OpenCaseFromIncidents(r.Context(), req.IncidentIDs, req.Description, actorFromContext(r.Context()))
	var partial *model.PartialFailureError
	if errors.As(err, &partial) {
		resp := partialFailureResponse{Case: c, Succeeded: partial.Succeeded}
		for _, f := range partial.Failed {
			resp.Failed = append(resp.Failed, failedIncident{
				IncidentID: f.IncidentID,
				Status:     statusOf(f.Err),
				Error:      f.Err.Error(),
			})
		}
		writeJSON(w, r, http.StatusMultiStatus, resp)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, c)
}

func (s *Server) getCase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.uc.Case.GetCase(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (s *Server) updateCase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.uc.Case.UpdateCase(r.Context(), id, usecase.CaseUpdate{
		Description:    req.Description,
		AffectedUserID: req.AffectedUserID,
	}, actorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (s *Server) transitionCase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var closure *model.Closure
	if req.Closure != nil {
		closure = &model.Closure{
			Date:     req.Closure.Date,
			Detail:   req.Closure.Detail,
			Evidence: req.Closure.Evidence,
		}
	}

	c, err := s.uc.Case.Transition(r.Context(), id, req.State, actorFromContext(r.Context()), closure)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (s *Server) closeCase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req closeCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.uc.Case.CloseCase(r.Context(), id, req.Detail, req.Evidence, actorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (s *Server) listCaseAssignments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	history := r.URL.Query().Get("history") == "true"

	assignments, err := s.uc.Assignment.ListAssignmentsForCase(r.Context(), id, history)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, assignments)
}
