package usecase

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/model"
)

// ValidationIssue represents a single inconsistency found during the DB check
type ValidationIssue struct {
	CaseID     int64
	IncidentID int64
	Message    string
	Expected   string
	Actual     string
}

// ValidationResult holds the results of DB validation
type ValidationResult struct {
	Cases     int
	Incidents int
	Issues    []ValidationIssue
}

// HasIssues returns true if there are any validation issues
func (r *ValidationResult) HasIssues() bool {
	return len(r.Issues) > 0
}

// AddIssue adds a validation issue to the result
func (r *ValidationResult) AddIssue(issue ValidationIssue) {
	r.Issues = append(r.Issues, issue)
}

func formatCaseID(id *int64) string {
	if id == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *id)
}

// ValidateDB checks that stored data agrees with the workflow and with itself:
// every case is in a declared state, every incident's case link matches its active assignment, and
// linked archived incidents belong to terminal cases.
// It does NOT modify any data.
func (uc *UseCases) ValidateDB(ctx context.Context) (*ValidationResult, error) {
	result := &ValidationResult{}
	graph := uc.env.graph

	cases, err := uc.Case.ListCases(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list cases")
	}
	caseByID := make(map[int64]*model.Case, len(cases))
	for _, c := range cases {
		caseByID[c.ID] = c
		if !graph.Has(c.State) {
			result.AddIssue(ValidationIssue{
				CaseID:  c.ID,
				Message: "case is in a state the workflow does not declare",
				Actual:  c.State.String(),
			})
		}
	}
	result.Cases = len(cases)

	for inc, err := range uc.Incident.ListIncidents(ctx, model.IncidentFilter{}) {
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list incidents")
		}
		result.Incidents++

		active, err := uc.env.repo.Assignment().GetActive(ctx, inc.ID)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get active assignment", goerr.V(model.IncidentIDKey, inc.ID))
		}

		var linked *int64
		if active != nil {
			linked = &active.CaseID
		}
		if formatCaseID(linked) != formatCaseID(inc.CaseID) {
			result.AddIssue(ValidationIssue{
				IncidentID: inc.ID,
				Message:    "incident case link does not match its active assignment",
				Expected:   formatCaseID(linked),
				Actual:     formatCaseID(inc.CaseID),
			})
		}
		if active == nil {
			continue
		}

		c, ok := caseByID[active.CaseID]
		if !ok {
			result.AddIssue(ValidationIssue{
				CaseID:     active.CaseID,
				IncidentID: inc.ID,
				Message:    "active assignment references a missing case",
			})
			continue
		}
		if inc.ArchivedAt != nil && !graph.IsTerminal(c.State) {
			result.AddIssue(ValidationIssue{
				CaseID:     c.ID,
				IncidentID: inc.ID,
				Message:    "archived incident is linked to a case that is still in progress",
				Actual:     c.State.String(),
			})
		}
	}

	return result, nil
}
