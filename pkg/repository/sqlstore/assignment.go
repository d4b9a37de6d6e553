package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
)

const assignmentColumns = `id, incident_id, case_id, assigned_by, assigned_at, reason, active, deactivated_by, deactivated_at`

type assignmentRepository struct {
	c conn
}

func scanAssignment(row rowScanner) (*model.Assignment, error) {
	var (
		a                         model.Assignment
		assignedBy, deactivatedBy string
		assignedAt                int64
		deactivatedAt             sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.IncidentID, &a.CaseID, &assignedBy, &assignedAt, &a.Reason, &a.Active,
		&deactivatedBy, &deactivatedAt); err != nil {
		return nil, err
	}

	a.AssignedBy = types.ActorID(assignedBy)
	a.AssignedAt = fromNanos(assignedAt)
	a.DeactivatedBy = types.ActorID(deactivatedBy)
	a.DeactivatedAt = timePtr(deactivatedAt)
	return &a, nil
}

func queryAssignments(ctx context.Context, c conn, q string, args ...any) ([]*model.Assignment, error) {
	rows, err := c.query(ctx, q, args...)
	if err != nil {
		return nil, model.WrapPersistence(err, "failed to list assignments")
	}
	defer rows.Close()

	out := []*model.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, model.WrapPersistence(err, "failed to scan assignment")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, model.WrapPersistence(err, "failed to iterate assignments")
	}
	return out, nil
}

func getActiveAssignment(ctx context.Context, c conn, incidentID int64) (*model.Assignment, error) {
	a, err := scanAssignment(c.queryRow(ctx,
		`SELECT `+assignmentColumns+` FROM case_incident_assignments WHERE incident_id = ? AND active = ?`,
		incidentID, true))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.WrapPersistence(err, "failed to get active assignment", goerr.V(model.IncidentIDKey, incidentID))
	}
	return a, nil
}

func (r *assignmentRepository) GetActive(ctx context.Context, incidentID int64) (*model.Assignment, error) {
	return getActiveAssignment(ctx, r.c, incidentID)
}

func (r *assignmentRepository) ListByCase(ctx context.Context, caseID int64, includeHistory bool) ([]*model.Assignment, error) {
	q := `SELECT ` + assignmentColumns + ` FROM case_incident_assignments WHERE case_id = ?`
	args := []any{caseID}
	if !includeHistory {
		q += ` AND active = ?`
		args = append(args, true)
	}
	q += ` ORDER BY assigned_at, id`
	return queryAssignments(ctx, r.c, q, args...)
}

func (r *assignmentRepository) ListByIncident(ctx context.Context, incidentID int64) ([]*model.Assignment, error) {
	return queryAssignments(ctx, r.c,
		`SELECT `+assignmentColumns+` FROM case_incident_assignments WHERE incident_id = ? ORDER BY assigned_at, id`,
		incidentID)
}
