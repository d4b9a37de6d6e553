package sqlstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
)

const incidentColumns = `id, case_id, execution_id, data_json, created_by, updated_by, archived_at, created_at, updated_at`

type incidentRepository struct {
	c conn
}

func scanIncident(row rowScanner) (*model.Incident, error) {
	var (
		inc                  model.Incident
		caseID, executionID  sql.NullInt64
		data                 string
		createdBy, updatedBy string
		archivedAt           sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&inc.ID, &caseID, &executionID, &data, &createdBy, &updatedBy, &archivedAt,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}

	doc, err := model.ParseDocument([]byte(data))
	if err != nil {
		return nil, goerr.Wrap(err, "stored incident data is not a JSON object", goerr.V(model.IncidentIDKey, inc.ID))
	}

	inc.CaseID = int64Ptr(caseID)
	inc.ExecutionID = int64Ptr(executionID)
	inc.Data = doc
	inc.CreatedBy = types.ActorID(createdBy)
	inc.UpdatedBy = types.ActorID(updatedBy)
	inc.ArchivedAt = timePtr(archivedAt)
	inc.CreatedAt = fromNanos(createdAt)
	inc.UpdatedAt = fromNanos(updatedAt)
	return &inc, nil
}

func encodeDocument(doc model.Document) (string, error) {
	if doc.IsZero() {
		return "{}", nil
	}
	data, err := doc.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// getIncident locks the incident row on PostgreSQL when lock is set. Assignment writes lock the
// incident first so concurrent writers on the same incident serialize.
func getIncident(ctx context.Context, c conn, id int64, lock bool) (*model.Incident, error) {
	q := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = ?`
	if lock && c.dialect == DialectPostgres {
		q += ` FOR UPDATE`
	}

	inc, err := scanIncident(c.queryRow(ctx, q, id))
	if err != nil {
		return nil, mapError(err, "incident not found", goerr.V(model.IncidentIDKey, id))
	}
	return inc, nil
}

func (r *incidentRepository) Get(ctx context.Context, id int64) (*model.Incident, error) {
	return getIncident(ctx, r.c, id, false)
}

func (r *incidentRepository) List(ctx context.Context, filter model.IncidentFilter, after *model.IncidentCursor, limit int) ([]*model.Incident, error) {
	var (
		where []string
		args  []any
	)
	if filter.CaseID != nil {
		where = append(where, `case_id = ?`)
		args = append(args, *filter.CaseID)
	}
	if filter.From != nil {
		where = append(where, `created_at >= ?`)
		args = append(args, toNanos(*filter.From))
	}
	if filter.To != nil {
		where = append(where, `created_at <= ?`)
		args = append(args, toNanos(*filter.To))
	}
	if after != nil {
		where = append(where, `(created_at > ? OR (created_at = ? AND id > ?))`)
		args = append(args, toNanos(after.CreatedAt), toNanos(after.CreatedAt), after.ID)
	}

	q := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY created_at, id`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.c.query(ctx, q, args...)
	if err != nil {
		return nil, model.WrapPersistence(err, "failed to list incidents")
	}
	defer rows.Close()

	incidents := []*model.Incident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, model.WrapPersistence(err, "failed to scan incident")
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, model.WrapPersistence(err, "failed to iterate incidents")
	}
	return incidents, nil
}
