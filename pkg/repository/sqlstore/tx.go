package sqlstore

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
)

type sqlTxAdapter struct {
	c       conn
	dialect Dialect
}

var _ interfaces.Tx = &sqlTxAdapter{}

func (tx *sqlTxAdapter) GetCase(ctx context.Context, id int64) (*model.Case, error) {
	return getCase(ctx, tx.c, id, true)
}

func (tx *sqlTxAdapter) CreateCase(ctx context.Context, c *model.Case) (*model.Case, error) {
	created := c.Clone()
	created.Version = 1

	err := tx.c.queryRow(ctx, `INSERT INTO cases (description, state_id, affected_user_id, close_date,
			close_detail, close_evidence, opened_by, updated_by, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		created.Description, created.State.String(), created.AffectedUserID, nullNanos(created.CloseDate),
		created.CloseDetail, created.CloseEvidence, created.OpenedBy.String(), created.UpdatedBy.String(),
		created.Version, toNanos(created.CreatedAt), toNanos(created.UpdatedAt),
	).Scan(&created.ID)
	if err != nil {
		return nil, mapError(err, "failed to create case")
	}
	return created, nil
}

func (tx *sqlTxAdapter) UpdateCase(ctx context.Context, c *model.Case) (*model.Case, error) {
	res, err := tx.c.exec(ctx, `UPDATE cases SET description = ?, state_id = ?, affected_user_id = ?,
			close_date = ?, close_detail = ?, close_evidence = ?, updated_by = ?, version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?`,
		c.Description, c.State.String(), c.AffectedUserID, nullNanos(c.CloseDate), c.CloseDetail,
		c.CloseEvidence, c.UpdatedBy.String(), toNanos(c.UpdatedAt), c.ID, c.Version,
	)
	if err != nil {
		return nil, mapError(err, "failed to update case", goerr.V(model.CaseIDKey, c.ID))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, model.WrapPersistence(err, "failed to read affected rows", goerr.V(model.CaseIDKey, c.ID))
	}
	if affected == 0 {
		if _, err := getCase(ctx, tx.c, c.ID, false); err != nil {
			return nil, err
		}
		return nil, goerr.Wrap(model.ErrConflict, "case was modified concurrently",
			goerr.V(model.CaseIDKey, c.ID), goerr.V("version", c.Version))
	}

	updated := c.Clone()
	updated.Version = c.Version + 1
	return updated, nil
}

func (tx *sqlTxAdapter) GetIncident(ctx context.Context, id int64) (*model.Incident, error) {
	return getIncident(ctx, tx.c, id, false)
}

func (tx *sqlTxAdapter) CreateIncident(ctx context.Context, inc *model.Incident) (*model.Incident, error) {
	created := inc.Clone()
	data, err := encodeDocument(created.Data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode incident data")
	}

	err = tx.c.queryRow(ctx, `INSERT INTO incidents (case_id, execution_id, data_json, created_by, updated_by,
			archived_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		nullInt64(created.CaseID), nullInt64(created.ExecutionID), data, created.CreatedBy.String(),
		created.UpdatedBy.String(), nullNanos(created.ArchivedAt), toNanos(created.CreatedAt),
		toNanos(created.UpdatedAt),
	).Scan(&created.ID)
	if err != nil {
		return nil, mapError(err, "failed to create incident")
	}
	return created, nil
}

func (tx *sqlTxAdapter) UpdateIncident(ctx context.Context, inc *model.Incident) (*model.Incident, error) {
	data, err := encodeDocument(inc.Data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode incident data", goerr.V(model.IncidentIDKey, inc.ID))
	}

	res, err := tx.c.exec(ctx, `UPDATE incidents SET case_id = ?, execution_id = ?, data_json = ?,
			updated_by = ?, archived_at = ?, updated_at = ?
		WHERE id = ?`,
		nullInt64(inc.CaseID), nullInt64(inc.ExecutionID), data, inc.UpdatedBy.String(),
		nullNanos(inc.ArchivedAt), toNanos(inc.UpdatedAt), inc.ID,
	)
	if err != nil {
		return nil, mapError(err, "failed to update incident", goerr.V(model.IncidentIDKey, inc.ID))
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, model.WrapPersistence(err, "failed to read affected rows", goerr.V(model.IncidentIDKey, inc.ID))
	} else if affected == 0 {
		return nil, goerr.Wrap(model.ErrNotFound, "incident not found", goerr.V(model.IncidentIDKey, inc.ID))
	}
	return inc.Clone(), nil
}

// GetActiveAssignment locks the incident row first so that concurrent assignment writers on the same
// incident queue behind each other on PostgreSQL. SQLite transactions already hold the write lock.
func (tx *sqlTxAdapter) GetActiveAssignment(ctx context.Context, incidentID int64) (*model.Assignment, error) {
	if _, err := getIncident(ctx, tx.c, incidentID, true); err != nil {
		return nil, err
	}
	return getActiveAssignment(ctx, tx.c, incidentID)
}

func (tx *sqlTxAdapter) ListActiveAssignmentsByCase(ctx context.Context, caseID int64) ([]*model.Assignment, error) {
	return queryAssignments(ctx, tx.c,
		`SELECT `+assignmentColumns+` FROM case_incident_assignments WHERE case_id = ? AND active = ? ORDER BY assigned_at, id`,
		caseID, true)
}

func (tx *sqlTxAdapter) CreateAssignment(ctx context.Context, a *model.Assignment) error {
	_, err := tx.c.exec(ctx, `INSERT INTO case_incident_assignments (id, incident_id, case_id, assigned_by,
			assigned_at, reason, active, deactivated_by, deactivated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.IncidentID, a.CaseID, a.AssignedBy.String(), toNanos(a.AssignedAt), a.Reason, a.Active,
		a.DeactivatedBy.String(), nullNanos(a.DeactivatedAt),
	)
	if err != nil {
		return mapError(err, "failed to create assignment",
			goerr.V(model.IncidentIDKey, a.IncidentID), goerr.V(model.CaseIDKey, a.CaseID))
	}

	if a.Active {
		if _, err := tx.c.exec(ctx, `UPDATE incidents SET case_id = ? WHERE id = ?`, a.CaseID, a.IncidentID); err != nil {
			return mapError(err, "failed to link incident", goerr.V(model.IncidentIDKey, a.IncidentID))
		}
	}
	return nil
}

func (tx *sqlTxAdapter) UpdateAssignment(ctx context.Context, a *model.Assignment) error {
	if a.Active {
		return goerr.Wrap(model.ErrInvalidState, "assignments can only be deactivated", goerr.V(model.AssignmentIDKey, a.ID))
	}

	res, err := tx.c.exec(ctx, `UPDATE case_incident_assignments SET active = ?, deactivated_by = ?, deactivated_at = ?
		WHERE id = ?`,
		false, a.DeactivatedBy.String(), nullNanos(a.DeactivatedAt), a.ID,
	)
	if err != nil {
		return mapError(err, "failed to update assignment", goerr.V(model.AssignmentIDKey, a.ID))
	}
	if affected, err := res.RowsAffected(); err != nil {
		return model.WrapPersistence(err, "failed to read affected rows", goerr.V(model.AssignmentIDKey, a.ID))
	} else if affected == 0 {
		return goerr.Wrap(model.ErrNotFound, "assignment not found", goerr.V(model.AssignmentIDKey, a.ID))
	}

	if _, err := tx.c.exec(ctx, `UPDATE incidents SET case_id = NULL WHERE id = ? AND case_id = ?`,
		a.IncidentID, a.CaseID); err != nil {
		return mapError(err, "failed to unlink incident", goerr.V(model.IncidentIDKey, a.IncidentID))
	}
	return nil
}

func (tx *sqlTxAdapter) GetNote(ctx context.Context, id int64) (*model.Note, error) {
	return getNote(ctx, tx.c, id)
}

func (tx *sqlTxAdapter) CreateNote(ctx context.Context, n *model.Note) (*model.Note, error) {
	created := n.Clone()
	err := tx.c.queryRow(ctx, `INSERT INTO case_notes (case_id, author, comment, attachment_ref, updated_by,
			edited_after_grace, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		created.CaseID, created.Author.String(), created.Comment, created.AttachmentRef,
		created.UpdatedBy.String(), created.EditedAfterGrace, toNanos(created.CreatedAt), toNanos(created.UpdatedAt),
	).Scan(&created.ID)
	if err != nil {
		return nil, mapError(err, "failed to create note", goerr.V(model.CaseIDKey, n.CaseID))
	}
	return created, nil
}

func (tx *sqlTxAdapter) UpdateNote(ctx context.Context, n *model.Note) (*model.Note, error) {
	res, err := tx.c.exec(ctx, `UPDATE case_notes SET comment = ?, attachment_ref = ?, updated_by = ?,
			edited_after_grace = ?, updated_at = ?
		WHERE id = ?`,
		n.Comment, n.AttachmentRef, n.UpdatedBy.String(), n.EditedAfterGrace, toNanos(n.UpdatedAt), n.ID,
	)
	if err != nil {
		return nil, mapError(err, "failed to update note", goerr.V(model.NoteIDKey, n.ID))
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, model.WrapPersistence(err, "failed to read affected rows", goerr.V(model.NoteIDKey, n.ID))
	} else if affected == 0 {
		return nil, goerr.Wrap(model.ErrNotFound, "note not found", goerr.V(model.NoteIDKey, n.ID))
	}
	return n.Clone(), nil
}

func (tx *sqlTxAdapter) DeleteNote(ctx context.Context, id int64) error {
	res, err := tx.c.exec(ctx, `DELETE FROM case_notes WHERE id = ?`, id)
	if err != nil {
		return mapError(err, "failed to delete note", goerr.V(model.NoteIDKey, id))
	}
	if affected, err := res.RowsAffected(); err != nil {
		return model.WrapPersistence(err, "failed to read affected rows", goerr.V(model.NoteIDKey, id))
	} else if affected == 0 {
		return goerr.Wrap(model.ErrNotFound, "note not found", goerr.V(model.NoteIDKey, id))
	}
	return nil
}

func (tx *sqlTxAdapter) CreateBotExecution(ctx context.Context, e *model.BotExecution) (*model.BotExecution, error) {
	created := e.Clone()
	err := tx.c.queryRow(ctx, `INSERT INTO bot_executions (bot_id, executed_at, records_processed,
			incidents_detected, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`,
		created.BotID, toNanos(created.ExecutedAt), created.RecordsProcessed, created.IncidentsDetected,
		toNanos(created.CreatedAt),
	).Scan(&created.ID)
	if err != nil {
		return nil, mapError(err, "failed to create bot execution", goerr.V("bot_id", e.BotID))
	}
	return created, nil
}

func (tx *sqlTxAdapter) AppendAudit(ctx context.Context, e *model.AuditLogEntry) error {
	_, err := tx.c.exec(ctx, `INSERT INTO audit_log (id, table_name, "timestamp", "old", "new")
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.TableName.String(), toNanos(e.Timestamp), nullJSON(e.Old), nullJSON(e.New),
	)
	if err != nil {
		return mapError(err, "failed to append audit entry", goerr.V(model.TableNameKey, e.TableName))
	}
	return nil
}
