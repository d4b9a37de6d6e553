package sqlstore

import (
	"context"
	"database/sql"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
)

const caseColumns = `id, description, state_id, affected_user_id, close_date, close_detail, close_evidence,
	opened_by, updated_by, version, created_at, updated_at`

type caseRepository struct {
	c conn
}

func scanCase(row rowScanner) (*model.Case, error) {
	var (
		c                    model.Case
		state                string
		openedBy, updatedBy  string
		closeDate            sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&c.ID, &c.Description, &state, &c.AffectedUserID, &closeDate, &c.CloseDetail,
		&c.CloseEvidence, &openedBy, &updatedBy, &c.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	c.State = types.CaseState(state)
	c.OpenedBy = types.ActorID(openedBy)
	c.UpdatedBy = types.ActorID(updatedBy)
	c.CloseDate = timePtr(closeDate)
	c.CreatedAt = fromNanos(createdAt)
	c.UpdatedAt = fromNanos(updatedAt)
	return &c, nil
}

func getCase(ctx context.Context, c conn, id int64, lock bool) (*model.Case, error) {
	q := `SELECT ` + caseColumns + ` FROM cases WHERE id = ?`
	if lock && c.dialect == DialectPostgres {
		q += ` FOR UPDATE`
	}

	found, err := scanCase(c.queryRow(ctx, q, id))
	if err != nil {
		return nil, mapError(err, "case not found", goerr.V(model.CaseIDKey, id))
	}
	return found, nil
}

func (r *caseRepository) Get(ctx context.Context, id int64) (*model.Case, error) {
	return getCase(ctx, r.c, id, false)
}

func (r *caseRepository) List(ctx context.Context, opts ...interfaces.ListCaseOption) ([]*model.Case, error) {
	cfg := interfaces.BuildListCaseConfig(opts...)

	q := `SELECT ` + caseColumns + ` FROM cases`
	var args []any
	if state := cfg.State(); state != nil {
		q += ` WHERE state_id = ?`
		args = append(args, state.String())
	}
	q += ` ORDER BY id`

	rows, err := r.c.query(ctx, q, args...)
	if err != nil {
		return nil, model.WrapPersistence(err, "failed to list cases")
	}
	defer rows.Close()

	cases := []*model.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, model.WrapPersistence(err, "failed to scan case")
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, model.WrapPersistence(err, "failed to iterate cases")
	}
	return cases, nil
}
