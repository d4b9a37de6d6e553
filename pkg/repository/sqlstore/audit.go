package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
)

type auditRepository struct {
	c conn
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if raw == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func rawJSON(s sql.NullString) json.RawMessage {
	if !s.Valid {
		return nil
	}
	return json.RawMessage(s.String)
}

func (r *auditRepository) List(ctx context.Context, q model.AuditQuery) ([]*model.AuditLogEntry, error) {
	var (
		where []string
		args  []any
	)
	if q.TableName != "" {
		where = append(where, `table_name = ?`)
		args = append(args, q.TableName.String())
	}
	if q.From != nil {
		where = append(where, `"timestamp" >= ?`)
		args = append(args, toNanos(*q.From))
	}
	if q.To != nil {
		where = append(where, `"timestamp" <= ?`)
		args = append(args, toNanos(*q.To))
	}

	stmt := `SELECT id, table_name, "timestamp", "old", "new" FROM audit_log`
	if len(where) > 0 {
		stmt += ` WHERE ` + strings.Join(where, ` AND `)
	}
	stmt += ` ORDER BY "timestamp", id`
	if q.Limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := r.c.query(ctx, stmt, args...)
	if err != nil {
		return nil, model.WrapPersistence(err, "failed to list audit entries")
	}
	defer rows.Close()

	entries := []*model.AuditLogEntry{}
	for rows.Next() {
		var (
			e                model.AuditLogEntry
			table            string
			ts               int64
			oldSnap, newSnap sql.NullString
		)
		if err := rows.Scan(&e.ID, &table, &ts, &oldSnap, &newSnap); err != nil {
			return nil, model.WrapPersistence(err, "failed to scan audit entry")
		}
		e.TableName = types.TableName(table)
		e.Timestamp = fromNanos(ts)
		e.Old = rawJSON(oldSnap)
		e.New = rawJSON(newSnap)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, model.WrapPersistence(err, "failed to iterate audit entries")
	}
	return entries, nil
}
