package sqlstore

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/model"
)

const botExecutionColumns = `id, bot_id, executed_at, records_processed, incidents_detected, created_at`

type botExecutionRepository struct {
	c conn
}

func scanBotExecution(row rowScanner) (*model.BotExecution, error) {
	var (
		e                     model.BotExecution
		executedAt, createdAt int64
	)
	if err := row.Scan(&e.ID, &e.BotID, &executedAt, &e.RecordsProcessed, &e.IncidentsDetected, &createdAt); err != nil {
		return nil, err
	}
	e.ExecutedAt = fromNanos(executedAt)
	e.CreatedAt = fromNanos(createdAt)
	return &e, nil
}

func (r *botExecutionRepository) Get(ctx context.Context, id int64) (*model.BotExecution, error) {
	e, err := scanBotExecution(r.c.queryRow(ctx, `SELECT `+botExecutionColumns+` FROM bot_executions WHERE id = ?`, id))
	if err != nil {
		return nil, mapError(err, "bot execution not found", goerr.V(model.ExecutionIDKey, id))
	}
	return e, nil
}

func (r *botExecutionRepository) List(ctx context.Context, botID string) ([]*model.BotExecution, error) {
	q := `SELECT ` + botExecutionColumns + ` FROM bot_executions`
	var args []any
	if botID != "" {
		q += ` WHERE bot_id = ?`
		args = append(args, botID)
	}
	q += ` ORDER BY executed_at, id`

	rows, err := r.c.query(ctx, q, args...)
	if err != nil {
		return nil, model.WrapPersistence(err, "failed to list bot executions")
	}
	defer rows.Close()

	out := []*model.BotExecution{}
	for rows.Next() {
		e, err := scanBotExecution(rows)
		if err != nil {
			return nil, model.WrapPersistence(err, "failed to scan bot execution")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, model.WrapPersistence(err, "failed to iterate bot executions")
	}
	return out, nil
}
