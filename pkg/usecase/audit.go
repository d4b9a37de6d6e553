package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
)

// AuditRecorder writes before/after snapshots of mutated entities. It only ever runs inside the
// caller's transaction, so a failed audit write aborts the mutation it documents.
type AuditRecorder struct {
	env *engine
}

// Record appends one entry for table. A nil oldValue records a creation, a nil newValue a deletion.
func (r *AuditRecorder) Record(ctx context.Context, tx interfaces.Tx, table types.TableName, oldValue, newValue any) error {
	oldSnap, err := model.Snapshot(oldValue)
	if err != nil {
		return err
	}
	newSnap, err := model.Snapshot(newValue)
	if err != nil {
		return err
	}

	entry, err := model.NewAuditLogEntry(table, oldSnap, newSnap, r.env.now())
	if err != nil {
		return err
	}
	if err := tx.AppendAudit(ctx, entry); err != nil {
		return goerr.Wrap(err, "failed to append audit entry", goerr.V(model.TableNameKey, table))
	}
	return nil
}

// ListAuditEntries returns entries matching q ordered by timestamp
func (r *AuditRecorder) ListAuditEntries(ctx context.Context, q model.AuditQuery) ([]*model.AuditLogEntry, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := r.env.bound(ctx)
	defer cancel()

	entries, err := r.env.repo.Audit().List(ctx, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list audit entries", goerr.V(model.TableNameKey, q.TableName))
	}
	return entries, nil
}
