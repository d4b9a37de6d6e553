package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"github.com/betwatch/casekeeper/pkg/domain/model"
)

type auditRepository struct {
	f *Firestore
}

func (r *auditRepository) List(ctx context.Context, q model.AuditQuery) ([]*model.AuditLogEntry, error) {
	query := r.f.collection(collAuditLog).Query
	if q.TableName != "" {
		query = query.Where("TableName", "==", q.TableName.String())
	}
	if q.From != nil {
		query = query.Where("Timestamp", ">=", *q.From)
	}
	if q.To != nil {
		query = query.Where("Timestamp", "<=", *q.To)
	}
	query = query.OrderBy("Timestamp", firestore.Asc).OrderBy("ID", firestore.Asc)
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	entries := []*model.AuditLogEntry{}
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, model.WrapPersistence(err, "failed to iterate audit entries")
		}
		var d auditDoc
		if err := docSnap.DataTo(&d); err != nil {
			return nil, model.WrapPersistence(err, "failed to decode audit entry", goerr.V("doc_id", docSnap.Ref.ID))
		}
		entries = append(entries, d.toModel())
	}
	return entries, nil
}
