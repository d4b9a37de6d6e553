package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"github.com/betwatch/casekeeper/pkg/domain/model"
)

type incidentRepository struct {
	f *Firestore
}

func (r *incidentRepository) Get(ctx context.Context, id int64) (*model.Incident, error) {
	docSnap, err := r.f.collection(collIncidents).Doc(docID(id)).Get(ctx)
	if err != nil {
		return nil, mapError(err, "incident not found", goerr.V(model.IncidentIDKey, id))
	}

	var d incidentDoc
	if err := docSnap.DataTo(&d); err != nil {
		return nil, model.WrapPersistence(err, "failed to decode incident", goerr.V(model.IncidentIDKey, id))
	}
	return d.toModel()
}

func (r *incidentRepository) List(ctx context.Context, filter model.IncidentFilter, after *model.IncidentCursor, limit int) ([]*model.Incident, error) {
	q := r.f.collection(collIncidents).Query
	if filter.CaseID != nil {
		q = q.Where("CaseID", "==", *filter.CaseID)
	}
	if filter.From != nil {
		q = q.Where("CreatedAt", ">=", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("CreatedAt", "<=", *filter.To)
	}
	q = q.OrderBy("CreatedAt", firestore.Asc).OrderBy("ID", firestore.Asc)
	if after != nil {
		q = q.StartAfter(after.CreatedAt, after.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	incidents := []*model.Incident{}
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, model.WrapPersistence(err, "failed to iterate incidents")
		}

		var d incidentDoc
		if err := docSnap.DataTo(&d); err != nil {
			return nil, model.WrapPersistence(err, "failed to decode incident", goerr.V("doc_id", docSnap.Ref.ID))
		}
		inc, err := d.toModel()
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, nil
}
