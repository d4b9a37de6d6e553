package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
)

type caseRepository struct {
	f *Firestore
}

func (r *caseRepository) Get(ctx context.Context, id int64) (*model.Case, error) {
	docSnap, err := r.f.collection(collCases).Doc(docID(id)).Get(ctx)
	if err != nil {
		return nil, mapError(err, "case not found", goerr.V(model.CaseIDKey, id))
	}

	var c model.Case
	if err := docSnap.DataTo(&c); err != nil {
		return nil, model.WrapPersistence(err, "failed to decode case", goerr.V(model.CaseIDKey, id))
	}
	return &c, nil
}

func (r *caseRepository) List(ctx context.Context, opts ...interfaces.ListCaseOption) ([]*model.Case, error) {
	cfg := interfaces.BuildListCaseConfig(opts...)

	q := r.f.collection(collCases).OrderBy("ID", firestore.Asc)
	if state := cfg.State(); state != nil {
		q = r.f.collection(collCases).Where("State", "==", state.String()).OrderBy("ID", firestore.Asc)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	cases := []*model.Case{}
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, model.WrapPersistence(err, "failed to iterate cases")
		}

		var c model.Case
		if err := docSnap.DataTo(&c); err != nil {
			return nil, model.WrapPersistence(err, "failed to decode case", goerr.V("doc_id", docSnap.Ref.ID))
		}
		cases = append(cases, &c)
	}
	return cases, nil
}
