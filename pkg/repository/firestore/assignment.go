package firestore

import (
	"context"
	"slices"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"github.com/betwatch/casekeeper/pkg/domain/model"
)

type assignmentRepository struct {
	f *Firestore
}

func compareAssignments(a, b *model.Assignment) int {
	if c := a.AssignedAt.Compare(b.AssignedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func (r *assignmentRepository) GetActive(ctx context.Context, incidentID int64) (*model.Assignment, error) {
	snap, err := r.f.collection(collActiveAssignments).Doc(docID(incidentID)).Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, model.WrapPersistence(err, "failed to get active assignment", goerr.V(model.IncidentIDKey, incidentID))
	}

	var p activePointer
	if err := snap.DataTo(&p); err != nil {
		return nil, model.WrapPersistence(err, "failed to decode active assignment", goerr.V(model.IncidentIDKey, incidentID))
	}

	aSnap, err := r.f.collection(collAssignments).Doc(p.AssignmentID).Get(ctx)
	if err != nil {
		return nil, mapError(err, "assignment not found", goerr.V(model.AssignmentIDKey, p.AssignmentID))
	}
	var a model.Assignment
	if err := aSnap.DataTo(&a); err != nil {
		return nil, model.WrapPersistence(err, "failed to decode assignment", goerr.V(model.AssignmentIDKey, p.AssignmentID))
	}
	return &a, nil
}

func (r *assignmentRepository) ListByCase(ctx context.Context, caseID int64, includeHistory bool) ([]*model.Assignment, error) {
	q := r.f.collection(collAssignments).Where("CaseID", "==", caseID)
	if !includeHistory {
		q = q.Where("Active", "==", true)
	}
	return r.list(ctx, q)
}

func (r *assignmentRepository) ListByIncident(ctx context.Context, incidentID int64) ([]*model.Assignment, error) {
	return r.list(ctx, r.f.collection(collAssignments).Where("IncidentID", "==", incidentID))
}

func (r *assignmentRepository) list(ctx context.Context, q firestore.Query) ([]*model.Assignment, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	out := []*model.Assignment{}
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, model.WrapPersistence(err, "failed to iterate assignments")
		}
		var a model.Assignment
		if err := docSnap.DataTo(&a); err != nil {
			return nil, model.WrapPersistence(err, "failed to decode assignment", goerr.V("doc_id", docSnap.Ref.ID))
		}
		out = append(out, &a)
	}

	slices.SortFunc(out, compareAssignments)
	return out, nil
}
