package firestore

import (
	"cmp"
	"context"
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"github.com/betwatch/casekeeper/pkg/domain/model"
)

type botExecutionRepository struct {
	f *Firestore
}

func (r *botExecutionRepository) Get(ctx context.Context, id int64) (*model.BotExecution, error) {
	docSnap, err := r.f.collection(collBotExecutions).Doc(docID(id)).Get(ctx)
	if err != nil {
		return nil, mapError(err, "bot execution not found", goerr.V(model.ExecutionIDKey, id))
	}
	var e model.BotExecution
	if err := docSnap.DataTo(&e); err != nil {
		return nil, model.WrapPersistence(err, "failed to decode bot execution", goerr.V(model.ExecutionIDKey, id))
	}
	return &e, nil
}

func (r *botExecutionRepository) List(ctx context.Context, botID string) ([]*model.BotExecution, error) {
	q := r.f.collection(collBotExecutions).Query
	if botID != "" {
		q = q.Where("BotID", "==", botID)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	out := []*model.BotExecution{}
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, model.WrapPersistence(err, "failed to iterate bot executions")
		}
		var e model.BotExecution
		if err := docSnap.DataTo(&e); err != nil {
			return nil, model.WrapPersistence(err, "failed to decode bot execution", goerr.V("doc_id", docSnap.Ref.ID))
		}
		out = append(out, &e)
	}

	slices.SortFunc(out, func(a, b *model.BotExecution) int {
		if c := a.ExecutedAt.Compare(b.ExecutedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
