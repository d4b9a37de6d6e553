package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/betwatch/casekeeper/pkg/domain/types"
	"github.com/betwatch/casekeeper/pkg/utils/logging"
)

type ctxActorKey struct{}

func contextWithActor(ctx context.Context, actor types.ActorID) context.Context {
	return context.WithValue(ctx, ctxActorKey{}, actor)
}

func actorFromContext(ctx context.Context) types.ActorID {
	actor, _ := ctx.Value(ctxActorKey{}).(types.ActorID)
	return actor
}

// actorMiddleware resolves the acting user from ActorHeader, falling back to defaultActor
func actorMiddleware(defaultActor types.ActorID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := types.ActorID(strings.TrimSpace(r.Header.Get(ActorHeader)))
			if actor == "" {
				actor = defaultActor
			}
			if err := actor.Validate(); err != nil {
				http.Error(w, "acting user is required", http.StatusUnauthorized)
				return
			}

			ctx := contextWithActor(r.Context(), actor)
			ctx = logging.With(ctx, logging.From(ctx).With("actor", actor.String()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
