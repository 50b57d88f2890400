package shared

import (
	"context"

	"github.com/google/uuid"

	"github.com/freightbill/freightbill/internal/workflow"
)

// Actor is the resolved identity behind an engine call. The API layer
// resolves it once per request; engine entry points take it explicitly and
// never consult ambient session state.
type Actor struct {
	ID   uuid.UUID
	Role workflow.Role
}

// IsZero reports whether the actor is unset.
func (a Actor) IsZero() bool { return a.ID == uuid.Nil && a.Role == "" }

type actorContextKey struct{}

// ContextWithActor stores the resolved actor in context for the HTTP layer.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor placed by the request middleware.
// Returns the zero actor when none was resolved; the engine's role guard
// rejects it on any transition.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
