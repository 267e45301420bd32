package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the acting user's ID in the context. The identity
// layer supplies the value; the core only records who acted.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting user's ID, zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
