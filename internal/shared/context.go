package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the authenticated account ID in context.
func ContextWithActor(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, accountID)
}

// ActorFromContext extracts the authenticated account ID from context.
func ActorFromContext(ctx context.Context) string {
	id, _ := ctx.Value(actorContextKey{}).(string)
	return id
}
