package shared

import "context"

// Scope identifies the tenant, branch and acting user of a request.
// It is populated by the app middleware from trusted gateway headers;
// authentication itself happens upstream.
type Scope struct {
	TenantID int64
	BranchID int64
	ActorID  int64
}

type scopeContextKey struct{}

// ContextWithScope stores the request scope in context.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the request scope from context.
func ScopeFromContext(ctx context.Context) Scope {
	scope, _ := ctx.Value(scopeContextKey{}).(Scope)
	return scope
}
