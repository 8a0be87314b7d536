package auth

import "context"

type contextKey struct{}

// AuthContext carries the authenticated caller through a request.
type AuthContext struct {
	Identity     string
	SessionToken string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// Identity returns the authenticated identity, or "" for anonymous requests.
func Identity(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.Identity
}

// SessionToken returns the request's session token, or "".
func SessionToken(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.SessionToken
}
