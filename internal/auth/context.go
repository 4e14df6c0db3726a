package auth

import "context"

type contextKey string

const authContextKey contextKey = "relay_auth"

// AuthInfo holds the per-request credential extracted by the middleware.
// The Authorization value is opaque to the relay and forwarded verbatim
// upstream.
type AuthInfo struct {
	Authorization string
}

func ContextWithAuth(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authContextKey, info)
}

func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authContextKey).(*AuthInfo)
	return info, ok
}
