// ABOUTME: Authentication context for tracking the viewer through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// AuthContext holds the authenticated viewer extracted from a request.
type AuthContext struct {
	ViewerID    string
	DisplayName string
}

// CanView reports whether the authenticated viewer may act as viewerID.
func (a *AuthContext) CanView(viewerID string) bool {
	return a != nil && a.ViewerID == viewerID
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}
