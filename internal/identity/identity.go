// Package identity carries the authenticated actor through request contexts.
// Authentication itself happens upstream (the Creel gateway); this package
// trusts the identity header the gateway injects.
package identity

import (
	"context"
	"net/http"
	"strings"
)

// Header is set by the gateway after it authenticates the caller.
const Header = "X-Creel-User"

type contextKey struct{}

// WithActor returns a context carrying the given actor ID.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, contextKey{}, actorID)
}

// Actor returns the actor ID from the context, or "" when unauthenticated.
func Actor(ctx context.Context) string {
	actorID, _ := ctx.Value(contextKey{}).(string)
	return actorID
}

// Middleware extracts the gateway identity header into the request context.
// Requests without the header pass through unauthenticated.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actorID := strings.TrimSpace(r.Header.Get(Header)); actorID != "" {
			r = r.WithContext(WithActor(r.Context(), actorID))
		}
		next.ServeHTTP(w, r)
	})
}

// Require rejects unauthenticated requests with 401 before calling next.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if Actor(r.Context()) == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
