package coreauth

import (
	"context"
	"encoding/json"
	"net/http"
)

type contextKey int

const identityContextKey contextKey = iota

// IdentityFromContext returns the identity Middleware attached to the
// request context, or "" if none (the handler ran without the middleware).
func IdentityFromContext(ctx context.Context) string {
	v, _ := ctx.Value(identityContextKey).(string)
	return v
}

// Middleware authenticates every request via Authenticate and rejects
// unauthenticated ones with a 401 carrying the WWW-Authenticate header,
// matching RFC 6750 Bearer semantics.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := a.Authenticate(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{
					"message": "API key required. Provide it via 'Authorization: Bearer <key>' or 'X-API-Key: <key>'.",
					"type":    "authentication_error",
				},
			})
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
