package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/recircle/rewards/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// CallerIDKey is the context key for the authenticated approval caller.
	CallerIDKey contextKey = "caller_id"
	// SourceKey is the context key for the approval source ("auto", "review").
	SourceKey contextKey = "source"
)

// GetCallerID extracts the caller ID from the context.
// Returns empty string if not found.
func GetCallerID(ctx context.Context) string {
	callerID, _ := ctx.Value(CallerIDKey).(string)
	return callerID
}

// GetSource extracts the approval source from the context.
func GetSource(ctx context.Context) string {
	source, _ := ctx.Value(SourceKey).(string)
	return source
}

// RequireAuth returns middleware that validates bearer tokens and requires
// authentication. The caller's identity is added to the request context.
func RequireAuth(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, auth.ErrMissingToken.Error(), http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, auth.ErrInvalidToken.Error(), http.StatusUnauthorized)
				return
			}

			claims, err := jwtManager.Validate(parts[1])
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), CallerIDKey, claims.CallerID)
			ctx = context.WithValue(ctx, SourceKey, claims.Source)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
