package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/chrisdurfee/authgate/internal/models"
	pkghttp "github.com/chrisdurfee/authgate/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// SessionContextKey is the key for storing session claims in context
	SessionContextKey contextKey = "session"
)

// SessionMiddleware validates the session handle token and injects its claims
// into context. The handle may arrive as a Bearer token or in the session
// cookie. Handlers still resolve the persisted session record; a valid handle
// for a destroyed or expired session is rejected there.
func SessionMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractSessionToken(r)
			if tokenString == "" {
				pkghttp.WriteError(w, http.StatusUnauthorized, "session_expired", "Missing session token")
				return
			}

			claims, err := tm.ValidateSessionToken(tokenString)
			if err != nil {
				pkghttp.WriteError(w, http.StatusUnauthorized, "session_expired", "Invalid or expired session token")
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractSessionToken pulls the handle from the Authorization header first,
// falling back to the session cookie
func extractSessionToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}

	if cookie, err := r.Cookie("session_token"); err == nil {
		return cookie.Value
	}

	return ""
}

// GetSessionFromContext extracts session claims from request context
func GetSessionFromContext(r *http.Request) *models.SessionClaims {
	claims, ok := r.Context().Value(SessionContextKey).(*models.SessionClaims)
	if !ok {
		return nil
	}
	return claims
}
