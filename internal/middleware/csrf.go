package middleware

import (
	"log/slog"
	"net/http"

	"github.com/chrisdurfee/authgate/internal/auth"
	pkghttp "github.com/chrisdurfee/authgate/pkg/http"
)

// CsrfProtection validates the session's CSRF token on state-changing
// requests. The token arrives in the X-CSRF-Token header, falling back to
// the csrf_token cookie. A token is only good for the session it was issued
// to; a matching value bound to another session still fails.
func CsrfProtection(gate *auth.CsrfGate, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isStateChangingMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			claims := auth.GetSessionFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			supplied := r.Header.Get("X-CSRF-Token")
			if supplied == "" {
				if cookie, err := r.Cookie("csrf_token"); err == nil {
					supplied = cookie.Value
				}
			}

			if err := gate.Validate(r.Context(), claims.SessionID, supplied); err != nil {
				logger.Warn("csrf validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("session_id", claims.SessionID))
				pkghttp.WriteForbidden(w, "CSRF token missing or invalid")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}
