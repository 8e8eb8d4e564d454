package routes

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/chrisdurfee/authgate/internal/auth"
	"github.com/chrisdurfee/authgate/internal/handlers"
	"github.com/chrisdurfee/authgate/internal/middleware"
)

// RegisterRoutes registers all application routes.
// Credential endpoints are public behind an IP limiter; everything else
// requires a session handle, and state-changing session routes also pass
// the CSRF gate.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	sessionHandler *handlers.SessionHandler,
	mfaHandler *handlers.MfaHandler,
	csrfHandler *handlers.CsrfHandler,
	devicesHandler *handlers.DevicesHandler,
	tokenManager *auth.TokenManager,
	csrfGate *auth.CsrfGate,
	logger *slog.Logger,
) {
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public routes. No session exists yet, so no CSRF gate either.
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/register", authHandler.Register)

	// Session routes
	router.Group(func(r chi.Router) {
		r.Use(auth.SessionMiddleware(tokenManager))

		// Reads: no CSRF required
		r.Get("/csrf-token", csrfHandler.GetToken)
		r.Get("/authed-devices", devicesHandler.List)

		// State-changing: CSRF validated
		r.Group(func(r chi.Router) {
			r.Use(middleware.CsrfProtection(csrfGate, logger))

			r.Post("/logout", authHandler.Logout)
			r.Post("/resume", sessionHandler.Resume)
			r.Post("/pulse", sessionHandler.Pulse)
			r.Post("/mfa/code", mfaHandler.IssueCode)
			r.Post("/mfa/verify", mfaHandler.VerifyCode)
			r.Post("/mfa/totp/setup", mfaHandler.TOTPSetup)
			r.Post("/mfa/totp/activate", mfaHandler.TOTPActivate)
		})
	})
}
