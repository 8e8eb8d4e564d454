package handlers

import (
	"errors"
	"net/http"

	"github.com/chrisdurfee/authgate/internal/models"
	pkghttp "github.com/chrisdurfee/authgate/pkg/http"
)

// WriteServiceError maps service-layer sentinel errors onto the documented
// response codes. Unknown errors become 500 without leaking detail.
func WriteServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Authentication failed")
	case errors.Is(err, models.ErrSessionExpired):
		pkghttp.WriteError(w, http.StatusUnauthorized, "session_expired", "Session expired, log in again")
	case errors.Is(err, models.ErrCodeInvalid):
		pkghttp.WriteError(w, http.StatusUnauthorized, "code_invalid", "Verification code is not valid")
	case errors.Is(err, models.ErrCodeExpired):
		pkghttp.WriteError(w, http.StatusUnauthorized, "code_expired", "Verification code expired, request a new one")
	case errors.Is(err, models.ErrCsrfMismatch):
		pkghttp.WriteForbidden(w, "CSRF token missing or invalid")
	case errors.Is(err, models.ErrRequestNotPending):
		pkghttp.WriteGone(w, "Request is no longer pending")
	case errors.Is(err, models.ErrMaxAttemptsExceeded):
		pkghttp.WriteLocked(w, "Too many attempts, challenge locked")
	case errors.Is(err, models.ErrThrottleExceeded):
		pkghttp.WriteTooManyRequests(w, "Too many requests, slow down")
	case errors.Is(err, models.ErrCollaboratorUnavailable):
		pkghttp.WriteError(w, http.StatusServiceUnavailable, "collaborator_unavailable", "Delivery channel unavailable")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Resource already exists")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Resource not found")
	default:
		pkghttp.WriteInternalError(w, "An internal error occurred")
	}
}
