package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication and session errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
	ErrCsrfMismatch       = errors.New("csrf token mismatch")
	ErrThrottleExceeded   = errors.New("rate limit exceeded")

	// MFA challenge errors
	ErrCodeInvalid         = errors.New("invalid verification code")
	ErrCodeExpired         = errors.New("verification code expired")
	ErrMaxAttemptsExceeded = errors.New("maximum verification attempts exceeded")

	// Secure request errors
	ErrRequestNotPending = errors.New("secure request is not pending")

	// External collaborator errors
	ErrCollaboratorUnavailable = errors.New("external collaborator unavailable")
)
