package models

import "time"

// CsrfToken is an anti-forgery token bound to exactly one session.
// Reusable within its TTL, never valid across sessions.
type CsrfToken struct {
	Value     string    `json:"-"`
	SessionID string    `json:"session_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token TTL has elapsed at the given instant
func (t *CsrfToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
