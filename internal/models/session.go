package models

import "time"

// Session represents an authenticated session record.
// A session created from an unrecognized device starts untrusted and carries
// the id of the secure request gating it; it gains full scope only after the
// device-trust challenge is consumed.
type Session struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	DataEncrypted   []byte     `json:"-"`
	DataNonce       []byte     `json:"-"`
	Trusted         bool       `json:"trusted"`
	SecureRequestID *string    `json:"secure_request_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	LastAccessAt    time.Time  `json:"last_access_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at the given instant
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Gated reports whether the session is still waiting on an out-of-band confirmation
func (s *Session) Gated() bool {
	return !s.Trusted && s.SecureRequestID != nil
}
