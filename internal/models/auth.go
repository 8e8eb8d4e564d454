package models

import "github.com/golang-jwt/jwt/v5"

// SessionClaims are the JWT claims carried by a session handle token.
// The token is only a transport for the session id; the persisted session
// record remains the source of truth for expiry and trust state.
type SessionClaims struct {
	SessionID string `json:"sid"`
	UserID    string `json:"uid"`
	jwt.RegisteredClaims
}
