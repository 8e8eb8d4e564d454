package models

import "time"

// MFA challenge statuses. The pending state is the only non-terminal one.
const (
	ChallengePending  = "pending"
	ChallengeConsumed = "consumed"
	ChallengeExpired  = "expired"
	ChallengeLocked   = "locked"
)

// Delivery channels for MFA codes
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelPush  = "push"
	ChannelTOTP  = "totp"
)

// Challenge purposes
const (
	PurposeDeviceTrust = "device-trust"
	PurposeStepUp      = "step-up"
)

// MfaChallenge is a time-boxed one-time code used as a second factor.
// At most one pending challenge exists per (user, purpose); issuing a new one
// supersedes the previous by expiring it and bumping the version.
type MfaChallenge struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Purpose     string    `json:"purpose"`
	CodeHash    string    `json:"-"`
	Channel     string    `json:"channel"`
	Version     int       `json:"version"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	Status      string    `json:"status"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the challenge TTL has elapsed at the given instant
func (c *MfaChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// ValidChannel reports whether ch names a known delivery channel
func ValidChannel(ch string) bool {
	switch ch {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelTOTP:
		return true
	}
	return false
}

// ValidPurpose reports whether p names a known challenge purpose
func ValidPurpose(p string) bool {
	switch p {
	case PurposeDeviceTrust, PurposeStepUp:
		return true
	}
	return false
}
