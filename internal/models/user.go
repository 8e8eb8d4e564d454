package models

import "time"

// User represents an account holder
type User struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	Name              string     `json:"name"`
	Status            string     `json:"status"`
	TOTPSecretEncrypted []byte   `json:"-"`
	TOTPSecretNonce   []byte     `json:"-"`
	TOTPEnrolledAt    *time.Time `json:"totp_enrolled_at,omitempty"`
	PasswordChangedAt *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TOTPEnrolled reports whether the user has an active authenticator-app factor
func (u *User) TOTPEnrolled() bool {
	return u.TOTPEnrolledAt != nil && len(u.TOTPSecretEncrypted) > 0
}
