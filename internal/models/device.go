package models

import "time"

// AuthedDevice is one record per (user, device fingerprint). Devices are never
// deleted; trust flips true after a completed device-trust MFA confirmation.
type AuthedDevice struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	Trusted           bool      `json:"trusted"`
	FirstSeenAt       time.Time `json:"first_seen_at"`
	LastSeenAt        time.Time `json:"last_seen_at"`
}

// AuthedLocation records the geo-location of a login. Soft-deleted via
// DeletedAt, never hard-deleted.
type AuthedLocation struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	City      string     `json:"city"`
	Region    string     `json:"region"`
	Country   string     `json:"country"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	IPAddress string     `json:"ip_address"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}
