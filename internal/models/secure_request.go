package models

import "time"

// Secure request statuses. Transitions are monotonic:
// pending -> approved | denied | expired, nothing leaves a terminal state.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestDenied   = "denied"
	RequestExpired  = "expired"
)

// SecureRequest tracks an action awaiting out-of-band confirmation,
// e.g. approving a login from an unrecognized device. All coordination
// between pollers and approvers goes through this persisted record.
type SecureRequest struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the status admits no further transitions
func (r *SecureRequest) Terminal() bool {
	return r.Status != RequestPending
}

// PastTTL reports whether a pending request should be lazily expired
func (r *SecureRequest) PastTTL(now time.Time, ttl time.Duration) bool {
	return r.Status == RequestPending && now.After(r.CreatedAt.Add(ttl))
}
