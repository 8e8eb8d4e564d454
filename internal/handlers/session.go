package handlers

import (
	"net/http"
	"time"

	"github.com/chrisdurfee/authgate/internal/auth"
	"github.com/chrisdurfee/authgate/internal/models"
	pkghttp "github.com/chrisdurfee/authgate/pkg/http"
)

// SessionHandler handles session resume and heartbeat
type SessionHandler struct {
	service SessionServiceInterface
	csrf    CsrfGateInterface
}

func NewSessionHandler(service SessionServiceInterface, csrf CsrfGateInterface) *SessionHandler {
	return &SessionHandler{service: service, csrf: csrf}
}

// ResumeResponse reports the session state after a client reconnect
type ResumeResponse struct {
	State     string          `json:"state"`
	ExpiresAt string          `json:"expires_at"`
	RequestID string          `json:"request_id,omitempty"`
	CsrfToken string          `json:"csrf_token"`
	Session   *models.Session `json:"session"`
	User      *models.User    `json:"user"`
}

// PulseResponse acknowledges a heartbeat with the extended expiry
type PulseResponse struct {
	ExpiresAt string `json:"expires_at"`
}

// Resume handles POST /resume. The client reconnects with its session
// handle and learns whether the session is active, still gated behind a
// pending confirmation, or dead.
func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	fingerprint := r.Header.Get(FingerprintHeader)

	result, err := h.service.Resume(r.Context(), claims.SessionID, fingerprint)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	csrfToken, err := h.csrf.Current(r.Context(), result.Session.ID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	resp := ResumeResponse{
		State:     result.State,
		ExpiresAt: result.Session.ExpiresAt.UTC().Format(time.RFC3339),
		CsrfToken: csrfToken,
		Session:   result.Session,
		User:      result.User,
	}
	if result.Session.SecureRequestID != nil {
		resp.RequestID = *result.Session.SecureRequestID
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Pulse handles POST /pulse. A heartbeat only slides the expiry forward;
// it never changes trust state.
func (h *SessionHandler) Pulse(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	fingerprint := r.Header.Get(FingerprintHeader)

	session, err := h.service.Pulse(r.Context(), claims.SessionID, fingerprint)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, PulseResponse{
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
