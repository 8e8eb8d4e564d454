package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/chrisdurfee/authgate/internal/auth"
	"github.com/chrisdurfee/authgate/internal/models"
	pkghttp "github.com/chrisdurfee/authgate/pkg/http"
)

// DeviceTrustServiceInterface defines the device listing operations handlers need
type DeviceTrustServiceInterface interface {
	ListDevices(ctx context.Context, userID string) ([]*models.AuthedDevice, error)
}

// SessionReader resolves the persisted session behind a handle token
type SessionReader interface {
	GetByID(ctx context.Context, id string) (*models.Session, error)
}

// DevicesHandler serves the user's known-device list
type DevicesHandler struct {
	devices  DeviceTrustServiceInterface
	sessions SessionReader
}

func NewDevicesHandler(devices DeviceTrustServiceInterface, sessions SessionReader) *DevicesHandler {
	return &DevicesHandler{devices: devices, sessions: sessions}
}

// DevicesResponse lists the devices a user has signed in from
type DevicesResponse struct {
	Devices []*models.AuthedDevice `json:"devices"`
}

// List handles GET /authed-devices. Only a fully trusted session may
// enumerate devices; a gated session has not proven it belongs here yet.
func (h *DevicesHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	session, err := h.sessions.GetByID(r.Context(), claims.SessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			WriteServiceError(w, models.ErrSessionExpired)
			return
		}
		WriteServiceError(w, err)
		return
	}

	if session.Expired(time.Now()) {
		WriteServiceError(w, models.ErrSessionExpired)
		return
	}

	if !session.Trusted {
		pkghttp.WriteForbidden(w, "Complete device verification first")
		return
	}

	devices, err := h.devices.ListDevices(r.Context(), claims.UserID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, DevicesResponse{Devices: devices})
}
