package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/chrisdurfee/authgate/internal/auth"
	"github.com/chrisdurfee/authgate/internal/models"
	pkghttp "github.com/chrisdurfee/authgate/pkg/http"
)

// MfaServiceInterface defines the challenge operations handlers need
type MfaServiceInterface interface {
	IssueCode(ctx context.Context, userID, purpose, channel string) (*models.MfaChallenge, error)
	VerifyCode(ctx context.Context, userID, sessionID, fingerprint, purpose, code string) error
	SetupTOTP(ctx context.Context, userID string) (string, error)
	ActivateTOTP(ctx context.Context, userID, code string) error
}

// MfaHandler handles verification code issuance and checking
type MfaHandler struct {
	service MfaServiceInterface
}

func NewMfaHandler(service MfaServiceInterface) *MfaHandler {
	return &MfaHandler{service: service}
}

// IssueCodeRequest represents the request body for code issuance
type IssueCodeRequest struct {
	Purpose string `json:"purpose" validate:"required,oneof=device-trust step-up"`
	Channel string `json:"channel" validate:"required,oneof=email sms push totp"`
}

// IssueCodeResponse acknowledges issuance without revealing the code
type IssueCodeResponse struct {
	Status    string `json:"status"`
	Channel   string `json:"channel"`
	ExpiresAt string `json:"expires_at"`
}

// VerifyCodeRequest represents the request body for code verification
type VerifyCodeRequest struct {
	Purpose string `json:"purpose" validate:"required,oneof=device-trust step-up"`
	Code    string `json:"code" validate:"required,min=6,max=8"`
}

// TOTPActivateRequest carries the first code from a freshly provisioned authenticator
type TOTPActivateRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

// IssueCode handles POST /mfa/code
func (h *MfaHandler) IssueCode(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req IssueCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	challenge, err := h.service.IssueCode(r.Context(), claims.UserID, req.Purpose, req.Channel)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, IssueCodeResponse{
		Status:    "issued",
		Channel:   challenge.Channel,
		ExpiresAt: challenge.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// VerifyCode handles POST /mfa/verify
func (h *MfaHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	fingerprint := r.Header.Get(FingerprintHeader)

	err := h.service.VerifyCode(r.Context(), claims.UserID, claims.SessionID, fingerprint, req.Purpose, req.Code)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

// TOTPSetup handles POST /mfa/totp/setup, returning a QR provisioning image
func (h *MfaHandler) TOTPSetup(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	qrDataURL, err := h.service.SetupTOTP(r.Context(), claims.UserID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"qr_code": qrDataURL})
}

// TOTPActivate handles POST /mfa/totp/activate
func (h *MfaHandler) TOTPActivate(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req TOTPActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ActivateTOTP(r.Context(), claims.UserID, req.Code); err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}
