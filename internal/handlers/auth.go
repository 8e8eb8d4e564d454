package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chrisdurfee/authgate/internal/auth"
	"github.com/chrisdurfee/authgate/internal/models"
	"github.com/chrisdurfee/authgate/internal/services"
	pkghttp "github.com/chrisdurfee/authgate/pkg/http"
)

// FingerprintHeader carries the client's device fingerprint on every
// authenticated call.
const FingerprintHeader = "X-Device-Fingerprint"

// SessionServiceInterface defines the session lifecycle operations handlers need
type SessionServiceInterface interface {
	Login(ctx context.Context, email, password, fingerprint, ip string) (*services.LoginResult, error)
	Register(ctx context.Context, email, password, name, fingerprint, ip string) (*services.LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	Resume(ctx context.Context, sessionID, fingerprint string) (*services.ResumeResult, error)
	Pulse(ctx context.Context, sessionID, fingerprint string) (*models.Session, error)
}

// CsrfGateInterface defines the CSRF token operations handlers need
type CsrfGateInterface interface {
	Issue(ctx context.Context, sessionID string) (string, error)
	Current(ctx context.Context, sessionID string) (string, error)
	Revoke(ctx context.Context, sessionID string) error
}

// AuthHandler handles login, registration, and logout
type AuthHandler struct {
	service      SessionServiceInterface
	csrf         CsrfGateInterface
	ipConfig     *pkghttp.IPConfig
	cookieConfig auth.CookieConfig
	logger       *slog.Logger
}

func NewAuthHandler(service SessionServiceInterface, csrf CsrfGateInterface, ipConfig *pkghttp.IPConfig, cookieConfig auth.CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:      service,
		csrf:         csrf,
		ipConfig:     ipConfig,
		cookieConfig: cookieConfig,
		logger:       logger,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,min=1"`
}

// SessionResponse is the common shape for endpoints that establish or
// refresh a session
type SessionResponse struct {
	Token     string          `json:"token"`
	State     string          `json:"state"`
	ExpiresAt string          `json:"expires_at"`
	RequestID string          `json:"request_id,omitempty"`
	CsrfToken string          `json:"csrf_token"`
	Session   *models.Session `json:"session"`
}

// Login handles POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	fingerprint := r.Header.Get(FingerprintHeader)

	result, err := h.service.Login(r.Context(), req.Email, req.Password, fingerprint, ip)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	h.writeSessionResponse(w, r, result)
}

// Register handles POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	fingerprint := r.Header.Get(FingerprintHeader)

	result, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name, fingerprint, ip)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	h.writeSessionResponse(w, r, result)
}

// Logout handles POST /logout. Destroying an already-gone session succeeds;
// logout must be safe to retry.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.service.Logout(r.Context(), claims.SessionID); err != nil {
		WriteServiceError(w, err)
		return
	}

	if err := h.csrf.Revoke(r.Context(), claims.SessionID); err != nil {
		h.logger.Error("failed to revoke csrf token on logout", slog.Any("error", err))
	}

	auth.ClearSessionCookies(w, h.cookieConfig)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) writeSessionResponse(w http.ResponseWriter, r *http.Request, result *services.LoginResult) {
	csrfToken, err := h.csrf.Issue(r.Context(), result.Session.ID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	maxAge := int(result.Session.ExpiresAt.Sub(result.Session.CreatedAt).Seconds())
	auth.SetSessionTokenCookie(w, result.Token, maxAge, h.cookieConfig)
	auth.SetCsrfTokenCookie(w, csrfToken, maxAge, h.cookieConfig)

	pkghttp.WriteJSON(w, http.StatusOK, SessionResponse{
		Token:     result.Token,
		State:     result.State,
		ExpiresAt: result.Session.ExpiresAt.UTC().Format(time.RFC3339),
		RequestID: result.RequestID,
		CsrfToken: csrfToken,
		Session:   result.Session,
	})
}
