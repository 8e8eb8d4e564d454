package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/chrisdurfee/authgate/internal/auth"
	"github.com/chrisdurfee/authgate/internal/models"
	pkgauth "github.com/chrisdurfee/authgate/pkg/auth"
	"github.com/chrisdurfee/authgate/pkg/logger"
)

// SessionRepository defines the interface for session persistence
type SessionRepository interface {
	GetByID(ctx context.Context, id string) (*models.Session, error)
	Create(ctx context.Context, session *models.Session) (*models.Session, error)
	Touch(ctx context.Context, id string, slidingWindow, absoluteMax time.Duration) (*models.Session, error)
	MarkTrusted(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	CleanupExpired(ctx context.Context) (int64, error)
}

// UserRepository defines the user operations the session service needs
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// Session lifecycle states reported to clients
const (
	SessionStateActive              = "active"
	SessionStatePendingVerification = "pending_verification"
	SessionStateDenied              = "denied"
)

// sessionData is the per-session state stored encrypted at rest
type sessionData struct {
	Fingerprint string    `json:"fingerprint"`
	IPAddress   string    `json:"ip_address"`
	LoginAt     time.Time `json:"login_at"`
}

// SessionServiceConfig holds session lifetime and throttle tunables
type SessionServiceConfig struct {
	SlidingWindow        time.Duration
	AbsoluteMax          time.Duration
	LoginLimitPerIP      int
	LoginWindow          time.Duration
	PulseLimitPerSession int
	PulseWindow          time.Duration
}

// SessionService owns the authenticated session lifecycle. Sessions slide
// their expiry forward on activity but never past an absolute cap measured
// from creation. A login from an unrecognized device produces a gated
// session tied to a pending secure request.
type SessionService struct {
	sessions       SessionRepository
	users          UserRepository
	secureRequests *SecureRequestService
	deviceTrust    *DeviceTrustService
	throttle       *ThrottleService
	tokens         *auth.TokenManager
	cipher         *auth.Cipher
	timing         *auth.TimingDelay
	audit          *logger.AuditLogger
	logger         *slog.Logger
	config         SessionServiceConfig
	now            func() time.Time
}

func NewSessionService(
	sessions SessionRepository,
	users UserRepository,
	secureRequests *SecureRequestService,
	deviceTrust *DeviceTrustService,
	throttle *ThrottleService,
	tokens *auth.TokenManager,
	cipher *auth.Cipher,
	timing *auth.TimingDelay,
	audit *logger.AuditLogger,
	log *slog.Logger,
	config SessionServiceConfig,
) *SessionService {
	return &SessionService{
		sessions:       sessions,
		users:          users,
		secureRequests: secureRequests,
		deviceTrust:    deviceTrust,
		throttle:       throttle,
		tokens:         tokens,
		cipher:         cipher,
		timing:         timing,
		audit:          audit,
		logger:         log,
		config:         config,
		now:            time.Now,
	}
}

// LoginResult carries everything a handler needs to establish the client session
type LoginResult struct {
	Token     string
	Session   *models.Session
	State     string
	RequestID string // set when the session is gated behind a secure request
}

// Login authenticates credentials and opens a session. Failures take the
// same amount of time whether the account exists or not. When the device is
// unrecognized the session starts gated: a secure request is opened and the
// client must complete a device-trust challenge before the session gains
// full scope.
func (s *SessionService) Login(ctx context.Context, email, password, fingerprint, ip string) (*LoginResult, error) {
	if err := s.throttle.Allow(ctx, "login:ip:"+ip, s.config.LoginLimitPerIP, s.config.LoginWindow); err != nil {
		return nil, err
	}

	start := s.now()

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if err == models.ErrNotFound {
			// Burn a hash anyway so missing accounts are timing-identical
			// to wrong passwords.
			pkgauth.ComparePassword("$2a$14$0000000000000000000000uGZwCZDQAVBCYDmSaxgHWXJbANDY7X2", password)
			s.failLogin(email, ip, "unknown account")
			s.timing.WaitFrom(start, false)
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.failLogin(email, ip, "wrong password")
		s.timing.WaitFrom(start, false)
		return nil, models.ErrInvalidCredentials
	}

	device, err := s.deviceTrust.Evaluate(ctx, user.ID, user.Email, fingerprint, ip, false)
	if err != nil {
		return nil, err
	}

	result, err := s.openSession(ctx, user, fingerprint, ip, device.Trusted)
	if err != nil {
		return nil, err
	}

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType:   "login",
		UserID:      user.ID,
		SessionID:   result.Session.ID,
		IPAddress:   ip,
		Fingerprint: fingerprint,
		Success:     true,
		Metadata:    map[string]string{"state": result.State},
	})

	s.timing.WaitFrom(start, true)
	return result, nil
}

// Register creates an account and opens its first session. The enrolling
// device is trusted immediately; there is no out-of-band channel to confirm
// it against yet.
func (s *SessionService) Register(ctx context.Context, email, password, name, fingerprint, ip string) (*LoginResult, error) {
	if err := s.throttle.Allow(ctx, "login:ip:"+ip, s.config.LoginLimitPerIP, s.config.LoginWindow); err != nil {
		return nil, err
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrBadRequest, err.Error())
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.deviceTrust.Evaluate(ctx, user.ID, user.Email, fingerprint, ip, true); err != nil {
		return nil, err
	}

	result, err := s.openSession(ctx, user, fingerprint, ip, true)
	if err != nil {
		return nil, err
	}

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType:   "register",
		UserID:      user.ID,
		SessionID:   result.Session.ID,
		IPAddress:   ip,
		Fingerprint: fingerprint,
		Success:     true,
	})

	return result, nil
}

func (s *SessionService) openSession(ctx context.Context, user *models.User, fingerprint, ip string, trusted bool) (*LoginResult, error) {
	data, err := json.Marshal(sessionData{
		Fingerprint: fingerprint,
		IPAddress:   ip,
		LoginAt:     s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode session data: %w", err)
	}

	encrypted, nonce, err := s.cipher.Encrypt(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session data: %w", err)
	}

	now := s.now()
	session := &models.Session{
		UserID:        user.ID,
		DataEncrypted: encrypted,
		DataNonce:     nonce,
		Trusted:       trusted,
		CreatedAt:     now,
		LastAccessAt:  now,
		ExpiresAt:     now.Add(s.config.SlidingWindow),
	}

	state := SessionStateActive
	requestID := ""

	if !trusted {
		req, err := s.secureRequests.Create(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		session.SecureRequestID = &req.RequestID
		state = SessionStatePendingVerification
		requestID = req.RequestID
	}

	created, err := s.sessions.Create(ctx, session)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.GenerateSessionToken(created.ID, user.ID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:     token,
		Session:   created,
		State:     state,
		RequestID: requestID,
	}, nil
}

// Logout destroys the session. Already-gone sessions are not an error.
func (s *SessionService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType: "logout",
		SessionID: sessionID,
		Success:   true,
	})

	return nil
}

// ResumeResult is the session state returned to a reconnecting client
type ResumeResult struct {
	Session *models.Session
	State   string
	User    *models.User
}

// Resume revalidates a session after a client reconnect, extends its
// expiry, and reports whether it is still waiting on an out-of-band
// confirmation. A session whose secure request was denied or expired
// reports denied; the client must log in again.
func (s *SessionService) Resume(ctx context.Context, sessionID, fingerprint string) (*ResumeResult, error) {
	session, err := s.touch(ctx, sessionID, fingerprint)
	if err != nil {
		return nil, err
	}

	state := SessionStateActive
	if session.Gated() {
		req, err := s.secureRequests.Status(ctx, *session.SecureRequestID)
		if err != nil {
			return nil, err
		}

		switch req.Status {
		case models.RequestPending:
			state = SessionStatePendingVerification
		case models.RequestApproved:
			// The approval landed but the session flag lagged; repair it.
			if err := s.sessions.MarkTrusted(ctx, session.ID); err != nil {
				return nil, err
			}
			session.Trusted = true
			session.SecureRequestID = nil
		default:
			state = SessionStateDenied
		}
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType: "resume",
		UserID:    session.UserID,
		SessionID: session.ID,
		Success:   true,
		Metadata:  map[string]string{"state": state},
	})

	return &ResumeResult{Session: session, State: state, User: user}, nil
}

// Pulse extends a live session's expiry. It is deliberately cheap: no user
// load, no gating check, just the sliding-window extension under the
// absolute cap. Per-session throttling keeps pathological clients from
// hammering the store.
func (s *SessionService) Pulse(ctx context.Context, sessionID, fingerprint string) (*models.Session, error) {
	if err := s.throttle.Allow(ctx, "pulse:session:"+sessionID, s.config.PulseLimitPerSession, s.config.PulseWindow); err != nil {
		return nil, err
	}

	return s.touch(ctx, sessionID, fingerprint)
}

// touch extends the session, verifying the caller's device fingerprint
// matches the one the session was opened from.
func (s *SessionService) touch(ctx context.Context, sessionID, fingerprint string) (*models.Session, error) {
	session, err := s.sessions.Touch(ctx, sessionID, s.config.SlidingWindow, s.config.AbsoluteMax)
	if err != nil {
		if err == models.ErrNotFound {
			return nil, models.ErrSessionExpired
		}
		return nil, err
	}

	if fingerprint != "" {
		data, err := s.decodeData(session)
		if err != nil {
			return nil, err
		}
		if data.Fingerprint != "" && data.Fingerprint != fingerprint {
			s.logger.Warn("session fingerprint mismatch",
				slog.String("session_id", session.ID))
			return nil, models.ErrInvalidCredentials
		}
	}

	return session, nil
}

func (s *SessionService) decodeData(session *models.Session) (*sessionData, error) {
	plaintext, err := s.cipher.Decrypt(session.DataEncrypted, session.DataNonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session data: %w", err)
	}

	var data sessionData
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("failed to decode session data: %w", err)
	}

	return &data, nil
}

func (s *SessionService) failLogin(email, ip, reason string) {
	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType:     "login",
		IPAddress:     ip,
		Success:       false,
		FailureReason: reason,
		Metadata:      map[string]string{"email": logger.SanitizedEmail(email)},
	})
}

// CleanupExpired removes sessions past their expiry. Called by the
// background cleanup manager.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.sessions.CleanupExpired(ctx)
}
