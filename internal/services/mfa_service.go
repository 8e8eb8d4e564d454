package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/chrisdurfee/authgate/internal/auth"
	"github.com/chrisdurfee/authgate/internal/dispatch"
	"github.com/chrisdurfee/authgate/internal/models"
	"github.com/chrisdurfee/authgate/pkg/logger"
)

// MfaChallengeRepository defines the interface for challenge persistence
type MfaChallengeRepository interface {
	CreateSuperseding(ctx context.Context, challenge *models.MfaChallenge) (*models.MfaChallenge, error)
	GetLatest(ctx context.Context, userID, purpose string) (*models.MfaChallenge, error)
	IncrementAttempts(ctx context.Context, id string) (*models.MfaChallenge, error)
	TransitionStatus(ctx context.Context, id, toStatus string) error
	CleanupStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// MfaUserRepository defines the user operations the MFA service needs
type MfaUserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	SetTOTPSecret(ctx context.Context, userID string, encrypted, nonce []byte) error
	ActivateTOTP(ctx context.Context, userID string) error
}

// SessionTrustRepository defines the session operations used when a
// device-trust verification succeeds
type SessionTrustRepository interface {
	GetByID(ctx context.Context, id string) (*models.Session, error)
	MarkTrusted(ctx context.Context, id string) error
}

// MfaServiceConfig holds tunables for challenge issuance and verification
type MfaServiceConfig struct {
	CodeTTL         time.Duration
	CodeLength      int
	MaxAttempts     int
	IssueLimit      int
	IssueWindow     time.Duration
	VerifyLimit     int
	VerifyWindow    time.Duration
	DispatchTimeout time.Duration
}

// MfaService issues and verifies one-time codes. A challenge is bound to a
// (user, purpose) pair; issuing again supersedes the outstanding code, each
// code is consumable exactly once, and the attempt budget locks the
// challenge permanently once spent.
type MfaService struct {
	challenges     MfaChallengeRepository
	users          MfaUserRepository
	sessions       SessionTrustRepository
	secureRequests *SecureRequestService
	deviceTrust    *DeviceTrustService
	registry       *dispatch.Registry
	totp           *auth.TOTPManager
	throttle       *ThrottleService
	audit          *logger.AuditLogger
	logger         *slog.Logger
	config         MfaServiceConfig
	now            func() time.Time
}

func NewMfaService(
	challenges MfaChallengeRepository,
	users MfaUserRepository,
	sessions SessionTrustRepository,
	secureRequests *SecureRequestService,
	deviceTrust *DeviceTrustService,
	registry *dispatch.Registry,
	totp *auth.TOTPManager,
	throttle *ThrottleService,
	audit *logger.AuditLogger,
	log *slog.Logger,
	config MfaServiceConfig,
) *MfaService {
	return &MfaService{
		challenges:     challenges,
		users:          users,
		sessions:       sessions,
		secureRequests: secureRequests,
		deviceTrust:    deviceTrust,
		registry:       registry,
		totp:           totp,
		throttle:       throttle,
		audit:          audit,
		logger:         log,
		config:         config,
		now:            time.Now,
	}
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// IssueCode creates a fresh challenge for (user, purpose) and dispatches the
// code over the requested channel. Any previously pending challenge for the
// same pair is expired in the same transaction, so old codes stop working
// the moment a new one exists. The code value never leaves this method
// except through the dispatcher.
func (s *MfaService) IssueCode(ctx context.Context, userID, purpose, channel string) (*models.MfaChallenge, error) {
	if !models.ValidPurpose(purpose) || !models.ValidChannel(channel) {
		return nil, models.ErrBadRequest
	}

	if err := s.throttle.Allow(ctx, "mfa-issue:user:"+userID, s.config.IssueLimit, s.config.IssueWindow); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	challenge := &models.MfaChallenge{
		UserID:      userID,
		Purpose:     purpose,
		Channel:     channel,
		MaxAttempts: s.config.MaxAttempts,
		Status:      models.ChallengePending,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.config.CodeTTL),
	}

	var code string
	var dispatcher dispatch.Dispatcher

	if channel == models.ChannelTOTP {
		// Authenticator codes are derived on the user's device; the
		// challenge row only tracks the attempt budget.
		if !user.TOTPEnrolled() {
			return nil, models.ErrBadRequest
		}
	} else {
		// Resolve the dispatcher before persisting anything so an
		// unconfigured channel fails the issue outright.
		dispatcher, err = s.registry.Dispatcher(channel)
		if err != nil {
			return nil, err
		}

		code, err = auth.GenerateNumericCode(s.config.CodeLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate code: %w", err)
		}
		challenge.CodeHash = hashCode(code)
	}

	created, err := s.challenges.CreateSuperseding(ctx, challenge)
	if err != nil {
		return nil, err
	}

	if dispatcher != nil {
		s.dispatchAsync(dispatcher, dispatch.Delivery{
			Email:     user.Email,
			Code:      code,
			ExpiresIn: s.config.CodeTTL.String(),
		})
	}

	s.audit.LogChallenge(logger.AuditEvent{
		EventType: "challenge_issued",
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"purpose": purpose, "channel": channel},
	})

	return created, nil
}

// dispatchAsync delivers the code without blocking the caller. Delivery
// failure is logged but never surfaces to the issuing request; the user can
// re-issue if nothing arrives.
func (s *MfaService) dispatchAsync(dispatcher dispatch.Dispatcher, delivery dispatch.Delivery) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.DispatchTimeout)
		defer cancel()

		if err := dispatcher.Dispatch(ctx, delivery); err != nil {
			s.logger.Error("code dispatch failed", slog.Any("error", err))
		}
	}()
}

// VerifyCode checks a submitted code against the latest challenge for
// (user, purpose). Wrong codes burn an attempt; spending the whole budget
// locks the challenge so even the correct code is rejected afterwards. On a
// successful device-trust verification the gated secure request is
// approved and both the session and the device become trusted.
func (s *MfaService) VerifyCode(ctx context.Context, userID, sessionID, fingerprint, purpose, code string) error {
	if !models.ValidPurpose(purpose) || code == "" {
		return models.ErrBadRequest
	}

	if err := s.throttle.Allow(ctx, "mfa-verify:user:"+userID+":"+purpose, s.config.VerifyLimit, s.config.VerifyWindow); err != nil {
		return err
	}

	challenge, err := s.challenges.GetLatest(ctx, userID, purpose)
	if err != nil {
		if err == models.ErrNotFound {
			return models.ErrCodeInvalid
		}
		return err
	}

	if err := s.checkChallengeState(ctx, challenge); err != nil {
		s.auditVerify(userID, sessionID, false, err.Error())
		return err
	}

	updated, err := s.challenges.IncrementAttempts(ctx, challenge.ID)
	if err != nil {
		if err == models.ErrNotFound {
			// The guard failed: a concurrent verify or issue moved the
			// challenge. Re-read to report the terminal state accurately.
			return s.classifyStolenAttempt(ctx, userID, purpose)
		}
		return err
	}

	match, err := s.codeMatches(ctx, updated, userID, code)
	if err != nil {
		return err
	}

	if !match {
		if updated.Attempts >= updated.MaxAttempts {
			if err := s.challenges.TransitionStatus(ctx, updated.ID, models.ChallengeLocked); err != nil && err != models.ErrNotFound {
				return err
			}
		}
		s.auditVerify(userID, sessionID, false, "code mismatch")
		return models.ErrCodeInvalid
	}

	// Exactly one verification can consume the challenge; a concurrent
	// winner leaves the status guard unsatisfied.
	if err := s.challenges.TransitionStatus(ctx, updated.ID, models.ChallengeConsumed); err != nil {
		if err == models.ErrNotFound {
			return models.ErrCodeInvalid
		}
		return err
	}

	if purpose == models.PurposeDeviceTrust {
		if err := s.completeDeviceTrust(ctx, userID, sessionID, fingerprint); err != nil {
			return err
		}
	}

	s.auditVerify(userID, sessionID, true, "")
	return nil
}

// checkChallengeState maps a non-verifiable challenge to its error. A
// pending challenge past its TTL is lazily expired first.
func (s *MfaService) checkChallengeState(ctx context.Context, challenge *models.MfaChallenge) error {
	switch challenge.Status {
	case models.ChallengeLocked:
		return models.ErrMaxAttemptsExceeded
	case models.ChallengeConsumed:
		return models.ErrCodeInvalid
	case models.ChallengeExpired:
		return models.ErrCodeExpired
	}

	if challenge.Expired(s.now()) {
		if err := s.challenges.TransitionStatus(ctx, challenge.ID, models.ChallengeExpired); err != nil && err != models.ErrNotFound {
			return err
		}
		return models.ErrCodeExpired
	}

	return nil
}

func (s *MfaService) classifyStolenAttempt(ctx context.Context, userID, purpose string) error {
	latest, err := s.challenges.GetLatest(ctx, userID, purpose)
	if err != nil {
		return models.ErrCodeInvalid
	}

	switch latest.Status {
	case models.ChallengeLocked:
		return models.ErrMaxAttemptsExceeded
	case models.ChallengeExpired:
		return models.ErrCodeExpired
	case models.ChallengePending:
		// Budget spent but not yet locked; treat as locked.
		return models.ErrMaxAttemptsExceeded
	default:
		return models.ErrCodeInvalid
	}
}

func (s *MfaService) codeMatches(ctx context.Context, challenge *models.MfaChallenge, userID, code string) (bool, error) {
	if challenge.Channel == models.ChannelTOTP {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return false, err
		}
		if !user.TOTPEnrolled() {
			return false, nil
		}
		return s.totp.Validate(user.TOTPSecretEncrypted, user.TOTPSecretNonce, code)
	}

	submitted := hashCode(code)
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(challenge.CodeHash)) == 1, nil
}

// completeDeviceTrust promotes the caller's gated session after a
// successful device-trust verification.
func (s *MfaService) completeDeviceTrust(ctx context.Context, userID, sessionID, fingerprint string) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}

	if session.SecureRequestID != nil {
		if _, err := s.secureRequests.Approve(ctx, *session.SecureRequestID); err != nil {
			return err
		}
	}

	if err := s.sessions.MarkTrusted(ctx, sessionID); err != nil {
		return err
	}

	if fingerprint != "" {
		if err := s.deviceTrust.MarkTrusted(ctx, userID, fingerprint); err != nil && err != models.ErrNotFound {
			return err
		}
	}

	return nil
}

func (s *MfaService) auditVerify(userID, sessionID string, success bool, reason string) {
	s.audit.LogChallenge(logger.AuditEvent{
		EventType:     "challenge_verified",
		UserID:        userID,
		SessionID:     sessionID,
		Success:       success,
		FailureReason: reason,
	})
}

// SetupTOTP generates a new authenticator secret for the user and returns a
// QR provisioning image. The factor stays inactive until the user proves
// possession with ActivateTOTP.
func (s *MfaService) SetupTOTP(ctx context.Context, userID string) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	encrypted, nonce, qrDataURL, err := s.totp.GenerateSecretWithQR(user.Email)
	if err != nil {
		return "", err
	}

	if err := s.users.SetTOTPSecret(ctx, userID, encrypted, nonce); err != nil {
		return "", err
	}

	return qrDataURL, nil
}

// ActivateTOTP enables the authenticator factor once the user submits a
// valid code from the freshly provisioned secret.
func (s *MfaService) ActivateTOTP(ctx context.Context, userID, code string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if len(user.TOTPSecretEncrypted) == 0 {
		return models.ErrBadRequest
	}

	valid, err := s.totp.Validate(user.TOTPSecretEncrypted, user.TOTPSecretNonce, code)
	if err != nil {
		return err
	}
	if !valid {
		return models.ErrCodeInvalid
	}

	return s.users.ActivateTOTP(ctx, userID)
}

// CleanupStale removes terminal challenges older than twice the code TTL
func (s *MfaService) CleanupStale(ctx context.Context) (int64, error) {
	return s.challenges.CleanupStale(ctx, 2*s.config.CodeTTL)
}
