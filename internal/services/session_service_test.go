package services_test

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdurfee/authgate/internal/auth"
	"github.com/chrisdurfee/authgate/internal/models"
	"github.com/chrisdurfee/authgate/internal/services"
	pkgauth "github.com/chrisdurfee/authgate/pkg/auth"
	pkglogger "github.com/chrisdurfee/authgate/pkg/logger"
)

type sessionFixture struct {
	service  *services.SessionService
	sessions *MockSessionRepository
	users    *MockUserRepository
	devices  *MockDeviceRepository
	requests *MockSecureRequestRepository
	user     *models.User
}

const testPassword = "Correct-Horse-Battery-9!"

var (
	testPasswordHashOnce sync.Once
	testPasswordHash     string
)

// hashedTestPassword hashes the shared test password exactly once; bcrypt at
// the production cost is too slow to repeat per fixture.
func hashedTestPassword(t *testing.T) string {
	t.Helper()
	testPasswordHashOnce.Do(func() {
		hash, err := pkgauth.HashPassword(testPassword)
		if err != nil {
			t.Fatalf("failed to hash test password: %v", err)
		}
		testPasswordHash = hash
	})
	return testPasswordHash
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	sessions := NewMockSessionRepository()
	users := NewMockUserRepository()
	devices := NewMockDeviceRepository()
	locations := NewMockLocationRepository()
	requests := NewMockSecureRequestRepository()

	logger := testLogger()
	audit := pkglogger.NewAuditLogger(logger)

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	cipher, err := auth.NewCipher(key)
	require.NoError(t, err)

	secureRequests := services.NewSecureRequestService(requests, 10*time.Minute, logger)
	deviceTrust := services.NewDeviceTrustService(devices, locations, nil, nil, audit, logger)
	throttle := services.NewThrottleService(NewMockRateWindowRepository(), logger)
	tokens := auth.NewTokenManager("test-secret-test-secret-test-sec", 24*time.Hour)
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 0, RandomDelayMs: 0})

	service := services.NewSessionService(
		sessions, users, secureRequests, deviceTrust,
		throttle, tokens, cipher, timing, audit, logger,
		services.SessionServiceConfig{
			SlidingWindow:        time.Hour,
			AbsoluteMax:          8 * time.Hour,
			LoginLimitPerIP:      100,
			LoginWindow:          time.Hour,
			PulseLimitPerSession: 100,
			PulseWindow:          time.Hour,
		},
	)

	user := users.add(&models.User{
		Email:        "ripley@example.com",
		Name:         "Ripley",
		PasswordHash: hashedTestPassword(t),
	})

	return &sessionFixture{
		service:  service,
		sessions: sessions,
		users:    users,
		devices:  devices,
		requests: requests,
		user:     user,
	}
}

// trustDevice pre-records a trusted device so logins from it skip gating
func (f *sessionFixture) trustDevice(t *testing.T, fingerprint string) {
	t.Helper()
	_, err := f.devices.Record(context.Background(), f.user.ID, fingerprint, true)
	require.NoError(t, err)
}

func TestSessionLogin_TrustedDevice(t *testing.T) {
	f := newSessionFixture(t)
	f.trustDevice(t, "fp-laptop")

	result, err := f.service.Login(context.Background(), f.user.Email, testPassword, "fp-laptop", "10.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, services.SessionStateActive, result.State)
	assert.Empty(t, result.RequestID)
	assert.NotEmpty(t, result.Token)
	assert.True(t, result.Session.Trusted)
}

func TestSessionLogin_UnknownAccount(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.service.Login(context.Background(), "nobody@example.com", testPassword, "fp-laptop", "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestSessionLogin_WrongPassword(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.service.Login(context.Background(), f.user.Email, "not-the-password", "fp-laptop", "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestSessionLogin_UnrecognizedDeviceOpensGatedSession(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	result, err := f.service.Login(ctx, f.user.Email, testPassword, "fp-new-phone", "10.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, services.SessionStatePendingVerification, result.State)
	assert.NotEmpty(t, result.RequestID)
	assert.False(t, result.Session.Trusted)
	require.NotNil(t, result.Session.SecureRequestID)

	req, err := f.requests.GetByRequestID(ctx, result.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)

	// The device itself is recorded but untrusted
	device, err := f.devices.GetByFingerprint(ctx, f.user.ID, "fp-new-phone")
	require.NoError(t, err)
	assert.False(t, device.Trusted)
}

func TestSessionRegister_FirstDeviceIsTrusted(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	result, err := f.service.Register(ctx, "newcomer@example.com", testPassword, "Newcomer", "fp-first", "10.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, services.SessionStateActive, result.State)
	assert.True(t, result.Session.Trusted)

	device, err := f.devices.GetByFingerprint(ctx, result.Session.UserID, "fp-first")
	require.NoError(t, err)
	assert.True(t, device.Trusted)
}

func TestSessionRegister_WeakPassword(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.service.Register(context.Background(), "newcomer@example.com", "short", "Newcomer", "fp-first", "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestSessionRegister_DuplicateEmail(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.service.Register(context.Background(), f.user.Email, testPassword, "Ripley Again", "fp-first", "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestSessionLogout_Idempotent(t *testing.T) {
	f := newSessionFixture(t)
	f.trustDevice(t, "fp-laptop")
	ctx := context.Background()

	result, err := f.service.Login(ctx, f.user.Email, testPassword, "fp-laptop", "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, result.Session.ID))

	_, err = f.sessions.GetByID(ctx, result.Session.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// A second logout of the same session is still fine
	assert.NoError(t, f.service.Logout(ctx, result.Session.ID))
}

func TestSessionResume_ExtendsExpiry(t *testing.T) {
	f := newSessionFixture(t)
	f.trustDevice(t, "fp-laptop")
	ctx := context.Background()

	login, err := f.service.Login(ctx, f.user.Email, testPassword, "fp-laptop", "10.0.0.1")
	require.NoError(t, err)

	resumed, err := f.service.Resume(ctx, login.Session.ID, "fp-laptop")
	require.NoError(t, err)

	assert.Equal(t, services.SessionStateActive, resumed.State)
	assert.Equal(t, f.user.Email, resumed.User.Email)
	assert.False(t, resumed.Session.ExpiresAt.Before(login.Session.ExpiresAt))
}

func TestSessionResume_UnknownSession(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.service.Resume(context.Background(), "no-such-session", "fp-laptop")
	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestSessionResume_FingerprintMismatch(t *testing.T) {
	f := newSessionFixture(t)
	f.trustDevice(t, "fp-laptop")
	ctx := context.Background()

	login, err := f.service.Login(ctx, f.user.Email, testPassword, "fp-laptop", "10.0.0.1")
	require.NoError(t, err)

	_, err = f.service.Resume(ctx, login.Session.ID, "fp-other-machine")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestSessionResume_GatedSessionReportsPending(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	login, err := f.service.Login(ctx, f.user.Email, testPassword, "fp-new-phone", "10.0.0.1")
	require.NoError(t, err)

	resumed, err := f.service.Resume(ctx, login.Session.ID, "fp-new-phone")
	require.NoError(t, err)
	assert.Equal(t, services.SessionStatePendingVerification, resumed.State)
}

func TestSessionResume_RepairsApprovedButUntrustedSession(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	login, err := f.service.Login(ctx, f.user.Email, testPassword, "fp-new-phone", "10.0.0.1")
	require.NoError(t, err)

	// The request was approved but nothing flipped the session flag yet
	_, err = f.requests.Transition(ctx, login.RequestID, models.RequestApproved)
	require.NoError(t, err)

	resumed, err := f.service.Resume(ctx, login.Session.ID, "fp-new-phone")
	require.NoError(t, err)
	assert.Equal(t, services.SessionStateActive, resumed.State)
	assert.True(t, resumed.Session.Trusted)

	stored, err := f.sessions.GetByID(ctx, login.Session.ID)
	require.NoError(t, err)
	assert.True(t, stored.Trusted)
}

func TestSessionResume_DeniedRequestReportsDenied(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	login, err := f.service.Login(ctx, f.user.Email, testPassword, "fp-new-phone", "10.0.0.1")
	require.NoError(t, err)

	_, err = f.requests.Transition(ctx, login.RequestID, models.RequestDenied)
	require.NoError(t, err)

	resumed, err := f.service.Resume(ctx, login.Session.ID, "fp-new-phone")
	require.NoError(t, err)
	assert.Equal(t, services.SessionStateDenied, resumed.State)
}

func TestSessionResume_ExpiredRequestReportsDenied(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	login, err := f.service.Login(ctx, f.user.Email, testPassword, "fp-new-phone", "10.0.0.1")
	require.NoError(t, err)
	f.requests.backdate(login.RequestID, time.Hour)

	resumed, err := f.service.Resume(ctx, login.Session.ID, "fp-new-phone")
	require.NoError(t, err)
	assert.Equal(t, services.SessionStateDenied, resumed.State)
}

func TestSessionPulse_ExtendsWithoutUserLoad(t *testing.T) {
	f := newSessionFixture(t)
	f.trustDevice(t, "fp-laptop")
	ctx := context.Background()

	login, err := f.service.Login(ctx, f.user.Email, testPassword, "fp-laptop", "10.0.0.1")
	require.NoError(t, err)

	pulsed, err := f.service.Pulse(ctx, login.Session.ID, "fp-laptop")
	require.NoError(t, err)
	assert.False(t, pulsed.ExpiresAt.Before(login.Session.ExpiresAt))
}

func TestSessionPulse_NeverSlidesPastAbsoluteCap(t *testing.T) {
	f := newSessionFixture(t)
	f.trustDevice(t, "fp-laptop")
	ctx := context.Background()

	login, err := f.service.Login(ctx, f.user.Email, testPassword, "fp-laptop", "10.0.0.1")
	require.NoError(t, err)

	// Age the session close to its absolute cap
	f.sessions.mu.Lock()
	stored := f.sessions.sessions[login.Session.ID]
	stored.CreatedAt = time.Now().Add(-7*time.Hour - 59*time.Minute)
	f.sessions.mu.Unlock()

	pulsed, err := f.service.Pulse(ctx, login.Session.ID, "fp-laptop")
	require.NoError(t, err)

	cap := time.Now().Add(time.Minute + time.Second)
	assert.True(t, pulsed.ExpiresAt.Before(cap),
		"expiry %v should be capped near the absolute maximum", pulsed.ExpiresAt)
}

func TestSessionPulse_ExpiredSession(t *testing.T) {
	f := newSessionFixture(t)
	f.trustDevice(t, "fp-laptop")
	ctx := context.Background()

	login, err := f.service.Login(ctx, f.user.Email, testPassword, "fp-laptop", "10.0.0.1")
	require.NoError(t, err)

	f.sessions.mu.Lock()
	f.sessions.sessions[login.Session.ID].ExpiresAt = time.Now().Add(-time.Minute)
	f.sessions.mu.Unlock()

	_, err = f.service.Pulse(ctx, login.Session.ID, "fp-laptop")
	assert.ErrorIs(t, err, models.ErrSessionExpired)
}
