package middleware_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdurfee/authgate/internal/auth"
	"github.com/chrisdurfee/authgate/internal/middleware"
	"github.com/chrisdurfee/authgate/internal/models"
)

// memoryCsrfStore implements auth.CsrfTokenStore in memory
type memoryCsrfStore struct {
	mu     sync.Mutex
	tokens map[string]*models.CsrfToken
}

func newMemoryCsrfStore() *memoryCsrfStore {
	return &memoryCsrfStore{tokens: make(map[string]*models.CsrfToken)}
}

func (m *memoryCsrfStore) Upsert(ctx context.Context, token *models.CsrfToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *token
	m.tokens[token.SessionID] = &copy
	return nil
}

func (m *memoryCsrfStore) GetBySession(ctx context.Context, sessionID string) (*models.CsrfToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[sessionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copy := *token
	return &copy, nil
}

func (m *memoryCsrfStore) DeleteBySession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, sessionID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func withSession(r *http.Request, sessionID string) *http.Request {
	claims := &models.SessionClaims{SessionID: sessionID, UserID: "user-1"}
	return r.WithContext(context.WithValue(r.Context(), auth.SessionContextKey, claims))
}

func TestCsrfProtectionAllowsValidHeader(t *testing.T) {
	gate := auth.NewCsrfGate(newMemoryCsrfStore(), time.Hour)
	token, err := gate.Issue(context.Background(), "session-1")
	require.NoError(t, err)

	var called bool
	mw := middleware.CsrfProtection(gate, testLogger())(okHandler(&called))

	req := withSession(httptest.NewRequest(http.MethodPost, "/logout", nil), "session-1")
	req.Header.Set("X-CSRF-Token", token)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestCsrfProtectionFallsBackToCookie(t *testing.T) {
	gate := auth.NewCsrfGate(newMemoryCsrfStore(), time.Hour)
	token, err := gate.Issue(context.Background(), "session-1")
	require.NoError(t, err)

	var called bool
	mw := middleware.CsrfProtection(gate, testLogger())(okHandler(&called))

	req := withSession(httptest.NewRequest(http.MethodPost, "/logout", nil), "session-1")
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: token})
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestCsrfProtectionRejectsMissingToken(t *testing.T) {
	gate := auth.NewCsrfGate(newMemoryCsrfStore(), time.Hour)
	_, err := gate.Issue(context.Background(), "session-1")
	require.NoError(t, err)

	var called bool
	mw := middleware.CsrfProtection(gate, testLogger())(okHandler(&called))

	req := withSession(httptest.NewRequest(http.MethodPost, "/logout", nil), "session-1")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)
}

func TestCsrfProtectionRejectsOtherSessionsToken(t *testing.T) {
	gate := auth.NewCsrfGate(newMemoryCsrfStore(), time.Hour)
	ctx := context.Background()
	tokenA, err := gate.Issue(ctx, "session-a")
	require.NoError(t, err)
	_, err = gate.Issue(ctx, "session-b")
	require.NoError(t, err)

	var called bool
	mw := middleware.CsrfProtection(gate, testLogger())(okHandler(&called))

	req := withSession(httptest.NewRequest(http.MethodPost, "/logout", nil), "session-b")
	req.Header.Set("X-CSRF-Token", tokenA)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)
}

func TestCsrfProtectionSkipsSafeMethods(t *testing.T) {
	gate := auth.NewCsrfGate(newMemoryCsrfStore(), time.Hour)

	var called bool
	mw := middleware.CsrfProtection(gate, testLogger())(okHandler(&called))

	req := withSession(httptest.NewRequest(http.MethodGet, "/csrf-token", nil), "session-1")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestCsrfProtectionRequiresClaims(t *testing.T) {
	gate := auth.NewCsrfGate(newMemoryCsrfStore(), time.Hour)

	var called bool
	mw := middleware.CsrfProtection(gate, testLogger())(okHandler(&called))

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}
