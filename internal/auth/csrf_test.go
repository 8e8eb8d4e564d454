package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdurfee/authgate/internal/auth"
	"github.com/chrisdurfee/authgate/internal/models"
)

// MockCsrfTokenStore implements CsrfTokenStore in memory, one token per session
type MockCsrfTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*models.CsrfToken
}

func NewMockCsrfTokenStore() *MockCsrfTokenStore {
	return &MockCsrfTokenStore{tokens: make(map[string]*models.CsrfToken)}
}

func (m *MockCsrfTokenStore) Upsert(ctx context.Context, token *models.CsrfToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *token
	m.tokens[token.SessionID] = &copy
	return nil
}

func (m *MockCsrfTokenStore) GetBySession(ctx context.Context, sessionID string) (*models.CsrfToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[sessionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copy := *token
	return &copy, nil
}

func (m *MockCsrfTokenStore) DeleteBySession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, sessionID)
	return nil
}

// expire backdates the stored token for a session
func (m *MockCsrfTokenStore) expire(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[sessionID].ExpiresAt = time.Now().Add(-time.Minute)
}

func TestCsrfIssueAndValidate(t *testing.T) {
	store := NewMockCsrfTokenStore()
	gate := auth.NewCsrfGate(store, time.Hour)
	ctx := context.Background()

	token, err := gate.Issue(ctx, "session-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, gate.Validate(ctx, "session-1", token))

	// Validation does not consume; the token stays usable
	assert.NoError(t, gate.Validate(ctx, "session-1", token))
}

func TestCsrfValidateRejectsMismatch(t *testing.T) {
	store := NewMockCsrfTokenStore()
	gate := auth.NewCsrfGate(store, time.Hour)
	ctx := context.Background()

	_, err := gate.Issue(ctx, "session-1")
	require.NoError(t, err)

	assert.ErrorIs(t, gate.Validate(ctx, "session-1", "forged-value"), models.ErrCsrfMismatch)
	assert.ErrorIs(t, gate.Validate(ctx, "session-1", ""), models.ErrCsrfMismatch)
}

func TestCsrfTokenIsSessionBound(t *testing.T) {
	store := NewMockCsrfTokenStore()
	gate := auth.NewCsrfGate(store, time.Hour)
	ctx := context.Background()

	tokenA, err := gate.Issue(ctx, "session-a")
	require.NoError(t, err)
	_, err = gate.Issue(ctx, "session-b")
	require.NoError(t, err)

	// A valid token presented against another session fails
	assert.ErrorIs(t, gate.Validate(ctx, "session-b", tokenA), models.ErrCsrfMismatch)
}

func TestCsrfValidateRejectsExpired(t *testing.T) {
	store := NewMockCsrfTokenStore()
	gate := auth.NewCsrfGate(store, time.Hour)
	ctx := context.Background()

	token, err := gate.Issue(ctx, "session-1")
	require.NoError(t, err)
	store.expire("session-1")

	assert.ErrorIs(t, gate.Validate(ctx, "session-1", token), models.ErrCsrfMismatch)
}

func TestCsrfCurrentReturnsExistingToken(t *testing.T) {
	store := NewMockCsrfTokenStore()
	gate := auth.NewCsrfGate(store, time.Hour)
	ctx := context.Background()

	issued, err := gate.Issue(ctx, "session-1")
	require.NoError(t, err)

	current, err := gate.Current(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, issued, current)
}

func TestCsrfCurrentIssuesWhenMissingOrExpired(t *testing.T) {
	store := NewMockCsrfTokenStore()
	gate := auth.NewCsrfGate(store, time.Hour)
	ctx := context.Background()

	first, err := gate.Current(ctx, "session-1")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	store.expire("session-1")

	second, err := gate.Current(ctx, "session-1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.NoError(t, gate.Validate(ctx, "session-1", second))
}

func TestCsrfRevoke(t *testing.T) {
	store := NewMockCsrfTokenStore()
	gate := auth.NewCsrfGate(store, time.Hour)
	ctx := context.Background()

	token, err := gate.Issue(ctx, "session-1")
	require.NoError(t, err)

	require.NoError(t, gate.Revoke(ctx, "session-1"))
	assert.ErrorIs(t, gate.Validate(ctx, "session-1", token), models.ErrCsrfMismatch)
}
