package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdurfee/authgate/internal/models"
	"github.com/chrisdurfee/authgate/internal/services"
)

// MockSecureRequestRepository implements SecureRequestRepository with the
// same compare-and-swap semantics as the SQL version.
type MockSecureRequestRepository struct {
	mu       sync.Mutex
	requests map[string]*models.SecureRequest // keyed by request_id
}

func NewMockSecureRequestRepository() *MockSecureRequestRepository {
	return &MockSecureRequestRepository{requests: make(map[string]*models.SecureRequest)}
}

func (m *MockSecureRequestRepository) Create(ctx context.Context, userID, requestID string) (*models.SecureRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	req := &models.SecureRequest{
		ID:        uuid.New().String(),
		RequestID: requestID,
		UserID:    userID,
		Status:    models.RequestPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.requests[requestID] = req

	copy := *req
	return &copy, nil
}

func (m *MockSecureRequestRepository) GetByRequestID(ctx context.Context, requestID string) (*models.SecureRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return nil, models.ErrNotFound
	}

	copy := *req
	return &copy, nil
}

func (m *MockSecureRequestRepository) Transition(ctx context.Context, requestID, toStatus string) (*models.SecureRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok || req.Status != models.RequestPending {
		return nil, models.ErrRequestNotPending
	}

	req.Status = toStatus
	req.Version++
	req.UpdatedAt = time.Now()

	copy := *req
	return &copy, nil
}

func (m *MockSecureRequestRepository) ExpireStale(ctx context.Context, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	var n int64
	for _, req := range m.requests {
		if req.Status == models.RequestPending && req.CreatedAt.Before(cutoff) {
			req.Status = models.RequestExpired
			req.Version++
			n++
		}
	}
	return n, nil
}

// backdate moves a request's creation time into the past
func (m *MockSecureRequestRepository) backdate(requestID string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[requestID].CreatedAt = m.requests[requestID].CreatedAt.Add(-d)
}

func newSecureRequestService(repo *MockSecureRequestRepository, ttl time.Duration) *services.SecureRequestService {
	return services.NewSecureRequestService(repo, ttl, testLogger())
}

func TestSecureRequestCreate(t *testing.T) {
	repo := NewMockSecureRequestRepository()
	service := newSecureRequestService(repo, 10*time.Minute)

	req, err := service.Create(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, models.RequestPending, req.Status)
	assert.Equal(t, 1, req.Version)
	assert.NotEmpty(t, req.RequestID)

	other, err := service.Create(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, req.RequestID, other.RequestID)
}

func TestSecureRequestApprove(t *testing.T) {
	repo := NewMockSecureRequestRepository()
	service := newSecureRequestService(repo, 10*time.Minute)
	ctx := context.Background()

	req, err := service.Create(ctx, "user-1")
	require.NoError(t, err)

	approved, err := service.Approve(ctx, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, approved.Status)
	assert.Equal(t, 2, approved.Version)
}

func TestSecureRequestTransitionsAreMonotonic(t *testing.T) {
	repo := NewMockSecureRequestRepository()
	service := newSecureRequestService(repo, 10*time.Minute)
	ctx := context.Background()

	req, err := service.Create(ctx, "user-1")
	require.NoError(t, err)

	_, err = service.Deny(ctx, req.RequestID)
	require.NoError(t, err)

	// Once terminal, every further decision fails
	_, err = service.Approve(ctx, req.RequestID)
	assert.ErrorIs(t, err, models.ErrRequestNotPending)
	_, err = service.Deny(ctx, req.RequestID)
	assert.ErrorIs(t, err, models.ErrRequestNotPending)

	status, err := service.Status(ctx, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestDenied, status.Status)
}

func TestSecureRequestStatusExpiresLazily(t *testing.T) {
	repo := NewMockSecureRequestRepository()
	service := newSecureRequestService(repo, 10*time.Minute)
	ctx := context.Background()

	req, err := service.Create(ctx, "user-1")
	require.NoError(t, err)
	repo.backdate(req.RequestID, 11*time.Minute)

	status, err := service.Status(ctx, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestExpired, status.Status)
}

func TestSecureRequestApproveAfterTTL(t *testing.T) {
	repo := NewMockSecureRequestRepository()
	service := newSecureRequestService(repo, 10*time.Minute)
	ctx := context.Background()

	req, err := service.Create(ctx, "user-1")
	require.NoError(t, err)
	repo.backdate(req.RequestID, 11*time.Minute)

	_, err = service.Approve(ctx, req.RequestID)
	assert.ErrorIs(t, err, models.ErrRequestNotPending)

	status, err := service.Status(ctx, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestExpired, status.Status)
}

func TestSecureRequestConcurrentDecidersOneWins(t *testing.T) {
	repo := NewMockSecureRequestRepository()
	service := newSecureRequestService(repo, 10*time.Minute)
	ctx := context.Background()

	req, err := service.Create(ctx, "user-1")
	require.NoError(t, err)

	const deciders = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < deciders; i++ {
		wg.Add(1)
		approve := i%2 == 0
		go func() {
			defer wg.Done()
			var err error
			if approve {
				_, err = service.Approve(ctx, req.RequestID)
			} else {
				_, err = service.Deny(ctx, req.RequestID)
			}
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)

	status, err := service.Status(ctx, req.RequestID)
	require.NoError(t, err)
	assert.True(t, status.Terminal())
}

func TestSecureRequestExpireStaleSweep(t *testing.T) {
	repo := NewMockSecureRequestRepository()
	service := newSecureRequestService(repo, 10*time.Minute)
	ctx := context.Background()

	fresh, err := service.Create(ctx, "user-1")
	require.NoError(t, err)

	stale, err := service.Create(ctx, "user-2")
	require.NoError(t, err)
	repo.backdate(stale.RequestID, time.Hour)

	n, err := service.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	status, err := service.Status(ctx, fresh.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, status.Status)
}
