package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chrisdurfee/authgate/internal/auth"
	"github.com/chrisdurfee/authgate/internal/models"
)

// SecureRequestRepository defines the interface for approval record operations
type SecureRequestRepository interface {
	Create(ctx context.Context, userID, requestID string) (*models.SecureRequest, error)
	GetByRequestID(ctx context.Context, requestID string) (*models.SecureRequest, error)
	Transition(ctx context.Context, requestID, toStatus string) (*models.SecureRequest, error)
	ExpireStale(ctx context.Context, ttl time.Duration) (int64, error)
}

// SecureRequestService manages the lifecycle of out-of-band approval
// requests. A request starts pending and moves exactly once to approved,
// denied, or expired; all transitions go through the repository's
// compare-and-swap so concurrent deciders cannot both win.
type SecureRequestService struct {
	repo   SecureRequestRepository
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewSecureRequestService(repo SecureRequestRepository, ttl time.Duration, logger *slog.Logger) *SecureRequestService {
	return &SecureRequestService{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Create opens a new pending request for the user and returns it. The
// request_id is an opaque random handle safe to hand to untrusted clients.
func (s *SecureRequestService) Create(ctx context.Context, userID string) (*models.SecureRequest, error) {
	requestID, err := auth.GenerateToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate request id: %w", err)
	}

	req, err := s.repo.Create(ctx, userID, requestID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("secure request created",
		slog.String("request_id", req.RequestID),
		slog.String("user_id", userID))

	return req, nil
}

// Approve moves a pending request to approved. Returns ErrRequestNotPending
// when the request already reached a terminal state, including expiry.
func (s *SecureRequestService) Approve(ctx context.Context, requestID string) (*models.SecureRequest, error) {
	return s.decide(ctx, requestID, models.RequestApproved)
}

// Deny moves a pending request to denied.
func (s *SecureRequestService) Deny(ctx context.Context, requestID string) (*models.SecureRequest, error) {
	return s.decide(ctx, requestID, models.RequestDenied)
}

func (s *SecureRequestService) decide(ctx context.Context, requestID, toStatus string) (*models.SecureRequest, error) {
	current, err := s.repo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	// Lazy expiry: a pending request past its TTL must lose to expired, not
	// to the caller's decision. The CAS still protects against a racing
	// decider sneaking in between the expiry and the error return.
	if current.Status == models.RequestPending && current.PastTTL(s.now(), s.ttl) {
		if _, err := s.repo.Transition(ctx, requestID, models.RequestExpired); err != nil && err != models.ErrRequestNotPending {
			return nil, err
		}
		return nil, models.ErrRequestNotPending
	}

	req, err := s.repo.Transition(ctx, requestID, toStatus)
	if err != nil {
		return nil, err
	}

	s.logger.Info("secure request decided",
		slog.String("request_id", requestID),
		slog.String("status", toStatus),
		slog.Int("version", req.Version))

	return req, nil
}

// Status returns the current state of a request, expiring it first when the
// TTL has lapsed so callers never observe a stale pending.
func (s *SecureRequestService) Status(ctx context.Context, requestID string) (*models.SecureRequest, error) {
	req, err := s.repo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.Status == models.RequestPending && req.PastTTL(s.now(), s.ttl) {
		expired, err := s.repo.Transition(ctx, requestID, models.RequestExpired)
		if err == nil {
			return expired, nil
		}
		if err == models.ErrRequestNotPending {
			// Lost the race to another transition; re-read the winner.
			return s.repo.GetByRequestID(ctx, requestID)
		}
		return nil, err
	}

	return req, nil
}

// ExpireStale sweeps all pending requests past the TTL. Called by the
// background cleanup manager.
func (s *SecureRequestService) ExpireStale(ctx context.Context) (int64, error) {
	return s.repo.ExpireStale(ctx, s.ttl)
}
