package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/chrisdurfee/authgate/internal/models"
)

// RateWindowRepository defines the interface for throttle counter operations
type RateWindowRepository interface {
	Increment(ctx context.Context, key string, windowStart time.Time) (int, error)
	CleanupExpired(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ThrottleService enforces fixed-window rate limits keyed by caller-chosen
// strings (IP for login, session ID for pulse, user ID for MFA issue/verify).
type ThrottleService struct {
	repo   RateWindowRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewThrottleService(repo RateWindowRepository, logger *slog.Logger) *ThrottleService {
	return &ThrottleService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Allow records one attempt against the window containing now and reports
// whether the caller is still under the limit. The attempt that crosses the
// limit and every attempt after it within the same window get
// ErrThrottleExceeded. Counter failures fail open so a degraded database
// does not lock out legitimate users.
func (s *ThrottleService) Allow(ctx context.Context, key string, limit int, window time.Duration) error {
	windowStart := s.now().Truncate(window)

	count, err := s.repo.Increment(ctx, key, windowStart)
	if err != nil {
		s.logger.Error("failed to increment rate window",
			slog.String("key", key),
			slog.Any("error", err))
		return nil
	}

	if count > limit {
		s.logger.Warn("rate limit exceeded",
			slog.String("key", key),
			slog.Int("count", count),
			slog.Int("limit", limit))
		return models.ErrThrottleExceeded
	}

	return nil
}
