package background

import (
	"context"
	"log/slog"
	"time"
)

// SweepTask is one named expiry pass over a table
type SweepTask struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Sweeper periodically runs expiry passes: stale secure requests flip to
// expired, and dead sessions, CSRF tokens, terminal challenges, and old rate
// windows are deleted. Reads also expire lazily; the sweeper just keeps the
// tables from accumulating garbage.
type Sweeper struct {
	tasks    []SweepTask
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

func NewSweeper(tasks []SweepTask, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		tasks:    tasks,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep loop. Blocks until Stop is called or the
// context is cancelled; run it in its own goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runAll(ctx)

	for {
		select {
		case <-ticker.C:
			s.runAll(ctx)
		case <-s.stopCh:
			s.logger.Info("sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("sweeper context cancelled")
			return
		}
	}
}

func (s *Sweeper) runAll(ctx context.Context) {
	for _, task := range s.tasks {
		sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)

		affected, err := task.Run(sweepCtx)
		cancel()

		if err != nil {
			s.logger.Error("sweep task failed",
				slog.String("task", task.Name),
				slog.Any("error", err))
			continue
		}

		if affected > 0 {
			s.logger.Info("sweep task completed",
				slog.String("task", task.Name),
				slog.Int64("rows_affected", affected))
		}
	}
}

// Stop signals the sweeper to stop
func (s *Sweeper) Stop() {
	close(s.stopCh)
}
