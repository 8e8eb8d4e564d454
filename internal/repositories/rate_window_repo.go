package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/chrisdurfee/authgate/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RateWindowRepository struct {
	pool *pgxpool.Pool
}

func NewRateWindowRepository(db *database.DB) *RateWindowRepository {
	return &RateWindowRepository{pool: db.Pool}
}

// Increment atomically bumps the counter for (key, windowStart) and returns
// the new count. The single UPSERT statement makes concurrent increments on
// the same key linearizable; a read-then-write here would allow limiter
// bypass under concurrent bursts.
func (r *RateWindowRepository) Increment(ctx context.Context, key string, windowStart time.Time) (int, error) {
	query := `
		INSERT INTO rate_windows (key, window_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (key, window_start) DO UPDATE SET count = rate_windows.count + 1
		RETURNING count
	`

	var count int
	err := r.pool.QueryRow(ctx, query, key, windowStart).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}

// CleanupExpired deletes windows whose boundary passed before the threshold
func (r *RateWindowRepository) CleanupExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM rate_windows WHERE window_start < NOW() - make_interval(secs => $1)`

	result, err := r.pool.Exec(ctx, query, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired rate windows: %w", err)
	}

	return result.RowsAffected(), nil
}
