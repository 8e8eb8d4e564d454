package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/chrisdurfee/authgate/internal/database"
	"github.com/chrisdurfee/authgate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SecureRequestRepository struct {
	pool *pgxpool.Pool
}

func NewSecureRequestRepository(db *database.DB) *SecureRequestRepository {
	return &SecureRequestRepository{pool: db.Pool}
}

const secureRequestColumns = `id, request_id, user_id, status, version, created_at, updated_at`

func scanSecureRequestRow(scanner rowScanner) (*models.SecureRequest, error) {
	var req models.SecureRequest

	err := scanner.Scan(
		&req.ID, &req.RequestID, &req.UserID, &req.Status, &req.Version,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &req, nil
}

func (r *SecureRequestRepository) Create(ctx context.Context, userID, requestID string) (*models.SecureRequest, error) {
	query := `
		INSERT INTO secure_requests (id, request_id, user_id, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, NOW(), NOW())
		RETURNING ` + secureRequestColumns

	return scanSecureRequestRow(r.pool.QueryRow(ctx, query,
		uuid.New().String(), requestID, userID, models.RequestPending,
	))
}

func (r *SecureRequestRepository) GetByRequestID(ctx context.Context, requestID string) (*models.SecureRequest, error) {
	query := `SELECT ` + secureRequestColumns + ` FROM secure_requests WHERE request_id = $1`

	return scanSecureRequestRow(r.pool.QueryRow(ctx, query, requestID))
}

func (r *SecureRequestRepository) GetByID(ctx context.Context, id string) (*models.SecureRequest, error) {
	query := `SELECT ` + secureRequestColumns + ` FROM secure_requests WHERE id = $1`

	return scanSecureRequestRow(r.pool.QueryRow(ctx, query, id))
}

// Transition moves a pending request to a terminal status using a
// compare-and-swap on status, stamping updated_at and bumping the version.
// Returns ErrRequestNotPending when another transition already won.
func (r *SecureRequestRepository) Transition(ctx context.Context, requestID, toStatus string) (*models.SecureRequest, error) {
	query := `
		UPDATE secure_requests
		SET status = $2, version = version + 1, updated_at = NOW()
		WHERE request_id = $1 AND status = $3
		RETURNING ` + secureRequestColumns

	req, err := scanSecureRequestRow(r.pool.QueryRow(ctx, query, requestID, toStatus, models.RequestPending))
	if err != nil {
		if err == models.ErrNotFound {
			return nil, models.ErrRequestNotPending
		}
		return nil, err
	}

	return req, nil
}

// ExpireStale transitions all pending requests past the TTL to expired.
// Used by the background sweep; lazy expiry on read uses Transition.
func (r *SecureRequestRepository) ExpireStale(ctx context.Context, ttl time.Duration) (int64, error) {
	query := `
		UPDATE secure_requests
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE status = $2 AND created_at < NOW() - make_interval(secs => $3)
	`

	result, err := r.pool.Exec(ctx, query, models.RequestExpired, models.RequestPending, ttl.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale secure requests: %w", err)
	}

	return result.RowsAffected(), nil
}
