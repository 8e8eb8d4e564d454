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

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

const sessionColumns = `id, user_id, data_encrypted, data_nonce, trusted, secure_request_id, created_at, last_access_at, expires_at`

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var session models.Session
	var secureRequestID *string

	err := scanner.Scan(
		&session.ID, &session.UserID, &session.DataEncrypted, &session.DataNonce,
		&session.Trusted, &secureRequestID,
		&session.CreatedAt, &session.LastAccessAt, &session.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	session.SecureRequestID = secureRequestID
	return &session, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	return scanSessionRow(r.pool.QueryRow(ctx, query, id))
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	session.ID = uuid.New().String()

	query := `
		INSERT INTO sessions (id, user_id, data_encrypted, data_nonce, trusted, secure_request_id, created_at, last_access_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + sessionColumns

	return scanSessionRow(r.pool.QueryRow(ctx, query,
		session.ID, session.UserID, session.DataEncrypted, session.DataNonce,
		session.Trusted, session.SecureRequestID,
		session.CreatedAt, session.LastAccessAt, session.ExpiresAt,
	))
}

// Touch extends the session's expiry and stamps the access time.
// The new expiry is computed in SQL so the absolute-lifetime cap holds even
// under concurrent touches.
func (r *SessionRepository) Touch(ctx context.Context, id string, slidingWindow, absoluteMax time.Duration) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET last_access_at = NOW(),
		    expires_at = LEAST(NOW() + make_interval(secs => $2), created_at + make_interval(secs => $3))
		WHERE id = $1 AND expires_at > NOW()
		RETURNING ` + sessionColumns

	return scanSessionRow(r.pool.QueryRow(ctx, query, id, slidingWindow.Seconds(), absoluteMax.Seconds()))
}

// MarkTrusted clears the secure-request gate and flips the session trusted
func (r *SessionRepository) MarkTrusted(ctx context.Context, id string) error {
	query := `UPDATE sessions SET trusted = TRUE, secure_request_id = NULL WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Delete destroys a session. Missing rows are not an error so logout stays idempotent.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// GetGatedByRequestID finds the session gated behind a secure request
func (r *SessionRepository) GetGatedByRequestID(ctx context.Context, secureRequestID string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE secure_request_id = $1`

	return scanSessionRow(r.pool.QueryRow(ctx, query, secureRequestID))
}

// CleanupExpired deletes sessions past their expiry
func (r *SessionRepository) CleanupExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < NOW()`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}

	return result.RowsAffected(), nil
}
