package repositories

import (
	"context"
	"fmt"

	"github.com/chrisdurfee/authgate/internal/database"
	"github.com/chrisdurfee/authgate/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CsrfTokenRepository struct {
	pool *pgxpool.Pool
}

func NewCsrfTokenRepository(db *database.DB) *CsrfTokenRepository {
	return &CsrfTokenRepository{pool: db.Pool}
}

// Upsert stores the session's token, replacing any previous one.
// One token per session keeps validation a single indexed read.
func (r *CsrfTokenRepository) Upsert(ctx context.Context, token *models.CsrfToken) error {
	query := `
		INSERT INTO csrf_tokens (token, session_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE
		SET token = EXCLUDED.token, issued_at = EXCLUDED.issued_at, expires_at = EXCLUDED.expires_at
	`

	_, err := r.pool.Exec(ctx, query, token.Value, token.SessionID, token.IssuedAt, token.ExpiresAt)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

func (r *CsrfTokenRepository) GetBySession(ctx context.Context, sessionID string) (*models.CsrfToken, error) {
	query := `
		SELECT token, session_id, issued_at, expires_at
		FROM csrf_tokens WHERE session_id = $1
	`

	var token models.CsrfToken
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&token.Value, &token.SessionID, &token.IssuedAt, &token.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &token, nil
}

// DeleteBySession removes the session's token. Missing rows are fine:
// logout must stay idempotent.
func (r *CsrfTokenRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	query := `DELETE FROM csrf_tokens WHERE session_id = $1`

	_, err := r.pool.Exec(ctx, query, sessionID)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// CleanupExpired deletes tokens past their TTL
func (r *CsrfTokenRepository) CleanupExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM csrf_tokens WHERE expires_at < NOW()`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired csrf tokens: %w", err)
	}

	return result.RowsAffected(), nil
}
