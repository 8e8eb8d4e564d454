package repositories

import (
	"context"
	"time"

	"github.com/chrisdurfee/authgate/internal/database"
	"github.com/chrisdurfee/authgate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var passwordHash *string
	var totpEnrolledAt, passwordChangedAt *time.Time

	err := scanner.Scan(
		&user.ID, &user.Email, &passwordHash, &user.Name, &user.Status,
		&user.TOTPSecretEncrypted, &user.TOTPSecretNonce, &totpEnrolledAt,
		&passwordChangedAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}
	user.TOTPEnrolledAt = totpEnrolledAt
	user.PasswordChangedAt = passwordChangedAt

	return &user, nil
}

const userColumns = `id, email, password_hash, name, status, totp_secret_encrypted, totp_secret_nonce, totp_enrolled_at, password_changed_at, created_at, updated_at`

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Status == "" {
		user.Status = "active"
	}

	query := `
		INSERT INTO users (id, email, password_hash, name, status, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + userColumns

	var passwordHash *string
	if user.PasswordHash != "" {
		passwordHash = &user.PasswordHash
	}

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Email, passwordHash, user.Name, user.Status,
		user.PasswordChangedAt, user.CreatedAt, user.UpdatedAt,
	))
}

// SetTOTPSecret stores the encrypted authenticator secret without enabling the factor
func (r *UserRepository) SetTOTPSecret(ctx context.Context, userID string, encrypted, nonce []byte) error {
	query := `
		UPDATE users SET totp_secret_encrypted = $1, totp_secret_nonce = $2, totp_enrolled_at = NULL, updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.pool.Exec(ctx, query, encrypted, nonce, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// ActivateTOTP enables the authenticator-app factor after the first valid code
func (r *UserRepository) ActivateTOTP(ctx context.Context, userID string) error {
	query := `
		UPDATE users SET totp_enrolled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND totp_secret_encrypted IS NOT NULL
	`

	result, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
