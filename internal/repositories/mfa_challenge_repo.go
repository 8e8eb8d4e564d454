package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/chrisdurfee/authgate/internal/database"
	"github.com/chrisdurfee/authgate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MfaChallengeRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewMfaChallengeRepository(db *database.DB) *MfaChallengeRepository {
	return &MfaChallengeRepository{db: db, pool: db.Pool}
}

const challengeColumns = `id, user_id, purpose, code_hash, channel, version, attempts, max_attempts, status, issued_at, expires_at`

func scanChallengeRow(scanner rowScanner) (*models.MfaChallenge, error) {
	var c models.MfaChallenge

	err := scanner.Scan(
		&c.ID, &c.UserID, &c.Purpose, &c.CodeHash, &c.Channel, &c.Version,
		&c.Attempts, &c.MaxAttempts, &c.Status, &c.IssuedAt, &c.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &c, nil
}

// CreateSuperseding atomically expires any pending challenge for the same
// (user, purpose) and inserts the new one, carrying the version forward.
// A verify racing this transaction either finishes against the old row before
// it flips or loses its status guard afterwards.
func (r *MfaChallengeRepository) CreateSuperseding(ctx context.Context, challenge *models.MfaChallenge) (*models.MfaChallenge, error) {
	challenge.ID = uuid.New().String()

	var created *models.MfaChallenge
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE mfa_challenges SET status = $1
			WHERE user_id = $2 AND purpose = $3 AND status = $4
		`, models.ChallengeExpired, challenge.UserID, challenge.Purpose, models.ChallengePending)
		if err != nil {
			return err
		}

		// Version continues from the highest ever issued for the pair, so
		// GetLatest always finds the newest row first.
		row := tx.QueryRow(ctx, `
			INSERT INTO mfa_challenges (id, user_id, purpose, code_hash, channel, version, attempts, max_attempts, status, issued_at, expires_at)
			SELECT $1, $2, $3, $4, $5,
			       COALESCE((SELECT MAX(version) FROM mfa_challenges WHERE user_id = $2 AND purpose = $3), 0) + 1,
			       $6, $7, $8, $9, $10
			RETURNING `+challengeColumns,
			challenge.ID, challenge.UserID, challenge.Purpose, challenge.CodeHash,
			challenge.Channel, challenge.Attempts, challenge.MaxAttempts,
			challenge.Status, challenge.IssuedAt, challenge.ExpiresAt,
		)

		created, err = scanChallengeRow(row)
		return err
	})
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return created, nil
}

// GetLatest returns the most recent challenge for (user, purpose) regardless
// of status, so verification can distinguish locked/consumed/expired replays.
func (r *MfaChallengeRepository) GetLatest(ctx context.Context, userID, purpose string) (*models.MfaChallenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM mfa_challenges
		WHERE user_id = $1 AND purpose = $2
		ORDER BY version DESC
		LIMIT 1
	`

	return scanChallengeRow(r.pool.QueryRow(ctx, query, userID, purpose))
}

// IncrementAttempts bumps the attempt counter, guarded on pending status and
// the attempt budget. Returns the updated challenge, or ErrNotFound when the
// guard fails (superseded, consumed, locked, or budget already spent).
func (r *MfaChallengeRepository) IncrementAttempts(ctx context.Context, id string) (*models.MfaChallenge, error) {
	query := `
		UPDATE mfa_challenges SET attempts = attempts + 1
		WHERE id = $1 AND status = $2 AND attempts < max_attempts
		RETURNING ` + challengeColumns

	return scanChallengeRow(r.pool.QueryRow(ctx, query, id, models.ChallengePending))
}

// TransitionStatus moves a pending challenge to a terminal status with a
// compare-and-swap on the stored status. Returns ErrNotFound when the
// challenge already left pending, so exactly one transition wins a race.
func (r *MfaChallengeRepository) TransitionStatus(ctx context.Context, id, toStatus string) error {
	query := `
		UPDATE mfa_challenges SET status = $2
		WHERE id = $1 AND status = $3
	`

	result, err := r.pool.Exec(ctx, query, id, toStatus, models.ChallengePending)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// CleanupStale deletes terminal challenges older than the threshold
func (r *MfaChallengeRepository) CleanupStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM mfa_challenges
		WHERE status <> $1 AND issued_at < NOW() - make_interval(secs => $2)
	`

	result, err := r.pool.Exec(ctx, query, models.ChallengePending, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup stale challenges: %w", err)
	}

	return result.RowsAffected(), nil
}
