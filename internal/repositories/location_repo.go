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

type LocationRepository struct {
	pool *pgxpool.Pool
}

func NewLocationRepository(db *database.DB) *LocationRepository {
	return &LocationRepository{pool: db.Pool}
}

const locationColumns = `id, user_id, city, region, country, latitude, longitude, ip_address, created_at, deleted_at`

func scanLocationRow(scanner rowScanner) (*models.AuthedLocation, error) {
	var loc models.AuthedLocation
	var deletedAt *time.Time

	err := scanner.Scan(
		&loc.ID, &loc.UserID, &loc.City, &loc.Region, &loc.Country,
		&loc.Latitude, &loc.Longitude, &loc.IPAddress, &loc.CreatedAt, &deletedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	loc.DeletedAt = deletedAt
	return &loc, nil
}

func (r *LocationRepository) Create(ctx context.Context, loc *models.AuthedLocation) (*models.AuthedLocation, error) {
	loc.ID = uuid.New().String()

	query := `
		INSERT INTO user_authed_locations (id, user_id, city, region, country, latitude, longitude, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING ` + locationColumns

	return scanLocationRow(r.pool.QueryRow(ctx, query,
		loc.ID, loc.UserID, loc.City, loc.Region, loc.Country,
		loc.Latitude, loc.Longitude, loc.IPAddress,
	))
}

// Known reports whether the user has an active (not soft-revoked) record for
// the city/region/country triple.
func (r *LocationRepository) Known(ctx context.Context, userID, city, region, country string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM user_authed_locations
			WHERE user_id = $1 AND city = $2 AND region = $3 AND country = $4 AND deleted_at IS NULL
		)
	`

	var exists bool
	err := r.pool.QueryRow(ctx, query, userID, city, region, country).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return exists, nil
}

// Revoke soft-deletes a location record; rows are never hard-deleted
func (r *LocationRepository) Revoke(ctx context.Context, id string) error {
	query := `
		UPDATE user_authed_locations SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *LocationRepository) ListByUser(ctx context.Context, userID string) ([]*models.AuthedLocation, error) {
	query := `
		SELECT ` + locationColumns + `
		FROM user_authed_locations
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	locations := make([]*models.AuthedLocation, 0)
	for rows.Next() {
		loc, err := scanLocationRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, loc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating location rows: %w", err)
	}

	return locations, nil
}
