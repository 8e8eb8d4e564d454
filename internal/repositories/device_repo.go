package repositories

import (
	"context"
	"fmt"

	"github.com/chrisdurfee/authgate/internal/database"
	"github.com/chrisdurfee/authgate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DeviceRepository struct {
	pool *pgxpool.Pool
}

func NewDeviceRepository(db *database.DB) *DeviceRepository {
	return &DeviceRepository{pool: db.Pool}
}

const deviceColumns = `id, user_id, device_fingerprint, trusted, first_seen_at, last_seen_at`

func scanDeviceRow(scanner rowScanner) (*models.AuthedDevice, error) {
	var d models.AuthedDevice

	err := scanner.Scan(
		&d.ID, &d.UserID, &d.DeviceFingerprint, &d.Trusted,
		&d.FirstSeenAt, &d.LastSeenAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &d, nil
}

func scanDeviceRows(rows pgx.Rows) ([]*models.AuthedDevice, error) {
	defer rows.Close()

	devices := make([]*models.AuthedDevice, 0)

	for rows.Next() {
		device, err := scanDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device rows: %w", err)
	}

	return devices, nil
}

func (r *DeviceRepository) GetByFingerprint(ctx context.Context, userID, fingerprint string) (*models.AuthedDevice, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM authed_devices WHERE user_id = $1 AND device_fingerprint = $2
	`

	return scanDeviceRow(r.pool.QueryRow(ctx, query, userID, fingerprint))
}

// Record creates the device on first sighting or stamps last_seen_at on
// subsequent ones. New devices always start untrusted.
func (r *DeviceRepository) Record(ctx context.Context, userID, fingerprint string, trusted bool) (*models.AuthedDevice, error) {
	query := `
		INSERT INTO authed_devices (id, user_id, device_fingerprint, trusted, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (user_id, device_fingerprint) DO UPDATE SET last_seen_at = NOW()
		RETURNING ` + deviceColumns

	return scanDeviceRow(r.pool.QueryRow(ctx, query, uuid.New().String(), userID, fingerprint, trusted))
}

// MarkTrusted flips the trusted flag. Devices are never deleted, only marked.
func (r *DeviceRepository) MarkTrusted(ctx context.Context, userID, fingerprint string) error {
	query := `
		UPDATE authed_devices SET trusted = TRUE, last_seen_at = NOW()
		WHERE user_id = $1 AND device_fingerprint = $2
	`

	result, err := r.pool.Exec(ctx, query, userID, fingerprint)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *DeviceRepository) ListByUser(ctx context.Context, userID string) ([]*models.AuthedDevice, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM authed_devices WHERE user_id = $1 ORDER BY last_seen_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}

	return scanDeviceRows(rows)
}
