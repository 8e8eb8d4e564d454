package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/chrisdurfee/authgate/internal/geo"
	"github.com/chrisdurfee/authgate/internal/models"
	"github.com/chrisdurfee/authgate/internal/notify"
	"github.com/chrisdurfee/authgate/pkg/logger"
)

// DeviceRepository defines the interface for trusted device operations
type DeviceRepository interface {
	GetByFingerprint(ctx context.Context, userID, fingerprint string) (*models.AuthedDevice, error)
	Record(ctx context.Context, userID, fingerprint string, trusted bool) (*models.AuthedDevice, error)
	MarkTrusted(ctx context.Context, userID, fingerprint string) error
	ListByUser(ctx context.Context, userID string) ([]*models.AuthedDevice, error)
}

// LocationRepository defines the interface for sign-in location operations
type LocationRepository interface {
	Create(ctx context.Context, loc *models.AuthedLocation) (*models.AuthedLocation, error)
	Known(ctx context.Context, userID, city, region, country string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]*models.AuthedLocation, error)
}

// DeviceTrustService tracks which devices and locations a user has signed in
// from and decides whether a sign-in needs step-up verification.
type DeviceTrustService struct {
	devices   DeviceRepository
	locations LocationRepository
	resolver  geo.Resolver
	notifier  notify.Notifier
	audit     *logger.AuditLogger
	logger    *slog.Logger

	notifyTimeout time.Duration
}

func NewDeviceTrustService(
	devices DeviceRepository,
	locations LocationRepository,
	resolver geo.Resolver,
	notifier notify.Notifier,
	audit *logger.AuditLogger,
	log *slog.Logger,
) *DeviceTrustService {
	return &DeviceTrustService{
		devices:       devices,
		locations:     locations,
		resolver:      resolver,
		notifier:      notifier,
		audit:         audit,
		logger:        log,
		notifyTimeout: 10 * time.Second,
	}
}

// Evaluate records the sighting of a device and reports whether it is
// trusted. trustNew controls what a never-before-seen device starts as;
// registration passes true so the enrolling device skips step-up, login
// passes false. Geo resolution and user notification are best-effort and
// never fail the sign-in.
func (s *DeviceTrustService) Evaluate(ctx context.Context, userID, email, fingerprint, ip string, trustNew bool) (*models.AuthedDevice, error) {
	device, err := s.devices.Record(ctx, userID, fingerprint, trustNew)
	if err != nil {
		return nil, err
	}

	location := s.resolveLocation(ctx, userID, ip)

	s.audit.LogDeviceTrust(logger.AuditEvent{
		EventType:   "device_evaluated",
		UserID:      userID,
		Fingerprint: fingerprint,
		IPAddress:   ip,
		Success:     device.Trusted,
	})

	if !device.Trusted {
		s.notifyAsync(email, location)
	}

	return device, nil
}

// resolveLocation looks up the IP's location, records it if the user has not
// signed in from there before, and returns it. Any failure degrades to nil.
func (s *DeviceTrustService) resolveLocation(ctx context.Context, userID, ip string) *geo.Location {
	if s.resolver == nil || ip == "" {
		return nil
	}

	location, err := s.resolver.Resolve(ctx, ip)
	if err != nil {
		s.logger.Warn("geo resolution failed", slog.Any("error", err))
		return nil
	}

	known, err := s.locations.Known(ctx, userID, location.City, location.Region, location.Country)
	if err != nil {
		s.logger.Error("failed to check known locations", slog.Any("error", err))
		return location
	}

	if !known {
		_, err := s.locations.Create(ctx, &models.AuthedLocation{
			UserID:    userID,
			City:      location.City,
			Region:    location.Region,
			Country:   location.Country,
			Latitude:  location.Latitude,
			Longitude: location.Longitude,
			IPAddress: ip,
		})
		if err != nil {
			s.logger.Error("failed to record sign-in location", slog.Any("error", err))
		}
	}

	return location
}

func (s *DeviceTrustService) notifyAsync(email string, location *geo.Location) {
	if s.notifier == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()

		if err := s.notifier.NotifyUnrecognized(ctx, email, location); err != nil {
			s.logger.Error("sign-in alert delivery failed", slog.Any("error", err))
		}
	}()
}

// MarkTrusted promotes a device after its owner completed verification.
func (s *DeviceTrustService) MarkTrusted(ctx context.Context, userID, fingerprint string) error {
	if err := s.devices.MarkTrusted(ctx, userID, fingerprint); err != nil {
		return err
	}

	s.audit.LogDeviceTrust(logger.AuditEvent{
		EventType:   "device_trusted",
		UserID:      userID,
		Fingerprint: fingerprint,
		Success:     true,
	})

	return nil
}

// ListDevices returns every device the user has signed in from.
func (s *DeviceTrustService) ListDevices(ctx context.Context, userID string) ([]*models.AuthedDevice, error) {
	return s.devices.ListByUser(ctx, userID)
}
