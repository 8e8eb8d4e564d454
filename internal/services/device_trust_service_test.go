package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdurfee/authgate/internal/geo"
	"github.com/chrisdurfee/authgate/internal/models"
	"github.com/chrisdurfee/authgate/internal/services"
	pkglogger "github.com/chrisdurfee/authgate/pkg/logger"
)

// stubResolver returns a fixed location or error
type stubResolver struct {
	location *geo.Location
	err      error
}

func (r *stubResolver) Resolve(ctx context.Context, ip string) (*geo.Location, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.location, nil
}

// captureNotifier records sign-in alerts on a channel
type captureNotifier struct {
	alerts chan string
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{alerts: make(chan string, 8)}
}

func (n *captureNotifier) NotifyUnrecognized(ctx context.Context, email string, location *geo.Location) error {
	n.alerts <- email
	return nil
}

func (n *captureNotifier) wait(t *testing.T) string {
	t.Helper()
	select {
	case email := <-n.alerts:
		return email
	case <-time.After(2 * time.Second):
		t.Fatal("no sign-in alert arrived")
		return ""
	}
}

func newDeviceTrustService(devices *MockDeviceRepository, locations *MockLocationRepository, resolver geo.Resolver, notifier *captureNotifier) *services.DeviceTrustService {
	logger := testLogger()
	if notifier != nil {
		return services.NewDeviceTrustService(devices, locations, resolver, notifier, pkglogger.NewAuditLogger(logger), logger)
	}
	return services.NewDeviceTrustService(devices, locations, resolver, nil, pkglogger.NewAuditLogger(logger), logger)
}

func TestDeviceEvaluate_NewDeviceStartsUntrustedOnLogin(t *testing.T) {
	devices := NewMockDeviceRepository()
	service := newDeviceTrustService(devices, NewMockLocationRepository(), nil, nil)

	device, err := service.Evaluate(context.Background(), "user-1", "ripley@example.com", "fp-phone", "", false)
	require.NoError(t, err)
	assert.False(t, device.Trusted)
}

func TestDeviceEvaluate_NewDeviceTrustedOnRegistration(t *testing.T) {
	devices := NewMockDeviceRepository()
	service := newDeviceTrustService(devices, NewMockLocationRepository(), nil, nil)

	device, err := service.Evaluate(context.Background(), "user-1", "ripley@example.com", "fp-first", "", true)
	require.NoError(t, err)
	assert.True(t, device.Trusted)
}

func TestDeviceEvaluate_KnownDeviceKeepsTrust(t *testing.T) {
	devices := NewMockDeviceRepository()
	service := newDeviceTrustService(devices, NewMockLocationRepository(), nil, nil)
	ctx := context.Background()

	_, err := devices.Record(ctx, "user-1", "fp-laptop", true)
	require.NoError(t, err)

	// A later sighting must not demote the device, whatever trustNew says
	device, err := service.Evaluate(ctx, "user-1", "ripley@example.com", "fp-laptop", "", false)
	require.NoError(t, err)
	assert.True(t, device.Trusted)
}

func TestDeviceEvaluate_UntrustedSightingSendsAlert(t *testing.T) {
	notifier := newCaptureNotifier()
	service := newDeviceTrustService(NewMockDeviceRepository(), NewMockLocationRepository(), nil, notifier)

	_, err := service.Evaluate(context.Background(), "user-1", "ripley@example.com", "fp-phone", "", false)
	require.NoError(t, err)

	assert.Equal(t, "ripley@example.com", notifier.wait(t))
}

func TestDeviceEvaluate_TrustedSightingSendsNoAlert(t *testing.T) {
	notifier := newCaptureNotifier()
	service := newDeviceTrustService(NewMockDeviceRepository(), NewMockLocationRepository(), nil, notifier)

	_, err := service.Evaluate(context.Background(), "user-1", "ripley@example.com", "fp-first", "", true)
	require.NoError(t, err)

	select {
	case email := <-notifier.alerts:
		t.Fatalf("unexpected alert for %s", email)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDeviceEvaluate_RecordsUnknownLocation(t *testing.T) {
	locations := NewMockLocationRepository()
	resolver := &stubResolver{location: &geo.Location{
		City: "Lisbon", Region: "Lisboa", Country: "Portugal",
	}}
	service := newDeviceTrustService(NewMockDeviceRepository(), locations, resolver, nil)
	ctx := context.Background()

	_, err := service.Evaluate(ctx, "user-1", "ripley@example.com", "fp-phone", "203.0.113.7", false)
	require.NoError(t, err)

	known, err := locations.Known(ctx, "user-1", "Lisbon", "Lisboa", "Portugal")
	require.NoError(t, err)
	assert.True(t, known)

	// A repeat sign-in from the same place records nothing new
	_, err = service.Evaluate(ctx, "user-1", "ripley@example.com", "fp-phone", "203.0.113.7", false)
	require.NoError(t, err)

	locations.mu.Lock()
	assert.Len(t, locations.locations, 1)
	locations.mu.Unlock()
}

func TestDeviceEvaluate_GeoFailureDegrades(t *testing.T) {
	resolver := &stubResolver{err: errors.New("resolver unreachable")}
	service := newDeviceTrustService(NewMockDeviceRepository(), NewMockLocationRepository(), resolver, nil)

	device, err := service.Evaluate(context.Background(), "user-1", "ripley@example.com", "fp-phone", "203.0.113.7", false)
	require.NoError(t, err)
	assert.NotNil(t, device)
}

func TestDeviceMarkTrusted(t *testing.T) {
	devices := NewMockDeviceRepository()
	service := newDeviceTrustService(devices, NewMockLocationRepository(), nil, nil)
	ctx := context.Background()

	_, err := devices.Record(ctx, "user-1", "fp-phone", false)
	require.NoError(t, err)

	require.NoError(t, service.MarkTrusted(ctx, "user-1", "fp-phone"))

	device, err := devices.GetByFingerprint(ctx, "user-1", "fp-phone")
	require.NoError(t, err)
	assert.True(t, device.Trusted)
}

func TestDeviceMarkTrusted_UnknownDevice(t *testing.T) {
	service := newDeviceTrustService(NewMockDeviceRepository(), NewMockLocationRepository(), nil, nil)

	err := service.MarkTrusted(context.Background(), "user-1", "fp-ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeviceListDevices(t *testing.T) {
	devices := NewMockDeviceRepository()
	service := newDeviceTrustService(devices, NewMockLocationRepository(), nil, nil)
	ctx := context.Background()

	_, err := devices.Record(ctx, "user-1", "fp-laptop", true)
	require.NoError(t, err)
	_, err = devices.Record(ctx, "user-1", "fp-phone", false)
	require.NoError(t, err)
	_, err = devices.Record(ctx, "user-2", "fp-other", true)
	require.NoError(t, err)

	listed, err := service.ListDevices(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}
