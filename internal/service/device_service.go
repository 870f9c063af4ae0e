package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"CapIot.relaysync/internal/liveness"
	"CapIot.relaysync/internal/models"
	"CapIot.relaysync/internal/repository"
)

// DeviceService answers device listing and liveness queries.
type DeviceService struct {
	devices  repository.DeviceRepository
	presence PresenceCache
	lg       *slog.Logger
	now      func() time.Time
}

// NewDeviceService creates a new DeviceService.
func NewDeviceService(devices repository.DeviceRepository, lg *slog.Logger) *DeviceService {
	return &DeviceService{devices: devices, lg: lg.With("component", "devices"), now: time.Now}
}

// SetPresence makes Status consult presence before the durable store.
func (s *DeviceService) SetPresence(presence PresenceCache) { s.presence = presence }

// List returns every device.
func (s *DeviceService) List(ctx context.Context) ([]models.Device, error) {
	return s.devices.ListDevices(ctx)
}

// Get returns one device.
func (s *DeviceService) Get(ctx context.Context, deviceID string) (models.Device, error) {
	return s.devices.GetDevice(ctx, deviceID)
}

// Status reports whether deviceID was heard from within the liveness
// threshold. It returns repository.ErrNotFound for a device never seen.
func (s *DeviceService) Status(ctx context.Context, deviceID string) (models.DeviceStatus, error) {
	now := s.now()
	status := models.DeviceStatus{DeviceID: deviceID}

	if s.presence != nil {
		seen, ok, err := s.presence.LastSeen(ctx, deviceID)
		switch {
		case err != nil:
			s.lg.Warn("presence lookup failed", "device_id", deviceID, "error", err)
		case ok:
			status.LastSeen = &seen
			status.IsOnline = liveness.IsOnline(&seen, now)
			return status, nil
		}
	}

	device, err := s.devices.GetDevice(ctx, deviceID)
	if errors.Is(err, repository.ErrNotFound) {
		return status, repository.ErrNotFound
	}
	if err != nil {
		return status, err
	}
	status.LastSeen = device.LastSeen
	status.IsOnline = liveness.IsOnline(device.LastSeen, now)
	return status, nil
}
