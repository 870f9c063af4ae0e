package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"CapIot.relaysync/internal/models"
	"CapIot.relaysync/internal/repository"
)

// Commander issues a desired relay state.
type Commander interface {
	Issue(ctx context.Context, deviceID string, channel int, state bool) error
}

// RelayService backs the relay endpoints of the administrative API.
type RelayService struct {
	relays   repository.RelayRepository
	commands Commander
	lg       *slog.Logger
	now      func() time.Time
}

// NewRelayService creates a new RelayService.
func NewRelayService(relays repository.RelayRepository, commands Commander, lg *slog.Logger) *RelayService {
	return &RelayService{relays: relays, commands: commands, lg: lg.With("component", "relays"), now: time.Now}
}

// List returns every relay.
func (s *RelayService) List(ctx context.Context) ([]models.Relay, error) {
	return s.relays.ListRelays(ctx)
}

// Get returns one relay by device and channel.
func (s *RelayService) Get(ctx context.Context, deviceID string, channel int) (models.Relay, error) {
	return s.relays.FindRelay(ctx, deviceID, channel)
}

// ListByDevice returns the relays of one device.
func (s *RelayService) ListByDevice(ctx context.Context, deviceID string) ([]models.Relay, error) {
	return s.relays.ListRelaysByDevice(ctx, deviceID)
}

// Control sets the desired state of a relay. An unknown relay is created
// first with the device's current state assumed off; created reports that.
func (s *RelayService) Control(ctx context.Context, deviceID string, channel int, state bool) (created bool, err error) {
	if deviceID == "" {
		return false, invalid("deviceId", "is required")
	}
	if channel < 0 {
		return false, invalid("relayChannel", "must not be negative")
	}

	_, err = s.relays.FindRelay(ctx, deviceID, channel)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		relay := &models.Relay{
			DeviceID:     deviceID,
			RelayChannel: channel,
			Name:         models.DefaultRelayName(deviceID, channel),
			DesiredState: state,
			CurrentState: false,
			LastUpdated:  s.now(),
		}
		if err := s.relays.CreateRelay(ctx, relay); err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return false, fmt.Errorf("control relay: %w", err)
		}
		created = true
		s.lg.Info("relay created by operator", "device_id", deviceID, "relay_channel", channel)
	case err != nil:
		return false, fmt.Errorf("control relay: %w", err)
	}

	if err := s.commands.Issue(ctx, deviceID, channel, state); err != nil {
		return created, err
	}
	return created, nil
}
