package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"CapIot.relaysync/internal/models"
	"CapIot.relaysync/internal/repository"
)

// Telemetry is one validated sensor report. Timestamp is the device's own
// clock when it sent one.
type Telemetry struct {
	DeviceID    string
	Temperature float64
	Humidity    float64
	Timestamp   *time.Time
}

// TelemetryStore is what ingest needs from the durable store.
type TelemetryStore interface {
	UpsertDeviceSeen(ctx context.Context, deviceID string, seenAt time.Time) error
	CreateReading(ctx context.Context, reading *models.SensorReading) error
}

// ReadingArchive receives a secondary copy of every accepted reading.
type ReadingArchive interface {
	ArchiveReading(ctx context.Context, reading models.SensorReading) error
}

// PresenceCache tracks device last-seen times outside the durable store.
type PresenceCache interface {
	MarkSeen(ctx context.Context, deviceID string, seenAt time.Time) error
	LastSeen(ctx context.Context, deviceID string) (time.Time, bool, error)
}

// TelemetryService records sensor reports. Duplicate deliveries produce
// duplicate readings.
type TelemetryService struct {
	store    TelemetryStore
	archive  ReadingArchive
	presence PresenceCache
	lg       *slog.Logger
	now      func() time.Time
}

var _ TelemetryStore = (repository.Store)(nil)

// NewTelemetryService creates a new TelemetryService.
func NewTelemetryService(store TelemetryStore, lg *slog.Logger) *TelemetryService {
	return &TelemetryService{store: store, lg: lg.With("component", "telemetry"), now: time.Now}
}

// SetArchive enables mirroring readings into archive.
func (s *TelemetryService) SetArchive(archive ReadingArchive) { s.archive = archive }

// SetPresence enables last-seen caching.
func (s *TelemetryService) SetPresence(presence PresenceCache) { s.presence = presence }

// Ingest marks the device seen now and appends one reading.
func (s *TelemetryService) Ingest(ctx context.Context, t Telemetry) (models.SensorReading, error) {
	if t.DeviceID == "" {
		return models.SensorReading{}, invalid("device_id", "is required")
	}
	now := s.now()

	if err := s.store.UpsertDeviceSeen(ctx, t.DeviceID, now); err != nil {
		return models.SensorReading{}, err
	}

	reading := models.SensorReading{
		DeviceID:    t.DeviceID,
		Temperature: t.Temperature,
		Humidity:    t.Humidity,
		RecordedAt:  now,
	}
	if t.Timestamp != nil {
		reading.RecordedAt = *t.Timestamp
	}
	if err := s.store.CreateReading(ctx, &reading); err != nil {
		return models.SensorReading{}, fmt.Errorf("telemetry: %w", err)
	}
	s.lg.Debug("reading stored", "device_id", t.DeviceID, "temperature", t.Temperature, "humidity", t.Humidity)

	if s.presence != nil {
		if err := s.presence.MarkSeen(ctx, t.DeviceID, now); err != nil {
			s.lg.Warn("presence update failed", "device_id", t.DeviceID, "error", err)
		}
	}
	if s.archive != nil {
		if err := s.archive.ArchiveReading(ctx, reading); err != nil {
			s.lg.Warn("archive write failed", "device_id", t.DeviceID, "error", err)
		}
	}
	return reading, nil
}
