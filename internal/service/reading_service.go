package service

import (
	"context"

	"CapIot.relaysync/internal/models"
	"CapIot.relaysync/internal/repository"
)

const (
	DefaultReadingLimit = 100
	MaxReadingLimit     = 1000
)

// ReadingService reads back stored telemetry, newest recorded first.
type ReadingService struct {
	readings repository.ReadingRepository
}

// NewReadingService creates a new ReadingService.
func NewReadingService(readings repository.ReadingRepository) *ReadingService {
	return &ReadingService{readings: readings}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultReadingLimit
	case limit > MaxReadingLimit:
		return MaxReadingLimit
	default:
		return limit
	}
}

// List returns the newest readings across devices.
func (s *ReadingService) List(ctx context.Context, limit int) ([]models.SensorReading, error) {
	return s.readings.ListReadings(ctx, "", clampLimit(limit))
}

// ByDevice returns the newest readings of one device.
func (s *ReadingService) ByDevice(ctx context.Context, deviceID string, limit int) ([]models.SensorReading, error) {
	return s.readings.ListReadings(ctx, deviceID, clampLimit(limit))
}

// Latest returns the most recent reading of every device.
func (s *ReadingService) Latest(ctx context.Context) ([]models.SensorReading, error) {
	return s.readings.LatestReadings(ctx)
}

// LatestForDevice returns the newest reading of one device.
func (s *ReadingService) LatestForDevice(ctx context.Context, deviceID string) (models.SensorReading, error) {
	return s.readings.LatestReading(ctx, deviceID)
}
