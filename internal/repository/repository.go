package repository

import (
	"context"
	"errors"
	"time"

	"CapIot.relaysync/internal/models"
)

var (
	// ErrNotFound is returned when a lookup or targeted update matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique key.
	ErrDuplicate = errors.New("duplicate record")
)

// DeviceRepository covers the Device record.
type DeviceRepository interface {
	// UpsertDeviceSeen creates the device if needed and marks it active and
	// seen at seenAt.
	UpsertDeviceSeen(ctx context.Context, deviceID string, seenAt time.Time) error
	GetDevice(ctx context.Context, deviceID string) (models.Device, error)
	ListDevices(ctx context.Context) ([]models.Device, error)
}

// ReadingRepository covers the append-only SensorReading log.
type ReadingRepository interface {
	CreateReading(ctx context.Context, reading *models.SensorReading) error
	// ListReadings returns the newest readings first. An empty deviceID
	// lists every device.
	ListReadings(ctx context.Context, deviceID string, limit int) ([]models.SensorReading, error)
	LatestReading(ctx context.Context, deviceID string) (models.SensorReading, error)
	// LatestReadings returns the most recent reading of every device.
	LatestReadings(ctx context.Context) ([]models.SensorReading, error)
}

// RelayRepository covers Relay records keyed by device and channel.
type RelayRepository interface {
	FindRelay(ctx context.Context, deviceID string, channel int) (models.Relay, error)
	GetRelay(ctx context.Context, id uint) (models.Relay, error)
	// CreateRelay inserts relay, creating its device row when absent.
	CreateRelay(ctx context.Context, relay *models.Relay) error
	// UpdateRelayCurrent records a device-reported state. It reports false
	// when no relay matches.
	UpdateRelayCurrent(ctx context.Context, deviceID string, channel int, state bool, at time.Time) (bool, error)
	// SetRelayDesired records the intended state. ErrNotFound when no relay
	// matches.
	SetRelayDesired(ctx context.Context, deviceID string, channel int, state bool, at time.Time) error
	ListRelays(ctx context.Context) ([]models.Relay, error)
	ListRelaysByDevice(ctx context.Context, deviceID string) ([]models.Relay, error)
}

// ScheduleFilter narrows ListSchedules. Zero values do not filter.
type ScheduleFilter struct {
	RelayID  uint
	DeviceID string
}

// ScheduleRepository covers RelaySchedule records.
type ScheduleRepository interface {
	// ListActiveSchedulesWithRelay returns active schedules with Relay
	// loaded; Relay is nil when the reference dangles.
	ListActiveSchedulesWithRelay(ctx context.Context) ([]models.RelaySchedule, error)
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]models.RelaySchedule, error)
	GetSchedule(ctx context.Context, id uint) (models.RelaySchedule, error)
	CreateSchedule(ctx context.Context, schedule *models.RelaySchedule) error
	UpdateSchedule(ctx context.Context, schedule *models.RelaySchedule) error
	DeleteSchedule(ctx context.Context, id uint) error
}

// UserRepository covers operator accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByUsername(ctx context.Context, username string) (models.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)
}

// Store is the full durable store.
type Store interface {
	DeviceRepository
	ReadingRepository
	RelayRepository
	ScheduleRepository
	UserRepository
	Close() error
}
