package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"CapIot.relaysync/internal/models"
)

// GormStore is the durable store backed by SQLite through gorm. Every
// mutation is a single-row statement so concurrent message handlers and
// scheduler ticks only contend on row level.
type GormStore struct {
	db *gorm.DB
	lg *slog.Logger
}

var _ Store = (*GormStore)(nil)

// OpenGormStore opens (creating if needed) the SQLite database at path and
// migrates the schema.
func OpenGormStore(path string, lg *slog.Logger) (*GormStore, error) {
	if path == "" {
		return nil, fmt.Errorf("repository: database path is required")
	}
	if lg == nil {
		lg = slog.New(slog.DiscardHandler)
	}

	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: logger.New(slog.NewLogLogger(lg.Handler(), slog.LevelWarn), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: opening %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("repository: %w", err)
	}
	if path == ":memory:" {
		// every in-memory connection is its own database
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("repository: ping %s: %w", path, err)
	}

	if err := db.AutoMigrate(
		&models.Device{},
		&models.SensorReading{},
		&models.Relay{},
		&models.RelaySchedule{},
		&models.User{},
	); err != nil {
		return nil, fmt.Errorf("repository: migrate: %w", err)
	}

	lg.Info("store opened", "path", path)
	return &GormStore{db: db, lg: lg}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

// UpsertDeviceSeen creates deviceID on first contact and refreshes its last-seen time.
func (s *GormStore) UpsertDeviceSeen(ctx context.Context, deviceID string, seenAt time.Time) error {
	seen := seenAt.UTC()
	device := models.Device{
		DeviceID: deviceID,
		Name:     models.DefaultDeviceName(deviceID),
		LastSeen: &seen,
		IsActive: true,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen", "is_active", "updated_at"}),
	}).Create(&device).Error
	if err != nil {
		return fmt.Errorf("upsert device %s: %w", deviceID, translate(err))
	}
	return nil
}

// GetDevice returns one device or ErrNotFound.
func (s *GormStore) GetDevice(ctx context.Context, deviceID string) (models.Device, error) {
	var device models.Device
	err := s.db.WithContext(ctx).First(&device, "device_id = ?", deviceID).Error
	return device, translate(err)
}

// ListDevices returns every device ordered by id.
func (s *GormStore) ListDevices(ctx context.Context) ([]models.Device, error) {
	var devices []models.Device
	err := s.db.WithContext(ctx).Order("device_id").Find(&devices).Error
	return devices, translate(err)
}

// CreateReading appends a reading; RecordedAt is stored in UTC.
func (s *GormStore) CreateReading(ctx context.Context, reading *models.SensorReading) error {
	reading.RecordedAt = reading.RecordedAt.UTC()
	if err := s.db.WithContext(ctx).Create(reading).Error; err != nil {
		return fmt.Errorf("create reading for %s: %w", reading.DeviceID, translate(err))
	}
	return nil
}

// ListReadings returns readings newest first, optionally for one device.
// A limit of 0 means no limit.
func (s *GormStore) ListReadings(ctx context.Context, deviceID string, limit int) ([]models.SensorReading, error) {
	q := s.db.WithContext(ctx).Order("recorded_at DESC").Order("id DESC")
	if deviceID != "" {
		q = q.Where("device_id = ?", deviceID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var readings []models.SensorReading
	err := q.Find(&readings).Error
	return readings, translate(err)
}

// LatestReading returns the newest reading of deviceID or ErrNotFound.
func (s *GormStore) LatestReading(ctx context.Context, deviceID string) (models.SensorReading, error) {
	var reading models.SensorReading
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("recorded_at DESC").Order("id DESC").
		First(&reading).Error
	return reading, translate(err)
}

// LatestReadings returns the newest reading of every device.
func (s *GormStore) LatestReadings(ctx context.Context) ([]models.SensorReading, error) {
	latest := s.db.Model(&models.SensorReading{}).
		Select("device_id, MAX(recorded_at) AS max_recorded_at").
		Group("device_id")

	var readings []models.SensorReading
	err := s.db.WithContext(ctx).
		Select("sensor_readings.*").
		Joins("JOIN (?) AS latest ON sensor_readings.device_id = latest.device_id AND sensor_readings.recorded_at = latest.max_recorded_at", latest).
		Order("sensor_readings.recorded_at DESC").
		Find(&readings).Error
	return readings, translate(err)
}

// FindRelay looks a relay up by device and channel.
func (s *GormStore) FindRelay(ctx context.Context, deviceID string, channel int) (models.Relay, error) {
	var relay models.Relay
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND relay_channel = ?", deviceID, channel).
		First(&relay).Error
	return relay, translate(err)
}

// GetRelay looks a relay up by id.
func (s *GormStore) GetRelay(ctx context.Context, id uint) (models.Relay, error) {
	var relay models.Relay
	err := s.db.WithContext(ctx).First(&relay, id).Error
	return relay, translate(err)
}

// CreateRelay inserts relay, creating its device row if missing. A second
// relay on the same channel yields ErrDuplicate.
func (s *GormStore) CreateRelay(ctx context.Context, relay *models.Relay) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		device := models.Device{
			DeviceID: relay.DeviceID,
			Name:     models.DefaultDeviceName(relay.DeviceID),
			IsActive: true,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&device).Error; err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(relay).Error
	})
	if err != nil {
		return fmt.Errorf("create relay %s/%d: %w", relay.DeviceID, relay.RelayChannel, translate(err))
	}
	return nil
}

// UpdateRelayCurrent records a reported state. matched is false when no such relay exists.
func (s *GormStore) UpdateRelayCurrent(ctx context.Context, deviceID string, channel int, state bool, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Relay{}).
		Where("device_id = ? AND relay_channel = ?", deviceID, channel).
		Updates(map[string]any{"current_state": state, "last_updated": at.UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("update relay %s/%d current state: %w", deviceID, channel, translate(res.Error))
	}
	return res.RowsAffected > 0, nil
}

// SetRelayDesired records a commanded state or returns ErrNotFound.
func (s *GormStore) SetRelayDesired(ctx context.Context, deviceID string, channel int, state bool, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Relay{}).
		Where("device_id = ? AND relay_channel = ?", deviceID, channel).
		Updates(map[string]any{"desired_state": state, "last_updated": at.UTC()})
	if res.Error != nil {
		return fmt.Errorf("update relay %s/%d desired state: %w", deviceID, channel, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("relay %s/%d: %w", deviceID, channel, ErrNotFound)
	}
	return nil
}

// ListRelays returns every relay with its device.
func (s *GormStore) ListRelays(ctx context.Context) ([]models.Relay, error) {
	var relays []models.Relay
	err := s.db.WithContext(ctx).Preload("Device").
		Order("device_id").Order("relay_channel").
		Find(&relays).Error
	return relays, translate(err)
}

// ListRelaysByDevice returns the relays of deviceID ordered by channel.
func (s *GormStore) ListRelaysByDevice(ctx context.Context, deviceID string) ([]models.Relay, error) {
	var relays []models.Relay
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("relay_channel").
		Find(&relays).Error
	return relays, translate(err)
}

// ListActiveSchedulesWithRelay returns active schedules with their relay
// preloaded. Relay is nil when the referenced relay is gone.
func (s *GormStore) ListActiveSchedulesWithRelay(ctx context.Context) ([]models.RelaySchedule, error) {
	var schedules []models.RelaySchedule
	err := s.db.WithContext(ctx).Preload("Relay").
		Where("is_active = ?", true).
		Order("id").
		Find(&schedules).Error
	return schedules, translate(err)
}

// ListSchedules returns schedules matching filter.
func (s *GormStore) ListSchedules(ctx context.Context, filter ScheduleFilter) ([]models.RelaySchedule, error) {
	q := s.db.WithContext(ctx).Preload("Relay").Order("relay_schedules.id")
	if filter.RelayID != 0 {
		q = q.Where("relay_schedules.relay_id = ?", filter.RelayID)
	}
	if filter.DeviceID != "" {
		q = q.Joins("JOIN relays ON relays.id = relay_schedules.relay_id").
			Where("relays.device_id = ?", filter.DeviceID)
	}
	var schedules []models.RelaySchedule
	err := q.Find(&schedules).Error
	return schedules, translate(err)
}

// GetSchedule returns one schedule or ErrNotFound.
func (s *GormStore) GetSchedule(ctx context.Context, id uint) (models.RelaySchedule, error) {
	var schedule models.RelaySchedule
	err := s.db.WithContext(ctx).First(&schedule, id).Error
	return schedule, translate(err)
}

// CreateSchedule inserts schedule without touching its relay.
func (s *GormStore) CreateSchedule(ctx context.Context, schedule *models.RelaySchedule) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(schedule).Error; err != nil {
		return fmt.Errorf("create schedule: %w", translate(err))
	}
	return nil
}

// UpdateSchedule saves every field of schedule.
func (s *GormStore) UpdateSchedule(ctx context.Context, schedule *models.RelaySchedule) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(schedule).Error; err != nil {
		return fmt.Errorf("update schedule %d: %w", schedule.ID, translate(err))
	}
	return nil
}

// DeleteSchedule removes a schedule or returns ErrNotFound.
func (s *GormStore) DeleteSchedule(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.RelaySchedule{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete schedule %d: %w", id, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("schedule %d: %w", id, ErrNotFound)
	}
	return nil
}

// CreateUser inserts user; a taken username or email yields ErrDuplicate.
func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user %s: %w", user.Username, translate(err))
	}
	return nil
}

// FindUserByUsername returns the user or ErrNotFound.
func (s *GormStore) FindUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error
	return user, translate(err)
}

// UserExists reports whether the username or the email is taken.
func (s *GormStore) UserExists(ctx context.Context, username, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error
	return count > 0, translate(err)
}
