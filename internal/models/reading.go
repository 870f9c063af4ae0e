package models

import "time"

// SensorReading is an immutable telemetry sample. Readings are ordered by
// RecordedAt, which is device supplied and may lag the server receipt time.
type SensorReading struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DeviceID    string    `gorm:"size:64;not null;index:idx_reading_device_recorded,priority:1" json:"deviceId"`
	Temperature float64   `gorm:"not null" json:"temperature"`
	Humidity    float64   `gorm:"not null" json:"humidity"`
	RecordedAt  time.Time `gorm:"not null;index:idx_reading_device_recorded,priority:2;index" json:"recordedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}
