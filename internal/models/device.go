package models

import "time"

// Device is a field unit that reports telemetry and hosts relays.
type Device struct {
	DeviceID  string     `gorm:"primaryKey;size:64" json:"deviceId"`
	Name      string     `gorm:"size:128" json:"name"`
	LastSeen  *time.Time `json:"lastSeen"`
	IsActive  bool       `gorm:"not null" json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// DefaultDeviceName is the label given to devices created on first contact.
func DefaultDeviceName(deviceID string) string {
	return "Device " + deviceID
}

// DeviceStatus is the liveness view of a device.
type DeviceStatus struct {
	DeviceID string     `json:"deviceId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}
