package models

import (
	"fmt"
	"time"
)

// Relay is one switchable channel on a device. DesiredState is the control
// plane intent and CurrentState the last state the device reported; the two
// may diverge at any time.
type Relay struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	DeviceID     string    `gorm:"size:64;not null;uniqueIndex:uk_device_relay_channel,priority:1" json:"deviceId"`
	RelayChannel int       `gorm:"not null;uniqueIndex:uk_device_relay_channel,priority:2" json:"relayChannel"`
	Name         string    `gorm:"size:128" json:"name"`
	DesiredState bool      `gorm:"not null" json:"desiredState"`
	CurrentState bool      `gorm:"not null" json:"currentState"`
	LastUpdated  time.Time `json:"lastUpdated"`
	Device       *Device   `gorm:"foreignKey:DeviceID;references:DeviceID" json:"device,omitempty"`
}

// DefaultRelayName is the label given to relays created on first contact.
func DefaultRelayName(deviceID string, channel int) string {
	return fmt.Sprintf("Relay %d on %s", channel, deviceID)
}
