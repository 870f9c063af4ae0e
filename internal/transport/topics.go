package transport

import (
	"fmt"
	"strings"
)

// Topics builds the topic names used under one configured root.
type Topics struct {
	Prefix string
}

// NewTopics trims a trailing slash off prefix.
func NewTopics(prefix string) Topics {
	return Topics{Prefix: strings.TrimSuffix(prefix, "/")}
}

// Wildcard subscribes to the whole tree.
func (t Topics) Wildcard() string { return t.Prefix + "/#" }

// Data is where devices publish telemetry.
func (t Topics) Data() string { return t.Prefix + "/data" }

// RelayStatus is where devices report relay state changes.
func (t Topics) RelayStatus() string { return t.Prefix + "/status/relay" }

func (t Topics) StatusRequestPrefix() string { return t.Prefix + "/request/status/" }
func (t Topics) DataRequestPrefix() string   { return t.Prefix + "/request/data/" }
func (t Topics) RelaysRequestPrefix() string { return t.Prefix + "/request/relays/" }

// RelaysRequest asks the router to broadcast a relay snapshot for deviceID.
func (t Topics) RelaysRequest(deviceID string) string { return t.RelaysRequestPrefix() + deviceID }

func (t Topics) StatusResponse(deviceID string) string {
	return t.Prefix + "/response/status/" + deviceID
}

func (t Topics) DataResponse(deviceID string) string { return t.Data() + "/" + deviceID }

func (t Topics) RelaySnapshot(deviceID string) string { return t.RelayStatus() + "/" + deviceID }

// RelayCommand is the topic a device listens on for one relay channel.
func (t Topics) RelayCommand(deviceID string, channel int) string {
	return fmt.Sprintf("%s/commands/device/%s/relay/%d", t.Prefix, deviceID, channel)
}
