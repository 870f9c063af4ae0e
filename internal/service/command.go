package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"CapIot.relaysync/internal/transport"
)

// DesiredStateStore records control-plane intent.
type DesiredStateStore interface {
	SetRelayDesired(ctx context.Context, deviceID string, channel int, state bool, at time.Time) error
}

type commandPayload struct {
	State bool `json:"state"`
}

// CommandIssuer sends relay commands and records them as desired state
// without waiting for the device to confirm.
type CommandIssuer struct {
	store  DesiredStateStore
	pub    transport.Publisher
	topics transport.Topics
	lg     *slog.Logger
	now    func() time.Time
}

// NewCommandIssuer creates a new CommandIssuer publishing through pub.
func NewCommandIssuer(store DesiredStateStore, pub transport.Publisher, topics transport.Topics, lg *slog.Logger) *CommandIssuer {
	return &CommandIssuer{
		store:  store,
		pub:    pub,
		topics: topics,
		lg:     lg.With("component", "commands"),
		now:    time.Now,
	}
}

// Issue publishes the command and then writes the desired state. A failed
// publish is logged and the desired state is written anyway.
func (c *CommandIssuer) Issue(ctx context.Context, deviceID string, channel int, state bool) error {
	topic := c.topics.RelayCommand(deviceID, channel)
	payload, err := json.Marshal(commandPayload{State: state})
	if err != nil {
		return fmt.Errorf("command: encode: %w", err)
	}
	if err := c.pub.Publish(topic, payload); err != nil {
		c.lg.Error("command publish failed", "topic", topic, "state", state, "error", err)
	} else {
		c.lg.Info("command sent", "topic", topic, "state", state)
	}

	if err := c.store.SetRelayDesired(ctx, deviceID, channel, state, c.now()); err != nil {
		return fmt.Errorf("command: record desired state: %w", err)
	}
	return nil
}

// RequestSnapshot asks for a fresh relay snapshot of deviceID. Best effort.
func (c *CommandIssuer) RequestSnapshot(deviceID string) {
	topic := c.topics.RelaysRequest(deviceID)
	if err := c.pub.Publish(topic, []byte{}); err != nil {
		c.lg.Warn("snapshot request failed", "topic", topic, "error", err)
	}
}
