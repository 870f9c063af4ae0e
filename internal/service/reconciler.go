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

// RelayStateStore is what reconciliation needs from the durable store.
type RelayStateStore interface {
	UpdateRelayCurrent(ctx context.Context, deviceID string, channel int, state bool, at time.Time) (bool, error)
	CreateRelay(ctx context.Context, relay *models.Relay) error
}

// StateReconciler applies device-reported relay states. A report for an
// unknown relay creates it with the reported state as both desired and
// current.
type StateReconciler struct {
	store RelayStateStore
	lg    *slog.Logger
	now   func() time.Time
}

// NewStateReconciler creates a new StateReconciler.
func NewStateReconciler(store RelayStateStore, lg *slog.Logger) *StateReconciler {
	return &StateReconciler{store: store, lg: lg.With("component", "reconciler"), now: time.Now}
}

// Reconcile records state as the current state of (deviceID, channel).
// Desired state of an existing relay is never touched.
func (r *StateReconciler) Reconcile(ctx context.Context, deviceID string, channel int, state bool) error {
	now := r.now()
	matched, err := r.store.UpdateRelayCurrent(ctx, deviceID, channel, state, now)
	if err != nil {
		return err
	}
	if matched {
		r.lg.Debug("relay state updated", "device_id", deviceID, "relay_channel", channel, "state", state)
		return nil
	}

	relay := &models.Relay{
		DeviceID:     deviceID,
		RelayChannel: channel,
		Name:         models.DefaultRelayName(deviceID, channel),
		DesiredState: state,
		CurrentState: state,
		LastUpdated:  now,
	}
	err = r.store.CreateRelay(ctx, relay)
	if errors.Is(err, repository.ErrDuplicate) {
		// lost a race with a concurrent first report
		if _, err := r.store.UpdateRelayCurrent(ctx, deviceID, channel, state, now); err != nil {
			return err
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	r.lg.Info("relay created from device report", "device_id", deviceID, "relay_channel", channel, "state", state)
	return nil
}
