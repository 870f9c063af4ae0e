package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CapIot.relaysync/internal/logging"
	"CapIot.relaysync/internal/repository"
	"CapIot.relaysync/internal/service"
	"CapIot.relaysync/internal/transport"
)

func TestEndToEndWithStore(t *testing.T) {
	store, err := repository.OpenGormStore(":memory:", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	lg := logging.Discard()
	topics := transport.NewTopics("coop")
	pub := &fakePublisher{}
	devices := service.NewDeviceService(store, lg)
	readings := service.NewReadingService(store)
	relays := service.NewRelayService(store, service.NewCommandIssuer(store, pub, topics, lg), lg)

	r := NewRouter(Deps{
		Topics:    topics,
		Publisher: pub,
		Telemetry: service.NewTelemetryService(store, lg),
		Relays:    service.NewStateReconciler(store, lg),
		Status:    devices,
		Readings:  readings,
		Snapshots: relays,
		Logger:    lg,
	})
	ctx := context.Background()
	before := time.Now()

	r.HandleMessage("coop/data", []byte(`{"device_id":"A1","temperature":25.5,"humidity":60}`))

	device, err := store.GetDevice(ctx, "A1")
	require.NoError(t, err)
	require.NotNil(t, device.LastSeen)
	assert.WithinDuration(t, before, *device.LastSeen, 5*time.Second)

	latest, err := readings.LatestForDevice(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, 25.5, latest.Temperature)

	r.HandleMessage("coop/status/relay", []byte(`{"device_id":"A1","relay_channel":1,"state":true}`))
	relay, err := store.FindRelay(ctx, "A1", 1)
	require.NoError(t, err)
	assert.True(t, relay.CurrentState)
	assert.True(t, relay.DesiredState)

	r.HandleMessage("coop/request/relays/A1", nil)
	require.Len(t, pub.msgs, 1)
	r.HandleMessage(pub.msgs[0].topic, pub.msgs[0].payload)

	r.HandleMessage("coop/status/relay", []byte(`{"device_id":"A1","relay_channel":1,"state":false}`))
	relay, err = store.FindRelay(ctx, "A1", 1)
	require.NoError(t, err)
	assert.False(t, relay.CurrentState)
	assert.True(t, relay.DesiredState, "desired state untouched by reports")

	r.HandleMessage("coop/request/status/A1", nil)
	require.Len(t, pub.msgs, 2)
	assert.Contains(t, string(pub.msgs[1].payload), `"is_online":true`)
}
