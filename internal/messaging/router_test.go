package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CapIot.relaysync/internal/models"
	"CapIot.relaysync/internal/repository"
	"CapIot.relaysync/internal/service"
	"CapIot.relaysync/internal/transport"
)

type sent struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []sent
}

func (p *fakePublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, sent{topic: topic, payload: payload})
	return nil
}

type reconcileCall struct {
	deviceID string
	channel  int
	state    bool
}

type fakeDeps struct {
	ingested   []service.Telemetry
	reconciled []reconcileCall
	status     map[string]models.DeviceStatus
	latest     map[string]models.SensorReading
	relays     map[string][]models.Relay
}

func (f *fakeDeps) Ingest(_ context.Context, t service.Telemetry) (models.SensorReading, error) {
	f.ingested = append(f.ingested, t)
	return models.SensorReading{DeviceID: t.DeviceID}, nil
}

func (f *fakeDeps) Reconcile(_ context.Context, deviceID string, channel int, state bool) error {
	f.reconciled = append(f.reconciled, reconcileCall{deviceID, channel, state})
	return nil
}

func (f *fakeDeps) Status(_ context.Context, deviceID string) (models.DeviceStatus, error) {
	s, ok := f.status[deviceID]
	if !ok {
		return models.DeviceStatus{DeviceID: deviceID}, repository.ErrNotFound
	}
	return s, nil
}

func (f *fakeDeps) LatestForDevice(_ context.Context, deviceID string) (models.SensorReading, error) {
	r, ok := f.latest[deviceID]
	if !ok {
		return models.SensorReading{}, repository.ErrNotFound
	}
	return r, nil
}

func (f *fakeDeps) ListByDevice(_ context.Context, deviceID string) ([]models.Relay, error) {
	return f.relays[deviceID], nil
}

func newTestRouter() (*Router, *fakeDeps, *fakePublisher) {
	deps := &fakeDeps{}
	pub := &fakePublisher{}
	r := NewRouter(Deps{
		Topics:    transport.NewTopics("coop"),
		Publisher: pub,
		Telemetry: deps,
		Relays:    deps,
		Status:    deps,
		Readings:  deps,
		Snapshots: deps,
	})
	return r, deps, pub
}

func TestClassify(t *testing.T) {
	r, _, _ := newTestRouter()
	tests := []struct {
		topic string
		want  Route
	}{
		{"coop/data", Route{Kind: KindTelemetry}},
		{"coop/data/A1", Route{Kind: KindTelemetry}},
		{"coop/dataset", Route{Kind: KindUnrecognized}},
		{"coop/status/relay", Route{Kind: KindRelayStatus}},
		{"coop/status/relay/A1", Route{Kind: KindRelayStatus}},
		{"coop/request/status/A1", Route{Kind: KindStatusRequest, DeviceID: "A1"}},
		{"coop/request/data/A1", Route{Kind: KindDataRequest, DeviceID: "A1"}},
		{"coop/request/relays/A1", Route{Kind: KindRelaysRequest, DeviceID: "A1"}},
		{"coop/request/relays/", Route{Kind: KindUnrecognized}},
		{"coop/request/status/A1/extra", Route{Kind: KindUnrecognized}},
		{"coop/response/status/A1", Route{Kind: KindUnrecognized}},
		{"coop/commands/device/A1/relay/1", Route{Kind: KindUnrecognized}},
		{"other/data", Route{Kind: KindUnrecognized}},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Classify(tt.topic))
		})
	}
}

func TestTelemetry(t *testing.T) {
	r, deps, _ := newTestRouter()
	ctx := context.Background()

	require.NoError(t, r.Handle(ctx, "coop/data", []byte(`{"device_id":"A1","temperature":25.5,"humidity":60}`)))
	require.Len(t, deps.ingested, 1)
	assert.Equal(t, "A1", deps.ingested[0].DeviceID)
	assert.Equal(t, 25.5, deps.ingested[0].Temperature)
	assert.Nil(t, deps.ingested[0].Timestamp)

	require.NoError(t, r.Handle(ctx, "coop/data", []byte(`{"device_id":"A1","temperature":1,"humidity":2,"timestamp":"2026-03-02T08:00:00Z"}`)))
	require.NotNil(t, deps.ingested[1].Timestamp)
	assert.True(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC).Equal(*deps.ingested[1].Timestamp))

	require.NoError(t, r.Handle(ctx, "coop/data", []byte(`{"device_id":"A1","temperature":1,"humidity":2,"timestamp":1772438400}`)))
	require.NotNil(t, deps.ingested[2].Timestamp)
	assert.Equal(t, int64(1772438400), deps.ingested[2].Timestamp.Unix())

	require.NoError(t, r.Handle(ctx, "coop/data", []byte(`{"device_id":"A1","temperature":1,"humidity":2,"timestamp":"yesterday"}`)))
	assert.Nil(t, deps.ingested[3].Timestamp, "bad timestamp falls back to receipt time")
}

func TestTelemetryMalformed(t *testing.T) {
	payloads := []string{
		``,
		`not json`,
		`[1,2]`,
		`{"temperature":1,"humidity":2}`,
		`{"device_id":"A1","humidity":2}`,
		`{"device_id":"A1","temperature":"hot","humidity":2}`,
		`{"device_id":"","temperature":1,"humidity":2}`,
		`{"device_id":"A1","temperature":null,"humidity":2}`,
	}
	for _, p := range payloads {
		r, deps, _ := newTestRouter()
		err := r.Handle(context.Background(), "coop/data", []byte(p))
		assert.ErrorIs(t, err, ErrMalformed, p)
		assert.Empty(t, deps.ingested, p)
	}
}

func TestTelemetryIgnoresDataResponses(t *testing.T) {
	r, deps, _ := newTestRouter()
	require.NoError(t, r.Handle(context.Background(), "coop/data/A1", []byte(`{"device_id":"A1","latest":null}`)))
	assert.Empty(t, deps.ingested)
}

func TestRelayStatus(t *testing.T) {
	r, deps, _ := newTestRouter()
	ctx := context.Background()

	require.NoError(t, r.Handle(ctx, "coop/status/relay", []byte(`{"device_id":"A1","relay_channel":2,"state":true}`)))
	assert.Equal(t, []reconcileCall{{"A1", 2, true}}, deps.reconciled)

	for _, p := range []string{
		`{"device_id":"A1","relay_channel":2}`,
		`{"device_id":"A1","relay_channel":-1,"state":true}`,
		`{"device_id":"A1","relay_channel":1.5,"state":true}`,
		`{"device_id":"A1","relay_channel":1,"state":"on"}`,
		`{}`,
	} {
		assert.ErrorIs(t, r.Handle(ctx, "coop/status/relay", []byte(p)), ErrMalformed, p)
	}
	assert.Len(t, deps.reconciled, 1)
}

func TestRelaySnapshotNeverReconciles(t *testing.T) {
	r, deps, _ := newTestRouter()
	ctx := context.Background()

	for _, p := range []string{
		`{"device_id":"A1","relays":[{"relayChannel":1,"currentState":true}]}`,
		`{"device_id":"A1","relays":[]}`,
		`{"device_id":"A1","relay_channel":1,"state":true,"relays":[]}`,
	} {
		require.NoError(t, r.Handle(ctx, "coop/status/relay/A1", []byte(p)))
	}
	assert.Empty(t, deps.reconciled)
}

func TestStatusRequest(t *testing.T) {
	r, deps, pub := newTestRouter()
	seen := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	deps.status = map[string]models.DeviceStatus{"A1": {DeviceID: "A1", IsOnline: true, LastSeen: &seen}}

	require.NoError(t, r.Handle(context.Background(), "coop/request/status/A1", nil))
	require.NoError(t, r.Handle(context.Background(), "coop/request/status/ZZ", nil))
	require.Len(t, pub.msgs, 2)

	assert.Equal(t, "coop/response/status/A1", pub.msgs[0].topic)
	assert.JSONEq(t, `{"device_id":"A1","is_online":true,"last_seen":"2026-03-02T08:00:00Z"}`, string(pub.msgs[0].payload))
	assert.JSONEq(t, `{"device_id":"ZZ","is_online":false,"last_seen":null}`, string(pub.msgs[1].payload))
}

func TestDataRequest(t *testing.T) {
	r, deps, pub := newTestRouter()
	deps.latest = map[string]models.SensorReading{"A1": {ID: 4, DeviceID: "A1", Temperature: 25.5, Humidity: 60}}

	require.NoError(t, r.Handle(context.Background(), "coop/request/data/A1", []byte("{}")))
	require.NoError(t, r.Handle(context.Background(), "coop/request/data/ZZ", nil))
	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "coop/data/A1", pub.msgs[0].topic)

	var body struct {
		DeviceID string                `json:"device_id"`
		Latest   *models.SensorReading `json:"latest"`
	}
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &body))
	require.NotNil(t, body.Latest)
	assert.Equal(t, 25.5, body.Latest.Temperature)
	assert.JSONEq(t, `{"device_id":"ZZ","latest":null}`, string(pub.msgs[1].payload))

	// the response lands on the data subtree and must not loop back in
	require.NoError(t, r.Handle(context.Background(), pub.msgs[0].topic, pub.msgs[0].payload))
	assert.Empty(t, deps.ingested)
}

func TestRelaysRequest(t *testing.T) {
	r, deps, pub := newTestRouter()
	deps.relays = map[string][]models.Relay{"A1": {{ID: 1, DeviceID: "A1", RelayChannel: 1, CurrentState: true}}}

	require.NoError(t, r.Handle(context.Background(), "coop/request/relays/A1", nil))
	require.NoError(t, r.Handle(context.Background(), "coop/request/relays/ZZ", nil))
	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "coop/status/relay/A1", pub.msgs[0].topic)
	assert.JSONEq(t, `{"device_id":"ZZ","relays":[]}`, string(pub.msgs[1].payload))

	for _, m := range pub.msgs {
		require.NoError(t, r.Handle(context.Background(), m.topic, m.payload))
	}
	assert.Empty(t, deps.reconciled, "own snapshots are not state reports")
}

func TestUnrecognized(t *testing.T) {
	r, _, pub := newTestRouter()
	assert.ErrorIs(t, r.Handle(context.Background(), "coop/response/status/A1", []byte(`{}`)), ErrUnrecognized)
	assert.Empty(t, pub.msgs)
	assert.NotPanics(t, func() { r.HandleMessage("coop/data", []byte("garbage")) })
}

func TestRequestThrottle(t *testing.T) {
	deps := &fakeDeps{}
	pub := &fakePublisher{}
	r := NewRouter(Deps{
		Topics:       transport.NewTopics("coop"),
		Publisher:    pub,
		Telemetry:    deps,
		Relays:       deps,
		Status:       deps,
		Readings:     deps,
		Snapshots:    deps,
		RequestLimit: 0.001,
		RequestBurst: 1,
	})
	ctx := context.Background()
	require.NoError(t, r.Handle(ctx, "coop/request/relays/A1", nil))
	assert.ErrorIs(t, r.Handle(ctx, "coop/request/relays/A1", nil), ErrThrottled)
	require.NoError(t, r.Handle(ctx, "coop/data", []byte(`{"device_id":"A1","temperature":1,"humidity":2}`)), "telemetry is never throttled")
	assert.Len(t, pub.msgs, 1)
}
