// Package messaging routes inbound broker messages to the component that
// owns them.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"CapIot.relaysync/internal/models"
	"CapIot.relaysync/internal/repository"
	"CapIot.relaysync/internal/service"
	"CapIot.relaysync/internal/transport"
)

var (
	// ErrMalformed marks a payload that is not JSON or lacks required fields.
	ErrMalformed = errors.New("malformed message")
	// ErrUnrecognized marks a topic no handler owns.
	ErrUnrecognized = errors.New("unrecognized topic")
	// ErrThrottled marks an on-demand request dropped by the rate limit.
	ErrThrottled = errors.New("request throttled")
)

// HandleTimeout bounds the store work done for one message.
const HandleTimeout = 15 * time.Second

// Kind is the class of an inbound topic.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindTelemetry
	KindRelayStatus
	KindStatusRequest
	KindDataRequest
	KindRelaysRequest
)

func (k Kind) String() string {
	switch k {
	case KindTelemetry:
		return "telemetry"
	case KindRelayStatus:
		return "relay-status"
	case KindStatusRequest:
		return "status-request"
	case KindDataRequest:
		return "data-request"
	case KindRelaysRequest:
		return "relays-request"
	default:
		return "unrecognized"
	}
}

// Route is a classified topic. DeviceID is set for request kinds.
type Route struct {
	Kind     Kind
	DeviceID string
}

// Ingester stores telemetry.
type Ingester interface {
	Ingest(ctx context.Context, t service.Telemetry) (models.SensorReading, error)
}

// Reconciler applies device-reported relay states.
type Reconciler interface {
	Reconcile(ctx context.Context, deviceID string, channel int, state bool) error
}

// StatusReader answers liveness queries.
type StatusReader interface {
	Status(ctx context.Context, deviceID string) (models.DeviceStatus, error)
}

// LatestReader returns a device's most recent reading.
type LatestReader interface {
	LatestForDevice(ctx context.Context, deviceID string) (models.SensorReading, error)
}

// RelayLister lists a device's relays.
type RelayLister interface {
	ListByDevice(ctx context.Context, deviceID string) ([]models.Relay, error)
}

// Deps are the collaborators of a Router.
type Deps struct {
	Topics    transport.Topics
	Publisher transport.Publisher
	Telemetry Ingester
	Relays    Reconciler
	Status    StatusReader
	Readings  LatestReader
	Snapshots RelayLister
	Logger    *slog.Logger
	// RequestLimit caps on-demand request responses per second. Zero
	// disables the limit.
	RequestLimit rate.Limit
	RequestBurst int
}

// Router classifies each message and makes exactly one downstream call for
// it. Malformed and unrecognized messages are dropped.
type Router struct {
	topics    transport.Topics
	pub       transport.Publisher
	telemetry Ingester
	relays    Reconciler
	status    StatusReader
	readings  LatestReader
	snapshots RelayLister
	limiter   *rate.Limiter
	lg        *slog.Logger
}

// NewRouter creates a new Router from d.
func NewRouter(d Deps) *Router {
	lg := d.Logger
	if lg == nil {
		lg = slog.New(slog.DiscardHandler)
	}
	r := &Router{
		topics:    d.Topics,
		pub:       d.Publisher,
		telemetry: d.Telemetry,
		relays:    d.Relays,
		status:    d.Status,
		readings:  d.Readings,
		snapshots: d.Snapshots,
		lg:        lg.With("component", "router"),
	}
	if d.RequestLimit > 0 {
		burst := d.RequestBurst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(d.RequestLimit, burst)
	}
	return r
}

// Classify maps topic to its Route. A base topic also owns its subtree.
func (r *Router) Classify(topic string) Route {
	if id, ok := requestID(topic, r.topics.StatusRequestPrefix()); ok {
		return Route{Kind: KindStatusRequest, DeviceID: id}
	}
	if id, ok := requestID(topic, r.topics.DataRequestPrefix()); ok {
		return Route{Kind: KindDataRequest, DeviceID: id}
	}
	if id, ok := requestID(topic, r.topics.RelaysRequestPrefix()); ok {
		return Route{Kind: KindRelaysRequest, DeviceID: id}
	}
	switch {
	case under(topic, r.topics.RelayStatus()):
		return Route{Kind: KindRelayStatus}
	case under(topic, r.topics.Data()):
		return Route{Kind: KindTelemetry}
	}
	return Route{Kind: KindUnrecognized}
}

func under(topic, base string) bool {
	return topic == base || strings.HasPrefix(topic, base+"/")
}

func requestID(topic, prefix string) (string, bool) {
	id, ok := strings.CutPrefix(topic, prefix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// HandleMessage is the transport.Handler entry point. Errors are logged.
func (r *Router) HandleMessage(topic string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), HandleTimeout)
	defer cancel()

	err := r.Handle(ctx, topic, payload)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnrecognized):
		r.lg.Debug("unhandled topic", "topic", topic)
	case errors.Is(err, ErrMalformed), errors.Is(err, ErrThrottled):
		r.lg.Warn("message dropped", "topic", topic, "reason", err, "payload", string(payload))
	default:
		r.lg.Error("message failed", "topic", topic, "error", err)
	}
}

// Handle processes one message.
func (r *Router) Handle(ctx context.Context, topic string, payload []byte) error {
	route := r.Classify(topic)
	switch route.Kind {
	case KindTelemetry:
		return r.handleTelemetry(ctx, payload)
	case KindRelayStatus:
		return r.handleRelayStatus(ctx, payload)
	case KindStatusRequest, KindDataRequest, KindRelaysRequest:
		if r.limiter != nil && !r.limiter.Allow() {
			return fmt.Errorf("%s for %s: %w", route.Kind, route.DeviceID, ErrThrottled)
		}
		switch route.Kind {
		case KindStatusRequest:
			return r.handleStatusRequest(ctx, route.DeviceID)
		case KindDataRequest:
			return r.handleDataRequest(ctx, route.DeviceID)
		default:
			return r.handleRelaysRequest(ctx, route.DeviceID)
		}
	}
	return fmt.Errorf("%s: %w", topic, ErrUnrecognized)
}

// decodeObject parses a JSON object; an empty payload is an empty object.
func decodeObject(payload []byte) (map[string]json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(strings.TrimSpace(string(payload))) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fields, nil
}

func isList(raw json.RawMessage) bool {
	var list []json.RawMessage
	return raw != nil && json.Unmarshal(raw, &list) == nil && list != nil
}

// field decodes key into dst. Absent and null both report false.
func field(fields map[string]json.RawMessage, key string, dst any) (bool, error) {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
	}
	return true, nil
}

func requireFields(fields map[string]json.RawMessage, dsts map[string]any) error {
	for key, dst := range dsts {
		ok, err := field(fields, key, dst)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: missing %s", ErrMalformed, key)
		}
	}
	return nil
}

func (r *Router) handleTelemetry(ctx context.Context, payload []byte) error {
	fields, err := decodeObject(payload)
	if err != nil {
		return err
	}
	if _, ok := fields["latest"]; ok {
		// our own data-request response
		return nil
	}

	var t service.Telemetry
	if err := requireFields(fields, map[string]any{
		"device_id":   &t.DeviceID,
		"temperature": &t.Temperature,
		"humidity":    &t.Humidity,
	}); err != nil {
		return err
	}
	if t.DeviceID == "" {
		return fmt.Errorf("%w: empty device_id", ErrMalformed)
	}
	if raw, ok := fields["timestamp"]; ok {
		ts, err := parseTimestamp(raw)
		if err != nil {
			r.lg.Warn("ignoring device timestamp", "device_id", t.DeviceID, "error", err)
		} else if ts != nil {
			t.Timestamp = ts
		}
	}

	_, err = r.telemetry.Ingest(ctx, t)
	return err
}

// parseTimestamp accepts RFC 3339 strings and unix seconds or milliseconds.
func parseTimestamp(raw json.RawMessage) (*time.Time, error) {
	if string(raw) == "null" {
		return nil, nil
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, err
		}
		return &ts, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("timestamp must be RFC 3339 or unix time")
	}
	var ts time.Time
	if n < 1e12 {
		sec := math.Floor(n)
		ts = time.Unix(int64(sec), int64((n-sec)*float64(time.Second)))
	} else {
		ts = time.UnixMilli(int64(n))
	}
	return &ts, nil
}

func (r *Router) handleRelayStatus(ctx context.Context, payload []byte) error {
	fields, err := decodeObject(payload)
	if err != nil {
		return err
	}
	if isList(fields["relays"]) {
		// a relay snapshot, not a state change
		return nil
	}

	var (
		deviceID string
		channel  int
		state    bool
	)
	if err := requireFields(fields, map[string]any{
		"device_id":     &deviceID,
		"relay_channel": &channel,
		"state":         &state,
	}); err != nil {
		return err
	}
	if deviceID == "" {
		return fmt.Errorf("%w: empty device_id", ErrMalformed)
	}
	if channel < 0 {
		return fmt.Errorf("%w: negative relay_channel", ErrMalformed)
	}
	return r.relays.Reconcile(ctx, deviceID, channel, state)
}

type statusResponse struct {
	DeviceID string     `json:"device_id"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen"`
}

func (r *Router) handleStatusRequest(ctx context.Context, deviceID string) error {
	status, err := r.status.Status(ctx, deviceID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("status for %s: %w", deviceID, err)
	}
	return r.respond(r.topics.StatusResponse(deviceID), statusResponse{
		DeviceID: deviceID,
		IsOnline: status.IsOnline,
		LastSeen: status.LastSeen,
	})
}

type dataResponse struct {
	DeviceID string                `json:"device_id"`
	Latest   *models.SensorReading `json:"latest"`
}

func (r *Router) handleDataRequest(ctx context.Context, deviceID string) error {
	resp := dataResponse{DeviceID: deviceID}
	reading, err := r.readings.LatestForDevice(ctx, deviceID)
	switch {
	case err == nil:
		resp.Latest = &reading
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("latest reading for %s: %w", deviceID, err)
	}
	return r.respond(r.topics.DataResponse(deviceID), resp)
}

type relaysResponse struct {
	DeviceID string         `json:"device_id"`
	Relays   []models.Relay `json:"relays"`
}

func (r *Router) handleRelaysRequest(ctx context.Context, deviceID string) error {
	relays, err := r.snapshots.ListByDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("relays for %s: %w", deviceID, err)
	}
	if relays == nil {
		relays = []models.Relay{}
	}
	return r.respond(r.topics.RelaySnapshot(deviceID), relaysResponse{DeviceID: deviceID, Relays: relays})
}

func (r *Router) respond(topic string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode response for %s: %w", topic, err)
	}
	if err := r.pub.Publish(topic, payload); err != nil {
		r.lg.Error("response publish failed", "topic", topic, "error", err)
	}
	return nil
}
