package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	mqtt.Token
	done chan struct{}
	err  error
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeConn struct {
	mqtt.Client

	mu           sync.Mutex
	connectToken *fakeToken
	published    []published
	subscribed   map[string]mqtt.MessageHandler
	disconnected bool
}

func (f *fakeConn) Connect() mqtt.Token {
	if f.connectToken != nil {
		return f.connectToken
	}
	return doneToken(nil)
}

func (f *fakeConn) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return doneToken(nil)
}

func (f *fakeConn) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribed == nil {
		f.subscribed = map[string]mqtt.MessageHandler{}
	}
	f.subscribed[topic] = cb
	return doneToken(nil)
}

func (f *fakeConn) Disconnect(uint) {
	f.mu.Lock()
	f.disconnected = true
	f.mu.Unlock()
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func newTestClient(t *testing.T) (*Client, *fakeConn, *mqtt.ClientOptions) {
	t.Helper()
	conn := &fakeConn{}
	var captured *mqtt.ClientOptions
	c := newClient(Options{BrokerURL: "tcp://broker:1883", ClientID: "test", Username: "u", Password: "p"},
		func(o *mqtt.ClientOptions) mqtt.Client {
			captured = o
			return conn
		})
	return c, conn, captured
}

func TestClientOptions(t *testing.T) {
	_, _, opts := newTestClient(t)
	assert.Equal(t, "test", opts.ClientID)
	assert.Equal(t, "u", opts.Username)
	assert.True(t, opts.AutoReconnect)
	assert.True(t, opts.ConnectRetry)
	assert.False(t, opts.Order)
}

func TestClientLifecycle(t *testing.T) {
	c, conn, opts := newTestClient(t)
	require.Equal(t, StateInit, c.State())

	var mu sync.Mutex
	var transitions []string
	c.OnStateChange(func(from, to State) {
		mu.Lock()
		transitions = append(transitions, from.String()+">"+to.String())
		mu.Unlock()
	})

	opts.OnConnect(conn)
	assert.Equal(t, StateReady, c.State())

	opts.OnConnectionLost(conn, errors.New("broker gone"))
	assert.Equal(t, StateReconnecting, c.State())

	opts.OnReconnecting(conn, opts)
	assert.Equal(t, StateReconnecting, c.State())

	opts.OnConnect(conn)
	c.Close()
	assert.Equal(t, StateClosed, c.State())
	assert.True(t, conn.disconnected)

	opts.OnConnect(conn)
	assert.Equal(t, StateClosed, c.State(), "closed is terminal")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"init>ready", "ready>reconnecting", "reconnecting>ready", "ready>closed"}, transitions)
}

func TestClientResubscribesOnConnect(t *testing.T) {
	c, conn, opts := newTestClient(t)

	got := make(chan string, 1)
	c.Subscribe("coop/#", func(topic string, payload []byte) {
		got <- topic + " " + string(payload)
	})
	assert.Empty(t, conn.subscribed, "no subscribe before connect")

	opts.OnConnect(conn)
	conn.mu.Lock()
	cb := conn.subscribed["coop/#"]
	conn.mu.Unlock()
	require.NotNil(t, cb)

	cb(conn, fakeMessage{topic: "coop/data", payload: []byte("{}")})
	assert.Equal(t, "coop/data {}", <-got)
}

func TestClientHandlerPanicIsContained(t *testing.T) {
	c, conn, opts := newTestClient(t)
	c.Subscribe("coop/#", func(string, []byte) { panic("boom") })
	opts.OnConnect(conn)

	assert.NotPanics(t, func() {
		conn.subscribed["coop/#"](conn, fakeMessage{topic: "coop/data"})
	})
}

func TestClientPublish(t *testing.T) {
	c, conn, _ := newTestClient(t)

	require.NoError(t, c.Publish("coop/commands/device/A1/relay/1", []byte(`{"state":true}`)))
	require.Len(t, conn.published, 1)
	assert.Equal(t, QoS, conn.published[0].qos)

	c.Close()
	assert.ErrorIs(t, c.Publish("coop/x", nil), ErrClosed)
}

func TestClientConnectHonoursContext(t *testing.T) {
	c, conn, _ := newTestClient(t)
	conn.connectToken = &fakeToken{done: make(chan struct{})}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := c.Connect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTopics(t *testing.T) {
	tp := NewTopics("coop/")
	assert.Equal(t, "coop/#", tp.Wildcard())
	assert.Equal(t, "coop/data", tp.Data())
	assert.Equal(t, "coop/status/relay", tp.RelayStatus())
	assert.Equal(t, "coop/response/status/A1", tp.StatusResponse("A1"))
	assert.Equal(t, "coop/data/A1", tp.DataResponse("A1"))
	assert.Equal(t, "coop/status/relay/A1", tp.RelaySnapshot("A1"))
	assert.Equal(t, "coop/request/relays/A1", tp.RelaysRequest("A1"))
	assert.Equal(t, "coop/commands/device/A1/relay/2", tp.RelayCommand("A1", 2))
}
