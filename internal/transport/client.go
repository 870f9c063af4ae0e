package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// QoS is the delivery level used for every subscription and publish:
// at-least-once.
const QoS byte = 1

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("transport: client closed")

// Handler receives one inbound message. Handlers run concurrently.
type Handler func(topic string, payload []byte)

// Publisher sends a payload to a topic without waiting for the broker.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Options configures a Client.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	Logger    *slog.Logger
}

type subscription struct {
	topic   string
	handler Handler
}

// Client owns one broker connection. It is created in StateInit, moves to
// StateReady on every successful connect, to StateReconnecting while the
// connection is lost, and to StateClosed after Close.
type Client struct {
	conn mqtt.Client
	lg   *slog.Logger

	state atomic.Int32

	mu       sync.Mutex
	subs     []subscription
	watchers []func(from, to State)
}

// NewClient prepares a client; nothing is dialed until Connect.
func NewClient(opts Options) *Client {
	return newClient(opts, mqtt.NewClient)
}

func newClient(opts Options, factory func(*mqtt.ClientOptions) mqtt.Client) *Client {
	lg := opts.Logger
	if lg == nil {
		lg = slog.New(slog.DiscardHandler)
	}
	c := &Client{lg: lg.With("component", "transport")}

	mo := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetReconnectingHandler(c.onReconnecting)
	if opts.Username != "" && opts.Password != "" {
		mo.SetUsername(opts.Username)
		mo.SetPassword(opts.Password)
	}
	c.conn = factory(mo)
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// OnStateChange registers fn to be called on every state transition.
func (c *Client) OnStateChange(fn func(from, to State)) {
	c.mu.Lock()
	c.watchers = append(c.watchers, fn)
	c.mu.Unlock()
}

func (c *Client) setState(to State) {
	for {
		from := c.State()
		if from == to || from == StateClosed {
			return
		}
		if c.state.CompareAndSwap(int32(from), int32(to)) {
			c.lg.Info("transport state changed", "from", from.String(), "to", to.String())
			c.mu.Lock()
			watchers := append([]func(from, to State){}, c.watchers...)
			c.mu.Unlock()
			for _, fn := range watchers {
				fn(from, to)
			}
			return
		}
	}
}

// Subscribe registers handler for topic. The subscription is (re)issued on
// every connect, so it survives broker reconnects.
func (c *Client) Subscribe(topic string, handler Handler) {
	c.mu.Lock()
	c.subs = append(c.subs, subscription{topic: topic, handler: handler})
	c.mu.Unlock()
	if c.State() == StateReady {
		c.subscribe(subscription{topic: topic, handler: handler})
	}
}

// Connect dials the broker and waits until the first connection is up or
// ctx is done. On ctx expiry the client keeps retrying in the background.
func (c *Client) Connect(ctx context.Context) error {
	token := c.conn.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("transport: connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("transport: connect: %w", ctx.Err())
	}
}

// Publish hands payload to the broker client and returns immediately. The
// acknowledgement is awaited in the background; failures are only logged.
func (c *Client) Publish(topic string, payload []byte) error {
	if c.State() == StateClosed {
		return ErrClosed
	}
	token := c.conn.Publish(topic, QoS, false, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.lg.Error("publish failed", "topic", topic, "error", err)
			return
		}
		c.lg.Debug("published", "topic", topic, "payload", string(payload))
	}()
	return nil
}

// Close disconnects and moves to StateClosed. Further publishes fail.
func (c *Client) Close() {
	c.setState(StateClosed)
	c.conn.Disconnect(250)
}

func (c *Client) onConnect(mqtt.Client) {
	c.setState(StateReady)
	c.mu.Lock()
	subs := append([]subscription{}, c.subs...)
	c.mu.Unlock()
	for _, s := range subs {
		c.subscribe(s)
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.lg.Warn("connection lost", "error", err)
	c.setState(StateReconnecting)
}

func (c *Client) onReconnecting(mqtt.Client, *mqtt.ClientOptions) {
	c.setState(StateReconnecting)
}

func (c *Client) subscribe(s subscription) {
	token := c.conn.Subscribe(s.topic, QoS, func(_ mqtt.Client, msg mqtt.Message) {
		c.dispatch(s.handler, msg.Topic(), msg.Payload())
	})
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.lg.Error("subscribe failed", "topic", s.topic, "error", err)
			return
		}
		c.lg.Info("subscribed", "topic", s.topic, "qos", QoS)
	}()
}

func (c *Client) dispatch(h Handler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.lg.Error("message handler panicked", "topic", topic, "panic", r)
		}
	}()
	h(topic, payload)
}
