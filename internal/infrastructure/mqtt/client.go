package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-chroma/internal/infrastructure/config"
)

// Logger defines the logging interface used by the client.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client is the daemon's broker connection. It receives state flags for the
// state bus, publishes GameSense documents for the MQTT transport and tracks
// relay presence.
//
// Paho reconnects on its own; every route registered through the client is
// subscribed again after each reconnect.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	paho     pahomqtt.Client
	logger   Logger
	clientID string
	regQoS   byte

	connected atomic.Bool

	mu     sync.Mutex
	routes map[string]route
}

// route is a subscription kept for replay after reconnect.
type route struct {
	qos     byte
	handler pahomqtt.MessageHandler
}

// Connect dials the broker and announces the daemon online.
//
// Parameters:
//   - cfg: MQTT section of the daemon configuration
//   - logger: connection and handler diagnostics; nil disables logging
//
// Returns:
//   - *Client: connected client
//   - error: ErrConnectionFailed if the broker does not accept in time
func Connect(cfg config.MQTTConfig, logger Logger) (*Client, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	c := &Client{
		logger:   logger,
		clientID: cfg.Broker.ClientID,
		regQoS:   registrationQoS(cfg.QoS),
		routes:   make(map[string]route),
	}

	opts := newOptions(cfg).
		SetOnConnectHandler(func(pahomqtt.Client) { c.onConnect() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(err) }).
		SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
			logger.Warn("mqtt reconnecting", "broker", brokerURL(cfg.Broker))
		})

	c.paho = pahomqtt.NewClient(opts)
	tok := c.paho.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: %s did not answer within %v", ErrConnectionFailed, brokerURL(cfg.Broker), connectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// onConnect runs asynchronously and may not have fired yet.
	c.connected.Store(true)
	return c, nil
}

// onConnect replays routes and announces presence. Tokens are not awaited:
// paho does not complete them until its connect callback returns.
func (c *Client) onConnect() {
	c.connected.Store(true)

	c.mu.Lock()
	for topic, r := range c.routes {
		c.paho.Subscribe(topic, r.qos, r.handler)
	}
	n := len(c.routes)
	c.mu.Unlock()

	c.paho.Publish(Topics{}.SystemStatus(), statusDelivery.qos, statusDelivery.retain,
		newStatus(c.clientID, statusOnline, ""))
	c.logger.Info("mqtt connected", "client_id", c.clientID, "routes", n)
}

func (c *Client) onConnectionLost(err error) {
	c.connected.Store(false)
	c.logger.Warn("mqtt connection lost", "error", err)
}

// Close announces a graceful shutdown and disconnects. The retained offline
// status differs from the will by its reason.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.paho.Publish(Topics{}.SystemStatus(), statusDelivery.qos, statusDelivery.retain,
			newStatus(c.clientID, statusOffline, "shutdown")).WaitTimeout(operationTimeout)
	}
	c.paho.Disconnect(quiesceMillis)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.connected.Load() && c.paho.IsConnected()
}

// subscribe registers handler on topic and keeps it for reconnects.
func (c *Client) subscribe(topic string, qos byte, handler pahomqtt.MessageHandler) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.routes[topic] = route{qos: qos, handler: handler}
	c.mu.Unlock()

	if err := await(c.paho.Subscribe(topic, qos, handler)); err != nil {
		c.mu.Lock()
		delete(c.routes, topic)
		c.mu.Unlock()
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

func (c *Client) unsubscribe(topic string) error {
	c.mu.Lock()
	_, ok := c.routes[topic]
	delete(c.routes, topic)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := await(c.paho.Unsubscribe(topic)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}
	return nil
}

func (c *Client) publish(topic string, d delivery, payload []byte) error {
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes on %s", ErrPayloadTooLarge, len(payload), topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := await(c.paho.Publish(topic, d.qos, d.retain, payload)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// guard adapts fn to paho. Errors and panics are logged against the topic
// and never reach the paho router.
func (c *Client) guard(fn func(pahomqtt.Message) error) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("mqtt handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := fn(msg); err != nil {
			c.logger.Warn("mqtt message rejected", "topic", msg.Topic(), "error", err)
		}
	}
}

func await(tok pahomqtt.Token) error {
	if !tok.WaitTimeout(operationTimeout) {
		return ErrTimeout
	}
	return tok.Error()
}
