package gamesense

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-chroma/internal/infrastructure/mqtt"
)

// Broker is the part of the MQTT client used by MQTTTransport.
type Broker interface {
	PublishGameSense(game string, kind mqtt.GameSenseKind, payload []byte) error
	WatchRelay(fn func(online bool)) error
	UnwatchRelay() error
	IsConnected() bool
}

// MQTTConfig configures an MQTTTransport.
type MQTTConfig struct {
	// Broker is the shared daemon MQTT client. Required.
	Broker Broker

	// Game selects the topics: chroma/gamesense/<game>/{register,event}.
	Game string
}

// MQTTTransport implements Transport by publishing to a relay process on the
// gaming host, which forwards to the vendor engine.
//
// The transport is active while the broker is connected and the relay has
// not announced itself offline on chroma/gamesense/status.
type MQTTTransport struct {
	broker Broker
	game   string

	relayOnline atomic.Bool
	connected   atomic.Bool
	state       activity
}

// Ensure MQTTTransport implements Transport.
var _ Transport = (*MQTTTransport)(nil)

// NewMQTTTransport creates a transport over an existing broker connection.
func NewMQTTTransport(cfg MQTTConfig) *MQTTTransport {
	t := &MQTTTransport{broker: cfg.Broker, game: cfg.Game}
	t.relayOnline.Store(true)
	return t
}

// Connect starts watching relay presence.
func (t *MQTTTransport) Connect(_ context.Context) error {
	if t.broker == nil || !t.broker.IsConnected() {
		return mqtt.ErrNotConnected
	}
	if err := t.broker.WatchRelay(t.relayChanged); err != nil {
		return fmt.Errorf("watching relay status: %w", err)
	}
	t.connected.Store(true)
	t.refresh()
	return nil
}

// Register publishes the registration document.
func (t *MQTTTransport) Register(payload []byte) error {
	return t.publish(mqtt.GameSenseRegistration, payload)
}

// SendEvent publishes a frame event.
func (t *MQTTTransport) SendEvent(payload []byte) error {
	return t.publish(mqtt.GameSenseFrame, payload)
}

// Close stops watching relay presence. The broker connection is owned by the
// caller and stays open.
func (t *MQTTTransport) Close() error {
	if !t.connected.Swap(false) {
		return nil
	}
	t.state.set(false)
	if t.broker.IsConnected() {
		return t.broker.UnwatchRelay()
	}
	return nil
}

// SetOnActive sets the callback fired when the transport becomes active.
func (t *MQTTTransport) SetOnActive(fn func()) { t.state.setOnActive(fn) }

// SetOnInactive sets the callback fired when the transport becomes inactive.
func (t *MQTTTransport) SetOnInactive(fn func()) { t.state.setOnInactive(fn) }

// IsActive reports whether the broker is connected and the relay is online.
func (t *MQTTTransport) IsActive() bool {
	return t.connected.Load() && t.relayOnline.Load() && t.broker.IsConnected()
}

func (t *MQTTTransport) publish(kind mqtt.GameSenseKind, payload []byte) error {
	if !t.IsActive() {
		t.refresh()
		return ErrNotConnected
	}
	if err := t.broker.PublishGameSense(t.game, kind, payload); err != nil {
		t.refresh()
		return fmt.Errorf("%w: %s: %w", ErrSendFailed, kind, err)
	}
	return nil
}

func (t *MQTTTransport) relayChanged(online bool) {
	t.relayOnline.Store(online)
	t.refresh()
}

func (t *MQTTTransport) refresh() {
	t.state.set(t.IsActive())
}
