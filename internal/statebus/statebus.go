// Package statebus exposes application state received over MQTT as named
// condition flags.
//
// Each flag lives on chroma/state/<name>. A message sets the flag on or off;
// shaders registered with bus.Flag(name) as their condition then follow the
// application without any further wiring. Flags are created on first use,
// from either side, so effects can be registered before the first message
// arrives.
//
// Accepted payloads:
//   - on, off, true, false, 1, 0 (case-insensitive, surrounding space ignored)
//   - toggle
//   - {"value": true} or {"value": false}
package statebus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-chroma/internal/condition"
	"github.com/nerrad567/gray-logic-chroma/internal/infrastructure/mqtt"
)

// ErrInvalidPayload is returned for a state message that is not a boolean.
var ErrInvalidPayload = errors.New("statebus: invalid payload")

// Subscriber is the part of the MQTT client used by the bus.
type Subscriber interface {
	SubscribeFlags(handler mqtt.FlagHandler) error
	UnsubscribeFlags() error
}

// Logger defines the logging interface used by the bus.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StateMessage is the JSON form of a state payload.
type StateMessage struct {
	Value *bool `json:"value"`
}

// Bus maps MQTT state topics onto condition flags.
//
// Thread Safety: all methods are safe for concurrent use.
type Bus struct {
	sub    Subscriber
	logger Logger

	mu       sync.Mutex
	flags    map[string]*condition.Flag
	received uint64
	started  bool
}

// New creates a Bus. Nothing is subscribed until Start.
//
// Parameters:
//   - sub: MQTT client; may be nil when flags are only set locally
//   - logger: diagnostics; nil disables logging
//
// Returns:
//   - *Bus: bus with no flags
func New(sub Subscriber, logger Logger) *Bus {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bus{
		sub:    sub,
		logger: logger,
		flags:  make(map[string]*condition.Flag),
	}
}

// Start subscribes to every state topic.
func (b *Bus) Start() error {
	if b.sub == nil {
		return mqtt.ErrNotConnected
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	if err := b.sub.SubscribeFlags(b.Apply); err != nil {
		return fmt.Errorf("subscribe to state flags: %w", err)
	}
	b.started = true
	b.logger.Info("subscribed to state flags", "topic", mqtt.Topics{}.AllStateFlags())
	return nil
}

// Stop unsubscribes. Flags keep their last value.
func (b *Bus) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return nil
	}
	b.started = false
	return b.sub.UnsubscribeFlags()
}

// Flag returns the named flag, creating it off if unknown.
func (b *Bus) Flag(name string) *condition.Flag {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flagLocked(name)
}

// Set sets the named flag.
func (b *Bus) Set(name string, v bool) {
	b.Flag(name).Set(v)
}

// Names returns the known flag names in sorted order.
func (b *Bus) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.flags))
	for name := range b.flags {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Values returns the current value of every known flag.
func (b *Bus) Values() map[string]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]bool, len(b.flags))
	for name, f := range b.flags {
		out[name] = f.IsActive()
	}
	return out
}

// Received returns the number of state messages applied.
func (b *Bus) Received() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.received
}

func (b *Bus) flagLocked(name string) *condition.Flag {
	f, ok := b.flags[name]
	if !ok {
		f = condition.NewFlag(name, false)
		b.flags[name] = f
	}
	return f
}

// Apply applies one state message. A replayed toggle is dropped: the
// retained or redelivered copy was already applied when it was live.
//
// Returns:
//   - error: ErrInvalidPayload for a payload that is not a boolean
func (b *Bus) Apply(u mqtt.FlagUpdate) error {
	name, payload := u.Flag, u.Payload

	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.flagLocked(name)

	if isToggle(payload) {
		if u.Replayed {
			b.logger.Debug("replayed toggle ignored", "flag", name)
			return nil
		}
		v := f.Toggle()
		b.received++
		b.logger.Debug("state flag toggled", "flag", name, "value", v)
		return nil
	}

	v, err := ParseValue(payload)
	if err != nil {
		return fmt.Errorf("flag %s: %w", name, err)
	}
	f.Set(v)
	b.received++
	b.logger.Debug("state flag set", "flag", name, "value", v)
	return nil
}

func isToggle(payload []byte) bool {
	return strings.EqualFold(string(bytes.TrimSpace(payload)), "toggle")
}

// ParseValue decodes a boolean state payload.
//
// Parameters:
//   - payload: on/off, true/false, 1/0 or {"value": bool}
//
// Returns:
//   - bool: the decoded value
//   - error: ErrInvalidPayload for anything else
func ParseValue(payload []byte) (bool, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var msg StateMessage
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return false, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		if msg.Value == nil {
			return false, fmt.Errorf("%w: missing value", ErrInvalidPayload)
		}
		return *msg.Value, nil
	}

	switch strings.ToLower(string(trimmed)) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidPayload, trimmed)
	}
}
