package gamesense

import (
	"context"
	"sync"
)

// Transport carries GameSense registrations and frame events to the vendor
// engine. Implementations report when the far end is able to accept events;
// the backend drops frames while the transport is inactive.
type Transport interface {
	// Connect opens the transport. It may be called again after Close.
	Connect(ctx context.Context) error

	// Register sends the game metadata and event bindings.
	Register(payload []byte) error

	// SendEvent sends one frame event.
	SendEvent(payload []byte) error

	// Close releases the transport. Safe to call more than once.
	Close() error

	// SetOnActive sets a callback fired whenever the transport becomes active.
	SetOnActive(fn func())

	// SetOnInactive sets a callback fired whenever the transport becomes inactive.
	SetOnInactive(fn func())

	// IsActive reports whether events can currently be delivered.
	IsActive() bool
}

// RGB is one colour in a GameSense frame.
type RGB struct {
	Red   uint8 `json:"red"`
	Green uint8 `json:"green"`
	Blue  uint8 `json:"blue"`
}

// Event is the JSON document sent for every frame of a device.
type Event struct {
	Game  string    `json:"game"`
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

// EventData wraps the frame of an event.
type EventData struct {
	Frame map[string]RGB `json:"frame"`
}

// Registration is the JSON document sent on connect and whenever rules
// change the game or event names.
type Registration struct {
	Game        string         `json:"game"`
	DisplayName string         `json:"game_display_name"`
	Developer   string         `json:"developer"`
	Session     string         `json:"session"`
	Events      []EventBinding `json:"events"`
}

// EventBinding binds an event to the triggers of one device.
type EventBinding struct {
	Event      string    `json:"event"`
	DeviceType string    `json:"device-type"`
	Handlers   []Handler `json:"handlers"`
}

// Handler maps one frame key onto a device zone.
type Handler struct {
	Zone     string `json:"zone"`
	Mode     string `json:"mode"`
	FrameKey string `json:"context-frame-key"`
}

// activity tracks the active flag of a transport and fires its callbacks on
// transitions.
type activity struct {
	mu         sync.RWMutex
	active     bool
	onActive   func()
	onInactive func()
}

func (a *activity) set(active bool) {
	a.mu.Lock()
	changed := a.active != active
	a.active = active
	cb := a.onInactive
	if active {
		cb = a.onActive
	}
	a.mu.Unlock()

	if changed && cb != nil {
		cb()
	}
}

func (a *activity) get() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.active
}

func (a *activity) setOnActive(fn func()) {
	a.mu.Lock()
	a.onActive = fn
	a.mu.Unlock()
}

func (a *activity) setOnInactive(fn func()) {
	a.mu.Lock()
	a.onInactive = fn
	a.mu.Unlock()
}
