package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Default timeout for a backend's Initialize call.
const defaultInitTimeout = 5 * time.Second

// Group is the engine-facing contract of a vendor device group.
//
// Devices returns a non-nil, possibly empty slice. It is empty whenever the
// group is disabled or its backend failed to initialise.
type Group interface {
	Enable()
	Disable()
	IsEnabled() bool
	Devices() []Device
}

// Backend is the vendor specific half of a device group.
//
// Initialize establishes the vendor session and builds the devices. On error
// it must release anything it acquired; the returned devices are discarded.
// Uninitialize releases the session and must be safe to call repeatedly.
type Backend interface {
	Initialize(ctx context.Context) ([]Device, error)
	Uninitialize() error
}

// SpecialRulesLoader is implemented by groups that accept vendor specific
// rule documents. Payloads of an unknown type are ignored.
type SpecialRulesLoader interface {
	LoadSpecialRules(rules any)
}

// BatchFlusher is implemented by groups that batch device output and flush it
// once per render pass, after every device has been presented.
type BatchFlusher interface {
	OnceProcessed() error
}

// Logger defines the logging interface used by device groups.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// EventKind classifies a lifecycle transition.
type EventKind string

// Lifecycle event kinds.
const (
	EventEnabled    EventKind = "enabled"
	EventDisabled   EventKind = "disabled"
	EventInitFailed EventKind = "init_failed"
)

// Event describes one lifecycle transition of a group.
type Event struct {
	Group   string
	Kind    EventKind
	Devices int
	Err     error
	Time    time.Time
}

// LifecycleOptions configures a Lifecycle.
type LifecycleOptions struct {
	// Name identifies the group in logs and events.
	Name string

	// Backend is the vendor implementation. Required.
	Backend Backend

	// InitTimeout bounds Backend.Initialize. Zero means 5s.
	InitTimeout time.Duration

	// Logger receives lifecycle diagnostics. Nil disables logging.
	Logger Logger

	// OnEvent, if set, is called after every lifecycle transition.
	OnEvent func(Event)
}

// Lifecycle implements Group over a vendor Backend.
//
// Enable initialises the backend once; a failed initialisation is logged and
// leaves the group disabled with no devices. Disable uninitialises the
// backend and clears the devices.
//
// Thread Safety: all methods are safe for concurrent use.
type Lifecycle struct {
	name        string
	backend     Backend
	initTimeout time.Duration
	logger      Logger
	onEvent     func(Event)

	mu          sync.Mutex
	enabled     bool
	initialized bool
	devices     []Device
	lastErr     error
}

// NewLifecycle creates a disabled Lifecycle.
//
// Parameters:
//   - opts: lifecycle options; Backend must be set
//
// Returns:
//   - *Lifecycle: a disabled group
func NewLifecycle(opts LifecycleOptions) *Lifecycle {
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = defaultInitTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Lifecycle{
		name:        opts.Name,
		backend:     opts.Backend,
		initTimeout: opts.InitTimeout,
		logger:      opts.Logger,
		onEvent:     opts.OnEvent,
	}
}

// Name returns the group name.
func (l *Lifecycle) Name() string { return l.name }

// Enable initialises the backend unless the group is already enabled. A
// backend that fails or panics leaves the group disabled.
func (l *Lifecycle) Enable() {
	ev, ok := l.enable()
	if !ok {
		return
	}
	if ev.Err != nil {
		l.logger.Warn("device group unavailable", "group", l.name, "error", ev.Err)
	} else {
		l.logger.Info("device group enabled", "group", l.name, "devices", ev.Devices)
	}
	l.emit(ev)
}

func (l *Lifecycle) enable() (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.enabled {
		return Event{}, false
	}

	devices, err := l.initialize()
	if err != nil {
		l.enabled = false
		l.initialized = false
		l.devices = nil
		l.lastErr = err
		return Event{Group: l.name, Kind: EventInitFailed, Err: err}, true
	}

	l.enabled = true
	l.initialized = true
	l.devices = devices
	l.lastErr = nil
	return Event{Group: l.name, Kind: EventEnabled, Devices: len(devices)}, true
}

// initialize runs the backend's Initialize under the init timeout and turns
// a panic into ErrBackendPanic.
func (l *Lifecycle) initialize() (devices []Device, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.initTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			devices = nil
			err = fmt.Errorf("%w: initialize: %v", ErrBackendPanic, r)
		}
	}()
	return l.backend.Initialize(ctx)
}

// Disable uninitialises the backend and drops all devices. It is a no-op
// when the group is already disabled.
func (l *Lifecycle) Disable() {
	ok, err := l.disable()
	if !ok {
		return
	}
	if err != nil {
		l.logger.Warn("device group uninitialise failed", "group", l.name, "error", err)
	} else {
		l.logger.Info("device group disabled", "group", l.name)
	}
	l.emit(Event{Group: l.name, Kind: EventDisabled, Err: err})
}

func (l *Lifecycle) disable() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled && !l.initialized {
		return false, nil
	}
	wasInitialized := l.initialized
	l.enabled = false
	l.initialized = false
	l.devices = nil
	if !wasInitialized {
		return true, nil
	}
	return true, l.uninitialize()
}

func (l *Lifecycle) uninitialize() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: uninitialize: %v", ErrBackendPanic, r)
		}
	}()
	return l.backend.Uninitialize()
}

// IsEnabled reports whether the group is enabled and initialised.
func (l *Lifecycle) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Devices returns the group's devices, or an empty slice when the group is
// not both enabled and initialised.
func (l *Lifecycle) Devices() []Device {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled || !l.initialized {
		return []Device{}
	}
	out := make([]Device, len(l.devices))
	copy(out, l.devices)
	return out
}

// LastError returns the most recent initialisation error, or nil.
func (l *Lifecycle) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// LoadSpecialRules forwards rules to the backend if it understands them.
func (l *Lifecycle) LoadSpecialRules(rules any) {
	if loader, ok := l.backend.(SpecialRulesLoader); ok {
		loader.LoadSpecialRules(rules)
	}
}

// OnceProcessed forwards the end-of-pass flush to the backend while the
// group is live.
func (l *Lifecycle) OnceProcessed() error {
	flusher, ok := l.backend.(BatchFlusher)
	if !ok {
		return nil
	}
	l.mu.Lock()
	live := l.enabled && l.initialized
	l.mu.Unlock()
	if !live {
		return nil
	}
	return flusher.OnceProcessed()
}

func (l *Lifecycle) emit(ev Event) {
	if l.onEvent == nil {
		return
	}
	ev.Time = time.Now().UTC()
	l.onEvent(ev)
}
