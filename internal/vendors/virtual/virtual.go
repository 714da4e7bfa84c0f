// Package virtual provides an in-memory device group.
//
// Virtual devices record every presented frame instead of driving hardware.
// The group backs tests, demos and the diagnostics API, and can be told to
// fail initialisation, presentation or flushing to exercise the engine's
// failure handling.
package virtual

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gg"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
)

// ErrInjected is the default error for injected failures.
var ErrInjected = errors.New("virtual: injected failure")

// DeviceConfig describes one virtual device.
type DeviceConfig struct {
	Name   string
	Type   device.Type
	Origin device.Fragment
	Detail device.DetailLevel
	// Fragments overrides the standard layout for Type.
	Fragments []device.Fragment
	Profile   device.ColorProfile
}

// Config configures a Backend.
type Config struct {
	Devices []DeviceConfig

	// OnPresent, if set, runs inside every Present call.
	OnPresent func(device string)
}

// Backend is the in-memory device.Backend.
//
// Thread Safety: all methods are safe for concurrent use.
type Backend struct {
	cfg Config

	mu          sync.Mutex
	devices     []device.Device
	frames      map[string][]gg.RGBA
	counts      map[string]int
	initErr     error
	presentErr  error
	flushErr    error
	initCount   int
	uninitCount int
	flushes     int
	rules       []any
}

// NewBackend creates a Backend.
func NewBackend(cfg Config) *Backend {
	return &Backend{
		cfg:    cfg,
		frames: make(map[string][]gg.RGBA),
		counts: make(map[string]int),
	}
}

// NewGroup wraps a new Backend in a device.Lifecycle.
//
// Parameters:
//   - name: group name for logs and events
//   - cfg: device list
//   - logger: lifecycle logger; nil disables logging
//   - onEvent: optional lifecycle event hook
//
// Returns:
//   - *device.Lifecycle: the group
//   - *Backend: the backend, for inspection and fault injection
func NewGroup(name string, cfg Config, logger device.Logger, onEvent func(device.Event)) (*device.Lifecycle, *Backend) {
	b := NewBackend(cfg)
	g := device.NewLifecycle(device.LifecycleOptions{
		Name:    name,
		Backend: b,
		Logger:  logger,
		OnEvent: onEvent,
	})
	return g, b
}

// Initialize builds the configured devices.
func (b *Backend) Initialize(_ context.Context) ([]device.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initCount++
	if b.initErr != nil {
		return nil, b.initErr
	}

	devices := make([]device.Device, 0, len(b.cfg.Devices))
	for i, dc := range b.cfg.Devices {
		d, err := b.build(i, dc)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	b.devices = devices
	return append([]device.Device(nil), devices...), nil
}

func (b *Backend) build(i int, dc DeviceConfig) (device.Device, error) {
	name := dc.Name
	if name == "" {
		name = fmt.Sprintf("%s-%d", dc.Type, i)
	}
	frags := dc.Fragments
	if len(frags) == 0 {
		frags = device.StandardLayout(dc.Type, dc.Origin)
	}
	cfg := device.SurfaceConfig{
		Name:      name,
		Vendor:    device.VendorVirtual,
		Type:      dc.Type,
		Fragments: frags,
		Profile:   dc.Profile,
		Detail:    dc.Detail,
		Present:   b.presentFunc(name),
	}
	if dc.Type == device.TypeKeyboard {
		return device.NewKeyboard(cfg, nil)
	}
	return device.NewSurface(cfg)
}

func (b *Backend) presentFunc(name string) device.PresentFunc {
	return func(colors []gg.RGBA) error {
		if b.cfg.OnPresent != nil {
			b.cfg.OnPresent(name)
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.presentErr != nil {
			return b.presentErr
		}
		b.frames[name] = append(b.frames[name][:0], colors...)
		b.counts[name]++
		return nil
	}
}

// Uninitialize drops the devices.
func (b *Backend) Uninitialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uninitCount++
	b.devices = nil
	return nil
}

// LoadSpecialRules records rules of any type.
func (b *Backend) LoadSpecialRules(rules any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rules = append(b.rules, rules)
}

// OnceProcessed counts flushes and returns the injected flush error.
func (b *Backend) OnceProcessed() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushes++
	return b.flushErr
}

// FailInit makes the next initialisations fail with err. Nil clears it.
func (b *Backend) FailInit(err error) {
	b.mu.Lock()
	b.initErr = err
	b.mu.Unlock()
}

// FailPresent makes every Present fail with err. Nil clears it.
func (b *Backend) FailPresent(err error) {
	b.mu.Lock()
	b.presentErr = err
	b.mu.Unlock()
}

// FailFlush makes OnceProcessed fail with err. Nil clears it.
func (b *Backend) FailFlush(err error) {
	b.mu.Lock()
	b.flushErr = err
	b.mu.Unlock()
}

// LastFrame returns a copy of the last colours presented by the named device.
func (b *Backend) LastFrame(name string) ([]gg.RGBA, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.frames[name]
	if !ok {
		return nil, false
	}
	return append([]gg.RGBA(nil), f...), true
}

// FrameCount returns how many frames the named device presented.
func (b *Backend) FrameCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[name]
}

// Counters returns the lifecycle and flush call counts.
func (b *Backend) Counters() (inits, uninits, flushes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initCount, b.uninitCount, b.flushes
}

// Rules returns every rules payload received.
func (b *Backend) Rules() []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]any(nil), b.rules...)
}
