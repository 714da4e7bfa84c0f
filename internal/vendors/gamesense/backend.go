package gamesense

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gg"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
	"github.com/nerrad567/gray-logic-chroma/internal/rules"
)

// StaggerGroups is the number of ticks over which decorative devices are
// spread. Each decorative device is sent once every StaggerGroups ticks.
const StaggerGroups = 12

// DeviceSpec declares one GameSense device.
type DeviceSpec struct {
	Name    string
	Type    device.Type
	Origin  device.Fragment
	Detail  device.DetailLevel
	Profile device.ColorProfile

	// Zones overrides the standard LED count for strip-like devices.
	Zones int
}

// Config configures a Backend.
type Config struct {
	// Transport carries registrations and events. Required.
	Transport Transport

	Game        string
	DisplayName string
	Developer   string
	Devices     []DeviceSpec

	// Logger receives adapter diagnostics. Nil disables logging.
	Logger device.Logger
}

// Backend is the device.Backend of the protocol-backed vendor.
//
// Devices never talk to the transport directly. Present records the latest
// frame of each device; OnceProcessed sends keyboards and devices marked
// critical every tick and one of StaggerGroups groups of the remaining
// devices per tick. Frames of a device not yet sent are replaced by newer
// ones.
//
// Thread Safety: all methods are safe for concurrent use.
type Backend struct {
	transport Transport
	specs     []DeviceSpec
	logger    device.Logger

	// needsRegister is set from transport callbacks, which may run while mu
	// is held.
	needsRegister atomic.Bool

	mu          sync.RWMutex
	game        string
	displayName string
	developer   string
	eventNames  map[string]string
	critical    []string
	session     string
	devices     []*gsDevice
	frame       uint64
}

// NewBackend creates a Backend.
func NewBackend(cfg Config) *Backend {
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	if cfg.Developer == "" {
		cfg.Developer = "Gray Logic"
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = cfg.Game
	}
	return &Backend{
		transport:   cfg.Transport,
		specs:       append([]DeviceSpec(nil), cfg.Devices...),
		logger:      logger,
		game:        cfg.Game,
		displayName: cfg.DisplayName,
		developer:   cfg.Developer,
	}
}

// Initialize connects the transport, builds the devices and registers their
// events. Any failure closes the transport again.
func (b *Backend) Initialize(ctx context.Context) ([]device.Device, error) {
	if b.transport == nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, ErrNoTransport)
	}

	b.transport.SetOnActive(func() {
		b.needsRegister.Store(true)
	})
	b.transport.SetOnInactive(func() {
		b.logger.Warn("gamesense transport inactive, frames are dropped until it returns")
	})

	if err := b.transport.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: connect: %w", ErrUnavailable, err)
	}

	built := make([]*gsDevice, 0, len(b.specs))
	decorative := 0
	for i, spec := range b.specs {
		d, err := b.build(i, spec)
		if err != nil {
			_ = b.transport.Close()
			return nil, err
		}
		if d.Type() != device.TypeKeyboard {
			d.stagger = decorative
			decorative++
		}
		built = append(built, d)
	}

	b.mu.Lock()
	b.devices = built
	b.session = uuid.NewString()
	b.frame = 0
	err := b.registerLocked()
	b.mu.Unlock()
	if err != nil {
		_ = b.transport.Close()
		return nil, fmt.Errorf("%w: register: %w", ErrUnavailable, err)
	}

	out := make([]device.Device, len(built))
	for i, d := range built {
		out[i] = d.Device
	}
	return out, nil
}

// Uninitialize drops the devices and closes the transport.
func (b *Backend) Uninitialize() error {
	b.mu.Lock()
	b.devices = nil
	b.session = ""
	b.mu.Unlock()
	if b.transport == nil {
		return nil
	}
	return b.transport.Close()
}

// LoadSpecialRules applies the gamesense section of a *rules.Set: game name,
// event names and critical devices. Events are re-registered before the next
// frame is sent. Other payloads are ignored.
func (b *Backend) LoadSpecialRules(r any) {
	set, ok := r.(*rules.Set)
	if !ok || set == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if set.GameSense.Game != "" {
		b.game = set.GameSense.Game
	}
	b.eventNames = set.GameSense.Events
	b.critical = append([]string(nil), set.GameSense.Critical...)
	b.needsRegister.Store(true)
}

// OnceProcessed sends the frames due this tick.
//
// While the transport is inactive queued frames are dropped and nil is
// returned; an unreachable vendor engine is not a render failure.
func (b *Backend) OnceProcessed() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	group := int(b.frame % StaggerGroups)
	b.frame++

	if !b.transport.IsActive() {
		for _, d := range b.devices {
			d.take()
		}
		return nil
	}

	if b.needsRegister.Load() {
		if err := b.registerLocked(); err != nil {
			return b.sendError(err)
		}
	}

	var errs []error
	for _, d := range b.devices {
		if !b.isCriticalLocked(d) && d.stagger%StaggerGroups != group {
			continue
		}
		frame := d.take()
		if frame == nil {
			continue
		}
		payload, err := json.Marshal(Event{
			Game:  b.game,
			Event: b.eventNameLocked(d),
			Data:  EventData{Frame: frame},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
			continue
		}
		if err := b.transport.SendEvent(payload); err != nil {
			if errors.Is(err, ErrNotConnected) {
				b.needsRegister.Store(true)
				return nil
			}
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Session returns the id of the current registration, or "" when not initialised.
func (b *Backend) Session() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

func (b *Backend) sendError(err error) error {
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

func (b *Backend) registerLocked() error {
	reg := Registration{
		Game:        b.game,
		DisplayName: b.displayName,
		Developer:   b.developer,
		Session:     b.session,
		Events:      make([]EventBinding, 0, len(b.devices)),
	}
	for _, d := range b.devices {
		binding := EventBinding{
			Event:      b.eventNameLocked(d),
			DeviceType: gameSenseDeviceType(d.Type()),
			Handlers:   make([]Handler, 0, len(d.triggers)),
		}
		for _, trigger := range d.triggers {
			binding.Handlers = append(binding.Handlers, Handler{
				Zone:     trigger,
				Mode:     "context-color",
				FrameKey: trigger,
			})
		}
		reg.Events = append(reg.Events, binding)
	}

	payload, err := json.Marshal(reg)
	if err != nil {
		return err
	}
	b.needsRegister.Store(false)
	if err := b.transport.Register(payload); err != nil {
		b.needsRegister.Store(true)
		return err
	}
	return nil
}

func (b *Backend) isCriticalLocked(d *gsDevice) bool {
	return d.Type() == device.TypeKeyboard || slices.Contains(b.critical, d.Name())
}

func (b *Backend) eventNameLocked(d *gsDevice) string {
	if name, ok := b.eventNames[d.Name()]; ok && name != "" {
		return name
	}
	return EventName(d.Name())
}

func (b *Backend) build(i int, spec DeviceSpec) (*gsDevice, error) {
	name := spec.Name
	if name == "" {
		name = fmt.Sprintf("%s-%d", spec.Type, i)
	}
	frags := device.StandardLayout(spec.Type, spec.Origin)
	if spec.Zones > 0 && spec.Type != device.TypeKeyboard {
		frags = device.Strip(spec.Origin, spec.Zones)
	}

	gd := &gsDevice{}
	cfg := device.SurfaceConfig{
		Name:      name,
		Vendor:    device.VendorSteelSeries,
		Type:      spec.Type,
		Fragments: frags,
		Profile:   spec.Profile,
		Detail:    spec.Detail,
		Present:   gd.present,
	}

	if spec.Type == device.TypeKeyboard {
		kb, err := device.NewKeyboard(cfg, nil)
		if err != nil {
			return nil, err
		}
		gd.Device = kb
		gd.keyIndex = make(map[string]int)
		for _, key := range kb.Keys() {
			idx, _ := kb.KeyIndex(key)
			gd.keyIndex[string(key)] = idx
		}
		gd.triggers = make([]string, 0, len(gd.keyIndex))
		for trigger := range gd.keyIndex {
			gd.triggers = append(gd.triggers, trigger)
		}
		slices.Sort(gd.triggers)
		return gd, nil
	}

	s, err := device.NewSurface(cfg)
	if err != nil {
		return nil, err
	}
	gd.Device = s
	gd.triggers = make([]string, s.LEDCount())
	for z := range gd.triggers {
		gd.triggers[z] = fmt.Sprintf("zone%d", z+1)
	}
	return gd, nil
}

// gsDevice queues the latest frame of a surface until OnceProcessed sends it.
type gsDevice struct {
	device.Device

	// triggers are the frame keys in registration order. Keyboards use key
	// names; other devices use zone1..zoneN.
	triggers []string
	keyIndex map[string]int
	stagger  int

	mu      sync.Mutex
	pending map[string]RGB
}

func (d *gsDevice) present(colors []gg.RGBA) error {
	frame := make(map[string]RGB, len(d.triggers))
	for z, trigger := range d.triggers {
		idx := z
		if d.keyIndex != nil {
			idx = d.keyIndex[trigger]
		}
		if idx >= len(colors) {
			continue
		}
		r, g, b := device.Pack8(colors[idx])
		frame[trigger] = RGB{Red: r, Green: g, Blue: b}
	}

	d.mu.Lock()
	d.pending = frame
	d.mu.Unlock()
	return nil
}

// take returns and clears the queued frame.
func (d *gsDevice) take() map[string]RGB {
	d.mu.Lock()
	defer d.mu.Unlock()
	frame := d.pending
	d.pending = nil
	return frame
}

// EventName derives the default event name for a device name: upper case,
// with anything outside A-Z, 0-9 and _ replaced by _.
func EventName(deviceName string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, deviceName)
}

func gameSenseDeviceType(t device.Type) string {
	switch t {
	case device.TypeKeyboard:
		return "rgb-per-key-zones"
	case device.TypeMouse:
		return "mouse"
	case device.TypeHeadset:
		return "headset"
	case device.TypeMousepad:
		return "mousepad"
	case device.TypeKeypad:
		return "keyboard"
	default:
		return "indicator"
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
