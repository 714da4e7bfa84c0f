package chromasdk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gg"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
	"github.com/nerrad567/gray-logic-chroma/internal/rules"
)

// DeviceSpec declares one SDK device to expose.
type DeviceSpec struct {
	Kind    DeviceKind
	Name    string
	Origin  device.Fragment
	Detail  device.DetailLevel
	Profile device.ColorProfile
}

// Config configures a Backend.
type Config struct {
	// SDK is the vendor capability surface. Required.
	SDK SDK

	// Probe, if set, runs before SDK.Init.
	Probe Probe

	// Devices to expose once initialised.
	Devices []DeviceSpec

	// Logger receives adapter diagnostics. Nil disables logging.
	Logger device.Logger
}

// Backend is the device.Backend of the native-SDK-backed vendor.
//
// Thread Safety: all methods are safe for concurrent use.
type Backend struct {
	sdk    SDK
	probe  Probe
	specs  []DeviceSpec
	logger device.Logger

	mu      sync.Mutex
	devices []*sdkDevice
}

// NewBackend creates a Backend.
func NewBackend(cfg Config) *Backend {
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &Backend{
		sdk:    cfg.SDK,
		probe:  cfg.Probe,
		specs:  append([]DeviceSpec(nil), cfg.Devices...),
		logger: logger,
	}
}

// Initialize probes the vendor runtime, initialises the SDK and builds the
// configured devices. Any failure leaves the SDK uninitialised.
func (b *Backend) Initialize(ctx context.Context) ([]device.Device, error) {
	if b.sdk == nil {
		return nil, fmt.Errorf("%w: no sdk configured", ErrUnavailable)
	}
	if b.probe != nil {
		if err := b.probe(ctx); err != nil {
			return nil, fmt.Errorf("%w: probe: %w", ErrUnavailable, err)
		}
	}
	if err := b.sdk.Init(ctx); err != nil {
		return nil, fmt.Errorf("%w: init: %w", ErrUnavailable, err)
	}

	built := make([]*sdkDevice, 0, len(b.specs))
	for i, spec := range b.specs {
		d, err := b.build(i, spec)
		if err != nil {
			if uerr := b.sdk.UnInit(); uerr != nil {
				b.logger.Warn("chromasdk uninit after failed build", "error", uerr)
			}
			return nil, err
		}
		built = append(built, d)
	}

	b.mu.Lock()
	b.devices = built
	b.mu.Unlock()

	out := make([]device.Device, len(built))
	for i, d := range built {
		out[i] = d.Device
	}
	return out, nil
}

// Uninitialize deletes the live effects and shuts the SDK down.
func (b *Backend) Uninitialize() error {
	b.mu.Lock()
	devices := b.devices
	b.devices = nil
	b.mu.Unlock()

	if devices == nil || b.sdk == nil {
		return nil
	}

	var errs []error
	for _, d := range devices {
		if err := d.release(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.sdk.UnInit(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadSpecialRules applies per-device detail level overrides from a
// *rules.Set. Other payloads are ignored.
func (b *Backend) LoadSpecialRules(r any) {
	set, ok := r.(*rules.Set)
	if !ok || set == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.devices {
		level, ok := set.Chroma.DetailFor(d.Name())
		if ok {
			d.SetPreferredDetailLevel(level)
		}
	}
}

func (b *Backend) build(i int, spec DeviceSpec) (*sdkDevice, error) {
	size := spec.Kind.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
	name := spec.Name
	if name == "" {
		name = fmt.Sprintf("%s-%d", spec.Kind, i)
	}
	cols, rows := spec.Kind.Grid()

	sd := &sdkDevice{sdk: b.sdk, kind: spec.Kind, packed: make([]uint32, size)}
	cfg := device.SurfaceConfig{
		Name:      name,
		Vendor:    device.VendorRazer,
		Type:      spec.Kind.DeviceType(),
		Fragments: device.Grid(spec.Origin, cols, rows),
		Profile:   spec.Profile,
		Detail:    spec.Detail,
		Present:   sd.present,
	}

	var err error
	if spec.Kind == KindKeyboard {
		sd.Device, err = device.NewKeyboard(cfg, nil)
	} else {
		sd.Device, err = device.NewSurface(cfg)
	}
	if err != nil {
		return nil, err
	}
	return sd, nil
}

// sdkDevice presents a surface as a custom SDK effect.
type sdkDevice struct {
	device.Device

	sdk  SDK
	kind DeviceKind

	mu     sync.Mutex
	packed []uint32
	prev   EffectID
}

// present creates a custom effect from colors, applies it and deletes the
// effect it replaces.
func (d *sdkDevice) present(colors []gg.RGBA) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.packed {
		if i < len(colors) {
			d.packed[i] = Pack(colors[i])
		} else {
			d.packed[i] = 0
		}
	}

	id, err := d.sdk.CreateEffect(d.kind, EffectCustom, d.packed)
	if err != nil {
		return fmt.Errorf("create %s effect: %w", d.kind, err)
	}
	if err := d.sdk.SetEffect(id); err != nil {
		_ = d.sdk.DeleteEffect(id)
		return fmt.Errorf("set %s effect: %w", d.kind, err)
	}
	if d.prev != "" {
		if err := d.sdk.DeleteEffect(d.prev); err != nil {
			d.prev = id
			return fmt.Errorf("delete %s effect: %w", d.kind, err)
		}
	}
	d.prev = id
	return nil
}

func (d *sdkDevice) release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.prev == "" {
		return nil
	}
	err := d.sdk.DeleteEffect(d.prev)
	d.prev = ""
	return err
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
