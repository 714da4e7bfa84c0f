// Package serialstrip provides a device group for an addressable LED strip
// behind a USB serial adapter.
//
// The strip is driven with Adalight frames: the magic "Ada", the LED count
// minus one as a big-endian 16-bit value, a checksum of those two bytes
// XOR 0x55, then one R,G,B triple per LED. Arduino and ESP sketches for
// WS2812 strips commonly speak this format.
package serialstrip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gogpu/gg"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
	"github.com/nerrad567/gray-logic-chroma/internal/rules"
)

// Domain errors for the serialstrip package.
var (
	// ErrPortNotFound is returned when no serial port matches the configured VID/PID.
	ErrPortNotFound = errors.New("serialstrip: port not found")

	// ErrUnavailable is returned when the port cannot be opened.
	ErrUnavailable = errors.New("serialstrip: strip unavailable")

	// ErrWriteFailed is returned when a frame cannot be written.
	ErrWriteFailed = errors.New("serialstrip: write failed")
)

// DefaultBaudRate is the Adalight default.
const DefaultBaudRate = 115200

// Port is the part of a serial port used by the backend. serial.Port
// satisfies it.
type Port interface {
	io.Writer
	Close() error
}

// Opener opens a serial port.
type Opener func(name string, baudRate int) (Port, error)

// Lister enumerates serial ports.
type Lister func() ([]*enumerator.PortDetails, error)

// Config configures a Backend.
type Config struct {
	// Name of the single strip device.
	Name string

	// Port is the device path, e.g. /dev/ttyUSB0. Empty selects the first
	// USB port whose VID and PID match.
	Port string
	VID  string
	PID  string

	BaudRate int
	LEDs     int
	Origin   device.Fragment
	Detail   device.DetailLevel
	Profile  device.ColorProfile

	// Open and List default to go.bug.st/serial.
	Open Opener
	List Lister

	// Logger receives adapter diagnostics. Nil disables logging.
	Logger device.Logger
}

// Backend is the device.Backend of a serial LED strip.
//
// Thread Safety: all methods are safe for concurrent use.
type Backend struct {
	cfg    Config
	logger device.Logger

	mu         sync.Mutex
	port       Port
	portName   string
	brightness float64
	reverse    bool
	frame      []byte
}

// NewBackend creates a Backend.
func NewBackend(cfg Config) *Backend {
	if cfg.Name == "" {
		cfg.Name = "strip"
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Open == nil {
		cfg.Open = openSerial
	}
	if cfg.List == nil {
		cfg.List = enumerator.GetDetailedPortsList
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &Backend{cfg: cfg, logger: logger}
}

// Initialize finds and opens the port and builds the strip device.
func (b *Backend) Initialize(_ context.Context) ([]device.Device, error) {
	name, err := b.resolvePort()
	if err != nil {
		return nil, err
	}
	port, err := b.cfg.Open(name, b.cfg.BaudRate)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrUnavailable, name, err)
	}

	strip, err := device.NewSurface(device.SurfaceConfig{
		Name:      b.cfg.Name,
		Vendor:    device.VendorAdalight,
		Type:      device.TypeAccessory,
		Fragments: device.Strip(b.cfg.Origin, b.cfg.LEDs),
		Profile:   b.cfg.Profile,
		Detail:    b.cfg.Detail,
		Present:   b.present,
	})
	if err != nil {
		_ = port.Close()
		return nil, err
	}

	b.mu.Lock()
	b.port = port
	b.portName = name
	b.mu.Unlock()

	b.logger.Info("serial strip opened", "port", name, "leds", b.cfg.LEDs, "baud_rate", b.cfg.BaudRate)
	return []device.Device{strip}, nil
}

// Uninitialize blanks the strip and closes the port.
func (b *Backend) Uninitialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port == nil {
		return nil
	}

	blank := Frame(make([]gg.RGBA, b.cfg.LEDs), 1, false)
	if _, err := b.port.Write(blank); err != nil {
		b.logger.Debug("blanking serial strip failed", "port", b.portName, "error", err)
	}
	err := b.port.Close()
	b.port = nil
	b.frame = nil
	return err
}

// LoadSpecialRules applies the serial section of a *rules.Set. Other
// payloads are ignored.
func (b *Backend) LoadSpecialRules(r any) {
	set, ok := r.(*rules.Set)
	if !ok || set == nil {
		return
	}
	b.mu.Lock()
	b.brightness = set.Serial.Brightness
	b.reverse = set.Serial.Reverse
	b.mu.Unlock()
}

// PortName returns the opened port, or "" when not initialised.
func (b *Backend) PortName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.portName
}

func (b *Backend) present(colors []gg.RGBA) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port == nil {
		return fmt.Errorf("%w: port closed", ErrWriteFailed)
	}

	b.frame = AppendFrame(b.frame[:0], colors, b.brightness, b.reverse)
	if _, err := b.port.Write(b.frame); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, b.portName, err)
	}
	return nil
}

func (b *Backend) resolvePort() (string, error) {
	if b.cfg.Port != "" {
		return b.cfg.Port, nil
	}

	ports, err := b.cfg.List()
	if err != nil {
		return "", fmt.Errorf("%w: listing ports: %w", ErrUnavailable, err)
	}
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if strings.EqualFold(p.VID, b.cfg.VID) && strings.EqualFold(p.PID, b.cfg.PID) {
			b.logger.Debug("found serial strip", "port", p.Name, "vid", p.VID, "pid", p.PID)
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("%w: %w: vid %s pid %s", ErrUnavailable, ErrPortNotFound, b.cfg.VID, b.cfg.PID)
}

// Frame encodes colours as one Adalight frame.
//
// Parameters:
//   - colors: one colour per LED
//   - brightness: scale applied to every channel; values <= 0 mean 1
//   - reverse: send the LEDs last to first
//
// Returns:
//   - []byte: header followed by len(colors) RGB triples
func Frame(colors []gg.RGBA, brightness float64, reverse bool) []byte {
	return AppendFrame(nil, colors, brightness, reverse)
}

// AppendFrame appends an Adalight frame to dst and returns the extended slice.
func AppendFrame(dst []byte, colors []gg.RGBA, brightness float64, reverse bool) []byte {
	if brightness <= 0 {
		brightness = 1
	}
	n := len(colors) - 1
	if n < 0 {
		n = 0
	}
	hi, lo := byte(n>>8), byte(n)
	dst = append(dst, 'A', 'd', 'a', hi, lo, hi^lo^0x55)

	for i := range colors {
		c := colors[i]
		if reverse {
			c = colors[len(colors)-1-i]
		}
		r, g, bl := device.Pack8(gg.RGBA{R: c.R * brightness, G: c.G * brightness, B: c.B * brightness, A: 1})
		dst = append(dst, r, g, bl)
	}
	return dst
}

func openSerial(name string, baudRate int) (Port, error) {
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
