package chromasdk

import (
	"context"
	"fmt"

	"github.com/gogpu/gg"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
)

// EffectID identifies an effect created in the vendor SDK.
type EffectID string

// EffectKind selects the SDK effect type. Only custom colour grids are used.
type EffectKind string

// Effect kinds.
const (
	EffectCustom EffectKind = "CHROMA_CUSTOM"
	EffectNone   EffectKind = "CHROMA_NONE"
)

// DeviceKind is a device category of the vendor SDK. Each kind has a fixed
// colour array size.
type DeviceKind string

// Device kinds.
const (
	KindKeyboard   DeviceKind = "keyboard"
	KindMouse      DeviceKind = "mouse"
	KindHeadset    DeviceKind = "headset"
	KindMousepad   DeviceKind = "mousepad"
	KindKeypad     DeviceKind = "keypad"
	KindChromaLink DeviceKind = "chromalink"
)

// AllKinds lists every device kind.
var AllKinds = []DeviceKind{KindKeyboard, KindMouse, KindHeadset, KindMousepad, KindKeypad, KindChromaLink}

// Grid returns the colour array shape of the kind. Strips have one row.
func (k DeviceKind) Grid() (cols, rows int) {
	switch k {
	case KindKeyboard:
		return device.KeyboardColumns, device.KeyboardRows
	case KindMouse:
		return device.MouseColumns, device.MouseRows
	case KindKeypad:
		return device.KeypadColumns, device.KeypadRows
	case KindHeadset:
		return device.HeadsetLEDs, 1
	case KindMousepad:
		return device.MousepadLEDs, 1
	case KindChromaLink:
		return device.ChromaLinkLEDs, 1
	default:
		return 0, 0
	}
}

// Size returns the colour array length of the kind.
func (k DeviceKind) Size() int {
	cols, rows := k.Grid()
	return cols * rows
}

// DeviceType returns the device.Type for the kind.
func (k DeviceKind) DeviceType() device.Type {
	switch k {
	case KindKeyboard:
		return device.TypeKeyboard
	case KindMouse:
		return device.TypeMouse
	case KindHeadset:
		return device.TypeHeadset
	case KindMousepad:
		return device.TypeMousepad
	case KindKeypad:
		return device.TypeKeypad
	case KindChromaLink:
		return device.TypeChromaLink
	default:
		return device.TypeAccessory
	}
}

// ParseDeviceKind validates s as a DeviceKind.
func ParseDeviceKind(s string) (DeviceKind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// SDK is the native capability surface of the vendor.
//
// Colours are packed as 0x00BBGGRR with len(colors) == kind.Size().
type SDK interface {
	Init(ctx context.Context) error
	UnInit() error
	CreateEffect(kind DeviceKind, effect EffectKind, colors []uint32) (EffectID, error)
	DeleteEffect(id EffectID) error
	SetEffect(id EffectID) error
}

// Probe checks that the vendor runtime is installed and reachable before the
// SDK is initialised.
type Probe func(ctx context.Context) error

// ResultError is a non-zero result code returned by the SDK.
type ResultError struct {
	Op   string
	Code int
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("chromasdk: %s returned result %d", e.Op, e.Code)
}

// Pack converts a colour into the SDK's 0x00BBGGRR layout.
func Pack(c gg.RGBA) uint32 {
	r, g, b := device.Pack8(c)
	return uint32(b)<<16 | uint32(g)<<8 | uint32(r)
}

// Unpack converts a 0x00BBGGRR value back into a colour.
func Unpack(v uint32) gg.RGBA {
	return gg.RGB(
		float64(v&0xFF)/255,
		float64((v>>8)&0xFF)/255,
		float64((v>>16)&0xFF)/255,
	)
}
