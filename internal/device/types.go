package device

import "fmt"

// Vendor identifies the SDK or protocol family a device belongs to.
type Vendor string

// Known vendors.
const (
	VendorRazer       Vendor = "razer"
	VendorSteelSeries Vendor = "steelseries"
	VendorAdalight    Vendor = "adalight"
	VendorVirtual     Vendor = "virtual"
)

// Type classifies a device by form factor.
type Type string

// Device types.
const (
	TypeKeyboard   Type = "keyboard"
	TypeMouse      Type = "mouse"
	TypeHeadset    Type = "headset"
	TypeMousepad   Type = "mousepad"
	TypeKeypad     Type = "keypad"
	TypeAccessory  Type = "accessory"
	TypeChromaLink Type = "chroma_link"
)

// DetailLevel selects how much work a shader does for a device.
// Devices with few LEDs prefer Low; per-key keyboards prefer High.
type DetailLevel int

// Detail levels, processed in this order by the engine.
const (
	DetailLow DetailLevel = iota
	DetailHigh
)

// DetailLevels lists every detail level in processing order.
var DetailLevels = [...]DetailLevel{DetailLow, DetailHigh}

// String returns the lowercase name of the level.
func (l DetailLevel) String() string {
	switch l {
	case DetailLow:
		return "low"
	case DetailHigh:
		return "high"
	default:
		return fmt.Sprintf("detail(%d)", int(l))
	}
}

// ParseDetailLevel converts "low"/"high" into a DetailLevel.
func ParseDetailLevel(s string) (DetailLevel, error) {
	switch s {
	case "low":
		return DetailLow, nil
	case "high", "":
		return DetailHigh, nil
	default:
		return DetailHigh, fmt.Errorf("unknown detail level %q", s)
	}
}

// Fragment is one logical light position on the shared lighting grid.
// X grows to the right, Y grows downward.
type Fragment struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Key names a physical key, e.g. "A", "Space", "F1".
type Key string
