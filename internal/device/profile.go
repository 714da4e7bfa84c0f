package device

import (
	"math"

	"github.com/gogpu/gg"
)

// ColorProfile corrects colours for a specific LED hardware revision.
//
// Each channel is scaled by its gain and then raised to Gamma. Vendors whose
// LEDs skew blue or render mid-tones too bright ship a non-identity profile.
type ColorProfile struct {
	RedGain   float64 `yaml:"red_gain" json:"red_gain"`
	GreenGain float64 `yaml:"green_gain" json:"green_gain"`
	BlueGain  float64 `yaml:"blue_gain" json:"blue_gain"`
	Gamma     float64 `yaml:"gamma" json:"gamma"`
}

// IdentityProfile returns a profile that leaves colours unchanged.
func IdentityProfile() ColorProfile {
	return ColorProfile{RedGain: 1, GreenGain: 1, BlueGain: 1, Gamma: 1}
}

// IsZero reports whether p is the zero value (unset).
func (p ColorProfile) IsZero() bool {
	return p == ColorProfile{}
}

// Apply returns c corrected by the profile, clamped to [0, 1] and fully opaque.
func (p ColorProfile) Apply(c gg.RGBA) gg.RGBA {
	gamma := p.Gamma
	if gamma <= 0 {
		gamma = 1
	}
	return gg.RGB(
		correct(c.R, p.RedGain, gamma),
		correct(c.G, p.GreenGain, gamma),
		correct(c.B, p.BlueGain, gamma),
	)
}

func correct(v, gain, gamma float64) float64 {
	v = clamp01(v * gain)
	if gamma != 1 {
		v = math.Pow(v, gamma)
	}
	return v
}

func clamp01(v float64) float64 {
	switch {
	case v < 0, math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Pack8 converts a colour into 8-bit channels, clamping out-of-range values.
func Pack8(c gg.RGBA) (r, g, b uint8) {
	return to8(c.R), to8(c.G), to8(c.B)
}

func to8(v float64) uint8 {
	return uint8(math.Round(clamp01(v) * 255))
}
