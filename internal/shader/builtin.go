package shader

import (
	"math"

	"github.com/gogpu/gg"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
)

// Solid paints every fragment one opaque colour.
type Solid struct {
	Color gg.RGBA
}

// NewSolid creates a Solid shader.
func NewSolid(c gg.RGBA) *Solid { return &Solid{Color: c} }

func (s *Solid) Name() string                          { return "solid" }
func (s *Solid) Update(float64)                        {}
func (s *Solid) IsTransparent(device.DetailLevel) bool { return false }

func (s *Solid) Process(f *Frame) {
	c := s.Color
	c.A = 1
	for i := range f.Colors {
		f.Colors[i] = c
	}
}

// Gradient blends vertically from Top to Bottom across each device.
type Gradient struct {
	Top    gg.RGBA
	Bottom gg.RGBA
}

// NewGradient creates a Gradient shader.
func NewGradient(top, bottom gg.RGBA) *Gradient { return &Gradient{Top: top, Bottom: bottom} }

func (g *Gradient) Name() string                          { return "gradient" }
func (g *Gradient) Update(float64)                        {}
func (g *Gradient) IsTransparent(device.DetailLevel) bool { return false }

func (g *Gradient) Process(f *Frame) {
	minF, maxF := device.Bounds(f.Fragments)
	span := float64(maxF.Y - minF.Y)
	for i, frag := range f.Fragments {
		t := 0.0
		if span > 0 {
			t = float64(frag.Y-minF.Y) / span
		}
		c := g.Top.Lerp(g.Bottom, t)
		c.A = 1
		f.Colors[i] = c
	}
}

// Pulse breathes a colour in and out. Its alpha follows a sine wave, so it
// is transparent at every level.
type Pulse struct {
	Color  gg.RGBA
	Period float64

	phase float64
}

// NewPulse creates a Pulse with the given period in seconds.
func NewPulse(c gg.RGBA, period float64) *Pulse {
	if period <= 0 {
		period = 1
	}
	return &Pulse{Color: c, Period: period}
}

func (p *Pulse) Name() string                          { return "pulse" }
func (p *Pulse) IsTransparent(device.DetailLevel) bool { return true }

// Update advances the pulse phase.
func (p *Pulse) Update(dt float64) {
	p.phase = math.Mod(p.phase+dt/p.Period, 1)
}

// Alpha returns the current pulse alpha in [0, 1].
func (p *Pulse) Alpha() float64 {
	return 0.5 - 0.5*math.Cos(2*math.Pi*p.phase)
}

func (p *Pulse) Process(f *Frame) {
	c := p.Color
	c.A = p.Alpha()
	for i := range f.Colors {
		f.Colors[i] = c
	}
}

// Wave sweeps a rainbow across the X axis of the lighting grid.
type Wave struct {
	// Speed is the hue shift in degrees per second.
	Speed float64
	// Spread is the hue shift in degrees per grid column.
	Spread float64
	// Saturation and Lightness of the generated colours.
	Saturation float64
	Lightness  float64

	hue float64
}

// NewWave creates a Wave with full saturation and half lightness.
func NewWave(speed, spread float64) *Wave {
	return &Wave{Speed: speed, Spread: spread, Saturation: 1, Lightness: 0.5}
}

func (w *Wave) Name() string { return "wave" }

// IsTransparent reports false; at low detail the whole device takes the
// colour of its first column.
func (w *Wave) IsTransparent(device.DetailLevel) bool { return false }

// Update advances the base hue.
func (w *Wave) Update(dt float64) {
	w.hue = math.Mod(w.hue+w.Speed*dt, 360)
}

func (w *Wave) Process(f *Frame) {
	if f.Level == device.DetailLow {
		minF, _ := device.Bounds(f.Fragments)
		c := gg.HSL(w.hue+w.Spread*float64(minF.X), w.Saturation, w.Lightness)
		for i := range f.Colors {
			f.Colors[i] = c
		}
		return
	}
	for i, frag := range f.Fragments {
		f.Colors[i] = gg.HSL(w.hue+w.Spread*float64(frag.X), w.Saturation, w.Lightness)
	}
}

// KeyHighlight lights the fragments of currently pressed keys and leaves the
// rest transparent. Devices without a key map are left untouched.
type KeyHighlight struct {
	Color gg.RGBA
	Keys  func() []device.Key
}

// NewKeyHighlight creates a KeyHighlight reading pressed keys from keys.
func NewKeyHighlight(c gg.RGBA, keys func() []device.Key) *KeyHighlight {
	return &KeyHighlight{Color: c, Keys: keys}
}

func (k *KeyHighlight) Name() string                          { return "key_highlight" }
func (k *KeyHighlight) Update(float64)                        {}
func (k *KeyHighlight) IsTransparent(device.DetailLevel) bool { return true }

func (k *KeyHighlight) Process(f *Frame) {
	for i := range f.Colors {
		f.Colors[i] = gg.Transparent
	}
	mapper, ok := f.Device.(device.KeyMapper)
	if !ok || k.Keys == nil {
		return
	}
	c := k.Color
	c.A = 1
	for _, key := range k.Keys() {
		if idx, ok := mapper.KeyIndex(key); ok && idx < len(f.Colors) {
			f.Colors[idx] = c
		}
	}
}
