package shader

import (
	"github.com/gogpu/gg"

	"github.com/nerrad567/gray-logic-chroma/internal/condition"
	"github.com/nerrad567/gray-logic-chroma/internal/device"
)

// Shader is a stateful lighting effect.
//
// Update advances the effect's own clock and is only called while the shader
// is visible and not occluded. Process fills frame.Colors for one device.
// IsTransparent reports whether the shader leaves per-fragment alpha below 1
// at the given detail level.
//
// Shaders are identified by value equality, so implementations should be
// pointer types.
type Shader interface {
	Update(dt float64)
	IsTransparent(level device.DetailLevel) bool
	Process(frame *Frame)
}

// Named is implemented by shaders that report a diagnostic name.
type Named interface {
	Name() string
}

// Frame is the per-device input and output of Shader.Process.
type Frame struct {
	// Device being rendered.
	Device device.Device

	// Fragments of Device, in buffer order.
	Fragments []device.Fragment

	// Level is the detail level of this pass.
	Level device.DetailLevel

	// Time is the engine time of the last accepted tick, in seconds.
	Time float64

	// Colors receives one colour per fragment. It starts transparent.
	Colors []gg.RGBA
}

// BlendState tells the compositor how an operation combines with what is
// already in the device buffer.
type BlendState int

// Blend states.
const (
	// BlendNone writes the shader output as the base layer.
	BlendNone BlendState = iota

	// BlendGlobalOpacity mixes the output over the buffer by the fade opacity.
	BlendGlobalOpacity

	// BlendPerPixelOpacity mixes by the shader's per-fragment alpha times
	// the fade opacity.
	BlendPerPixelOpacity
)

// String returns the blend state name.
func (b BlendState) String() string {
	switch b {
	case BlendNone:
		return "none"
	case BlendGlobalOpacity:
		return "global_opacity"
	case BlendPerPixelOpacity:
		return "per_pixel_opacity"
	default:
		return "unknown"
	}
}

// Operation is one compositing step for a detail level.
type Operation struct {
	Shader  Shader
	Blend   BlendState
	Level   device.DetailLevel
	Opacity float64
}

// ConditionalShader is a registered shader with its gating condition and
// fade opacity.
type ConditionalShader struct {
	shader    Shader
	condition condition.Condition
	opacity   float64
	active    bool
}

// Shader returns the wrapped shader.
func (c *ConditionalShader) Shader() Shader { return c.shader }

// Opacity returns the fade opacity in [0, 1].
func (c *ConditionalShader) Opacity() float64 { return c.opacity }

// IsActive returns the condition value seen on the last update.
func (c *ConditionalShader) IsActive() bool { return c.active }

// IsVisible reports whether the shader contributes to output.
func (c *ConditionalShader) IsVisible() bool { return c.opacity > 0 }

// updateVisibility refreshes the condition and moves opacity by dt toward
// 1 when active, toward 0 otherwise. It reports whether the shader just
// became visible.
func (c *ConditionalShader) updateVisibility(dt float64) bool {
	wasVisible := c.IsVisible()
	c.active = c.condition != nil && c.condition.IsActive()
	if c.active {
		c.opacity = min(1, c.opacity+dt)
	} else {
		c.opacity = max(0, c.opacity-dt)
	}
	return !wasVisible && c.IsVisible()
}

// isOpaqueAnywhere reports whether s is opaque at any detail level.
func isOpaqueAnywhere(s Shader) bool {
	for _, level := range device.DetailLevels {
		if !s.IsTransparent(level) {
			return true
		}
	}
	return false
}
