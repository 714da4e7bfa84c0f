package shader

import (
	"fmt"
	"reflect"

	"github.com/nerrad567/gray-logic-chroma/internal/condition"
	"github.com/nerrad567/gray-logic-chroma/internal/device"
)

// LayerCount is the number of shader layers. Layer 0 is drawn first and
// LayerCount-1 is on top.
const LayerCount = 11

// Selector holds the registered shaders in layers, fades them in and out,
// and builds the per detail level list of operations the compositor runs.
//
// Within a layer, a shader that becomes visible moves to the front, so the
// most recently activated effect composites first and, when opaque, wins.
//
// Selector is not safe for concurrent use; the engine serialises access.
type Selector struct {
	layers [LayerCount][]*ConditionalShader
	ops    [len(device.DetailLevels)][]Operation
}

// NewSelector creates an empty Selector.
func NewSelector() *Selector {
	return &Selector{}
}

// Register adds s to layer gated by cond. Registering a shader that is
// already registered replaces the earlier registration. The shader starts
// fully faded out.
//
// Parameters:
//   - s: shader; must be a comparable type (normally a pointer)
//   - cond: gating condition; nil is never active
//   - layer: 0..LayerCount-1
//
// Returns:
//   - error: ErrNilShader, ErrNotComparable or ErrInvalidLayer
func (sel *Selector) Register(s Shader, cond condition.Condition, layer int) error {
	if s == nil {
		return ErrNilShader
	}
	if !reflect.TypeOf(s).Comparable() {
		return fmt.Errorf("%w: %T", ErrNotComparable, s)
	}
	if layer < 0 || layer >= LayerCount {
		return fmt.Errorf("%w: %d", ErrInvalidLayer, layer)
	}

	sel.Unregister(s)
	sel.layers[layer] = append(sel.layers[layer], &ConditionalShader{shader: s, condition: cond})
	return nil
}

// Unregister removes s from whichever layer holds it. It reports whether
// the shader was registered.
func (sel *Selector) Unregister(s Shader) bool {
	if s == nil || !reflect.TypeOf(s).Comparable() {
		return false
	}
	for l := range sel.layers {
		for i, cs := range sel.layers[l] {
			if cs.shader == s {
				sel.layers[l] = append(sel.layers[l][:i], sel.layers[l][i+1:]...)
				sel.dropOperations(s)
				return true
			}
		}
	}
	return false
}

// dropOperations removes s from the cached operation lists so a render
// scheduled before Unregister never sees it.
func (sel *Selector) dropOperations(s Shader) {
	for lvl, ops := range sel.ops {
		kept := ops[:0:0]
		for _, op := range ops {
			if op.Shader != s {
				kept = append(kept, op)
			}
		}
		if len(kept) > 0 && len(kept) != len(ops) {
			kept[0].Blend = BlendNone
		}
		sel.ops[lvl] = kept
	}
}

// Len returns the number of registered shaders.
func (sel *Selector) Len() int {
	n := 0
	for _, layer := range sel.layers {
		n += len(layer)
	}
	return n
}

// Update advances fades by dt seconds, updates the shaders that can reach
// the output, and rebuilds the operation lists.
func (sel *Selector) Update(dt float64) {
	sel.updateVisibility(dt)
	sel.updateShaders(dt)
	for _, level := range device.DetailLevels {
		sel.ops[level] = sel.buildOperations(level)
	}
}

// Operations returns a copy of the last operation list built for level,
// ordered bottom to top.
func (sel *Selector) Operations(level device.DetailLevel) []Operation {
	if int(level) < 0 || int(level) >= len(sel.ops) {
		return nil
	}
	out := make([]Operation, len(sel.ops[level]))
	copy(out, sel.ops[level])
	return out
}

func (sel *Selector) updateVisibility(dt float64) {
	for l := range sel.layers {
		layer := sel.layers[l]
		for i := 0; i < len(layer); i++ {
			cs := layer[i]
			if cs.updateVisibility(dt) && i > 0 {
				copy(layer[1:i+1], layer[0:i])
				layer[0] = cs
			}
		}
	}
}

// updateShaders walks from the top layer down and stops below the first
// layer holding a visible shader that is opaque at any detail level. This
// check ignores the fade opacity, unlike buildOperations.
func (sel *Selector) updateShaders(dt float64) {
	for l := LayerCount - 1; l >= 0; l-- {
		occluding := false
		for _, cs := range sel.layers[l] {
			if !cs.IsVisible() {
				continue
			}
			cs.shader.Update(dt)
			if isOpaqueAnywhere(cs.shader) {
				occluding = true
			}
		}
		if occluding {
			return
		}
	}
}

// buildOperations collects visible shaders top-down and front-to-back until
// one is opaque at level and fully faded in, then reverses the list and
// makes its first entry the base layer.
func (sel *Selector) buildOperations(level device.DetailLevel) []Operation {
	var ops []Operation

collect:
	for l := LayerCount - 1; l >= 0; l-- {
		for _, cs := range sel.layers[l] {
			if !cs.IsVisible() {
				continue
			}
			transparent := cs.shader.IsTransparent(level)
			blend := BlendGlobalOpacity
			if transparent {
				blend = BlendPerPixelOpacity
			}
			ops = append(ops, Operation{
				Shader:  cs.shader,
				Blend:   blend,
				Level:   level,
				Opacity: cs.opacity,
			})
			if !transparent && cs.opacity >= 1 {
				break collect
			}
		}
	}

	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
	if len(ops) > 0 {
		ops[0].Blend = BlendNone
	}
	return ops
}

// ShaderInfo is a diagnostic snapshot of one registered shader.
type ShaderInfo struct {
	Name    string  `json:"name"`
	Opacity float64 `json:"opacity"`
	Active  bool    `json:"active"`
	Visible bool    `json:"visible"`
}

// LayerInfo is a diagnostic snapshot of one layer.
type LayerInfo struct {
	Index   int          `json:"index"`
	Shaders []ShaderInfo `json:"shaders"`
}

// Layers returns a snapshot of every non-empty layer in ascending order.
func (sel *Selector) Layers() []LayerInfo {
	var out []LayerInfo
	for l, layer := range sel.layers {
		if len(layer) == 0 {
			continue
		}
		info := LayerInfo{Index: l, Shaders: make([]ShaderInfo, 0, len(layer))}
		for _, cs := range layer {
			info.Shaders = append(info.Shaders, ShaderInfo{
				Name:    NameOf(cs.shader),
				Opacity: cs.opacity,
				Active:  cs.active,
				Visible: cs.IsVisible(),
			})
		}
		out = append(out, info)
	}
	return out
}

// NameOf returns the diagnostic name of s.
func NameOf(s Shader) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}
