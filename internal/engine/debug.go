package engine

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
	"github.com/nerrad567/gray-logic-chroma/internal/shader"
)

// Position is a point on the host's overlay surface.
type Position struct {
	X float64
	Y float64
}

// Drawer renders diagnostic text for DebugDraw.
type Drawer interface {
	DrawText(text string, at Position, scale float64)
}

// debugLineHeight is the unscaled spacing between overlay lines.
const debugLineHeight = 16

// GroupStatus describes one registered device group.
type GroupStatus struct {
	Name    string       `json:"name"`
	Enabled bool         `json:"enabled"`
	Devices []DeviceInfo `json:"devices"`
}

// DeviceInfo describes one live device.
type DeviceInfo struct {
	Name   string `json:"name"`
	Vendor string `json:"vendor"`
	Type   string `json:"type"`
	LEDs   int    `json:"leds"`
	Detail string `json:"detail"`
}

// OperationInfo describes one entry of an operation list.
type OperationInfo struct {
	Shader  string  `json:"shader"`
	Blend   string  `json:"blend"`
	Opacity float64 `json:"opacity"`
}

// Snapshot is a consistent view of the engine for diagnostics.
type Snapshot struct {
	Groups     []GroupStatus              `json:"groups"`
	Layers     []shader.LayerInfo         `json:"layers"`
	Operations map[string][]OperationInfo `json:"operations"`
	Hotkeys    []string                   `json:"hotkeys"`
	Stats      Stats                      `json:"stats"`
}

// Snapshot returns the current groups, layers and operation lists.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Layers:     e.selector.Layers(),
		Operations: make(map[string][]OperationInfo, len(device.DetailLevels)),
		Hotkeys:    e.hotkeys.Names(),
	}
	for _, name := range e.namesLocked() {
		g := e.groups[name]
		gs := GroupStatus{Name: name, Enabled: g.IsEnabled(), Devices: []DeviceInfo{}}
		for _, d := range g.Devices() {
			gs.Devices = append(gs.Devices, DeviceInfo{
				Name:   d.Name(),
				Vendor: string(d.Vendor()),
				Type:   string(d.Type()),
				LEDs:   d.LEDCount(),
				Detail: d.PreferredDetailLevel().String(),
			})
		}
		snap.Groups = append(snap.Groups, gs)
	}
	for _, level := range device.DetailLevels {
		ops := e.selector.Operations(level)
		infos := make([]OperationInfo, 0, len(ops))
		for _, op := range ops {
			infos = append(infos, OperationInfo{
				Shader:  shader.NameOf(op.Shader),
				Blend:   op.Blend.String(),
				Opacity: op.Opacity,
			})
		}
		snap.Operations[level.String()] = infos
	}
	snap.Stats = e.Stats()
	return snap
}

// Lines renders the snapshot as overlay text.
func (s Snapshot) Lines() []string {
	lines := []string{fmt.Sprintf("chroma: %d groups, %d renders, %d skipped, %d failures",
		len(s.Groups), s.Stats.Renders, s.Stats.Skipped, s.Stats.Failures)}
	for _, g := range s.Groups {
		state := "off"
		if g.Enabled {
			state = "on"
		}
		lines = append(lines, fmt.Sprintf("  %s [%s] %d devices", g.Name, state, len(g.Devices)))
	}
	for _, level := range device.DetailLevels {
		ops := s.Operations[level.String()]
		parts := make([]string, 0, len(ops))
		for _, op := range ops {
			parts = append(parts, fmt.Sprintf("%s(%s %.2f)", op.Shader, op.Blend, op.Opacity))
		}
		lines = append(lines, fmt.Sprintf("  %s: %s", level, strings.Join(parts, " > ")))
	}
	if s.Stats.LastError != "" {
		first, _, _ := strings.Cut(s.Stats.LastError, "\n")
		lines = append(lines, "  last error: "+first)
	}
	return lines
}

// DebugDraw writes the diagnostic overlay through d, one line per call,
// starting at at and spaced by scale.
func (e *Engine) DebugDraw(d Drawer, at Position, scale float64) {
	if d == nil {
		return
	}
	if scale <= 0 {
		scale = 1
	}
	for i, line := range e.Snapshot().Lines() {
		d.DrawText(line, Position{X: at.X, Y: at.Y + float64(i)*debugLineHeight*scale}, scale)
	}
}
