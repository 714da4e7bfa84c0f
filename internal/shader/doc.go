// Package shader provides lighting effects and the selector that decides
// which of them reach each device.
//
// Shaders are registered into one of 11 layers with a gating condition. Each
// tick the Selector fades every shader toward its condition, updates the
// shaders that are not hidden behind an opaque one, and builds for each
// detail level the bottom-to-top list of operations the compositor runs.
//
// # Tick order
//
//  1. Visibility: refresh conditions, move opacity by dt, promote newly
//     visible shaders to the front of their layer.
//  2. Shader update: top layer down, stop below the first layer with a
//     visible shader opaque at any detail level.
//  3. Operation lists: top layer down, front to back, stop after a shader
//     that is opaque at the level and fully faded in; reverse; the first
//     entry becomes the base layer (BlendNone).
//
// # Built-in shaders
//
//   - Solid, Gradient: opaque fills
//   - Wave: HSL rainbow sweep along the grid X axis
//   - Pulse: breathing colour with per-fragment alpha
//   - KeyHighlight: lights pressed keys on keyboards
package shader
