// Package device provides the light-addressable device model for Gray Logic Chroma.
//
// A Device is one physical RGB surface (keyboard, mouse, headset, mousepad,
// keypad or a generic accessory zone). It exposes an ordered set of
// fragments (logical light positions on a shared grid), a colour buffer with
// one entry per fragment, a preferred detail level, and Present() which
// pushes the buffer to hardware or to a vendor protocol.
//
// Devices are owned by a device group. A group wraps one vendor's session
// (native SDK handle, socket connection, serial port) and exposes its devices
// only while it is both enabled and initialised.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                     Group (group.go)                         │
//	│  Enable/Disable ──▶ Lifecycle ──▶ Backend.Initialize         │
//	│                        │              Backend.Uninitialize   │
//	│                        ▼                                     │
//	│              ┌──────────────────┐                            │
//	│              │  []Device        │  Surface (surface.go)      │
//	│              │  Keyboard        │  Keyboard (keyboard.go)    │
//	│              └──────────────────┘                            │
//	└──────────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Device: engine-facing contract for one surface
//   - Surface: reusable base carrying fragments, buffer, detail level, profile
//   - Keyboard: Surface plus a key to fragment index map
//   - Group: engine-facing contract for a vendor group
//   - Lifecycle: Group implementation over a vendor Backend
//   - SpecialRulesLoader, BatchFlusher: optional group capabilities
//
// # Thread Safety
//
// Lifecycle is safe for concurrent use. Surface buffers are written by the
// render goroutine only; the engine serialises renders with registry changes.
package device
