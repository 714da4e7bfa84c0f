// Package chromasdk provides the native-SDK-backed device group.
//
// The vendor SDK is reached through the small SDK capability surface:
// initialise, create a custom effect from a fixed-size packed colour array,
// apply it, delete it. Array sizes are fixed per device kind (keyboard 22x6,
// mouse 9x7, keypad 5x4, headset 5, mousepad 15, chroma link 5).
//
// Initialize runs a Probe first so a missing vendor runtime leaves the group
// unavailable instead of failing the host. Each Present packs the device
// colours as 0x00BBGGRR, creates and applies a custom effect, then deletes the
// effect it replaced.
//
// RESTSDK implements SDK over the vendor's local REST endpoint and keeps the
// session alive with a heartbeat.
package chromasdk
