// Package api implements the HTTP diagnostics server for the Chroma daemon.
//
// This package provides:
//   - Group status and enable/disable endpoints
//   - Engine statistics, snapshot and debug overlay text
//   - Key press/release injection for hotkey-driven effects
//   - Application state flags
//   - Lifecycle journal queries
//   - A WebSocket feed of group lifecycle events
//
// # Graceful Degradation
//
// The journal and state flags are optional. Their endpoints answer 503
// when the daemon runs without a database or without MQTT.
package api
