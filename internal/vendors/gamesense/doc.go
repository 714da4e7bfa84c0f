// Package gamesense provides the protocol-backed device group.
//
// Devices are driven by sending JSON documents to the vendor engine: a
// registration binding one event per device to its zones, then one event per
// frame carrying a frame map of zone (or key name) to colour.
//
// Two transports are provided:
//   - WebSocketTransport talks to a relay directly and reconnects with
//     exponential backoff.
//   - MQTTTransport publishes to chroma/gamesense/<game>/{register,event}
//     and follows the relay's retained status announcement.
//
// To bound the event rate, keyboards and devices marked critical are sent
// every tick and the remaining devices are spread over StaggerGroups ticks.
// While the transport is inactive frames are dropped; the backend
// re-registers when it becomes active again.
package gamesense
