package gamesense

import "errors"

// Domain errors for the gamesense package.
var (
	// ErrUnavailable is returned when the vendor engine cannot be reached during Initialize.
	ErrUnavailable = errors.New("gamesense: engine unavailable")

	// ErrNotConnected is returned when sending on an inactive transport.
	ErrNotConnected = errors.New("gamesense: transport not connected")

	// ErrSendFailed is returned when an event or registration cannot be delivered.
	ErrSendFailed = errors.New("gamesense: send failed")

	// ErrNoTransport is returned when a Backend is created without a Transport.
	ErrNoTransport = errors.New("gamesense: no transport configured")
)
