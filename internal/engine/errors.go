package engine

import "errors"

// Domain errors for the engine package.
var (
	// ErrGroupNotFound is returned when a device group name is not registered.
	ErrGroupNotFound = errors.New("engine: device group not found")

	// ErrUpdateFailed wraps a failure in the update half of a tick.
	ErrUpdateFailed = errors.New("engine: update failed")

	// ErrRenderFailed wraps a failure in the render pass.
	ErrRenderFailed = errors.New("engine: render failed")

	// ErrPanic marks an error recovered from a panic.
	ErrPanic = errors.New("engine: panic")
)
