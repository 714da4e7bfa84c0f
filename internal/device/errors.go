package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrNotInitialized) {
//	    // group session is gone
//	}
var (
	// ErrNotInitialized is returned when a device or group is used without a live session.
	ErrNotInitialized = errors.New("device: not initialised")

	// ErrInvalidLayout is returned when a fragment layout is empty or malformed.
	ErrInvalidLayout = errors.New("device: invalid layout")

	// ErrBufferSize is returned when a colour buffer does not match the LED count.
	ErrBufferSize = errors.New("device: colour buffer size mismatch")

	// ErrPresentFailed is returned when pushing colours to a device fails.
	ErrPresentFailed = errors.New("device: present failed")

	// ErrBackendPanic wraps a panic recovered from a backend's Initialize or
	// Uninitialize.
	ErrBackendPanic = errors.New("device: backend panicked")
)
