package chromasdk

import "errors"

// Domain errors for the chromasdk package.
var (
	// ErrUnavailable is returned when the vendor runtime is missing or refuses to initialise.
	ErrUnavailable = errors.New("chromasdk: vendor sdk unavailable")

	// ErrUnknownKind is returned for an unrecognised device kind.
	ErrUnknownKind = errors.New("chromasdk: unknown device kind")

	// ErrNoSession is returned by RESTSDK calls made before Init.
	ErrNoSession = errors.New("chromasdk: no session")

	// ErrRequestFailed is returned when the REST endpoint answers with an error.
	ErrRequestFailed = errors.New("chromasdk: request failed")
)
