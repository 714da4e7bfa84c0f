package shader

import "errors"

// Domain errors for the shader package.
var (
	// ErrInvalidLayer is returned when a layer index is outside 0..LayerCount-1.
	ErrInvalidLayer = errors.New("shader: invalid layer")

	// ErrNilShader is returned when registering a nil shader.
	ErrNilShader = errors.New("shader: nil shader")

	// ErrNotComparable is returned for shaders whose type cannot be compared
	// for identity (e.g. a struct value holding a slice).
	ErrNotComparable = errors.New("shader: shader type is not comparable")
)
