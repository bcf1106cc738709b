package output

import "errors"

// Sentinel errors for common error conditions.
var (
	// ErrInvalidConfig is returned when the configuration does not validate.
	ErrInvalidConfig = errors.New("output: invalid configuration")

	// ErrNotOpen is returned when an operation requires an open stream.
	ErrNotOpen = errors.New("output: not open")

	// ErrAlreadyOpen is returned when Open is called on an open stream.
	ErrAlreadyOpen = errors.New("output: already open")

	// ErrBound is returned when Bind is called twice without Unbind.
	ErrBound = errors.New("output: already bound")

	// ErrNotBound is returned when Unbind is called without a prior Bind.
	ErrNotBound = errors.New("output: not bound")

	// ErrOpenStream is returned when Unbind is called while the stream
	// is still open.
	ErrOpenStream = errors.New("output: stream still open")
)
