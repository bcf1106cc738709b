// Package codec provides streaming audio encoders for the snapcast output.
//
// An Encoder consumes raw PCM via Write and yields container-framed bytes
// via Read. Immediately after Open, a single Read yields the codec header
// (the bytes a client must receive before any audio). Encoders are not safe
// for concurrent use; all methods are called from one producer goroutine.
package codec

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrUnknownCodec is returned when the requested encoder name is not registered.
	ErrUnknownCodec = errors.New("codec: unknown codec")

	// ErrClosed is returned when writing to a closed encoder.
	ErrClosed = errors.New("codec: encoder closed")
)

// Format describes a fully defined PCM stream.
type Format struct {
	// SampleRate is the sample rate in Hz.
	SampleRate int

	// Bits is the sample width in bits (8, 16, 24 or 32).
	Bits int

	// Channels is the number of interleaved channels.
	Channels int
}

// FrameSize returns the size of one sample frame in bytes.
func (f Format) FrameSize() int {
	return f.Channels * f.Bits / 8
}

// Validate checks that the format is fully defined.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("codec: sample rate must be positive, got %d", f.SampleRate)
	}
	switch f.Bits {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("codec: unsupported sample width %d", f.Bits)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("codec: channels must be positive, got %d", f.Channels)
	}
	return nil
}

// Encoder is a byte-to-byte streaming audio encoder.
type Encoder interface {
	// Write consumes raw PCM in the format the encoder was opened with.
	Write(p []byte) error

	// Flush forces buffered input out as encoded output where the
	// container allows it.
	Flush() error

	// Read copies encoded output into p and returns the number of bytes
	// copied. Zero means nothing is available yet, not end of stream.
	Read(p []byte) int

	// Close releases encoder resources.
	Close() error
}

// Open creates an encoder by name. Supported names: "wave", "opus".
func Open(name string, f Format) (Encoder, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	switch name {
	case "wave", "wav":
		return NewWave(f)
	case "opus":
		return NewOpus(f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// Known reports whether name refers to a registered encoder.
func Known(name string) bool {
	switch name {
	case "wave", "wav", "opus":
		return true
	}
	return false
}
