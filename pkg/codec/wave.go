package codec

import (
	"bytes"
	"encoding/binary"
)

// waveHeaderSize is the size of the RIFF/fmt/data prelude.
const waveHeaderSize = 44

// Wave is a PCM pass-through encoder framed as a streaming WAV file.
// The RIFF and data chunk sizes are unknown for a live stream and are
// written as 0xFFFFFFFF.
type Wave struct {
	format Format
	buf    bytes.Buffer
	closed bool
}

// NewWave creates a WAV encoder for the given format. The first Read
// yields the 44-byte RIFF prelude.
func NewWave(f Format) (*Wave, error) {
	w := &Wave{format: f}
	w.buf.Write(waveHeader(f))
	return w, nil
}

func waveHeader(f Format) []byte {
	var h [waveHeaderSize]byte
	le := binary.LittleEndian

	copy(h[0:], "RIFF")
	le.PutUint32(h[4:], 0xFFFFFFFF)
	copy(h[8:], "WAVE")

	copy(h[12:], "fmt ")
	le.PutUint32(h[16:], 16)
	le.PutUint16(h[20:], 1) // PCM
	le.PutUint16(h[22:], uint16(f.Channels))
	le.PutUint32(h[24:], uint32(f.SampleRate))
	le.PutUint32(h[28:], uint32(f.SampleRate*f.FrameSize()))
	le.PutUint16(h[32:], uint16(f.FrameSize()))
	le.PutUint16(h[34:], uint16(f.Bits))

	copy(h[36:], "data")
	le.PutUint32(h[40:], 0xFFFFFFFF)

	return h[:]
}

// Write appends PCM unchanged; WAV carries the samples as-is.
func (w *Wave) Write(p []byte) error {
	if w.closed {
		return ErrClosed
	}
	w.buf.Write(p)
	return nil
}

// Flush is a no-op; WAV output is available as soon as it is written.
func (w *Wave) Flush() error {
	if w.closed {
		return ErrClosed
	}
	return nil
}

// Read drains buffered output into p.
func (w *Wave) Read(p []byte) int {
	n, _ := w.buf.Read(p)
	return n
}

// Close releases the buffer.
func (w *Wave) Close() error {
	w.closed = true
	w.buf.Reset()
	return nil
}

var _ Encoder = (*Wave)(nil)
