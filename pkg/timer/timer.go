// Package timer paces a real-time audio stream. It converts bytes of
// submitted PCM into stream time and reports how long the producer must
// sleep before submitting more, so that submission tracks the wall clock.
package timer

import (
	"time"

	"github.com/soundweave/snapsink/pkg/codec"
)

// Timer accumulates submitted bytes against a monotonic anchor.
type Timer struct {
	// bytesPerSecond is the PCM data rate of the stream.
	bytesPerSecond int

	started bool
	due     time.Time
}

// New creates a timer for the given stream format.
func New(f codec.Format) *Timer {
	return &Timer{bytesPerSecond: f.SampleRate * f.FrameSize()}
}

// Start anchors the timer to the current monotonic clock.
func (t *Timer) Start() {
	t.started = true
	t.due = time.Now()
}

// IsStarted reports whether Start has been called since construction.
// Reset does not clear it.
func (t *Timer) IsStarted() bool {
	return t.started
}

// Add advances the stream-time cursor by the duration n bytes represent.
func (t *Timer) Add(n int) {
	t.due = t.due.Add(time.Duration(n) * time.Second / time.Duration(t.bytesPerSecond))
}

// Delay returns how long until the submitted audio is due, or zero if the
// cursor is already in the past.
func (t *Timer) Delay() time.Duration {
	d := time.Until(t.due)
	if d < 0 {
		return 0
	}
	return d
}

// Reset re-anchors the timer to now with an empty cursor.
func (t *Timer) Reset() {
	t.due = time.Now()
}
