// Package pcm provides the PCM sources that feed the streaming output.
//
// The daemon's real decoder pipeline is out of scope here; a Generator
// stands in for it. Generators are pull-based and have no clock of their
// own: the producer loop asks for the next chunk, plays it, and sleeps
// the output's pacing delay, which is what keeps submission at real time.
package pcm

import (
	"fmt"
	"time"
)

// Chunk is a block of interleaved PCM16 samples.
type Chunk struct {
	// Samples contains PCM16 audio samples (little-endian when encoded).
	Samples []int16

	// SampleRate is the sample rate of this chunk.
	SampleRate int

	// Channels is the number of channels in this chunk.
	Channels int
}

// Bytes returns the raw little-endian bytes of the chunk.
func (c *Chunk) Bytes() []byte {
	buf := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// Duration returns the play time of this chunk.
func (c *Chunk) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Generator produces a PCM stream one chunk at a time. Generators are
// not safe for concurrent use; one producer loop owns the generator.
type Generator interface {
	// Next synthesizes the next chunk. It never blocks; pacing is the
	// caller's job.
	Next() Chunk

	// Config returns the generator configuration.
	Config() Config

	// Name returns the generator name.
	Name() string
}

// Config holds PCM generator configuration.
type Config struct {
	// SampleRate is the sample rate in Hz.
	// Default: 44100
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of interleaved channels.
	// Default: 2
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the duration of one produced chunk.
	// Default: 20ms
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate:     44100,
		Channels:       2,
		BufferDuration: 20 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("pcm: sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("pcm: channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("pcm: buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of sample frames per chunk.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of one chunk in bytes.
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
