package pcm

import "math"

// SineGenerator synthesizes a sine tone, or silence when the frequency is
// zero. The phase carries across chunks so the tone is continuous no
// matter how the caller slices time.
type SineGenerator struct {
	cfg Config

	phase     float64 // radians
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
}

// SineOption configures a SineGenerator.
type SineOption func(*SineGenerator)

// WithTone configures the generated tone.
func WithTone(frequency, amplitude float64) SineOption {
	return func(s *SineGenerator) {
		s.frequency = frequency
		s.amplitude = amplitude
	}
}

// NewSineGenerator creates a synthetic PCM generator.
func NewSineGenerator(cfg Config, opts ...SineOption) *SineGenerator {
	s := &SineGenerator{
		cfg:       cfg,
		frequency: 0, // silence by default
		amplitude: 0.5,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Next synthesizes one chunk of BufferDuration audio.
func (s *SineGenerator) Next() Chunk {
	frames := s.cfg.BufferSize()
	samples := make([]int16, frames*s.cfg.Channels)

	if s.frequency > 0 {
		step := 2 * math.Pi * s.frequency / float64(s.cfg.SampleRate)

		for i := 0; i < frames; i++ {
			sample := int16(s.amplitude * math.Sin(s.phase) * 32767)
			for ch := 0; ch < s.cfg.Channels; ch++ {
				samples[i*s.cfg.Channels+ch] = sample
			}

			s.phase += step
			if s.phase >= 2*math.Pi {
				s.phase -= 2 * math.Pi
			}
		}
	}
	// else: samples stay zero (silence)

	return Chunk{
		Samples:    samples,
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
	}
}

// Config returns the generator configuration.
func (s *SineGenerator) Config() Config {
	return s.cfg
}

// Name returns "sine".
func (s *SineGenerator) Name() string {
	return "sine"
}

var _ Generator = (*SineGenerator)(nil)
