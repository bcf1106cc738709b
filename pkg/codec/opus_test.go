package codec

import (
	"encoding/binary"
	"testing"
)

func TestOpusHeaderLayout(t *testing.T) {
	f := Format{SampleRate: 48000, Bits: 16, Channels: 2}
	h := opusHeader(f)

	if len(h) != 12 {
		t.Fatalf("header length = %d, want 12", len(h))
	}
	if string(h[0:4]) != "OPUS" {
		t.Errorf("magic = %q, want OPUS", h[0:4])
	}

	le := binary.LittleEndian
	if got := le.Uint32(h[4:]); got != 48000 {
		t.Errorf("sample rate = %d, want 48000", got)
	}
	if got := le.Uint16(h[8:]); got != 16 {
		t.Errorf("bit depth = %d, want 16", got)
	}
	if got := le.Uint16(h[10:]); got != 2 {
		t.Errorf("channels = %d, want 2", got)
	}
}

func TestNewOpusRejectsBadFormats(t *testing.T) {
	tests := []struct {
		name   string
		format Format
	}{
		{"unsupported rate", Format{SampleRate: 44100, Bits: 16, Channels: 2}},
		{"wrong width", Format{SampleRate: 48000, Bits: 24, Channels: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewOpus(tt.format); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestOpus_FrameSamples(t *testing.T) {
	o := &Opus{format: Format{SampleRate: 48000, Bits: 16, Channels: 2}}
	// 20ms at 48kHz stereo
	if got := o.frameSamples(); got != 1920 {
		t.Errorf("frameSamples() = %d, want 1920", got)
	}
}
