package codec

import (
	"encoding/binary"
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// opusFrameMs is the packet duration. 20ms is the libopus sweet spot for
// music streaming.
const opusFrameMs = 20

// maxOpusPacket bounds one encoded packet.
const maxOpusPacket = 4000

// Opus encodes 16-bit PCM into raw Opus packets. The codec header is a
// 12-byte prelude: "OPUS" magic, sample rate (u32), bit depth (u16) and
// channel count (u16), all little-endian.
type Opus struct {
	format  Format
	enc     *opus.Encoder
	header  []byte
	pending []int16
	packets [][]byte
	partial []byte
	closed  bool
}

// NewOpus creates an Opus encoder. The sample rate must be one libopus
// accepts (8, 12, 16, 24 or 48 kHz) and samples must be 16-bit.
func NewOpus(f Format) (*Opus, error) {
	if f.Bits != 16 {
		return nil, fmt.Errorf("codec: opus requires 16-bit samples, got %d", f.Bits)
	}
	switch f.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("codec: opus does not support %d Hz", f.SampleRate)
	}

	enc, err := opus.NewEncoder(f.SampleRate, f.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("codec: opus init: %w", err)
	}

	return &Opus{
		format: f,
		enc:    enc,
		header: opusHeader(f),
	}, nil
}

func opusHeader(f Format) []byte {
	h := make([]byte, 12)
	le := binary.LittleEndian
	copy(h[0:], "OPUS")
	le.PutUint32(h[4:], uint32(f.SampleRate))
	le.PutUint16(h[8:], uint16(f.Bits))
	le.PutUint16(h[10:], uint16(f.Channels))
	return h
}

// frameSamples returns the number of interleaved samples per packet.
func (o *Opus) frameSamples() int {
	return o.format.SampleRate / 1000 * opusFrameMs * o.format.Channels
}

// Write consumes 16-bit little-endian PCM and encodes every complete
// 20ms frame into one packet.
func (o *Opus) Write(p []byte) error {
	if o.closed {
		return ErrClosed
	}

	for i := 0; i+1 < len(p); i += 2 {
		o.pending = append(o.pending, int16(p[i])|int16(p[i+1])<<8)
	}

	return o.encodePending(false)
}

// Flush pads the remaining partial frame with silence and encodes it.
func (o *Opus) Flush() error {
	if o.closed {
		return ErrClosed
	}
	return o.encodePending(true)
}

func (o *Opus) encodePending(pad bool) error {
	frame := o.frameSamples()

	for len(o.pending) >= frame {
		buf := make([]byte, maxOpusPacket)
		n, err := o.enc.Encode(o.pending[:frame], buf)
		if err != nil {
			return fmt.Errorf("codec: opus encode: %w", err)
		}
		o.packets = append(o.packets, buf[:n])
		o.pending = o.pending[frame:]
	}

	if pad && len(o.pending) > 0 {
		padded := make([]int16, frame)
		copy(padded, o.pending)
		o.pending = o.pending[:0]

		buf := make([]byte, maxOpusPacket)
		n, err := o.enc.Encode(padded, buf)
		if err != nil {
			return fmt.Errorf("codec: opus encode: %w", err)
		}
		o.packets = append(o.packets, buf[:n])
	}

	return nil
}

// Read copies the header, then one encoded packet per call, into p.
func (o *Opus) Read(p []byte) int {
	if len(o.header) > 0 {
		n := copy(p, o.header)
		o.header = o.header[n:]
		return n
	}

	if len(o.partial) > 0 {
		n := copy(p, o.partial)
		o.partial = o.partial[n:]
		return n
	}

	if len(o.packets) == 0 {
		return 0
	}

	pkt := o.packets[0]
	o.packets = o.packets[1:]
	n := copy(p, pkt)
	if n < len(pkt) {
		o.partial = pkt[n:]
	}
	return n
}

// Close drops buffered state. The libopus encoder is freed by the GC.
func (o *Opus) Close() error {
	o.closed = true
	o.pending = nil
	o.packets = nil
	o.partial = nil
	return nil
}

var _ Encoder = (*Opus)(nil)
