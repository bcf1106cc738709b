// Package protocol implements Snapcast base-message framing.
//
// Every message on the wire is a fixed 26-byte little-endian header
// followed by a type-specific payload:
//
//	type      u16
//	id        u16
//	refers-to u16
//	sent-at   {sec i32, usec i32}
//	recv-at   {sec i32, usec i32}
//	size      u32
//
// The server sends CodecHeader once per session, WireChunk per audio chunk
// and StreamTags per metadata update. The client's first message is a Hello.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// MessageType identifies the type of a framed message.
type MessageType uint16

const (
	// TypeBase is an untyped message.
	TypeBase MessageType = 0
	// TypeCodecHeader carries the codec name and container prelude.
	TypeCodecHeader MessageType = 1
	// TypeWireChunk carries one timestamped chunk of encoded audio.
	TypeWireChunk MessageType = 2
	// TypeStreamTags carries a UTF-8 JSON metadata object.
	TypeStreamTags MessageType = 3
	// TypeHello is the client handshake message.
	TypeHello MessageType = 5
)

// HeaderSize is the size of the base header in bytes.
const HeaderSize = 26

// MaxPayload bounds inbound payloads; client messages are small.
const MaxPayload = 1 << 20

// ErrPayloadTooLarge is returned when an inbound frame exceeds MaxPayload.
var ErrPayloadTooLarge = errors.New("protocol: payload too large")

// Timestamp is a split seconds/microseconds wire timestamp.
type Timestamp struct {
	Sec  int32
	Usec int32
}

// ToTimestamp converts a wall-clock time to a wire timestamp.
func ToTimestamp(t time.Time) Timestamp {
	return Timestamp{
		Sec:  int32(t.Unix()),
		Usec: int32(t.Nanosecond() / 1000),
	}
}

// Frame is one parsed base message.
type Frame struct {
	Type     MessageType
	ID       uint16
	RefersTo uint16
	Sent     Timestamp
	Received Timestamp
	Payload  []byte
}

// EncodeFrame assembles a complete wire message. The payload may be given
// in multiple parts; sent-at is stamped with the current wall clock.
func EncodeFrame(typ MessageType, id, refersTo uint16, parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p)
	}

	buf := make([]byte, HeaderSize, HeaderSize+size)
	le := binary.LittleEndian
	sent := ToTimestamp(time.Now())

	le.PutUint16(buf[0:], uint16(typ))
	le.PutUint16(buf[2:], id)
	le.PutUint16(buf[4:], refersTo)
	le.PutUint32(buf[6:], uint32(sent.Sec))
	le.PutUint32(buf[10:], uint32(sent.Usec))
	// received-at is only meaningful on request echoes; zero here
	le.PutUint32(buf[22:], uint32(size))

	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

// WriteFrame encodes and writes one message.
func WriteFrame(w io.Writer, typ MessageType, id, refersTo uint16, parts ...[]byte) error {
	_, err := w.Write(EncodeFrame(typ, id, refersTo, parts...))
	return err
}

// ReadFrame reads one complete message from r.
func ReadFrame(r io.Reader) (*Frame, error) {
	var head [HeaderSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}

	le := binary.LittleEndian
	size := le.Uint32(head[22:])
	if size > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, size)
	}

	f := &Frame{
		Type:     MessageType(le.Uint16(head[0:])),
		ID:       le.Uint16(head[2:]),
		RefersTo: le.Uint16(head[4:]),
		Sent: Timestamp{
			Sec:  int32(le.Uint32(head[6:])),
			Usec: int32(le.Uint32(head[10:])),
		},
		Received: Timestamp{
			Sec:  int32(le.Uint32(head[14:])),
			Usec: int32(le.Uint32(head[18:])),
		},
		Payload: make([]byte, size),
	}

	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return nil, err
	}
	return f, nil
}

// CodecHeaderPayload builds the CodecHeader payload: codec name and the
// container prelude, each length-prefixed.
func CodecHeaderPayload(codecName string, header []byte) [][]byte {
	prefix := make([]byte, 4+len(codecName)+4)
	le := binary.LittleEndian
	le.PutUint32(prefix, uint32(len(codecName)))
	copy(prefix[4:], codecName)
	le.PutUint32(prefix[4+len(codecName):], uint32(len(header)))
	return [][]byte{prefix, header}
}

// WireChunkPayload builds the WireChunk payload: the chunk's submission
// timestamp, a length prefix and the encoded bytes. The data slice is
// referenced, not copied, so one chunk can fan out to many sessions.
func WireChunkPayload(submitted time.Time, data []byte) [][]byte {
	prefix := make([]byte, 12)
	le := binary.LittleEndian
	ts := ToTimestamp(submitted)
	le.PutUint32(prefix[0:], uint32(ts.Sec))
	le.PutUint32(prefix[4:], uint32(ts.Usec))
	le.PutUint32(prefix[8:], uint32(len(data)))
	return [][]byte{prefix, data}
}

// StreamTagsPayload builds the StreamTags payload: a length-prefixed UTF-8
// JSON object.
func StreamTagsPayload(jsonBytes []byte) [][]byte {
	prefix := make([]byte, 4)
	binary.LittleEndian.PutUint32(prefix, uint32(len(jsonBytes)))
	return [][]byte{prefix, jsonBytes}
}
