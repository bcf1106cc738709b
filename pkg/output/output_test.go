package output

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/soundweave/snapsink/pkg/codec"
	"github.com/soundweave/snapsink/pkg/protocol"
	"github.com/soundweave/snapsink/pkg/tags"
)

var cdFormat = codec.Format{SampleRate: 44100, Bits: 16, Channels: 2}

// newTestOutput binds an output on a loopback port with zeroconf off.
func newTestOutput(t *testing.T) (*Output, int) {
	t.Helper()

	// reserve a free port
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := DefaultConfig()
	cfg.Port = port
	cfg.BindAddresses = []string{"127.0.0.1"}
	cfg.Zeroconf = false

	o, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := o.Bind(); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	t.Cleanup(func() {
		o.Close()
		o.Unbind()
	})

	return o, port
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// testConn is a minimal snapcast client for exercising the wire protocol.
type testConn struct {
	t    *testing.T
	conn net.Conn
}

func dialOutput(t *testing.T, port int) *testConn {
	t.Helper()
	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testConn{t: t, conn: conn}
}

func (c *testConn) hello(name string) {
	c.t.Helper()
	payload, err := protocol.HelloPayload(&protocol.Hello{ClientName: name, HostName: name})
	if err != nil {
		c.t.Fatalf("hello payload: %v", err)
	}
	if err := protocol.WriteFrame(c.conn, protocol.TypeHello, 0, 0, payload); err != nil {
		c.t.Fatalf("send hello: %v", err)
	}
}

func (c *testConn) readFrame(timeout time.Duration) (*protocol.Frame, error) {
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	return protocol.ReadFrame(c.conn)
}

// expectCodecHeader reads one frame and decodes a CodecHeader payload.
func (c *testConn) expectCodecHeader() (string, []byte) {
	c.t.Helper()
	f, err := c.readFrame(2 * time.Second)
	if err != nil {
		c.t.Fatalf("read codec header: %v", err)
	}
	if f.Type != protocol.TypeCodecHeader {
		c.t.Fatalf("frame type = %v, want CodecHeader", f.Type)
	}

	le := binary.LittleEndian
	nameLen := le.Uint32(f.Payload)
	name := string(f.Payload[4 : 4+nameLen])
	hdrLen := le.Uint32(f.Payload[4+nameLen:])
	header := f.Payload[8+nameLen:]
	if uint32(len(header)) != hdrLen {
		c.t.Fatalf("header length field %d, got %d bytes", hdrLen, len(header))
	}
	return name, header
}

// expectWireChunk reads one frame and decodes a WireChunk payload.
func (c *testConn) expectWireChunk() []byte {
	c.t.Helper()
	f, err := c.readFrame(2 * time.Second)
	if err != nil {
		c.t.Fatalf("read wire chunk: %v", err)
	}
	if f.Type != protocol.TypeWireChunk {
		c.t.Fatalf("frame type = %v, want WireChunk", f.Type)
	}

	size := binary.LittleEndian.Uint32(f.Payload[8:])
	data := f.Payload[12:]
	if uint32(len(data)) != size {
		c.t.Fatalf("chunk size field %d, got %d bytes", size, len(data))
	}
	return data
}

func pattern(b byte, n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = b
	}
	return p
}

func play(t *testing.T, o *Output, src []byte) {
	t.Helper()
	n, err := o.Play(src)
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if n != len(src) {
		t.Fatalf("Play consumed %d bytes, want %d", n, len(src))
	}
}

func TestBasicDelivery(t *testing.T) {
	o, port := newTestOutput(t)
	if err := o.Open(cdFormat); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	c := dialOutput(t, port)
	waitFor(t, "client registration", func() bool { return o.ClientCount() == 1 })
	c.hello("test")

	play(t, o, pattern(0, 4096))

	name, header := c.expectCodecHeader()
	if name != "wave" {
		t.Errorf("codec name = %q, want wave", name)
	}
	if len(header) != 44 || !bytes.HasPrefix(header, []byte("RIFF")) {
		t.Errorf("codec header = %d bytes %q..., want 44-byte RIFF prelude", len(header), header[:4])
	}

	data := c.expectWireChunk()
	if len(data) != 4096 {
		t.Errorf("chunk payload = %d bytes, want 4096", len(data))
	}
}

func TestFanoutOrder(t *testing.T) {
	o, port := newTestOutput(t)
	if err := o.Open(cdFormat); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	c1 := dialOutput(t, port)
	c2 := dialOutput(t, port)
	waitFor(t, "both clients", func() bool { return o.ClientCount() == 2 })
	c1.hello("one")
	c2.hello("two")

	play(t, o, pattern(0x01, 4096))
	play(t, o, pattern(0x02, 4096))

	for _, c := range []*testConn{c1, c2} {
		c.expectCodecHeader()
		first := c.expectWireChunk()
		second := c.expectWireChunk()
		if first[0] != 0x01 {
			t.Errorf("first chunk carries %#x, want chunk A", first[0])
		}
		if second[0] != 0x02 {
			t.Errorf("second chunk carries %#x, want chunk B", second[0])
		}
	}
}

func TestSlowClientDropped(t *testing.T) {
	o, port := newTestOutput(t)
	if err := o.Open(cdFormat); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	slow := dialOutput(t, port) // never completes the handshake, never reads
	fast := dialOutput(t, port)
	waitFor(t, "both clients", func() bool { return o.ClientCount() == 2 })
	fast.hello("fast")

	// the backlog cap is 16; the 17th push must drop the slow session
	for i := 0; i < 17; i++ {
		play(t, o, pattern(byte(i), 4096))
	}

	waitFor(t, "slow client drop", func() bool { return o.ClientCount() == 1 })

	// the slow session's socket is shut down
	slow.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := protocol.ReadFrame(slow.conn); err == nil {
		t.Error("expected the dropped session's socket to be closed")
	}

	// the fast session is unaffected and sees everything in order
	fast.expectCodecHeader()
	for i := 0; i < 17; i++ {
		data := fast.expectWireChunk()
		if data[0] != byte(i) {
			t.Fatalf("chunk %d carries %#x", i, data[0])
		}
	}
}

func TestDrain(t *testing.T) {
	o, port := newTestOutput(t)
	if err := o.Open(cdFormat); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	c := dialOutput(t, port)
	waitFor(t, "client registration", func() bool { return o.ClientCount() == 1 })
	c.hello("drainer")

	received := make(chan struct{}, 64)
	go func() {
		for {
			f, err := c.readFrame(2 * time.Second)
			if err != nil {
				return
			}
			if f.Type == protocol.TypeWireChunk {
				received <- struct{}{}
			}
		}
	}()

	for i := 0; i < 3; i++ {
		play(t, o, pattern(byte(i), 4096))
	}

	done := make(chan struct{})
	go func() {
		o.Drain()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not return")
	}

	// everything was flushed to the wire before Drain returned
	waitFor(t, "all chunks received", func() bool { return len(received) == 3 })
}

func TestDrainWithoutClients(t *testing.T) {
	o, _ := newTestOutput(t)
	if err := o.Open(cdFormat); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		o.Drain()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Drain with nothing pending should return immediately")
	}
}

func TestCancelResume(t *testing.T) {
	o, port := newTestOutput(t)
	if err := o.Open(cdFormat); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// no handshake yet: chunks queue on the session without being written
	c := dialOutput(t, port)
	waitFor(t, "client registration", func() bool { return o.ClientCount() == 1 })

	play(t, o, pattern(0x01, 4096))
	play(t, o, pattern(0x02, 4096))
	waitFor(t, "chunks pending", func() bool {
		s := o.Status()
		return len(s.Clients) == 1 && s.Clients[0].Pending == 2
	})

	o.Cancel()

	play(t, o, pattern(0x03, 4096))
	c.hello("seeker")

	c.expectCodecHeader()
	data := c.expectWireChunk()
	if data[0] != 0x03 {
		t.Errorf("post-cancel chunk carries %#x, want 0x03", data[0])
	}

	// nothing else may arrive: the pre-cancel chunks are gone
	if f, err := c.readFrame(200 * time.Millisecond); err == nil {
		t.Errorf("unexpected extra frame of type %v", f.Type)
	}
}

func TestStreamTags(t *testing.T) {
	o, port := newTestOutput(t)
	if err := o.Open(cdFormat); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	c := dialOutput(t, port)
	waitFor(t, "client registration", func() bool { return o.ClientCount() == 1 })
	c.hello("tagged")
	waitFor(t, "handshake", func() bool {
		s := o.Status()
		return len(s.Clients) == 1 && s.Clients[0].Ready
	})

	tag := tags.New()
	tag.Add(tags.Artist, "A")
	tag.Add(tags.Title, "T")
	tag.Add(tags.Composer, "C")
	o.SendTag(tag)

	c.expectCodecHeader()
	f, err := c.readFrame(2 * time.Second)
	if err != nil {
		t.Fatalf("read stream tags: %v", err)
	}
	if f.Type != protocol.TypeStreamTags {
		t.Fatalf("frame type = %v, want StreamTags", f.Type)
	}

	size := binary.LittleEndian.Uint32(f.Payload)
	var got map[string]string
	if err := json.Unmarshal(f.Payload[4:4+size], &got); err != nil {
		t.Fatalf("bad tag JSON: %v", err)
	}
	want := map[string]string{"artist": "A", "track": "T"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tags = %v, want %v", got, want)
	}
}

func TestPlayWithoutClients(t *testing.T) {
	o, _ := newTestOutput(t)
	if err := o.Open(cdFormat); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// one second of audio is consumed in full and advances the timer
	play(t, o, pattern(0, 176400))

	if d := o.Delay(); d <= 0 {
		t.Errorf("Delay() = %v after 1s of audio, want > 0", d)
	}
}

func TestPause(t *testing.T) {
	o, _ := newTestOutput(t)
	if err := o.Open(cdFormat); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if !o.Pause() {
		t.Fatal("Pause() = false, want true")
	}
	if d := o.Delay(); d != time.Second {
		t.Errorf("Delay() while paused = %v, want 1s", d)
	}

	// Play clears the pause state
	play(t, o, pattern(0, 4096))
	if d := o.Delay(); d >= time.Second {
		t.Errorf("Delay() after resume = %v, want stream pacing", d)
	}
}

func TestLifecycleErrors(t *testing.T) {
	o, _ := newTestOutput(t)

	if _, err := o.Play([]byte{0}); err != ErrNotOpen {
		t.Errorf("Play before Open = %v, want ErrNotOpen", err)
	}
	if err := o.Close(); err != ErrNotOpen {
		t.Errorf("Close before Open = %v, want ErrNotOpen", err)
	}

	if err := o.Open(cdFormat); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := o.Open(cdFormat); err != ErrAlreadyOpen {
		t.Errorf("second Open = %v, want ErrAlreadyOpen", err)
	}
	if err := o.Unbind(); err != ErrOpenStream {
		t.Errorf("Unbind while open = %v, want ErrOpenStream", err)
	}

	if err := o.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := o.Bind(); err != ErrBound {
		t.Errorf("second Bind = %v, want ErrBound", err)
	}
}

func TestCloseDropsClients(t *testing.T) {
	o, port := newTestOutput(t)
	if err := o.Open(cdFormat); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	c := dialOutput(t, port)
	waitFor(t, "client registration", func() bool { return o.ClientCount() == 1 })

	if err := o.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := o.ClientCount(); got != 0 {
		t.Errorf("ClientCount after Close = %d, want 0", got)
	}

	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := protocol.ReadFrame(c.conn); err == nil {
		t.Error("expected the session socket to be closed")
	}
}

func TestRefusedWhileClosed(t *testing.T) {
	_, port := newTestOutput(t)

	// the stream was never opened; the acceptor must refuse the socket
	c := dialOutput(t, port)
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := protocol.ReadFrame(c.conn); err == nil {
		t.Error("expected an immediate close for a connection while closed")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Port = -1 }},
		{"huge port", func(c *Config) { c.Port = 70000 }},
		{"bad codec", func(c *Config) { c.Codec = "flac" }},
		{"bad backlog", func(c *Config) { c.ClientBacklog = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestCapabilities(t *testing.T) {
	o, _ := newTestOutput(t)
	want := FlagEnableDisable | FlagPause | FlagNeedFullyDefinedAudioFormat
	if got := o.Capabilities(); got != want {
		t.Errorf("Capabilities() = %b, want %b", got, want)
	}
}
