package output

import (
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/soundweave/snapsink/pkg/protocol"
)

// handshakeState tracks a session through its lifecycle.
type handshakeState int

const (
	// awaitingHello: connected, no Hello received yet. Chunks queue up
	// but nothing is written.
	awaitingHello handshakeState = iota
	// ready: handshake complete, the writer flushes pending in order.
	ready
	// closing: the session is being torn down.
	closing
)

// outMessage is one framed message awaiting write. The parts are written
// back to back after the base header; chunk payloads are shared, not
// copied per session.
type outMessage struct {
	typ   protocol.MessageType
	parts [][]byte
}

// Client is one snapcast session. The session owns its socket and runs a
// reader goroutine (handshake, disconnect detection) and a writer
// goroutine (FIFO flush of pending). Lock order is always output mutex
// before session mutex, never the reverse.
type Client struct {
	id      string
	out     *Output
	conn    net.Conn
	logger  *slog.Logger
	backlog int

	codecName   string
	codecHeader []byte

	mu       sync.Mutex
	cond     *sync.Cond
	state    handshakeState
	pending  []outMessage
	writing  bool
	identity string
	nextID   uint16
}

// newClient creates a session for an accepted socket and starts its
// goroutines. Called with the output mutex held.
func newClient(o *Output, conn net.Conn, codecName string, codecHeader []byte) *Client {
	c := &Client{
		id:          uuid.NewString(),
		out:         o,
		conn:        conn,
		logger:      o.logger.With("client", conn.RemoteAddr().String()),
		backlog:     o.cfg.ClientBacklog,
		codecName:   codecName,
		codecHeader: codecHeader,
	}
	c.cond = sync.NewCond(&c.mu)

	go c.readLoop()
	go c.writeLoop()

	return c
}

// ID returns the session key.
func (c *Client) ID() string {
	return c.id
}

// Identity returns the client-supplied name once the handshake completed.
func (c *Client) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// RemoteAddr returns the peer address.
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Push appends a chunk to the session backlog. Returns false when the
// backlog cap is exceeded; the caller must then drop the session.
func (c *Client) Push(chunk *Chunk) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == closing {
		return true
	}

	c.pending = append(c.pending, outMessage{
		typ:   protocol.TypeWireChunk,
		parts: protocol.WireChunkPayload(chunk.SubmittedAt, chunk.Payload),
	})
	if len(c.pending) > c.backlog {
		return false
	}

	c.cond.Signal()
	return true
}

// Cancel discards pending messages but keeps the socket open; the next
// chunk resumes delivery.
func (c *Client) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = c.pending[:0]
}

// SendStreamTags appends a StreamTags message. Dropped if the handshake
// has not completed; tags are not retained across it.
func (c *Client) SendStreamTags(jsonBytes []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != ready {
		return
	}

	c.pending = append(c.pending, outMessage{
		typ:   protocol.TypeStreamTags,
		parts: protocol.StreamTagsPayload(jsonBytes),
	})
	c.cond.Signal()
}

// Drained reports whether nothing is pending and the writer is idle.
func (c *Client) Drained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) == 0 && !c.writing
}

// PendingDepth returns the backlog size.
func (c *Client) PendingDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Ready reports whether the handshake completed.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == ready
}

// close tears the session down: further pushes are ignored, the writer
// exits, and the socket is shut down (unblocking a stuck write). Safe to
// call more than once and from any goroutine.
func (c *Client) close() {
	c.mu.Lock()
	if c.state != closing {
		c.state = closing
		c.cond.Broadcast()
	}
	c.mu.Unlock()
	c.conn.Close()
}

// readLoop consumes inbound frames. The first frame is the Hello; it
// completes the handshake and queues the codec header in front of any
// chunks that accumulated while waiting. Later frames (periodic time
// requests and the like) are read and discarded.
func (c *Client) readLoop() {
	defer c.out.removeClient(c)

	for {
		f, err := protocol.ReadFrame(c.conn)
		if err != nil {
			return
		}

		c.mu.Lock()
		if c.state != awaitingHello {
			c.mu.Unlock()
			continue
		}

		hello, herr := protocol.ParseHello(f.Payload)
		if herr != nil {
			c.mu.Unlock()
			c.logger.Warn("bad handshake", "err", herr)
			return
		}

		c.identity = hello.Identity()
		c.state = ready
		header := outMessage{
			typ:   protocol.TypeCodecHeader,
			parts: protocol.CodecHeaderPayload(c.codecName, c.codecHeader),
		}
		c.pending = append([]outMessage{header}, c.pending...)
		c.cond.Signal()
		c.mu.Unlock()

		c.logger.Info("client handshake", "identity", c.Identity())
	}
}

// writeLoop flushes pending messages in FIFO order once the session is
// ready. Each frame is stamped with the wall clock at write time.
func (c *Client) writeLoop() {
	for {
		c.mu.Lock()
		for c.state != closing && (c.state != ready || len(c.pending) == 0) {
			c.cond.Wait()
		}
		if c.state == closing {
			c.mu.Unlock()
			return
		}

		msg := c.pending[0]
		c.pending = c.pending[1:]
		id := c.nextID
		c.nextID++
		c.writing = true
		c.mu.Unlock()

		err := protocol.WriteFrame(c.conn, msg.typ, id, 0, msg.parts...)

		c.mu.Lock()
		c.writing = false
		flushed := len(c.pending) == 0
		c.mu.Unlock()

		if err != nil {
			c.logger.Debug("client write failed", "err", err)
			c.out.removeClient(c)
			return
		}
		if flushed {
			c.out.signalDrain()
		}
	}
}
