// Package output implements the snapcast streaming output: a TCP server
// that encodes a live PCM stream and multiplexes timestamped chunks and
// stream tags to every connected snapcast client.
//
// Two concurrency contexts touch an Output: the producer goroutine calls
// Open, Play, Pause, Delay, Drain, Cancel, Close and SendTag; the
// dispatcher goroutine (plus one acceptor per listener and two goroutines
// per session) handles the network side. A single mutex guards stream
// state, the chunk queue and session membership.
package output

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/soundweave/snapsink/pkg/codec"
	"github.com/soundweave/snapsink/pkg/tags"
	"github.com/soundweave/snapsink/pkg/timer"
)

const (
	// flushThreshold is how much unflushed input the encoder may
	// accumulate before it is forced to produce output.
	flushThreshold = 65536

	// readBufferSize bounds one encoder read, and therefore one chunk.
	readBufferSize = 32768

	// pauseDelay is returned by Delay while paused: long enough to keep
	// CPU low, short enough to notice new clients quickly.
	pauseDelay = time.Second
)

// Output is the snapcast streaming output.
type Output struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	drainCond *sync.Cond

	// guarded by mu
	open        bool
	pause       bool
	codecHeader []byte
	chunks      chunkQueue
	clients     map[string]*Client
	bound       bool

	// producer-goroutine state; mu is only taken to publish encoder
	// output and to check session membership
	enc       codec.Encoder
	timer     *timer.Timer
	format    codec.Format
	unflushed int

	// injectCh wakes the dispatcher when the chunk queue becomes
	// non-empty
	injectCh chan struct{}

	stopCh    chan struct{}
	wg        sync.WaitGroup
	listeners []net.Listener
	adv       *advertiser
}

// New creates an output from the configuration. The stream is neither
// bound nor open; call Bind (or Enable) and then Open.
func New(cfg Config, logger *slog.Logger) (*Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := &Output{
		cfg:      cfg,
		logger:   logger,
		clients:  make(map[string]*Client),
		injectCh: make(chan struct{}, 1),
	}
	o.drainCond = sync.NewCond(&o.mu)
	return o, nil
}

// Bind opens the listener sockets, starts the dispatcher and, when
// enabled, registers the zeroconf service.
func (o *Output) Bind() error {
	o.mu.Lock()
	if o.bound {
		o.mu.Unlock()
		return ErrBound
	}
	o.bound = true
	o.mu.Unlock()

	listeners, err := o.openListeners()
	if err != nil {
		o.mu.Lock()
		o.bound = false
		o.mu.Unlock()
		return err
	}
	o.listeners = listeners
	o.stopCh = make(chan struct{})

	o.wg.Add(1)
	go o.dispatchLoop()

	for _, ln := range o.listeners {
		o.wg.Add(1)
		go o.acceptLoop(ln)
	}

	if o.cfg.Zeroconf {
		adv, err := advertise(o.cfg.Port)
		if err != nil {
			// advertisement is best-effort; the stream works without it
			o.logger.Warn("zeroconf registration failed", "err", err)
		} else {
			o.adv = adv
		}
	}

	o.logger.Info("listening", "port", o.cfg.Port, "zeroconf", o.adv != nil)
	return nil
}

// Unbind tears down the advertiser and the listener sockets. The stream
// must be closed first.
func (o *Output) Unbind() error {
	o.mu.Lock()
	if !o.bound {
		o.mu.Unlock()
		return ErrNotBound
	}
	if o.open {
		o.mu.Unlock()
		return ErrOpenStream
	}
	o.bound = false
	o.mu.Unlock()

	if o.adv != nil {
		o.adv.shutdown()
		o.adv = nil
	}

	for _, ln := range o.listeners {
		ln.Close()
	}
	o.listeners = nil

	close(o.stopCh)
	o.wg.Wait()
	return nil
}

// Open prepares the encoder for the given format, captures the codec
// header and creates the pacing timer; the timer starts on the first Play.
func (o *Output) Open(f codec.Format) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.open {
		return ErrAlreadyOpen
	}

	enc, err := codec.Open(o.cfg.Codec, f)
	if err != nil {
		return fmt.Errorf("output: open encoder: %w", err)
	}

	// the bytes emitted before any audio input are the codec header
	buf := make([]byte, 4096)
	n := enc.Read(buf)
	o.codecHeader = append([]byte(nil), buf[:n]...)

	o.enc = enc
	o.format = f
	o.timer = timer.New(f)
	o.unflushed = 0
	o.open = true
	o.pause = false

	o.logger.Info("stream open",
		"codec", o.cfg.codecName(),
		"sample_rate", f.SampleRate,
		"bits", f.Bits,
		"channels", f.Channels,
		"header_bytes", len(o.codecHeader),
	)
	return nil
}

// Close shuts the stream: every session is destroyed, the chunk queue and
// codec header are cleared, and the encoder is released. The listeners
// stay bound; new connections are refused until the next Open.
func (o *Output) Close() error {
	o.mu.Lock()
	if !o.open {
		o.mu.Unlock()
		return ErrNotOpen
	}

	o.open = false

	// cancel a scheduled inject wake-up
	select {
	case <-o.injectCh:
	default:
	}

	doomed := make([]*Client, 0, len(o.clients))
	for _, c := range o.clients {
		doomed = append(doomed, c)
	}
	o.clients = make(map[string]*Client)
	o.chunks.clear()
	o.codecHeader = nil

	enc := o.enc
	o.enc = nil
	o.timer = nil
	o.drainCond.Broadcast()
	o.mu.Unlock()

	for _, c := range doomed {
		c.close()
	}
	if err := enc.Close(); err != nil {
		o.logger.Warn("encoder close failed", "err", err)
	}

	o.logger.Info("stream closed", "clients_dropped", len(doomed))
	return nil
}

// Play feeds PCM to the stream. The input is always consumed in full and
// the pacing timer advanced, whether or not anyone is listening; the
// caller sleeps Delay() before the next call, which paces submission at
// real time. Encoder write failures are logged and ignored so that a
// transient flush error cannot tear down the stream.
func (o *Output) Play(src []byte) (int, error) {
	now := time.Now()

	o.mu.Lock()
	if !o.open {
		o.mu.Unlock()
		return 0, ErrNotOpen
	}
	o.pause = false
	tmr := o.timer
	enc := o.enc
	hasClients := len(o.clients) > 0
	o.mu.Unlock()

	if !tmr.IsStarted() {
		tmr.Start()
	}
	tmr.Add(len(src))

	if !hasClients {
		return len(src), nil
	}

	if err := enc.Write(src); err != nil {
		o.logger.Warn("encoder write failed", "err", err)
		return len(src), nil
	}

	o.unflushed += len(src)
	if o.unflushed >= flushThreshold {
		// a lot of input went in without output coming back; force it
		// out to avoid client-side underruns
		if err := enc.Flush(); err != nil {
			o.logger.Debug("encoder flush failed", "err", err)
		}
		o.unflushed = 0
	}

	buf := make([]byte, readBufferSize)
	for {
		n := enc.Read(buf)
		if n == 0 {
			break
		}
		o.unflushed = 0

		payload := append([]byte(nil), buf[:n]...)

		o.mu.Lock()
		if o.chunks.empty() {
			o.scheduleInject()
		}
		o.chunks.push(&Chunk{SubmittedAt: now, Payload: payload})
		o.mu.Unlock()
	}

	return len(src), nil
}

// Pause marks the stream paused. Returns true: pause is supported, the
// caller should retry later. No data is emitted while paused; Delay
// governs the poll frequency.
func (o *Output) Pause() bool {
	o.mu.Lock()
	o.pause = true
	o.mu.Unlock()
	return true
}

// Delay returns how long the producer must sleep before the next Play.
func (o *Output) Delay() time.Duration {
	o.mu.Lock()
	pause := o.pause
	tmr := o.timer
	o.mu.Unlock()

	if pause {
		// Play will not run while paused, so the timer would lag
		// reality; re-anchor it here
		if tmr != nil {
			tmr.Reset()
		}
		return pauseDelay
	}

	if tmr != nil && tmr.IsStarted() {
		return tmr.Delay()
	}
	return 0
}

// Drain blocks until the chunk queue is empty and every session has
// flushed its backlog to the wire.
func (o *Output) Drain() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for !o.drainedLocked() {
		o.drainCond.Wait()
	}
}

func (o *Output) drainedLocked() bool {
	if !o.chunks.empty() {
		return false
	}
	for _, c := range o.clients {
		if !c.Drained() {
			return false
		}
	}
	return true
}

// Cancel discards buffered audio at both the output and session level but
// keeps every connection alive. Used on pipeline flush and seek.
func (o *Output) Cancel() {
	o.mu.Lock()
	o.chunks.clear()
	for _, c := range o.clients {
		c.Cancel()
	}
	o.drainCond.Broadcast()
	o.mu.Unlock()
}

// SendTag projects the tag to JSON and queues a StreamTags message on
// every ready session. Tags are best-effort metadata; an empty projection
// sends nothing.
func (o *Output) SendTag(t *tags.Tag) {
	o.mu.Lock()
	hasClients := len(o.clients) > 0
	o.mu.Unlock()
	if !hasClients {
		return
	}

	data := tags.ToJSON(t)
	if data == nil {
		return
	}

	o.mu.Lock()
	for _, c := range o.clients {
		c.SendStreamTags(data)
	}
	o.mu.Unlock()
}

// scheduleInject wakes the dispatcher. Called with the mutex held; the
// capacity-1 channel collapses repeated wake-ups.
func (o *Output) scheduleInject() {
	select {
	case o.injectCh <- struct{}{}:
	default:
	}
}

// dispatchLoop is the event-loop surrogate: it moves chunks from the
// shared queue to every session in production order.
func (o *Output) dispatchLoop() {
	defer o.wg.Done()

	for {
		select {
		case <-o.stopCh:
			return
		case <-o.injectCh:
			o.dispatchChunks()
		}
	}
}

func (o *Output) dispatchChunks() {
	o.mu.Lock()
	for !o.chunks.empty() {
		chunk := o.chunks.pop()
		for id, c := range o.clients {
			if !c.Push(chunk) {
				// backlog cap exceeded: the peer is too slow to keep
				// up, drop it rather than stall the stream
				delete(o.clients, id)
				c.close()
				o.logger.Warn("dropping slow client",
					"remote", c.RemoteAddr(),
					"identity", c.Identity(),
				)
			}
		}
	}
	o.drainCond.Broadcast()
	o.mu.Unlock()
}

// removeClient unlinks a departed session. Idempotent; called from the
// session's own goroutines.
func (o *Output) removeClient(c *Client) {
	o.mu.Lock()
	if _, present := o.clients[c.id]; present {
		delete(o.clients, c.id)
		o.logger.Info("client disconnected",
			"remote", c.RemoteAddr(),
			"remaining", len(o.clients),
		)
	}
	o.drainCond.Broadcast()
	o.mu.Unlock()

	c.close()
}

// signalDrain is called by a session after flushing its backlog.
func (o *Output) signalDrain() {
	o.mu.Lock()
	o.drainCond.Broadcast()
	o.mu.Unlock()
}

// ClientCount returns the number of connected sessions.
func (o *Output) ClientCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.clients)
}
