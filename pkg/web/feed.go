package web

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

// feedWriteWait bounds one viewer write. A viewer that cannot accept a
// snapshot within it is dropped; the dashboard is advisory and a stalled
// browser tab must not hold up the rest.
const feedWriteWait = 5 * time.Second

// feed pushes JSON snapshots to the dashboard viewers of one topic
// (stream status, log entries). Unlike the audio sessions in pkg/output,
// viewers carry no per-connection state worth preserving: a viewer either
// keeps up or is disconnected and reconnects with a fresh snapshot.
type feed struct {
	logger *slog.Logger

	mu      sync.Mutex
	viewers map[*websocket.Conn]bool
}

func newFeed(name string, logger *slog.Logger) *feed {
	return &feed{
		logger:  logger.With("feed", name),
		viewers: make(map[*websocket.Conn]bool),
	}
}

// serve replays the given snapshots to a new viewer, registers it, and
// blocks reading until it disconnects. Inbound data is ignored; the read
// loop exists to notice the disconnect.
func (f *feed) serve(c *websocket.Conn, replay ...any) {
	f.mu.Lock()
	registered := true
	for _, v := range replay {
		if err := f.writeLocked(c, v); err != nil {
			registered = false
			break
		}
	}
	if registered {
		f.viewers[c] = true
	}
	total := len(f.viewers)
	f.mu.Unlock()

	if !registered {
		c.Close()
		return
	}
	f.logger.Debug("viewer connected", "total", total)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}

	f.mu.Lock()
	delete(f.viewers, c)
	remaining := len(f.viewers)
	f.mu.Unlock()
	c.Close()

	f.logger.Debug("viewer disconnected", "remaining", remaining)
}

// publish marshals v once and writes it to every viewer, dropping any
// that fail or stall.
func (f *feed) publish(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		f.logger.Warn("snapshot marshal failed", "err", err)
		return
	}

	f.mu.Lock()
	for c := range f.viewers {
		if err := f.writeRawLocked(c, data); err != nil {
			delete(f.viewers, c)
			c.Close()
			f.logger.Debug("dropping stalled viewer", "err", err)
		}
	}
	f.mu.Unlock()
}

// writeLocked marshals and writes one value. Callers hold f.mu, which
// also serializes all writes to a connection.
func (f *feed) writeLocked(c *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return f.writeRawLocked(c, data)
}

func (f *feed) writeRawLocked(c *websocket.Conn, data []byte) error {
	c.SetWriteDeadline(time.Now().Add(feedWriteWait))
	return c.WriteMessage(websocket.TextMessage, data)
}

// viewerCount returns the number of connected viewers.
func (f *feed) viewerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.viewers)
}
