package output

import (
	"time"

	"github.com/soundweave/snapsink/pkg/codec"
	"github.com/soundweave/snapsink/pkg/tags"
)

// Capability declares what an audio output driver supports.
type Capability uint

const (
	// FlagEnableDisable: the output can be bound and unbound at runtime.
	FlagEnableDisable Capability = 1 << iota
	// FlagPause: Pause is implemented; the caller retries instead of
	// closing the stream.
	FlagPause
	// FlagNeedFullyDefinedAudioFormat: Open requires sample rate, width
	// and channel count all resolved.
	FlagNeedFullyDefinedAudioFormat
)

// AudioOutput is the driver contract the playback pipeline programs
// against.
type AudioOutput interface {
	Enable() error
	Disable() error
	Open(f codec.Format) error
	Close() error
	Delay() time.Duration
	Play(src []byte) (int, error)
	Pause() bool
	Drain()
	Cancel()
	SendTag(t *tags.Tag)
}

// Capabilities returns the driver flags for this output.
func (o *Output) Capabilities() Capability {
	return FlagEnableDisable | FlagPause | FlagNeedFullyDefinedAudioFormat
}

// Enable binds the listener sockets; part of the driver contract.
func (o *Output) Enable() error {
	return o.Bind()
}

// Disable unbinds the listener sockets; part of the driver contract.
func (o *Output) Disable() error {
	return o.Unbind()
}

var _ AudioOutput = (*Output)(nil)

// Status is a point-in-time snapshot of the stream, serialized for the
// dashboard.
type Status struct {
	Open       bool           `json:"open"`
	Pause      bool           `json:"pause"`
	Codec      string         `json:"codec"`
	Port       int            `json:"port"`
	QueueDepth int            `json:"queue_depth"`
	Clients    []ClientStatus `json:"clients"`
}

// ClientStatus describes one session.
type ClientStatus struct {
	ID       string `json:"id"`
	Identity string `json:"identity,omitempty"`
	Remote   string `json:"remote"`
	Ready    bool   `json:"ready"`
	Pending  int    `json:"pending"`
}

// Status snapshots the stream state.
func (o *Output) Status() Status {
	o.mu.Lock()
	s := Status{
		Open:       o.open,
		Pause:      o.pause,
		Codec:      o.cfg.codecName(),
		Port:       o.cfg.Port,
		QueueDepth: o.chunks.depth(),
		Clients:    make([]ClientStatus, 0, len(o.clients)),
	}
	clients := make([]*Client, 0, len(o.clients))
	for _, c := range o.clients {
		clients = append(clients, c)
	}
	o.mu.Unlock()

	for _, c := range clients {
		s.Clients = append(s.Clients, ClientStatus{
			ID:       c.ID(),
			Identity: c.Identity(),
			Remote:   c.RemoteAddr(),
			Ready:    c.Ready(),
			Pending:  c.PendingDepth(),
		})
	}
	return s
}
