package output

import (
	"fmt"
	"net"
	"strconv"
)

// openListeners binds one TCP listener per configured address. On any
// failure, already-opened listeners are closed again.
func (o *Output) openListeners() ([]net.Listener, error) {
	addrs := o.cfg.BindAddresses
	if len(addrs) == 0 {
		addrs = []string{""}
	}

	var listeners []net.Listener
	for _, addr := range addrs {
		ln, err := net.Listen("tcp", net.JoinHostPort(addr, strconv.Itoa(o.cfg.Port)))
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return nil, fmt.Errorf("output: bind %q port %d: %w", addr, o.cfg.Port, err)
		}
		listeners = append(listeners, ln)
	}
	return listeners, nil
}

// acceptLoop hands accepted sockets to the output. A socket arriving while
// the stream is closed is refused immediately.
func (o *Output) acceptLoop(ln net.Listener) {
	defer o.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			// listener closed by Unbind
			return
		}

		o.mu.Lock()
		if !o.open {
			o.mu.Unlock()
			conn.Close()
			continue
		}
		c := newClient(o, conn, o.cfg.codecName(), o.codecHeader)
		o.clients[c.id] = c
		o.mu.Unlock()

		o.logger.Info("client connected", "remote", conn.RemoteAddr())
	}
}
