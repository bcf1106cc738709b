package output

import (
	"fmt"

	"github.com/grandcat/zeroconf"
)

// advertiser is the scoped zeroconf registration: acquired in Bind,
// released in Unbind.
type advertiser struct {
	server *zeroconf.Server
}

// advertise registers the listener port under the snapcast service type.
func advertise(port int) (*advertiser, error) {
	server, err := zeroconf.Register(ServiceName, ServiceType, "local.", port,
		[]string{"txtvers=1"}, nil)
	if err != nil {
		return nil, fmt.Errorf("output: zeroconf: %w", err)
	}
	return &advertiser{server: server}, nil
}

// shutdown deregisters the service.
func (a *advertiser) shutdown() {
	a.server.Shutdown()
}
