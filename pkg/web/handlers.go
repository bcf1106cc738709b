package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/soundweave/snapsink/pkg/output"
)

// handleStatus returns the current stream snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.StatusFunc == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "status source not configured",
		})
	}
	return c.JSON(s.StatusFunc())
}

// handleClients returns just the session list.
func (s *Server) handleClients(c *fiber.Ctx) error {
	if s.StatusFunc == nil {
		return c.JSON([]output.ClientStatus{})
	}
	return c.JSON(s.StatusFunc().Clients)
}

// handleGetLogs returns recent log entries.
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

// handleStatusWS streams status snapshots to a viewer, starting with the
// current state.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	if s.StatusFunc != nil {
		s.statusFeed.serve(c, s.StatusFunc())
		return
	}
	s.statusFeed.serve(c)
}

// handleLogsWS streams log entries to a viewer, replaying the buffer
// first.
func (s *Server) handleLogsWS(c *websocket.Conn) {
	s.logsMu.RLock()
	replay := make([]any, len(s.logs))
	for i, entry := range s.logs {
		replay[i] = entry
	}
	s.logsMu.RUnlock()

	s.logFeed.serve(c, replay...)
}
