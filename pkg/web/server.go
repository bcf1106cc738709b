// Package web provides a real-time status dashboard for the snapsink
// stream: which clients are connected, how deep their backlogs are, and
// what the encoder is doing.
package web

import (
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/soundweave/snapsink/pkg/output"
)

// statusInterval is how often the stream state is polled for the live
// websocket feed.
const statusInterval = time.Second

// LogEntry represents a log line for the dashboard
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, client, tag, error
	Message string `json:"message"`
}

// Server is the dashboard server
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	// StatusFunc snapshots the stream; set before Start.
	StatusFunc func() output.Status

	// Log buffer (last 500 entries)
	logs   []LogEntry
	logsMu sync.RWMutex

	// Live feeds for websocket viewers
	statusFeed *feed
	logFeed    *feed

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewServer creates a new dashboard server
func NewServer(port string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		port:       port,
		logger:     logger,
		logs:       make([]LogEntry, 0, 500),
		statusFeed: newFeed("status", logger),
		logFeed:    newFeed("logs", logger),
		stopCh:     make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "snapsink dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/clients", s.handleClients)
	api.Get("/logs", s.handleGetLogs)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))

	s.app = app
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the dashboard and blocks.
func (s *Server) Start() error {
	s.logger.Info("dashboard listening", "addr", "http://localhost:"+s.port)

	go s.watchStatus()

	return s.app.Listen(":" + s.port)
}

// StartAsync starts the dashboard in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("dashboard server failed", "err", err)
		}
	}()
}

// watchStatus polls the stream state and pushes snapshots to websocket
// viewers whenever it changes.
func (s *Server) watchStatus() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	var last output.Status
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.StatusFunc == nil || s.statusFeed.viewerCount() == 0 {
				continue
			}
			status := s.StatusFunc()
			if reflect.DeepEqual(status, last) {
				continue
			}
			last = status
			s.statusFeed.publish(status)
		}
	}
}

// AddLog adds a log entry and broadcasts it to viewers.
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > 500 {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	s.logFeed.publish(entry)
}

// Shutdown gracefully stops the dashboard.
func (s *Server) Shutdown() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return s.app.Shutdown()
}
