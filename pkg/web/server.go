// Package web serves live table occupancy over HTTP and websockets, plus
// the stored session history.
package web

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/tablewatch/internal/log"
	"github.com/teslashibe/tablewatch/pkg/hub"
	"github.com/teslashibe/tablewatch/pkg/monitor"
	"github.com/teslashibe/tablewatch/pkg/occupancy"
	"github.com/teslashibe/tablewatch/pkg/report"
	"github.com/teslashibe/tablewatch/pkg/store"
)

const maxEvents = 500

// StatusProvider exposes live monitor state. *monitor.Monitor implements it.
type StatusProvider interface {
	Snapshot() monitor.Snapshot
	Summary() report.Summary
}

// History exposes stored sessions. *store.Store implements it.
type History interface {
	ListSessions(ctx context.Context) ([]store.Session, error)
	GetSession(ctx context.Context, id string) (*store.Session, error)
	ListVisits(ctx context.Context, sessionID string) ([]store.Visit, error)
}

// Config configures the server.
type Config struct {
	Addr string // Listen address, e.g. ":8080"

	// BroadcastEvery sends a frame update to websocket clients every N
	// frames. Arrivals and departures are always sent.
	BroadcastEvery int

	Logger *slog.Logger
}

// DefaultConfig returns server defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		BroadcastEvery: 1,
	}
}

// Event is an arrival or departure, as kept in the event log and sent
// to websocket clients.
type Event struct {
	Type      string  `json:"type"` // arrival, departure
	Frame     int     `json:"frame"`
	Timestamp float64 `json:"timestamp"`
	TrackID   int     `json:"track_id"`
	Dwell     float64 `json:"dwell,omitempty"`
}

// FrameUpdate is the per-frame websocket message.
type FrameUpdate struct {
	Type          string          `json:"type"` // frame
	Frame         int             `json:"frame"`
	Timestamp     float64         `json:"timestamp"`
	OccupantCount int             `json:"occupant_count"`
	Durations     map[int]float64 `json:"durations"`
}

// Server is the occupancy dashboard server
type Server struct {
	app    *fiber.App
	config Config
	logger *slog.Logger

	providerMu sync.RWMutex
	provider   StatusProvider
	history    History

	events   []Event
	eventsMu sync.RWMutex

	occupancyHub *hub.Hub
}

// NewServer creates the server. history may be nil when persistence is off.
func NewServer(cfg Config, history History) *Server {
	if cfg.BroadcastEvery <= 0 {
		cfg.BroadcastEvery = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.L()
	}

	s := &Server{
		config:       cfg,
		logger:       logger.With("component", "web"),
		history:      history,
		events:       make([]Event, 0, maxEvents),
		occupancyHub: hub.New("occupancy"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "tablewatch",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/occupants", s.handleOccupants)
	api.Get("/summary", s.handleSummary)
	api.Get("/events", s.handleEvents)
	api.Get("/sessions", s.handleListSessions)
	api.Get("/sessions/:id", s.handleGetSession)
	api.Get("/sessions/:id/visits", s.handleListVisits)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/occupancy", websocket.New(s.handleOccupancyWS))

	s.app = app
	return s
}

// Attach sets the live state provider.
func (s *Server) Attach(p StatusProvider) {
	s.providerMu.Lock()
	s.provider = p
	s.providerMu.Unlock()
}

func (s *Server) status() StatusProvider {
	s.providerMu.RLock()
	defer s.providerMu.RUnlock()
	return s.provider
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the occupancy websocket hub.
func (s *Server) Hub() *hub.Hub {
	return s.occupancyHub
}

// Publish implements monitor.Sink.
func (s *Server) Publish(r occupancy.FrameResult) {
	var events []Event
	for _, id := range r.Arrivals {
		events = append(events, Event{Type: "arrival", Frame: r.FrameIndex, Timestamp: r.Timestamp, TrackID: id})
	}
	for _, d := range r.Departures {
		events = append(events, Event{Type: "departure", Frame: r.FrameIndex, Timestamp: r.Timestamp, TrackID: d.TrackID, Dwell: d.Duration})
	}

	if len(events) > 0 {
		s.eventsMu.Lock()
		s.events = append(s.events, events...)
		if over := len(s.events) - maxEvents; over > 0 {
			s.events = s.events[over:]
		}
		s.eventsMu.Unlock()

		for _, e := range events {
			if err := s.occupancyHub.BroadcastJSON(e); err != nil {
				s.logger.Warn("broadcast event failed", "error", err)
			}
		}
	}

	if len(events) > 0 || r.FrameIndex%s.config.BroadcastEvery == 0 {
		update := FrameUpdate{
			Type:          "frame",
			Frame:         r.FrameIndex,
			Timestamp:     r.Timestamp,
			OccupantCount: r.OccupantCount,
			Durations:     r.Durations,
		}
		if err := s.occupancyHub.BroadcastJSON(update); err != nil {
			s.logger.Warn("broadcast frame failed", "error", err)
		}
	}
}

// Serve runs the hub and serves on ln until ctx is done. After ctx is
// done it returns once in-flight requests have finished and the hub has
// stopped.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.occupancyHub.Run(ctx)

	shutdown := make(chan struct{})
	go func() {
		defer close(shutdown)
		<-ctx.Done()
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}()

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	err := s.app.Listener(ln)
	if err != nil && ctx.Err() == nil {
		return err
	}
	<-shutdown
	<-s.occupancyHub.Done()
	return err
}

// ListenAndServe listens on the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
