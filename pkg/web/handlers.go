package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/tablewatch/pkg/hub"
	"github.com/teslashibe/tablewatch/pkg/occupancy"
	"github.com/teslashibe/tablewatch/pkg/store"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Running    bool    `json:"running"`
	SessionID  string  `json:"session_id,omitempty"`
	FrameIndex int     `json:"frame_index"`
	Timestamp  float64 `json:"timestamp"`
	FPS        float64 `json:"fps"`
	Occupants  int     `json:"occupants"`
	Clients    int     `json:"clients"`

	Region []occupancy.Point     `json:"region"`
	Last   occupancy.FrameResult `json:"last"`
}

func unavailable(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": msg})
}

// handleStatus returns the live monitor state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	p := s.status()
	if p == nil {
		return unavailable(c, "monitor not attached")
	}
	snap := p.Snapshot()
	return c.JSON(StatusResponse{
		Running:    snap.Running,
		SessionID:  snap.SessionID,
		FrameIndex: snap.FrameIndex,
		Timestamp:  snap.Timestamp,
		FPS:        snap.FPS,
		Occupants:  len(snap.Occupants),
		Clients:    s.occupancyHub.ClientCount(),
		Region:     snap.Region,
		Last:       snap.Last,
	})
}

// handleOccupants returns everyone currently tracked at the table
func (s *Server) handleOccupants(c *fiber.Ctx) error {
	p := s.status()
	if p == nil {
		return unavailable(c, "monitor not attached")
	}
	return c.JSON(p.Snapshot().Occupants)
}

// handleSummary returns the running report
func (s *Server) handleSummary(c *fiber.Ctx) error {
	p := s.status()
	if p == nil {
		return unavailable(c, "monitor not attached")
	}
	return c.JSON(p.Summary())
}

// handleEvents returns recent arrivals and departures
func (s *Server) handleEvents(c *fiber.Ctx) error {
	s.eventsMu.RLock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	s.eventsMu.RUnlock()
	return c.JSON(out)
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	if s.history == nil {
		return unavailable(c, "persistence disabled")
	}
	sessions, err := s.history.ListSessions(c.UserContext())
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(sessions)
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	if s.history == nil {
		return unavailable(c, "persistence disabled")
	}
	sess, err := s.history.GetSession(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(sess)
}

func (s *Server) handleListVisits(c *fiber.Ctx) error {
	if s.history == nil {
		return unavailable(c, "persistence disabled")
	}
	id := c.Params("id")
	if _, err := s.history.GetSession(c.UserContext(), id); err != nil {
		return s.storeError(c, err)
	}
	visits, err := s.history.ListVisits(c.UserContext(), id)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(visits)
}

func (s *Server) storeError(c *fiber.Ctx, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	}
	s.logger.Error("history query failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

// handleOccupancyWS streams frame updates and events. The current
// occupants are sent first.
func (s *Server) handleOccupancyWS(c *websocket.Conn) {
	client := hub.NewClient(s.occupancyHub, c)
	if client == nil {
		return
	}

	if p := s.status(); p != nil {
		snap := p.Snapshot()
		if err := c.WriteJSON(fiber.Map{"type": "snapshot", "snapshot": snap}); err != nil {
			s.logger.Debug("initial snapshot write failed", "error", err)
		}
	}

	client.Run()
}
