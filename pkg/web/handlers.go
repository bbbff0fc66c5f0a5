package web

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-blursafe/pkg/bridge"
	"github.com/teslashibe/go-blursafe/pkg/engine"
	"github.com/teslashibe/go-blursafe/pkg/hub"
	"github.com/teslashibe/go-blursafe/pkg/page"
)

// Overview is the body of /api/status.
type Overview struct {
	Version     string            `json:"version"`
	Uptime      string            `json:"uptime"`
	Pages       int               `json:"pages"`
	Sessions    int               `json:"sessions"`
	Dashboards  int               `json:"dashboards"`
	Events      map[string]uint64 `json:"events"`
	Bridge      *bridge.Stats     `json:"bridge,omitempty"`
	Connections []bridge.PageInfo `json:"connections,omitempty"`
}

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": s.config.Version,
		"pages":   s.manager.Len(),
	})
}

// handleStatus returns service-wide counters
func (s *Server) handleStatus(c *fiber.Ctx) error {
	ov := Overview{
		Version:    s.config.Version,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Pages:      s.manager.Len(),
		Sessions:   s.manager.SessionCount(),
		Dashboards: s.events.ClientCount(),
		Events:     s.metrics.Counts(),
	}
	if s.bridge != nil {
		st := s.bridge.GetStats()
		ov.Bridge = &st
		ov.Connections = s.bridge.PageInfos()
	}
	return c.JSON(ov)
}

// handleListPages returns every connected page
func (s *Server) handleListPages(c *fiber.Ctx) error {
	return c.JSON(s.manager.Statuses())
}

// handleGetPage returns one page
func (s *Server) handleGetPage(c *fiber.Ctx) error {
	p, ok := s.manager.Page(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, page.ErrPageNotFound.Error())
	}
	return c.JSON(p.Status())
}

// handleRefreshPage restarts detection on one page
func (s *Server) handleRefreshPage(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.manager.Refresh(c.UserContext(), id); err != nil {
		return httpError(err)
	}
	s.logger.Info("refresh requested", "page", id)
	return c.JSON(fiber.Map{"refreshed": []string{id}})
}

// handleRefreshAll restarts detection on every page
func (s *Server) handleRefreshAll(c *fiber.Ctx) error {
	ids := make([]string, 0, s.manager.Len())
	for _, st := range s.manager.Statuses() {
		ids = append(ids, st.ID)
	}
	if err := s.manager.RefreshAll(c.UserContext()); err != nil {
		return httpError(err)
	}
	s.logger.Info("refresh requested", "pages", len(ids))
	return c.JSON(fiber.Map{"refreshed": ids})
}

// handlePreview renders the latest uploaded frame with its overlay
func (s *Server) handlePreview(c *fiber.Ctx) error {
	p, ok := s.manager.Page(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, page.ErrPageNotFound.Error())
	}
	jpeg, err := p.Preview(c.Params("vid"))
	if err != nil {
		return httpError(err)
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Type("jpeg")
	return c.Send(jpeg)
}

// handleEventsWS streams status snapshots and session events
func (s *Server) handleEventsWS(c *websocket.Conn) {
	var initial []hub.Message
	if msg, err := hub.Encode("status", s.statusMessage()); err == nil {
		initial = append(initial, msg)
	}
	hub.NewClient(s.events, c, initial...).Run()
}

func httpError(err error) error {
	switch {
	case errors.Is(err, page.ErrPageNotFound),
		errors.Is(err, page.ErrUnknownVideo),
		errors.Is(err, engine.ErrNoFrame):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, page.ErrClosed):
		return fiber.NewError(fiber.StatusGone, err.Error())
	}
	return err
}
