// Package web provides the dashboard: a status API, refresh controls and a
// live event stream of every page's detection sessions.
package web

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bep/debounce"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-blursafe/internal/log"
	"github.com/teslashibe/go-blursafe/pkg/bridge"
	"github.com/teslashibe/go-blursafe/pkg/hub"
	"github.com/teslashibe/go-blursafe/pkg/page"
	"github.com/teslashibe/go-blursafe/pkg/scheduler"
)

// Config controls the dashboard server.
type Config struct {
	Addr    string
	Version string

	// Debug enables request logging.
	Debug bool

	// StatusDebounce coalesces page status broadcasts.
	StatusDebounce time.Duration

	Logger *slog.Logger
}

// DefaultConfig listens on :8080 and broadcasts status at most every 250ms.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		Version:        "dev",
		StatusDebounce: 250 * time.Millisecond,
	}
}

// StreamMessage is one message on /ws/events.
type StreamMessage struct {
	Type  string        `json:"type"` // "status" or "event"
	At    time.Time     `json:"at"`
	Event *page.Event   `json:"event,omitempty"`
	Pages []page.Status `json:"pages,omitempty"`
}

// Server is the dashboard server. It also hosts the page bridge when one
// is given, so pages and dashboards share a port.
type Server struct {
	app     *fiber.App
	config  Config
	logger  *slog.Logger
	started time.Time

	manager *page.Manager
	bridge  *bridge.Bridge
	events  *hub.Hub
	metrics *Metrics

	debounced func(func())
}

// NewServer creates the dashboard for manager. b may be nil.
func NewServer(config Config, manager *page.Manager, b *bridge.Bridge) *Server {
	if config.StatusDebounce <= 0 {
		config.StatusDebounce = DefaultConfig().StatusDebounce
	}
	lg := config.Logger
	if lg == nil {
		lg = log.Component("web")
	}

	s := &Server{
		config:    config,
		logger:    lg,
		started:   time.Now(),
		manager:   manager,
		bridge:    b,
		events:    hub.New("events").WithLogger(lg),
		debounced: debounce.New(config.StatusDebounce),
	}
	s.metrics = NewMetrics(manager, b, s.events)

	app := fiber.New(fiber.Config{
		AppName:               "blursafe",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if config.Debug {
		app.Use(logger.New())
	}

	if b != nil {
		b.RegisterRoutes(app)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/pages", s.handleListPages)
	api.Get("/pages/:id", s.handleGetPage)
	api.Post("/pages/:id/refresh", s.handleRefreshPage)
	api.Get("/pages/:id/videos/:vid/preview", s.handlePreview)
	api.Post("/refresh", s.handleRefreshAll)

	app.Use("/ws/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", s.metrics.Handler())

	manager.OnEvent(s.handleEvent)
	manager.OnChange(s.scheduleStatus)

	s.app = app
	return s
}

// App returns the fiber app, for tests and extra routes.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the event hub and serves until Shutdown.
func (s *Server) Start() error {
	go s.events.Run()
	s.logger.Info("dashboard listening", "addr", s.config.Addr)
	return s.app.Listen(s.config.Addr)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("server stopped", "error", err)
		}
	}()
}

// Shutdown stops the server and disconnects dashboards.
func (s *Server) Shutdown(ctx context.Context) error {
	s.events.Stop()
	return s.app.ShutdownWithContext(ctx)
}

// handleEvent runs under a scheduler lock: it only counts and enqueues.
func (s *Server) handleEvent(e page.Event) {
	s.metrics.Observe(e.Kind)
	if e.Kind == scheduler.EventRequested {
		return
	}
	if err := s.events.BroadcastJSON("event", StreamMessage{Type: "event", At: e.At, Event: &e}); err != nil {
		s.logger.Warn("event encode failed", "error", err)
	}
	switch e.Kind {
	case scheduler.EventArmed, scheduler.EventDisarmed, scheduler.EventResult:
		s.scheduleStatus()
	}
}

func (s *Server) scheduleStatus() {
	s.debounced(s.broadcastStatus)
}

func (s *Server) broadcastStatus() {
	if err := s.events.BroadcastJSON("status", s.statusMessage()); err != nil {
		s.logger.Warn("status encode failed", "error", err)
	}
}

func (s *Server) statusMessage() StreamMessage {
	return StreamMessage{Type: "status", At: time.Now(), Pages: s.manager.Statuses()}
}

// errorHandler renders every error as {"error": message}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
