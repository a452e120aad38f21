// Package web serves the overlay state to render clients and operators:
// a REST API, a websocket snapshot stream and Prometheus metrics.
package web

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/teslashibe/go-arlens/internal/log"
	"github.com/teslashibe/go-arlens/pkg/engine"
	"github.com/teslashibe/go-arlens/pkg/geometry"
	"github.com/teslashibe/go-arlens/pkg/hub"
	"github.com/teslashibe/go-arlens/pkg/observe"
	"github.com/teslashibe/go-arlens/pkg/protocol"
)

// Engine is the part of the overlay engine the server drives.
// *engine.Engine implements it.
type Engine interface {
	Snapshot() engine.Snapshot
	Status() engine.Status
	Subscribe(func(engine.Snapshot)) (cancel func())
	Pause()
	Resume()
	Clear()
	SetDisplay(engine.Display) error
	SetROI(*geometry.Rect) error
	ROI() *geometry.Rect
}

// RouteRegistrar adds routes under /api. The device hub and WebRTC peer
// implement it.
type RouteRegistrar interface {
	RegisterAPIRoutes(api fiber.Router)
}

// Config configures the server.
type Config struct {
	// Port to listen on.
	Port string

	// StaticDir, when set, is served at /.
	StaticDir string

	// RequestLog enables the per-request access log.
	RequestLog bool

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

// Server is the render-side web server
type Server struct {
	cfg    Config
	app    *fiber.App
	engine Engine
	log    *slog.Logger

	// Overlay snapshots for render clients
	overlays *hub.Hub
	cancel   func()
}

// NewServer builds the Fiber app. Extra registrars add their /api routes;
// mount additional non-API routes through App.
func NewServer(eng Engine, cfg Config, extra ...RouteRegistrar) *Server {
	metrics := observe.Or(cfg.Metrics)
	s := &Server{
		cfg:    cfg,
		engine: eng,
		log:    log.Or(cfg.Logger, "web"),
	}
	s.overlays = hub.New("overlays", hub.Options{
		Logger:    s.log,
		Replay:    true,
		Clients:   metrics.RenderClients,
		OnMessage: s.handleRenderMessage,
	})

	app := fiber.New(fiber.Config{
		AppName:               "arlens",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.RequestLog {
		app.Use(logger.New())
	}
	app.Use(observe.Middleware(metrics, s.log))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/overlays", s.handleOverlays)
	api.Get("/status", s.handleStatus)
	api.Post("/session/pause", s.handlePause)
	api.Post("/session/resume", s.handleResume)
	api.Post("/overlays/clear", s.handleClear)
	api.Put("/display", s.handleDisplay)
	api.Put("/roi", s.handleROI)
	for _, r := range extra {
		r.RegisterAPIRoutes(api)
	}

	// WebSocket upgrade middleware
	app.Use("/ws/overlays", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/overlays", websocket.New(s.handleOverlaysWS))

	s.app = app
	return s
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the overlay hub and serves until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	go s.overlays.Run(ctx)
	s.cancel = s.engine.Subscribe(s.broadcast)
	s.broadcast(s.engine.Snapshot())

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("web server listening", "port", s.cfg.Port)
		errCh <- s.app.Listen(":" + s.cfg.Port)
	}()

	select {
	case err := <-errCh:
		s.cancel()
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// broadcast forwards a snapshot to render clients. It runs on the engine
// goroutine and must not block.
func (s *Server) broadcast(snap engine.Snapshot) {
	msg, err := protocol.NewOverlaysMessage(snap)
	if err == nil {
		err = s.overlays.BroadcastJSON(msg)
	}
	if err != nil {
		s.log.Error("encode overlays", "error", err)
	}
}

// Hub returns the render client hub
func (s *Server) Hub() *hub.Hub {
	return s.overlays
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.app.Shutdown()
}
