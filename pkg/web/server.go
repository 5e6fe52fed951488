// Package web serves the caregiver dashboard: REST controls for inputs,
// the conversation log and exports, the presentation websocket streams and
// Prometheus metrics.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	accesslog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-intent/pkg/convlog"
	"github.com/teslashibe/go-intent/pkg/engine"
	"github.com/teslashibe/go-intent/pkg/hub"
	"github.com/teslashibe/go-intent/pkg/ingest"
)

// Docs is the Google Docs export surface. *convlog.GoogleDocs satisfies it.
type Docs interface {
	Status() convlog.GoogleDocsStatus
	HandleCallback(ctx context.Context, state, code string) error
	Export(ctx context.Context, x convlog.Export) (string, error)
	Disconnect() error
}

// Config configures the HTTP server.
type Config struct {
	Port      string
	StaticDir string // served at / when set
	AccessLog bool   // log every request
}

// Deps are the components the server exposes. Engine and Log are
// required; the rest may be nil.
type Deps struct {
	Engine    *engine.Engine
	Log       *convlog.Log
	Presenter *Presenter
	Status    *hub.Hub // presentation stream
	Speech    *hub.Hub // speak events only
	Ingest    *ingest.Server
	Docs      Docs
	Logger    *slog.Logger
}

// Server is the dashboard server.
type Server struct {
	cfg    Config
	deps   Deps
	app    *fiber.App
	logger *slog.Logger
	now    func() time.Time
}

// NewServer builds the fiber app and its routes.
func NewServer(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "web"),
		now:    time.Now,
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-intent",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.AccessLog {
		app.Use(accesslog.New())
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)

	api.Get("/log", s.handleGetLog)
	api.Delete("/log", s.handleClearLog)
	api.Get("/log/export", s.handleExportLog)
	api.Post("/patient", s.handleSwitchPatient)
	api.Post("/messages", s.handleMessage)

	api.Post("/camera/:action", s.handleCamera)
	api.Post("/mic/:action", s.handleMic)

	api.Get("/gdocs/status", s.handleDocsStatus)
	api.Get("/gdocs/auth", s.handleDocsAuth)
	api.Get("/gdocs/callback", s.handleDocsCallback)
	api.Post("/gdocs/export", s.handleDocsExport)
	api.Delete("/gdocs", s.handleDocsDisconnect)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	if deps.Ingest != nil {
		deps.Ingest.RegisterRoutes(app)
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	if deps.Status != nil {
		deps.Status.OnConnect(s.welcome)
		app.Get("/ws/status", websocket.New(func(c *websocket.Conn) {
			hub.NewClient(deps.Status, c).Run()
		}))
	}
	if deps.Speech != nil {
		app.Get("/ws/speech", websocket.New(func(c *websocket.Conn) {
			hub.NewClient(deps.Speech, c).Run()
		}))
	}

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

// App returns the fiber app, for tests and for mounting extra routes.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run runs the hubs and serves HTTP until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, h := range []*hub.Hub{s.deps.Status, s.deps.Speech} {
		if h != nil {
			g.Go(func() error {
				h.Run(ctx)
				return nil
			})
		}
	}

	ln, err := net.Listen("tcp", ":"+s.cfg.Port)
	if err != nil {
		return err
	}
	s.logger.Info("dashboard listening", "url", "http://localhost:"+s.cfg.Port)

	g.Go(func() error {
		return s.app.Listener(ln)
	})
	g.Go(func() error {
		<-ctx.Done()
		return s.app.ShutdownWithTimeout(5 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// welcome is sent to each new dashboard before live updates.
func (s *Server) welcome() []hub.Message {
	p := s.deps.Presenter
	if p == nil {
		return nil
	}
	snap := s.deps.Engine.Snapshot()
	return p.Welcome(snap)
}
