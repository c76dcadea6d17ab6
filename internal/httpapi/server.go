// Package httpapi is the HTTP control plane (spec §4.5 "HTTP control
// plane", §6): the endpoints the CLI and external callers (messaging
// ingress adapters, the operator broker) use to drive a running server.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agentctl/agentctl/internal/config"
	"github.com/agentctl/agentctl/internal/scheduler"
	"github.com/agentctl/agentctl/internal/serve"
	"github.com/agentctl/agentctl/internal/store"
)

// Config holds the control-plane server's own listen settings.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig mirrors the teacher's server defaults, adjusted to this
// control plane's lower traffic expectations.
func DefaultConfig() Config {
	return Config{Port: 8765, ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second}
}

// Server is the control-plane HTTP server (spec §4.5, §6).
type Server struct {
	cfg     Config
	paths   *config.Paths
	store   *store.Store
	sched   *scheduler.Controller
	router  *chi.Mux
	httpSrv *http.Server

	startedAt   time.Time
	onReload    func() error
	shutdownReq chan struct{}
}

// New builds a Server over s and sched, rooted at paths.
func New(cfg Config, paths *config.Paths, s *store.Store, sched *scheduler.Controller, onReload func() error) *Server {
	srv := &Server{cfg: cfg, paths: paths, store: s, sched: sched, startedAt: time.Now(), onReload: onReload, shutdownReq: make(chan struct{}, 1)}
	srv.router = chi.NewRouter()
	srv.setupMiddleware()
	srv.setupRoutes()
	return srv
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/control-plane", func(r chi.Router) {
			r.Post("/runs/start", s.handleRunsStart)
			r.Post("/reload", s.handleReload)
		})
		r.Get("/runs", s.handleRunsList)
		r.Get("/heartbeats", s.handleHeartbeatsList)
		r.Post("/heartbeats/create", s.handleHeartbeatsCreate)
		r.Get("/cron", s.handleCronList)
		r.Post("/server/shutdown", s.handleShutdown)

		r.Get("/issues", s.handleIssuesList)
		r.Get("/issues/ready", s.handleIssuesReady)
		r.Get("/issues/{id}", s.handleIssueGet)
		r.Get("/forum", s.handleForumRead)
		r.Get("/events", s.handleEventsList)
		r.Get("/events/stream", s.handleEventsStream)
	})
}

// Router exposes the chi router for testing.
func (s *Server) Router() *chi.Mux { return s.router }

// WriteDiscovery persists the discovery record for this server instance
// before callers start accepting traffic (spec §4.5 "Server discovery").
func (s *Server) WriteDiscovery(pid int) error {
	url := fmt.Sprintf("http://127.0.0.1:%d", s.cfg.Port)
	return serve.WriteRecord(s.paths.DiscoveryFile(), serve.Record{PID: pid, Port: s.cfg.Port, URL: url})
}

// ListenAndServe starts the HTTP server; it blocks until Shutdown is
// called or a fatal error occurs.
func (s *Server) ListenAndServe() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// ShutdownRequested fires once handleShutdown has accepted a POST
// /api/server/shutdown, so the owning `serve` command can begin a
// graceful Shutdown from outside the handler goroutine.
func (s *Server) ShutdownRequested() <-chan struct{} { return s.shutdownReq }
