// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	apihandler "github.com/newthinker/presetd/internal/api/handler/api"
	"github.com/newthinker/presetd/internal/api/job"
	"github.com/newthinker/presetd/internal/api/middleware"
	"github.com/newthinker/presetd/internal/lifecycle"
	"github.com/newthinker/presetd/internal/metrics"
	"github.com/newthinker/presetd/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the presetd HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	router     chi.Router
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	APIKey      string
	MetricsPath string
}

// Dependencies holds the services the handlers need.
type Dependencies struct {
	Manager *lifecycle.Manager
	Store   store.Store
	Jobs    *job.Store
	Metrics *metrics.Registry // optional
}

// NewServer creates a new HTTP server.
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.Manager == nil || deps.Store == nil {
		return nil, fmt.Errorf("api: manager and store are required")
	}
	if deps.Jobs == nil {
		deps.Jobs = job.NewStore(100, time.Hour)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		logger: logger,
		router: chi.NewRouter(),
	}
	s.setupRoutes(cfg, deps)

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s, nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	r := s.router
	r.Use(metrics.LoggingMiddleware(s.logger))
	if deps.Metrics != nil {
		r.Use(metrics.HTTPMiddleware(deps.Metrics))
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Get("/api/health", s.handleHealth)

	sessions := apihandler.NewSessionHandler(deps.Manager)
	presets := apihandler.NewPresetHandler(deps.Store, s.logger)
	events := apihandler.NewEventsHandler(deps.Manager, s.logger)
	var recorder apihandler.BacktestRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}
	backtests := apihandler.NewBacktestHandler(deps.Manager, deps.Jobs, recorder)

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKey))

		r.Post(store.ListPath, presets.List)
		r.Post(store.LoadPath, presets.Load)
		r.Post(store.SavePath, presets.Save)
		r.Post(store.DeletePath, presets.Delete)
		r.Get("/api/presets/visible", presets.Visible)

		r.Route("/api/sessions", func(r chi.Router) {
			r.Get("/", sessions.List)
			r.Post("/", sessions.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessions.Get)
				r.Delete("/", sessions.Close)
				r.Post("/load", sessions.Load)
				r.Put("/values", sessions.Values)
				r.Post("/save", sessions.Save)
				r.Post("/switch", sessions.Switch)
				r.Post("/delete", sessions.Delete)
				r.Post("/backtest", backtests.Create)
				r.Get("/events", events.Stream)
			})
		})

		r.Get("/api/jobs/{id}", backtests.GetStatus)
	})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
