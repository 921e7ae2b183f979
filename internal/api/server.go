// Package api exposes the HTTP interface for the scheduler process.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/tradefair-crawler/internal/middleware"
	"github.com/JakeFAU/tradefair-crawler/internal/scheduler"
)

// Pinger checks a downstream dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunController starts runs and reports on them.
type RunController interface {
	Trigger() error
	Running() bool
	Last() (scheduler.Status, bool)
}

// Options configures a Server.
type Options struct {
	// Metrics serves /metrics; nil disables the route.
	Metrics http.Handler
	// Instrument wraps every route, typically with request metrics.
	Instrument func(http.Handler) http.Handler
	// APIKey protects the /v1 routes when non-empty.
	APIKey string
	Logger *zap.Logger
}

// Server wires HTTP handlers to the scheduler and the database.
type Server struct {
	router chi.Router
	runs   RunController
	db     Pinger
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runs RunController, db Pinger, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{runs: runs, db: db, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	if opts.Instrument != nil {
		r.Use(opts.Instrument)
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1/runs", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Post("/", s.triggerRun)
		r.Get("/last", s.lastRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) triggerRun(w http.ResponseWriter, _ *http.Request) {
	if err := s.runs.Trigger(); err != nil {
		if errors.Is(err, scheduler.ErrRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		if errors.Is(err, scheduler.ErrStopped) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) lastRun(w http.ResponseWriter, _ *http.Request) {
	last, ok := s.runs.Last()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"running": s.runs.Running()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running": s.runs.Running(),
		"last":    last,
	})
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
