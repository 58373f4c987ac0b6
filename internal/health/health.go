// Package health exposes a liveness/readiness HTTP endpoint for process
// supervision. It carries no domain semantics of its own.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
)

// Checker reports whether a dependency is currently reachable.
type Checker func(ctx context.Context) error

// Server serves /healthz (liveness) and /readyz (readiness, gated on the
// registered Checkers all succeeding).
type Server struct {
	router   chi.Router
	checks   map[string]Checker
	shutdown atomic.Bool
}

// New creates a Server with no registered checks.
func New() *Server {
	s := &Server{checks: map[string]Checker{}}
	r := chi.NewRouter()
	r.Get("/healthz", s.handleLiveness)
	r.Get("/readyz", s.handleReadiness)
	s.router = r
	return s
}

// Register adds a named readiness check.
func (s *Server) Register(name string, check Checker) {
	s.checks[name] = check
}

// MarkShuttingDown flips /healthz to report unhealthy, used during graceful
// shutdown so a load balancer stops routing new traffic before the process
// exits.
func (s *Server) MarkShuttingDown() {
	s.shutdown.Store(true)
}

// Handler returns the http.Handler to mount on the configured health port.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.shutdown.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "shutting_down"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	failures := map[string]string{}
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "not_ready", "failures": failures})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}
