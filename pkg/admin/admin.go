// Package admin implements the localhost-only debugging/ops HTTP surface
// (SPEC_FULL.md §6): health, status, and Prometheus metrics. No MCP traffic
// ever flows through it.
package admin

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stacklok/mcpmux/pkg/controller"
	"github.com/stacklok/mcpmux/pkg/metrics"
)

// StatusProvider is the single controller method the admin surface depends
// on, kept narrow so tests can supply a stub.
type StatusProvider interface {
	StatusSnapshot() controller.Status
}

// Server is the admin HTTP surface. Ready flips true once startup() has
// completed, gating /healthz.
type Server struct {
	ctrl  StatusProvider
	ready atomic.Bool
}

// New builds the admin mux bound to ctrl's status.
func New(ctrl StatusProvider) *Server {
	return &Server{ctrl: ctrl}
}

// MarkReady flips /healthz to 200. Call once startup() completes.
func (s *Server) MarkReady() {
	s.ready.Store(true)
}

// Handler returns the chi mux serving /healthz, /status, and /metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.getHealthz)
	r.Get("/status", s.getStatus)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	return r
}

func (s *Server) getHealthz(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		http.Error(w, "startup not complete", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.ctrl.StatusSnapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
