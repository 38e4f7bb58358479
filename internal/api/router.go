package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the dependency checks behind /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/stats", s.handleDeviceStats)
			r.Get("/{id}", s.handleGetDevice)
		})

		r.Get("/scan", s.handleScanStatus)
		r.Get("/history", s.handleHistory)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health plus any configured dependency checks.
// A failing dependency degrades the status but still answers 200; the
// dashboard itself is up.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := make(map[string]string, len(s.checks))

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	for name, c := range s.checks {
		if c == nil {
			continue
		}
		if err := c.HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]any{
		"status":  status,
		"version": s.version,
	}
	if len(checks) > 0 {
		body["checks"] = checks
	}
	writeJSON(w, http.StatusOK, body)
}
