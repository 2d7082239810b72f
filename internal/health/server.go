package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker is a named backend dependency that can report its health.
type Checker interface {
	Name() string
	Health(ctx context.Context) error
}

// Check wraps a name and a ping function as a Checker.
type Check struct {
	CheckName string
	Ping      func(ctx context.Context) error
}

func (c Check) Name() string                     { return c.CheckName }
func (c Check) Health(ctx context.Context) error { return c.Ping(ctx) }

// Server provides HTTP endpoints for health monitoring and metrics.
type Server struct {
	checks []Checker
	server *http.Server
}

// NewServer creates a new health server.
func NewServer(port int, checks ...Checker) *Server {
	mux := http.NewServeMux()
	s := &Server{
		checks: checks,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	detail := make(map[string]string, len(s.checks))
	for _, check := range s.checks {
		if err := check.Health(ctx); err != nil {
			status = "critical"
			detail[check.Name()] = err.Error()
		} else {
			detail[check.Name()] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status == "critical" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": detail,
	})
}
