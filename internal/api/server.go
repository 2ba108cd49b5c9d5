package api

import (
	"context"
	"net/http"

	"github.com/ignite/dm-dispatch/internal/config"
)

// Server represents the API server
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer wires the router into an HTTP server.
func NewServer(cfg *config.Config, h *Handlers, hc *HealthChecker) *Server {
	return &Server{
		config:  cfg.Server,
		handler: SetupRoutes(h, hc, cfg.Auth, cfg.CORS),
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       s.config.ReadTimeout(),
		ReadHeaderTimeout: s.config.ReadTimeout(),
		WriteTimeout:      s.config.WriteTimeout(),
		IdleTimeout:       2 * s.config.WriteTimeout(),
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
