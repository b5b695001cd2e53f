package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/commerce-marketing/internal/automation"
	"github.com/ignite/commerce-marketing/internal/auth"
	"github.com/ignite/commerce-marketing/internal/campaign"
	"github.com/ignite/commerce-marketing/internal/config"
	"github.com/ignite/commerce-marketing/internal/segmentation"
)

// Server is the HTTP surface of the marketing engine.
type Server struct {
	config     config.ServerConfig
	handler    http.Handler
	server     *http.Server
	dispatcher *automation.Dispatcher
	rules      *automation.Store
	segments   *segmentation.Store
	campaigns  *campaign.Store
	scheduler  *campaign.Scheduler
	verifier   *auth.Verifier
}

// NewServer wires the engine components into a chi router.
func NewServer(
	cfg config.ServerConfig,
	dispatcher *automation.Dispatcher,
	rules *automation.Store,
	segments *segmentation.Store,
	campaigns *campaign.Store,
	scheduler *campaign.Scheduler,
	verifier *auth.Verifier,
) *Server {
	s := &Server{
		config:     cfg,
		dispatcher: dispatcher,
		rules:      rules,
		segments:   segments,
		campaigns:  campaigns,
		scheduler:  scheduler,
		verifier:   verifier,
	}
	s.handler = s.routes()
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
