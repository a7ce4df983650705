// Package core provides the HTTP chassis for the SolarScan API. It builds a
// chi router and enforces cross-cutting concerns (panic recovery, request
// ids, logging, CORS, metrics and rate limiting) before requests reach the
// domain handlers.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"solarscan/internal/config"
)

// Server encapsulates the dependencies of the API so that tests can inject
// their own collectors, stores and probes.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// Optional. Nil disables the corresponding middleware.
	Metrics        MetricsCollector
	RateLimitStore RateLimitStore

	// HealthProbes are run concurrently by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount domain handlers under /v1. They are populated
	// by the entry point so that core never imports handler packages.
	V1RouteRegistrars []func(chi.Router)

	// ShutdownHooks release resources owned by the process (worker pools,
	// schedulers, connection pools). They run in reverse registration order.
	ShutdownHooks []func(context.Context) error

	router *chi.Mux
}

// NewServer validates its inputs and prepares an empty router. The caller
// mounts routes with MountRoutes after populating the registrars.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown runs every shutdown hook, newest first, and joins their errors.
// A failing hook does not prevent the remaining ones from running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated", "hooks", len(s.ShutdownHooks))

	var errs []error
	for i := len(s.ShutdownHooks) - 1; i >= 0; i-- {
		if err := s.ShutdownHooks[i](ctx); err != nil {
			s.Logger.Error("shutdown hook failed", "index", i, "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
