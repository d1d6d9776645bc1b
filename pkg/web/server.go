// Package web serves the dashboard's JSON API, websocket feed and metrics.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

type Options struct {
	Address string
	// AllowedOrigins lists browser origins besides the server's own host
	// that may call the API and open the websocket feed.
	AllowedOrigins []string
}

type Server struct {
	dashboard Dashboard
	layouts   LayoutStore
	hub       *Hub
	logger    zerolog.Logger
	opts      Options
	handler   http.Handler
}

// NewServer builds the HTTP surface. layouts may be nil when no store is
// configured; the named layout endpoints then answer 404.
func NewServer(opts Options, dashboard Dashboard, layouts LayoutStore, hub *Hub, logger zerolog.Logger) *Server {
	s := &Server{
		dashboard: dashboard,
		layouts:   layouts,
		hub:       hub,
		logger:    logger,
		opts:      opts,
	}
	if hub != nil {
		hub.SetOriginCheck(s.isAllowedOrigin)
	}
	s.handler = s.buildRouter()
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Use(requireJSON)

		r.Get("/status", s.handleStatus)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", s.handleListSubscriptions)
			r.Post("/", s.handleSubscribe)
			r.Delete("/{pattern}", s.handleUnsubscribe)
		})

		r.Post("/publish", s.handlePublish)
		r.Post("/connect", s.handleConnect)
		r.Post("/disconnect", s.handleDisconnect)
		r.Get("/log", s.handleLog)

		r.Get("/layout", s.handleGetLayout)
		r.Post("/layout/save", s.handleSaveLayoutFile)

		r.Route("/layouts", func(r chi.Router) {
			r.Get("/", s.handleListLayouts)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetNamedLayout)
				r.Put("/", s.handlePutNamedLayout)
				r.Delete("/", s.handleDeleteNamedLayout)
				r.Post("/apply", s.handleApplyNamedLayout)
			})
		})
	})

	if s.hub != nil {
		r.Get("/ws", s.hub.ServeHTTP)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeAPIError(w, http.StatusNotFound, ErrCodeNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeAPIError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "Method not allowed")
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Address, err)
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	if s.hub != nil {
		go s.hub.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", listener.Addr().String()).Msg("Starting web server")
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down web server: %w", err)
	}
	return nil
}
