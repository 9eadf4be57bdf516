// ABOUTME: HTTP server exposing the conversation API consumed by the inbox client
// ABOUTME: Routes with gorilla/mux behind JWT auth; graceful shutdown on context cancel

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/2389/coven-inbox/internal/auth"
	"github.com/2389/coven-inbox/internal/clock"
	"github.com/2389/coven-inbox/internal/dedupe"
	"github.com/2389/coven-inbox/internal/store"
)

// shutdownTimeout bounds how long in-flight requests get on shutdown.
const shutdownTimeout = 5 * time.Second

// Config holds the collaborators of a Server.
type Config struct {
	Addr     string
	Store    store.Store
	Verifier auth.TokenVerifier

	// Sends remembers idempotency keys of recent sends. Required.
	Sends *dedupe.Cache

	Logger *slog.Logger
	Clock  clock.Clock
}

// Server serves the conversation API.
type Server struct {
	addr     string
	store    store.Store
	sends    *dedupe.Cache
	logger   *slog.Logger
	clock    clock.Clock
	handler  http.Handler
	listener net.Listener
}

// New builds a Server and its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("server: store is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("server: token verifier is required")
	}
	if cfg.Sends == nil {
		return nil, errors.New("server: send cache is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	s := &Server{
		addr:   cfg.Addr,
		store:  cfg.Store,
		sends:  cfg.Sends,
		logger: logger.With("component", "server"),
		clock:  clk,
	}
	s.handler = s.routes(cfg.Verifier, logger)
	return s, nil
}

func (s *Server) routes(verifier auth.TokenVerifier, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(mux.MiddlewareFunc(auth.HTTPAuthMiddleware(s.store, verifier, logger)))
	api.HandleFunc("/viewers/{viewer}/conversations", s.handleListConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", s.handleListMessages).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", s.handleSendMessage).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/read", s.handleMarkRead).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		sendJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Listen binds the configured address. Addr reports the bound address,
// which is useful when listening on port 0.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound listener address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Run serves until ctx is canceled, then shuts down gracefully.
// It calls Listen if that has not happened yet.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.listener.Addr().String())
		if err := httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
	case serveErr = <-errCh:
	}

	// The caller's context is already canceled here.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return serveErr
}
