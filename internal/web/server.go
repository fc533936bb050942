package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// DefaultAddr is the default listen address.
const DefaultAddr = "127.0.0.1:8080"

// Server is the HTTP server.
type Server struct {
	router chi.Router
	server *http.Server
	log    zerolog.Logger
}

// NewServer creates the server with middleware and routes configured.
func NewServer(addr string, handlers *Handlers, logger zerolog.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}

	router := chi.NewRouter()
	s := &Server{
		router: router,
		log:    logger.With().Str("component", "server").Logger(),
	}

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))

	router.Get("/auth/login", handlers.Login)
	router.Get("/callback", handlers.Callback)
	router.Post("/auth/logout", handlers.Logout)
	router.Get("/api/playlists", handlers.ListPlaylists)
	router.Get("/api/playlists/{id}", handlers.PlaylistStats)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("server listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and shuts down gracefully on interrupt.
func (s *Server) Run() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
		s.log.Info().Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.log.Info().Msg("server stopped")
	return nil
}
