// Package api serves the browser hub over REST and a websocket relay.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dhruvsoni1802/browser-hub/internal/core"
	"github.com/dhruvsoni1802/browser-hub/internal/metrics"
)

// Server represents the HTTP API server
type Server struct {
	router *chi.Mux
	server *http.Server
}

// NewServer creates a new HTTP server. mcpHandler, when set, is mounted at /mcp.
func NewServer(hub *core.Core, mcpHandler http.Handler) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(RecoveryMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Mcp-Session-Id"},
		ExposedHeaders:   []string{"Link", "Mcp-Session-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	handlers := NewHandlers(hub)

	router.Get("/health", handlers.Health)
	router.Get("/status", handlers.Status)
	router.Handle("/metrics", metrics.Handler())

	// Page actions
	router.Post("/navigate", handlers.Navigate)
	router.Post("/screenshot", handlers.Screenshot)
	router.Post("/click", handlers.Click)
	router.Post("/type", handlers.Type)
	router.Post("/scroll", handlers.Scroll)
	router.Post("/evaluate", handlers.Evaluate)
	router.Post("/content", handlers.Content)

	// Saved sessions and interactive logins
	router.Route("/sessions", func(r chi.Router) {
		r.Get("/", handlers.ListSessions)

		r.Route("/{name}", func(r chi.Router) {
			r.Delete("/", handlers.DeleteSession)
			r.Post("/login", handlers.StartLogin)
			r.Post("/save", handlers.SaveLogin)
			r.Post("/close", handlers.CloseLogin)
		})
	})
	router.Get("/logins", handlers.ListLogins)

	router.Post("/contexts/{id}/close", handlers.CloseContext)
	router.Post("/shutdown", handlers.Shutdown)

	// External browser bridge
	router.Get("/tabs", handlers.Tabs)
	router.Post("/chrome/launch", handlers.LaunchChrome)
	router.Post("/chrome/connect", handlers.ConnectChrome)

	router.Get("/ws", handlers.Relay)

	if mcpHandler != nil {
		router.Handle("/mcp", mcpHandler)
	}

	cfg := hub.Config
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		router: router,
		server: server,
	}
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting HTTP server", "addr", s.server.Addr)

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	slog.Info("HTTP server stopped")
	return nil
}
