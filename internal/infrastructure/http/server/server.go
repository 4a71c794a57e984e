// Package server provides the JSON API HTTP server.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	chatapp "github.com/pantrychat/v1/internal/application/chat"
	"github.com/pantrychat/v1/internal/application/search"
	"github.com/pantrychat/v1/internal/infrastructure/config"
	"github.com/pantrychat/v1/internal/infrastructure/http/handlers"
	"github.com/pantrychat/v1/internal/infrastructure/http/middleware"
)

// Server is the HTTP server for the chat and search API.
type Server struct {
	config      *config.Config
	logger      *zap.Logger
	router      *chi.Mux
	server      *http.Server
	chatService *chatapp.Service
	engine      *search.Engine
}

// NewServer creates a new HTTP server instance.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	chatService *chatapp.Service,
	engine *search.Engine,
) *Server {
	s := &Server{
		config:      cfg,
		logger:      logger.Named("http"),
		chatService: chatService,
		engine:      engine,
	}

	s.router = s.setupRoutes()
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// Router exposes the configured mux, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Security())
	r.Use(middleware.JSONOnly())
	// The write timeout in config leaves headroom over the longest
	// webhook dispatch; the per-request timeout here must do the same.
	r.Use(chimiddleware.Timeout(s.config.Server.WriteTimeout))

	r.Get("/health", s.handleHealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		chatH := handlers.NewChatHandlers(s.chatService, s.logger)
		searchH := handlers.NewSearchHandlers(s.engine, s.logger)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.config.Auth.JWTSecret))

			r.Route("/chat", func(r chi.Router) {
				r.Post("/message", chatH.HandleMessage)
				r.Get("/history", chatH.GetHistory)
				r.Delete("/history", chatH.DeleteHistory)
			})

			r.Post("/search", searchH.Search)
		})
	})

	return r
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":%q,"version":%q,"timestamp":%q}`,
		s.config.App.Name, s.config.App.Version, time.Now().UTC().Format(time.RFC3339))
}

// Start begins serving requests. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
