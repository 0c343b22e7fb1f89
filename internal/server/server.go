// Package server provides the HTTP API for Bekutoru.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/bekutoru/internal/config"
	"github.com/hyperjump/bekutoru/internal/service"
)

// Server is the HTTP server for the Bekutoru API.
type Server struct {
	svc    *service.Service
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(svc *service.Service, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		svc:    svc,
		config: cfg,
		logger: logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1/libraries", func(r chi.Router) {
		r.Post("/", s.handleCreateLibrary)
		r.Get("/", s.handleListLibraries)
		r.Route("/{libraryID}", func(r chi.Router) {
			r.Get("/", s.handleGetLibrary)
			r.Patch("/", s.handleUpdateLibrary)
			r.Delete("/", s.handleDeleteLibrary)

			r.Post("/documents", s.handleCreateDocument)
			r.Get("/documents/{documentID}", s.handleGetDocument)
			r.Patch("/documents/{documentID}", s.handleUpdateDocument)
			r.Delete("/documents/{documentID}", s.handleDeleteDocument)

			r.Post("/chunks", s.handleCreateChunk)
			r.Get("/chunks/{chunkID}", s.handleGetChunk)
			r.Patch("/chunks/{chunkID}", s.handleUpdateChunk)
			r.Delete("/chunks/{chunkID}", s.handleDeleteChunk)

			r.Post("/index", s.handleBuildIndex)
			r.Post("/search", s.handleSearch)
		})
	})
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
