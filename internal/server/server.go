// Package server provides the HTTP API for Kokuban.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kokuban/internal/config"
	"github.com/hyperjump/kokuban/internal/notes"
)

// Synthesizer produces spoken audio for note content. An empty voiceID selects
// the configured default voice. It is nil when no speech API key is configured.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// Server is the HTTP server for the Kokuban API.
type Server struct {
	notes  *notes.Service
	speech Synthesizer
	config *config.ServerConfig
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(notesSvc *notes.Service, speechSvc Synthesizer, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		notes:  notesSvc,
		speech: speechSvc,
		config: cfg,
		logger: logger,
	}
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Uploads hold the room lock through a multi-minute vision call.
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/rooms", s.handleCreateRoom)
		r.Get("/rooms", s.handleListRooms)
		r.Route("/rooms/{code}", func(r chi.Router) {
			r.Get("/", s.handleGetRoom)
			r.Post("/upload-image", s.handleUploadImage)
			r.Get("/notes", s.handleGetNotes)
			r.Get("/search", s.handleSearchNotes)
			r.Post("/highlight", s.handleHighlight)
			r.Post("/comments", s.handleAddComment)
			r.Get("/comments", s.handleGetComments)
		})
		r.Post("/tts", s.handleTTS)
	})

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
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

// corsMiddleware allows the browser frontend, served from another origin, to
// call the API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
