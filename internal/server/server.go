// Package server exposes the memory engine over an HTTP JSON API.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Ashish-dwi99/FadeMem/internal/engine"
	"github.com/Ashish-dwi99/FadeMem/internal/store"
)

// Server is the FadeMem HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
	log     zerolog.Logger
}

// New creates a Server over the given engine.
func New(db *store.DB, eng *engine.Engine, version string, log zerolog.Logger) *Server {
	s := &Server{
		db:      db,
		engine:  eng,
		version: version,
		started: time.Now(),
		log:     log,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/memories", s.handleAddMemory)
		r.Post("/memories/extract", s.handleExtract)
		r.Get("/memories/{memoryID}", s.handleGetMemory)
		r.Get("/memories/{memoryID}/history", s.handleHistory)

		r.Get("/search", s.handleSearch)

		r.Post("/decay", s.handleDecay)
		r.Post("/fusion", s.handleFusion)

		r.Get("/categories", s.handleCategories)
		r.Get("/categories/summaries", s.handleAllSummaries)
		r.Get("/categories/{categoryID}/summary", s.handleCategorySummary)
		r.Get("/categories/{categoryID}/memories", s.handleCategoryMemories)

		r.Get("/stats", s.handleStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
