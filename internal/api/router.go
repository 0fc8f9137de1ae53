package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/meur/boundlexx/internal/models"
	"github.com/meur/boundlexx/internal/state"
)

// Loader starts background loads; *loader.Loader implements it.
type Loader interface {
	Start(ctx context.Context, kind models.Kind, locale string) bool
}

// Options configures the HTTP facade.
type Options struct {
	// Locale is used when a request names none.
	Locale         string
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Server exposes the cache over HTTP.
type Server struct {
	state  *state.State
	loader Loader
	base   context.Context
	opts   Options
	router chi.Router
}

// New creates a new API server. Background loads run on base.
func New(base context.Context, st *state.State, loader Loader, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		state:  st,
		loader: loader,
		base:   base,
		opts:   opts,
		router: chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	if len(s.opts.AllowedOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/kinds", s.handleGetKinds)
		r.Get("/schema", s.handleGetSchema)

		r.Route("/{kind}", func(r chi.Router) {
			r.Get("/", s.handleGetRecords)
			r.Post("/load", s.handleLoad)
			r.Get("/{id}", s.handleGetRecord)
		})
	})

	// Health check
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// --- Response helpers ---

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
