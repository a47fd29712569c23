// Package server implements the admin/status HTTP surface: the external
// front door that translates operator HTTP calls into Country Manager
// commands and renders the replies. Routing, JSON encoding, and the admin
// page are this package's concern; fleet state lives entirely in
// internal/manager.
package server

import (
	"net/http"
	"time"

	"github.com/aristath/geosearch/internal/backup"
	"github.com/aristath/geosearch/internal/events"
	"github.com/aristath/geosearch/internal/index"
	"github.com/aristath/geosearch/internal/manager"
	"github.com/aristath/geosearch/internal/store"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Server wires the Country Manager, search index, document store, event
// bus, and optional backup service to an HTTP router.
type Server struct {
	mgr     *manager.Manager
	idx     *index.Index
	st      *store.Store
	bus     *events.Bus
	backups *backup.Service
	restore *backup.RestoreService
	log     zerolog.Logger
	router  chi.Router
}

// New builds the router. backups and restore may be nil when R2 isn't
// configured.
func New(mgr *manager.Manager, idx *index.Index, st *store.Store, bus *events.Bus, backups *backup.Service, restore *backup.RestoreService, log zerolog.Logger) *Server {
	s := &Server{
		mgr:     mgr,
		idx:     idx,
		st:      st,
		bus:     bus,
		backups: backups,
		restore: restore,
		log:     log.With().Str("component", "server").Logger(),
	}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.logRequests)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/search", s.handleSearch)
	r.Get("/server_info", s.handleServerInfo)
	r.Get("/server_status", s.handleServerStatus)
	r.Get("/events", s.handleEventsStream)

	r.Route("/cmd", func(r chi.Router) {
		r.Get("/start", s.handleStart)
		r.Get("/start_all", s.handleStartAll)
		r.Get("/stop", s.handleStop)
		r.Get("/shutdown_all", s.handleShutdownAll)
		r.Get("/reset", s.handleReset)
		r.Get("/reset_all", s.handleResetAll)
		r.Get("/trace", s.handleTrace)
		r.Get("/trace_server", s.handleTraceServer)
		r.Get("/sort", s.handleSort)
		r.Get("/terminate", s.handleTerminate)
	})

	if s.backups != nil {
		r.Route("/backup", func(r chi.Router) {
			r.Get("/list", s.handleBackupList)
			r.Post("/create", s.handleBackupCreate)
			r.Post("/restore", s.handleBackupStageRestore)
		})
	}

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("handled request")
	})
}
