package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/ukombozini/fieldsync/internal/auth"
	"github.com/ukombozini/fieldsync/internal/service/syncservice"
	"github.com/ukombozini/fieldsync/internal/storage"
)

// Server holds dependencies for HTTP handlers
type Server struct {
	DB   storage.DB
	Sync *syncservice.Service
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// writeErr writes a JSON error body with the given status code
func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// conflictStatus maps resolution errors to HTTP status codes
func conflictStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrConflictNotFound):
		return http.StatusNotFound
	case errors.Is(err, syncservice.ErrInvalidResolutionType),
		errors.Is(err, syncservice.ErrResolvedDataRequired):
		return http.StatusBadRequest
	case errors.Is(err, syncservice.ErrConflictAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, syncservice.ErrRecordMissing):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Routes creates the HTTP router with all sync endpoints
func (s *Server) Routes(jwt auth.JWTCfg) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check (unauthenticated)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	})

	// All sync endpoints require authentication
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.DB.Users(), jwt))

		r.Post("/v1/sync/pull", s.Pull)
		r.Post("/v1/sync/push", s.Push)
		r.Post("/v1/sync/full_sync", s.FullSync)

		r.Get("/v1/sync/conflicts", s.ListConflicts)
		r.Post("/v1/sync/conflicts/{id}/resolve", s.ResolveConflict)
		r.Post("/v1/sync/conflicts/{id}/ignore", s.IgnoreConflict)

		r.Get("/v1/sync/sessions", s.ListSessions)
		r.Get("/v1/sync/sessions/{id}", s.GetSession)
	})

	log.Info().Msg("HTTP routes registered")
	return r
}
