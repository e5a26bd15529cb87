package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ukombozini/fieldsync/internal/auth"
	"github.com/ukombozini/fieldsync/internal/storage"
)

// ListSessions handles GET /v1/sync/sessions
// Returns the caller's sync sessions, newest first
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	sessions, err := s.Sync.Sessions().ListByOwner(r.Context(), userID)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("owner", userID).Msg("failed to list sessions")
		writeErr(w, 500, "query failed")
		return
	}

	writeJSON(w, 200, map[string]any{"sessions": sessions})
}

// GetSession handles GET /v1/sync/sessions/{id}
// Sessions are owner-scoped; another actor's session reads as not found
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	sessionID := chi.URLParam(r, "id")

	session, err := s.Sync.Sessions().BySessionID(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			writeErr(w, 404, "session not found")
			return
		}
		log.Ctx(r.Context()).Error().Err(err).Str("sessionId", sessionID).Msg("failed to load session")
		writeErr(w, 500, "query failed")
		return
	}
	if session.Owner != userID {
		writeErr(w, 404, "session not found")
		return
	}

	writeJSON(w, 200, session)
}
