package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ukombozini/fieldsync/internal/auth"
	"github.com/ukombozini/fieldsync/internal/service/syncservice"
	"github.com/ukombozini/fieldsync/internal/storage"
)

// sessionMeta collects client diagnostics for the session audit row.
// RemoteAddr is already rewritten by the RealIP middleware.
func sessionMeta(r *http.Request) syncservice.SessionMeta {
	return syncservice.SessionMeta{
		UserAgent: r.UserAgent(),
		IPAddress: r.RemoteAddr,
	}
}

// Pull handles POST /v1/sync/pull
// Returns per-type deltas since the client's checkpoint plus advisory
// conflict hints for records the client reports as locally dirty
func (s *Server) Pull(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req syncservice.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("invalid pull request body")
		writeErr(w, 400, "invalid json")
		return
	}

	// Empty model_names means everything on the allow-list
	if len(req.ModelNames) == 0 {
		req.ModelNames = storage.ModelNames
	}

	resp, err := s.Sync.Pull(r.Context(), userID, req, sessionMeta(r))
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("owner", userID).Msg("pull failed")
		writeErr(w, 500, "pull failed")
		return
	}

	writeJSON(w, 200, resp)
}

// Push handles POST /v1/sync/push
// Applies the client's changes per entity type; conflicts come back in the
// response body, not as an HTTP error
func (s *Server) Push(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req syncservice.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("invalid push request body")
		writeErr(w, 400, "invalid json")
		return
	}

	resp, err := s.Sync.Push(r.Context(), userID, req, sessionMeta(r))
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("owner", userID).Msg("push failed")
		writeErr(w, 500, "push failed")
		return
	}

	writeJSON(w, 200, resp)
}

// FullSync handles POST /v1/sync/full_sync
// Dumps every live record of the requested types for client bootstrap
func (s *Server) FullSync(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req syncservice.FullSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("invalid full_sync request body")
		writeErr(w, 400, "invalid json")
		return
	}

	if len(req.ModelNames) == 0 {
		req.ModelNames = storage.ModelNames
	}

	resp, err := s.Sync.FullSync(r.Context(), userID, req, sessionMeta(r))
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("owner", userID).Msg("full sync failed")
		writeErr(w, 500, "full sync failed")
		return
	}

	writeJSON(w, 200, resp)
}
