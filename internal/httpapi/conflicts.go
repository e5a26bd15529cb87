package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ukombozini/fieldsync/internal/auth"
	"github.com/ukombozini/fieldsync/internal/model"
)

// resolveReq is the request body for conflict resolution
type resolveReq struct {
	ResolutionType string         `json:"resolution_type"`
	ResolvedData   map[string]any `json:"resolved_data,omitempty"`
}

// conflictID parses the {id} route param
func conflictID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ListConflicts handles GET /v1/sync/conflicts?status=<pending|resolved|ignored>
// Returns the caller's conflicts, newest first
func (s *Server) ListConflicts(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	status := model.ResolutionStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.ResolutionPending, model.ResolutionResolved, model.ResolutionIgnored:
	default:
		writeErr(w, 400, "invalid status filter")
		return
	}

	conflicts, err := s.Sync.Resolver().List(r.Context(), userID, status)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("owner", userID).Msg("failed to list conflicts")
		writeErr(w, 500, "query failed")
		return
	}

	writeJSON(w, 200, map[string]any{"conflicts": conflicts})
}

// ResolveConflict handles POST /v1/sync/conflicts/{id}/resolve
// Applies server_wins, client_wins, or manual_merge to a pending conflict
func (s *Server) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, ok := conflictID(r)
	if !ok {
		writeErr(w, 400, "invalid conflict id")
		return
	}

	var req resolveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("invalid resolve request body")
		writeErr(w, 400, "invalid json")
		return
	}

	resolved, err := s.Sync.Resolver().Resolve(r.Context(), userID, id, model.ConflictType(req.ResolutionType), req.ResolvedData, userID)
	if err != nil {
		code := conflictStatus(err)
		if code == 500 {
			log.Ctx(r.Context()).Error().Err(err).Int64("conflictId", id).Msg("failed to resolve conflict")
			writeErr(w, code, "resolution failed")
			return
		}
		writeErr(w, code, err.Error())
		return
	}

	writeJSON(w, 200, resolved)
}

// IgnoreConflict handles POST /v1/sync/conflicts/{id}/ignore
// Marks a pending conflict ignored without touching the record
func (s *Server) IgnoreConflict(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, ok := conflictID(r)
	if !ok {
		writeErr(w, 400, "invalid conflict id")
		return
	}

	ignored, err := s.Sync.Resolver().Ignore(r.Context(), userID, id)
	if err != nil {
		code := conflictStatus(err)
		if code == 500 {
			log.Ctx(r.Context()).Error().Err(err).Int64("conflictId", id).Msg("failed to ignore conflict")
			writeErr(w, code, "ignore failed")
			return
		}
		writeErr(w, code, err.Error())
		return
	}

	writeJSON(w, 200, ignored)
}
