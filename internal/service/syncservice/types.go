// Package syncservice implements the offline synchronization engine: change
// extraction, conflict detection and resolution, and the session orchestrator
// behind the pull/push/full_sync exchanges.
package syncservice

import (
	"errors"
	"time"

	"github.com/ukombozini/fieldsync/internal/model"
)

var (
	// ErrInvalidResolutionType is returned for resolution types outside
	// server_wins/client_wins/manual_merge.
	ErrInvalidResolutionType = errors.New("invalid resolution type")
	// ErrConflictAlreadyResolved is returned when resolving or ignoring a
	// conflict that already left the pending state.
	ErrConflictAlreadyResolved = errors.New("conflict already resolved")
	// ErrResolvedDataRequired is returned for a manual_merge resolution
	// without merged data.
	ErrResolvedDataRequired = errors.New("resolved data required for manual merge")
	// ErrRecordMissing is returned when a resolution would write to a domain
	// record the server does not have, which is the case for every
	// missing_record conflict resolved in the client's favor.
	ErrRecordMissing = errors.New("domain record does not exist on the server")
)

// SessionMeta carries client diagnostics attached to the session audit row.
type SessionMeta struct {
	ClientInfo map[string]any
	UserAgent  string
	IPAddress  string
}

// StateClaim is a client's assertion about one record it holds locally,
// used for pull-side conflict pre-detection.
type StateClaim struct {
	SyncToken  string     `json:"sync_token"`
	LastSyncAt *time.Time `json:"last_sync_at"`
	Dirty      bool       `json:"dirty"`
}

// PullRequest asks for deltas since a checkpoint.
type PullRequest struct {
	LastSyncTimestamp *time.Time              `json:"last_sync_timestamp,omitempty"`
	SyncToken         string                  `json:"sync_token,omitempty"`
	ModelNames        []string                `json:"model_names"`
	ClientState       map[string][]StateClaim `json:"client_state,omitempty"`
	ClientInfo        map[string]any          `json:"client_info,omitempty"`
}

// PullResponse returns per-type deltas plus the server's wall clock as the
// client's next checkpoint.
type PullResponse struct {
	SessionID       string                          `json:"session_id"`
	Changes         map[string][]model.ChangeRecord `json:"changes"`
	Conflicts       []model.ConflictHint            `json:"conflicts"`
	ServerTimestamp time.Time                       `json:"server_timestamp"`
}

// PushRequest submits locally-made changes per entity type.
type PushRequest struct {
	Changes          map[string][]model.Change `json:"changes"`
	ResolveConflicts bool                      `json:"resolve_conflicts"`
	ClientInfo       map[string]any            `json:"client_info,omitempty"`
}

// PushResponse reports applied results and any conflicts recorded. A client
// must not assume a change was applied if a conflict was returned for it.
type PushResponse struct {
	SessionID       string                         `json:"session_id"`
	Results         map[string][]model.ApplyResult `json:"results"`
	Conflicts       []model.Conflict               `json:"conflicts"`
	ServerTimestamp time.Time                      `json:"server_timestamp"`
}

// FullSyncRequest asks for a complete dump of the requested types.
type FullSyncRequest struct {
	ModelNames []string       `json:"model_names"`
	ClientInfo map[string]any `json:"client_info,omitempty"`
}

// FullSyncResponse carries the full live dataset for client bootstrap.
type FullSyncResponse struct {
	SessionID       string                          `json:"session_id"`
	Data            map[string][]model.ChangeRecord `json:"data"`
	ServerTimestamp time.Time                       `json:"server_timestamp"`
}
