package model

import (
	"time"

	"github.com/ukombozini/fieldsync/internal/syncx"
)

// ConflictType classifies how a conflict arose or how it was resolved.
type ConflictType string

const (
	ConflictServerWins  ConflictType = "server_wins"
	ConflictClientWins  ConflictType = "client_wins"
	ConflictManualMerge ConflictType = "manual_merge"
	ConflictDuplicate   ConflictType = "duplicate"
	ConflictMissing     ConflictType = "missing_record"
)

// ResolutionStatus is the conflict lifecycle state.
type ResolutionStatus string

const (
	ResolutionPending  ResolutionStatus = "pending"
	ResolutionResolved ResolutionStatus = "resolved"
	ResolutionIgnored  ResolutionStatus = "ignored"
)

// ValidResolutionType reports whether t is an acceptable argument to the
// resolve operation. duplicate and missing_record describe detection outcomes,
// not resolutions.
func ValidResolutionType(t ConflictType) bool {
	switch t {
	case ConflictServerWins, ConflictClientWins, ConflictManualMerge:
		return true
	}
	return false
}

// Conflict is a durable record of a detected disagreement between a client
// push and server state. Both snapshots are captured verbatim at detection
// time; the conflict references the domain record by (ModelName, RecordID)
// since domain records live in heterogeneous tables.
type Conflict struct {
	ID        int64  `json:"id"`
	Owner     string `json:"-"`
	ModelName string `json:"model_name"`
	RecordID  int64  `json:"record_id"`
	SyncToken string `json:"sync_token"`

	ServerData     map[string]any        `json:"server_data"`
	ClientData     map[string]any        `json:"client_data"`
	ConflictFields []syncx.FieldConflict `json:"conflict_fields"`

	ConflictType     ConflictType     `json:"conflict_type"`
	ResolutionStatus ResolutionStatus `json:"resolution_status"`
	ResolvedData     map[string]any   `json:"resolved_data,omitempty"`
	ResolvedBy       string           `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty"`

	DetectedAt time.Time      `json:"detected_at"`
	ClientInfo map[string]any `json:"client_info,omitempty"`
}

// ConflictHint is an advisory pull-side warning: a record the client reported
// as locally dirty has also changed on the server since the client's
// checkpoint. Nothing is persisted; the client decides whether to push and
// let the detector record a real conflict.
type ConflictHint struct {
	ModelName        string     `json:"model_name"`
	RecordID         int64      `json:"record_id"`
	SyncToken        string     `json:"sync_token"`
	ServerLastSyncAt *time.Time `json:"server_last_sync_at"`
	ClientLastSyncAt *time.Time `json:"client_last_sync_at"`
}
