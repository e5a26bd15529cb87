// Package model holds the shared types of the sync subsystem: syncable
// records, sessions, and conflicts.
package model

import "time"

// Record is a syncable domain record as seen by the sync engine. Domain
// payload fields live in Data; the remaining fields are the sync envelope.
type Record struct {
	ID         int64
	SyncToken  string
	LastSyncAt *time.Time
	IsDeleted  bool
	DeletedAt  *time.Time
	Data       map[string]any
}

// ChangeType classifies a client-submitted mutation.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Change is one client-submitted mutation for a single record.
type Change struct {
	Type      ChangeType     `json:"type"`
	SyncToken string         `json:"sync_token"`
	Data      map[string]any `json:"data,omitempty"`
}

// ChangeRecord is the envelope a record travels in during pull and full_sync.
// Sync plumbing (token, timestamps, delete flag) stays in the envelope; Data
// carries only domain fields.
type ChangeRecord struct {
	ID         int64          `json:"id"`
	SyncToken  string         `json:"sync_token"`
	LastSyncAt *time.Time     `json:"last_sync_at"`
	IsDeleted  bool           `json:"is_deleted"`
	Data       map[string]any `json:"data"`
}

// ApplyResult reports a successfully applied change.
type ApplyResult struct {
	ID     int64  `json:"id,omitempty"`
	Action string `json:"action"`
}

const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionDeleted  = "deleted"
	ActionNotFound = "not_found"
)
