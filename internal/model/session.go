package model

import "time"

// SessionType distinguishes the three exchange kinds.
type SessionType string

const (
	SessionFull        SessionType = "full_sync"
	SessionIncremental SessionType = "incremental_sync"
	SessionResolution  SessionType = "conflict_resolution"
)

// SessionStatus is the session lifecycle state. Every session reaches exactly
// one terminal state before the call that opened it returns.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionPartial    SessionStatus = "partial"
)

// Session is one pull/push/full_sync exchange attempt, retained as audit
// trail regardless of outcome.
type Session struct {
	ID          int64         `json:"-"`
	SessionID   string        `json:"session_id"`
	SessionType SessionType   `json:"session_type"`
	Owner       string        `json:"-"`
	Checkpoint  *time.Time    `json:"last_sync_timestamp,omitempty"`
	Status      SessionStatus `json:"status"`

	RecordsSynced  int `json:"records_synced"`
	ConflictsFound int `json:"conflicts_found"`
	ErrorsCount    int `json:"errors_count"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ClientInfo map[string]any `json:"client_info,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`

	ErrorMessage string            `json:"error_message,omitempty"`
	ErrorDetails map[string]string `json:"error_details,omitempty"`
}
