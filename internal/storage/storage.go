// Package storage defines the store contracts the sync engine runs over.
// Domain records live in heterogeneous per-model tables; the engine reaches
// them through a registry of uniformly-shaped record stores rather than a
// shared supertype.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ukombozini/fieldsync/internal/model"
)

var (
	// ErrUnknownEntityType is returned for model names outside the sync allow-list.
	ErrUnknownEntityType = errors.New("unknown entity type")
	// ErrRecordNotFound is returned when a record lookup matches nothing.
	ErrRecordNotFound = errors.New("record not found")
	// ErrConflictNotFound is returned when a conflict lookup matches nothing.
	ErrConflictNotFound = errors.New("conflict not found")
	// ErrSessionNotFound is returned when a session lookup matches nothing.
	ErrSessionNotFound = errors.New("session not found")
	// ErrDuplicateToken is returned when an insert would violate sync token uniqueness.
	ErrDuplicateToken = errors.New("duplicate sync token")
)

// ModelNames is the fixed allow-list of syncable entity types, in the order
// full dumps are produced.
var ModelNames = []string{
	"meeting_schedule",
	"field_visit",
	"event",
	"event_attendance",
	"loan",
	"loan_repayment",
	"savings_transaction",
	"message",
}

// KnownModel reports whether name is on the sync allow-list.
func KnownModel(name string) bool {
	for _, m := range ModelNames {
		if m == name {
			return true
		}
	}
	return false
}

// ChangeQuery filters a delta query. Zero-value fields are unset.
type ChangeQuery struct {
	// Checkpoint, when set, restricts results to records with
	// last_sync_at > Checkpoint or last_sync_at IS NULL.
	Checkpoint *time.Time
	// MinSyncToken, when non-empty, further restricts to sync_token > MinSyncToken.
	MinSyncToken string
}

// RecordStore is the typed adapter for one syncable entity type.
// Every persist refreshes last_sync_at and assigns a sync token if the record
// has none; sync never bypasses that discipline.
type RecordStore interface {
	// ChangesSince returns non-deleted records matching q, ordered by
	// (last_sync_at, id) ascending for deterministic pagination.
	ChangesSince(ctx context.Context, q ChangeQuery) ([]model.Record, error)
	// All returns every non-deleted record, same ordering as ChangesSince.
	All(ctx context.Context) ([]model.Record, error)
	// BySyncToken loads a record (deleted or not) by its sync token.
	// Returns ErrRecordNotFound if no record carries the token.
	BySyncToken(ctx context.Context, token string) (model.Record, error)
	// ByID loads a record (deleted or not) by primary key.
	ByID(ctx context.Context, id int64) (model.Record, error)
	// Create persists a new record and returns it with its assigned ID,
	// token, and last_sync_at. Returns ErrDuplicateToken when the token is
	// already taken within this entity type.
	Create(ctx context.Context, rec model.Record) (model.Record, error)
	// Update persists rec's data and delete flags, refreshing last_sync_at.
	Update(ctx context.Context, rec model.Record) (model.Record, error)
	// SoftDelete marks the record deleted; it stays loadable by ID or token
	// but disappears from ChangesSince and All.
	SoftDelete(ctx context.Context, id int64) error
	// Restore reverses a soft delete.
	Restore(ctx context.Context, id int64) error
}

// ConflictStore persists detected conflicts.
type ConflictStore interface {
	Create(ctx context.Context, c model.Conflict) (model.Conflict, error)
	ByID(ctx context.Context, id int64) (model.Conflict, error)
	Update(ctx context.Context, c model.Conflict) error
	// ListByOwner returns the caller's conflicts, newest first, optionally
	// filtered by resolution status ("" means all).
	ListByOwner(ctx context.Context, owner string, status model.ResolutionStatus) ([]model.Conflict, error)
}

// SessionStore persists sync sessions. Sessions are written outside the
// entity transactions so the audit row survives a failed exchange.
type SessionStore interface {
	Create(ctx context.Context, s model.Session) (model.Session, error)
	Update(ctx context.Context, s model.Session) error
	BySessionID(ctx context.Context, sessionID string) (model.Session, error)
	ListByOwner(ctx context.Context, owner string) ([]model.Session, error)
}

// UserStore resolves authenticated subjects to stable actor IDs, creating
// the actor on first auth.
type UserStore interface {
	Ensure(ctx context.Context, sub string) (string, error)
}

// Tx is the transactional view handed to InTx callbacks. Records and
// conflict writes made through it commit or roll back together.
type Tx interface {
	// Records returns the store for one entity type, or ErrUnknownEntityType.
	Records(modelName string) (RecordStore, error)
	Conflicts() ConflictStore
}

// DB is the top-level storage handle.
type DB interface {
	// InTx runs fn inside one transaction. The orchestrator opens one
	// transaction per entity type during push (best-effort per type) and one
	// per pull/full_sync call.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Sessions() SessionStore
	Conflicts() ConflictStore
	Users() UserStore
}
