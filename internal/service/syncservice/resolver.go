package syncservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ukombozini/fieldsync/internal/model"
	"github.com/ukombozini/fieldsync/internal/storage"
	"github.com/ukombozini/fieldsync/internal/syncx"
)

// Resolver persists detected conflicts for asynchronous review and applies
// the outcome once a decision is made.
type Resolver struct {
	db    storage.DB
	clock syncx.Clock
}

// NewResolver constructs a Resolver.
func NewResolver(db storage.DB, clock syncx.Clock) *Resolver {
	return &Resolver{db: db, clock: clock}
}

// Get loads one conflict, owner-scoped.
func (r *Resolver) Get(ctx context.Context, owner string, id int64) (model.Conflict, error) {
	c, err := r.db.Conflicts().ByID(ctx, id)
	if err != nil {
		return model.Conflict{}, err
	}
	if c.Owner != owner {
		return model.Conflict{}, storage.ErrConflictNotFound
	}
	return c, nil
}

// List returns the caller's conflicts, optionally filtered by status.
func (r *Resolver) List(ctx context.Context, owner string, status model.ResolutionStatus) ([]model.Conflict, error) {
	return r.db.Conflicts().ListByOwner(ctx, owner, status)
}

// Resolve applies a resolution decision to a pending conflict and, for
// client_wins and manual_merge, mutates the underlying domain record. The
// whole operation runs in one transaction.
func (r *Resolver) Resolve(ctx context.Context, owner string, conflictID int64, resolutionType model.ConflictType, resolvedData map[string]any, actor string) (model.Conflict, error) {
	if !model.ValidResolutionType(resolutionType) {
		return model.Conflict{}, ErrInvalidResolutionType
	}
	if resolutionType == model.ConflictManualMerge && resolvedData == nil {
		return model.Conflict{}, ErrResolvedDataRequired
	}

	var resolved model.Conflict
	err := r.db.InTx(ctx, func(tx storage.Tx) error {
		c, err := tx.Conflicts().ByID(ctx, conflictID)
		if err != nil {
			return err
		}
		if c.Owner != owner {
			return storage.ErrConflictNotFound
		}
		if c.ResolutionStatus != model.ResolutionPending {
			return ErrConflictAlreadyResolved
		}

		switch resolutionType {
		case model.ConflictServerWins:
			// Keep server state untouched.
			c.ResolvedData = c.ServerData
		case model.ConflictClientWins:
			snapshot, err := r.writeRecord(ctx, tx, c, c.ClientData)
			if err != nil {
				return err
			}
			c.ResolvedData = snapshot
		case model.ConflictManualMerge:
			snapshot, err := r.writeRecord(ctx, tx, c, resolvedData)
			if err != nil {
				return err
			}
			c.ResolvedData = snapshot
		}

		now := r.clock.Now()
		c.ConflictType = resolutionType
		c.ResolutionStatus = model.ResolutionResolved
		c.ResolvedBy = actor
		c.ResolvedAt = &now

		if err := tx.Conflicts().Update(ctx, c); err != nil {
			return err
		}
		resolved = c
		return nil
	})
	if err != nil {
		return model.Conflict{}, err
	}

	recordsWritten := 0
	if resolutionType != model.ConflictServerWins {
		recordsWritten = 1
	}
	r.recordResolutionSession(ctx, resolved, string(resolutionType), recordsWritten)

	log.Info().
		Int64("conflictId", resolved.ID).
		Str("model", resolved.ModelName).
		Str("resolution", string(resolutionType)).
		Str("resolvedBy", actor).
		Msg("sync conflict resolved")

	return resolved, nil
}

// Ignore marks a pending conflict ignored without touching the domain record.
func (r *Resolver) Ignore(ctx context.Context, owner string, conflictID int64) (model.Conflict, error) {
	var ignored model.Conflict
	err := r.db.InTx(ctx, func(tx storage.Tx) error {
		c, err := tx.Conflicts().ByID(ctx, conflictID)
		if err != nil {
			return err
		}
		if c.Owner != owner {
			return storage.ErrConflictNotFound
		}
		if c.ResolutionStatus != model.ResolutionPending {
			return ErrConflictAlreadyResolved
		}

		c.ResolutionStatus = model.ResolutionIgnored
		if err := tx.Conflicts().Update(ctx, c); err != nil {
			return err
		}
		ignored = c
		return nil
	})
	if err != nil {
		return model.Conflict{}, err
	}

	r.recordResolutionSession(ctx, ignored, "ignored", 0)

	log.Info().Int64("conflictId", ignored.ID).Str("model", ignored.ModelName).Msg("sync conflict ignored")
	return ignored, nil
}

// recordResolutionSession appends the audit row for one resolution decision.
// Unlike pull/push sessions the work is already done when the row is written,
// so it is created directly in its terminal state.
func (r *Resolver) recordResolutionSession(ctx context.Context, c model.Conflict, outcome string, recordsWritten int) {
	now := r.clock.Now()
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]

	_, err := r.db.Sessions().Create(ctx, model.Session{
		SessionID:      fmt.Sprintf("conflict_resolution_%s_%d_%s", c.Owner, now.Unix(), suffix),
		SessionType:    model.SessionResolution,
		Owner:          c.Owner,
		Status:         model.SessionCompleted,
		RecordsSynced:  recordsWritten,
		ConflictsFound: 1,
		StartedAt:      now,
		CompletedAt:    &now,
		ClientInfo: map[string]any{
			"conflict_id": c.ID,
			"model_name":  c.ModelName,
			"outcome":     outcome,
		},
	})
	if err != nil {
		log.Error().Err(err).Int64("conflictId", c.ID).Msg("failed to record resolution session")
	}
}

// writeRecord loads the conflicted domain record and writes every field of
// data into it through its own store, so normal save discipline applies.
func (r *Resolver) writeRecord(ctx context.Context, tx storage.Tx, c model.Conflict, data map[string]any) (map[string]any, error) {
	rs, err := tx.Records(c.ModelName)
	if err != nil {
		return nil, err
	}

	rec, err := rs.ByID(ctx, c.RecordID)
	if errors.Is(err, storage.ErrRecordNotFound) {
		// missing_record conflicts reference nothing the server holds, so
		// only server_wins (or ignore) can settle them.
		return nil, ErrRecordMissing
	}
	if err != nil {
		return nil, fmt.Errorf("load %s #%d: %w", c.ModelName, c.RecordID, err)
	}

	rec.Data = syncx.ApplyFields(rec.Data, dataBody(data))
	updated, err := rs.Update(ctx, rec)
	if err != nil {
		return nil, err
	}
	return dataBody(updated.Data), nil
}
