package syncservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ukombozini/fieldsync/internal/model"
	"github.com/ukombozini/fieldsync/internal/storage"
	"github.com/ukombozini/fieldsync/internal/syncx"
)

// detector decides, for each client-submitted change, whether it is safe to
// apply against current server state or must be escalated to a conflict.
type detector struct {
	clock syncx.Clock
}

// applyOutcome is the result of routing one change: exactly one of Result or
// Conflict is set.
type applyOutcome struct {
	Result   *model.ApplyResult
	Conflict *model.Conflict
}

// apply routes one change through the optimistic sync_token check.
// resolveConflicts=true means the caller opted into client-wins-on-this-call:
// duplicate creates become merges and divergent updates adopt the client's
// values instead of raising a conflict.
func (d *detector) apply(ctx context.Context, rs storage.RecordStore, modelName string, ch model.Change, owner string, clientInfo map[string]any, resolveConflicts bool) (applyOutcome, error) {
	switch ch.Type {
	case model.ChangeCreate:
		return d.applyCreate(ctx, rs, modelName, ch, owner, clientInfo, resolveConflicts)
	case model.ChangeUpdate:
		return d.applyUpdate(ctx, rs, modelName, ch, owner, clientInfo, resolveConflicts)
	case model.ChangeDelete:
		return d.applyDelete(ctx, rs, ch)
	default:
		return applyOutcome{}, fmt.Errorf("unsupported change type %q", ch.Type)
	}
}

func (d *detector) applyCreate(ctx context.Context, rs storage.RecordStore, modelName string, ch model.Change, owner string, clientInfo map[string]any, resolveConflicts bool) (applyOutcome, error) {
	data := dataBody(ch.Data)

	if ch.SyncToken != "" {
		existing, err := rs.BySyncToken(ctx, ch.SyncToken)
		switch {
		case err == nil:
			// Same logical record created on both sides, or a retransmit.
			if resolveConflicts {
				existing.Data = syncx.ApplyFields(existing.Data, data)
				updated, err := rs.Update(ctx, existing)
				if err != nil {
					return applyOutcome{}, err
				}
				return applyOutcome{Result: &model.ApplyResult{ID: updated.ID, Action: model.ActionUpdated}}, nil
			}
			conflict := d.newConflict(modelName, &existing, data, nil, model.ConflictDuplicate, owner, clientInfo)
			return applyOutcome{Conflict: &conflict}, nil
		case !errors.Is(err, storage.ErrRecordNotFound):
			return applyOutcome{}, err
		}
	}

	created, err := rs.Create(ctx, model.Record{SyncToken: ch.SyncToken, Data: data})
	if err != nil {
		return applyOutcome{}, err
	}
	return applyOutcome{Result: &model.ApplyResult{ID: created.ID, Action: model.ActionCreated}}, nil
}

func (d *detector) applyUpdate(ctx context.Context, rs storage.RecordStore, modelName string, ch model.Change, owner string, clientInfo map[string]any, resolveConflicts bool) (applyOutcome, error) {
	data := dataBody(ch.Data)

	rec, err := rs.BySyncToken(ctx, ch.SyncToken)
	if errors.Is(err, storage.ErrRecordNotFound) {
		// The client is updating something the server never had. Never
		// silently ignored.
		conflict := d.newConflict(modelName, nil, data, nil, model.ConflictMissing, owner, clientInfo)
		conflict.SyncToken = ch.SyncToken
		return applyOutcome{Conflict: &conflict}, nil
	}
	if err != nil {
		return applyOutcome{}, err
	}

	fieldConflicts := syncx.DiffFields(dataBody(rec.Data), data)
	if len(fieldConflicts) > 0 && !resolveConflicts {
		conflict := d.newConflict(modelName, &rec, data, fieldConflicts, model.ConflictManualMerge, owner, clientInfo)
		return applyOutcome{Conflict: &conflict}, nil
	}

	rec.Data = syncx.ApplyFields(rec.Data, data)
	updated, err := rs.Update(ctx, rec)
	if err != nil {
		return applyOutcome{}, err
	}
	return applyOutcome{Result: &model.ApplyResult{ID: updated.ID, Action: model.ActionUpdated}}, nil
}

func (d *detector) applyDelete(ctx context.Context, rs storage.RecordStore, ch model.Change) (applyOutcome, error) {
	rec, err := rs.BySyncToken(ctx, ch.SyncToken)
	if errors.Is(err, storage.ErrRecordNotFound) {
		// Idempotent delete: not an error, not a conflict.
		return applyOutcome{Result: &model.ApplyResult{Action: model.ActionNotFound}}, nil
	}
	if err != nil {
		return applyOutcome{}, err
	}

	if err := rs.SoftDelete(ctx, rec.ID); err != nil {
		return applyOutcome{}, err
	}
	return applyOutcome{Result: &model.ApplyResult{ID: rec.ID, Action: model.ActionDeleted}}, nil
}

// newConflict captures both snapshots verbatim at detection time. The server
// snapshot is empty when the conflict is a missing_record.
func (d *detector) newConflict(modelName string, serverRec *model.Record, clientData map[string]any, fields []syncx.FieldConflict, conflictType model.ConflictType, owner string, clientInfo map[string]any) model.Conflict {
	c := model.Conflict{
		Owner:            owner,
		ModelName:        modelName,
		ClientData:       clientData,
		ConflictFields:   fields,
		ConflictType:     conflictType,
		ResolutionStatus: model.ResolutionPending,
		DetectedAt:       d.clock.Now(),
		ClientInfo:       clientInfo,
		ServerData:       map[string]any{},
	}
	if fields == nil {
		c.ConflictFields = []syncx.FieldConflict{}
	}
	if serverRec != nil {
		c.RecordID = serverRec.ID
		c.SyncToken = serverRec.SyncToken
		c.ServerData = dataBody(serverRec.Data)
	}
	return c
}

// detectHints performs pull-side conflict pre-detection: for every record the
// client reports as locally dirty, flag it if the server copy changed after
// the client's claimed last sync. Advisory only; nothing is persisted.
func detectHints(ctx context.Context, tx storage.Tx, clientState map[string][]StateClaim) []model.ConflictHint {
	hints := []model.ConflictHint{}
	for modelName, claims := range clientState {
		rs, err := tx.Records(modelName)
		if err != nil {
			continue
		}
		for _, claim := range claims {
			if !claim.Dirty || claim.SyncToken == "" || claim.LastSyncAt == nil {
				continue
			}
			rec, err := rs.BySyncToken(ctx, claim.SyncToken)
			if err != nil {
				continue
			}
			if rec.LastSyncAt != nil && rec.LastSyncAt.After(*claim.LastSyncAt) {
				hints = append(hints, model.ConflictHint{
					ModelName:        modelName,
					RecordID:         rec.ID,
					SyncToken:        rec.SyncToken,
					ServerLastSyncAt: rec.LastSyncAt,
					ClientLastSyncAt: copyTime(claim.LastSyncAt),
				})
			}
		}
	}
	return hints
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
