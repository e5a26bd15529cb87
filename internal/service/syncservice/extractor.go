package syncservice

import (
	"context"
	"time"

	"github.com/ukombozini/fieldsync/internal/model"
	"github.com/ukombozini/fieldsync/internal/storage"
	"github.com/ukombozini/fieldsync/internal/syncx"
)

// syncEnvelopeFields are never part of the data body; they travel in the
// change envelope instead so sync plumbing doesn't leak into domain payloads.
var syncEnvelopeFields = map[string]bool{
	"sync_token":   true,
	"last_sync_at": true,
	"is_deleted":   true,
	"deleted_at":   true,
	"id":           true,
}

// extractChanges computes per-type delta lists for the requested entity types.
// A type that fails (unknown name, query error) lands in the returned error
// map without aborting extraction for the other types.
func extractChanges(ctx context.Context, tx storage.Tx, modelNames []string, checkpoint *time.Time, minToken string) (map[string][]model.ChangeRecord, map[string]string) {
	changes := make(map[string][]model.ChangeRecord)
	typeErrors := make(map[string]string)

	for _, name := range modelNames {
		rs, err := tx.Records(name)
		if err != nil {
			typeErrors[name] = err.Error()
			continue
		}

		recs, err := rs.ChangesSince(ctx, storage.ChangeQuery{Checkpoint: checkpoint, MinSyncToken: minToken})
		if err != nil {
			typeErrors[name] = err.Error()
			continue
		}

		changes[name] = toChangeRecords(recs)
	}

	return changes, typeErrors
}

// extractAll dumps every non-deleted record of the requested types, used for
// full sync. Same per-type error isolation as extractChanges.
func extractAll(ctx context.Context, tx storage.Tx, modelNames []string) (map[string][]model.ChangeRecord, map[string]string) {
	data := make(map[string][]model.ChangeRecord)
	typeErrors := make(map[string]string)

	for _, name := range modelNames {
		rs, err := tx.Records(name)
		if err != nil {
			typeErrors[name] = err.Error()
			continue
		}

		recs, err := rs.All(ctx)
		if err != nil {
			typeErrors[name] = err.Error()
			continue
		}

		data[name] = toChangeRecords(recs)
	}

	return data, typeErrors
}

func toChangeRecords(recs []model.Record) []model.ChangeRecord {
	out := make([]model.ChangeRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, model.ChangeRecord{
			ID:         rec.ID,
			SyncToken:  rec.SyncToken,
			LastSyncAt: rec.LastSyncAt,
			IsDeleted:  rec.IsDeleted,
			Data:       dataBody(rec.Data),
		})
	}
	return out
}

// dataBody serializes a record's field map for the wire: sync-internal fields
// are stripped and time values become ISO-8601 strings.
func dataBody(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if syncEnvelopeFields[k] {
			continue
		}
		out[k] = syncx.NormalizeValue(v)
	}
	return out
}
