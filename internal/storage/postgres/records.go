package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ukombozini/fieldsync/internal/model"
	"github.com/ukombozini/fieldsync/internal/storage"
	"github.com/ukombozini/fieldsync/internal/syncx"
)

// recordStore is the typed adapter for one entity table. The table name comes
// from the fixed allow-list, never from request input.
type recordStore struct {
	q     querier
	clock syncx.Clock
	model string
}

const recordColumns = "id, sync_token, last_sync_at, is_deleted, deleted_at, data"

func (s *recordStore) ChangesSince(ctx context.Context, q storage.ChangeQuery) ([]model.Record, error) {
	rows, err := s.q.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE is_deleted = FALSE
		  AND ($1::timestamptz IS NULL OR last_sync_at IS NULL OR last_sync_at > $1)
		  AND ($2 = '' OR sync_token > $2)
		ORDER BY last_sync_at ASC NULLS FIRST, id ASC
	`, recordColumns, s.model), q.Checkpoint, q.MinSyncToken)
	if err != nil {
		return nil, fmt.Errorf("query %s changes: %w", s.model, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *recordStore) All(ctx context.Context) ([]model.Record, error) {
	return s.ChangesSince(ctx, storage.ChangeQuery{})
}

func (s *recordStore) BySyncToken(ctx context.Context, token string) (model.Record, error) {
	row := s.q.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE sync_token = $1`, recordColumns, s.model), token)
	return scanRecord(row)
}

func (s *recordStore) ByID(ctx context.Context, id int64) (model.Record, error) {
	row := s.q.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = $1`, recordColumns, s.model), id)
	return scanRecord(row)
}

func (s *recordStore) Create(ctx context.Context, rec model.Record) (model.Record, error) {
	now := s.clock.Now()
	if rec.SyncToken == "" {
		rec.SyncToken = syncx.NewToken(s.model, now)
	}
	rec.LastSyncAt = &now

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return model.Record{}, err
	}

	err = s.q.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (sync_token, last_sync_at, is_deleted, deleted_at, data)
		VALUES ($1, $2, FALSE, NULL, $3)
		RETURNING id
	`, s.model), rec.SyncToken, now, data).Scan(&rec.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Record{}, storage.ErrDuplicateToken
		}
		return model.Record{}, fmt.Errorf("insert %s: %w", s.model, err)
	}
	return rec, nil
}

func (s *recordStore) Update(ctx context.Context, rec model.Record) (model.Record, error) {
	now := s.clock.Now()
	rec.LastSyncAt = &now

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return model.Record{}, err
	}

	tag, err := s.q.Exec(ctx, fmt.Sprintf(`
		UPDATE %s
		SET data = $2, is_deleted = $3, deleted_at = $4, last_sync_at = $5
		WHERE id = $1
	`, s.model), rec.ID, data, rec.IsDeleted, rec.DeletedAt, now)
	if err != nil {
		return model.Record{}, fmt.Errorf("update %s: %w", s.model, err)
	}
	if tag.RowsAffected() == 0 {
		return model.Record{}, storage.ErrRecordNotFound
	}
	return rec, nil
}

func (s *recordStore) SoftDelete(ctx context.Context, id int64) error {
	return s.setDeleted(ctx, id, true)
}

func (s *recordStore) Restore(ctx context.Context, id int64) error {
	return s.setDeleted(ctx, id, false)
}

func (s *recordStore) setDeleted(ctx context.Context, id int64, deleted bool) error {
	now := s.clock.Now()
	var deletedAt *time.Time
	if deleted {
		deletedAt = &now
	}

	tag, err := s.q.Exec(ctx, fmt.Sprintf(`
		UPDATE %s
		SET is_deleted = $2, deleted_at = $3, last_sync_at = $4
		WHERE id = $1
	`, s.model), id, deleted, deletedAt, now)
	if err != nil {
		return fmt.Errorf("set deleted on %s: %w", s.model, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrRecordNotFound
	}
	return nil
}

func scanRecords(rows pgx.Rows) ([]model.Record, error) {
	var out []model.Record
	for rows.Next() {
		var (
			rec  model.Record
			data []byte
		)
		if err := rows.Scan(&rec.ID, &rec.SyncToken, &rec.LastSyncAt, &rec.IsDeleted, &rec.DeletedAt, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (model.Record, error) {
	var (
		rec  model.Record
		data []byte
	)
	err := row.Scan(&rec.ID, &rec.SyncToken, &rec.LastSyncAt, &rec.IsDeleted, &rec.DeletedAt, &data)
	if err == pgx.ErrNoRows {
		return model.Record{}, storage.ErrRecordNotFound
	}
	if err != nil {
		return model.Record{}, err
	}
	if err := json.Unmarshal(data, &rec.Data); err != nil {
		return model.Record{}, err
	}
	return rec, nil
}
