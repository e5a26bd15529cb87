package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ukombozini/fieldsync/internal/model"
	"github.com/ukombozini/fieldsync/internal/storage"
	"github.com/ukombozini/fieldsync/internal/syncx"
)

type conflictStore struct {
	q querier
}

const conflictColumns = `id, owner_id, model_name, record_id, sync_token,
	server_data, client_data, conflict_fields, conflict_type, resolution_status,
	resolved_data, resolved_by, resolved_at, detected_at, client_info`

func (s *conflictStore) Create(ctx context.Context, c model.Conflict) (model.Conflict, error) {
	serverData, clientData, fields, resolvedData, clientInfo, err := marshalConflict(c)
	if err != nil {
		return model.Conflict{}, err
	}

	err = s.q.QueryRow(ctx, `
		INSERT INTO sync_conflict (
			owner_id, model_name, record_id, sync_token,
			server_data, client_data, conflict_fields, conflict_type,
			resolution_status, resolved_data, resolved_by, resolved_at,
			detected_at, client_info
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`, c.Owner, c.ModelName, c.RecordID, c.SyncToken,
		serverData, clientData, fields, c.ConflictType,
		c.ResolutionStatus, resolvedData, nullString(c.ResolvedBy), c.ResolvedAt,
		c.DetectedAt, clientInfo).Scan(&c.ID)
	if err != nil {
		return model.Conflict{}, fmt.Errorf("insert conflict: %w", err)
	}
	return c, nil
}

func (s *conflictStore) ByID(ctx context.Context, id int64) (model.Conflict, error) {
	row := s.q.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM sync_conflict WHERE id = $1`, conflictColumns), id)
	return scanConflict(row)
}

func (s *conflictStore) Update(ctx context.Context, c model.Conflict) error {
	_, _, _, resolvedData, _, err := marshalConflict(c)
	if err != nil {
		return err
	}

	tag, err := s.q.Exec(ctx, `
		UPDATE sync_conflict
		SET conflict_type = $2, resolution_status = $3, resolved_data = $4,
		    resolved_by = $5, resolved_at = $6
		WHERE id = $1
	`, c.ID, c.ConflictType, c.ResolutionStatus, resolvedData, nullString(c.ResolvedBy), c.ResolvedAt)
	if err != nil {
		return fmt.Errorf("update conflict: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrConflictNotFound
	}
	return nil
}

func (s *conflictStore) ListByOwner(ctx context.Context, owner string, status model.ResolutionStatus) ([]model.Conflict, error) {
	rows, err := s.q.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM sync_conflict
		WHERE owner_id = $1
		  AND ($2 = '' OR resolution_status = $2)
		ORDER BY detected_at DESC, id DESC
	`, conflictColumns), owner, string(status))
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	var out []model.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func marshalConflict(c model.Conflict) (serverData, clientData, fields, resolvedData, clientInfo []byte, err error) {
	if serverData, err = json.Marshal(c.ServerData); err != nil {
		return
	}
	if clientData, err = json.Marshal(c.ClientData); err != nil {
		return
	}
	if fields, err = json.Marshal(c.ConflictFields); err != nil {
		return
	}
	if c.ResolvedData != nil {
		if resolvedData, err = json.Marshal(c.ResolvedData); err != nil {
			return
		}
	}
	if c.ClientInfo != nil {
		clientInfo, err = json.Marshal(c.ClientInfo)
	}
	return
}

func scanConflict(row pgx.Row) (model.Conflict, error) {
	var (
		c            model.Conflict
		serverData   []byte
		clientData   []byte
		fields       []byte
		resolvedData []byte
		clientInfo   []byte
		resolvedBy   *string
	)
	err := row.Scan(&c.ID, &c.Owner, &c.ModelName, &c.RecordID, &c.SyncToken,
		&serverData, &clientData, &fields, &c.ConflictType, &c.ResolutionStatus,
		&resolvedData, &resolvedBy, &c.ResolvedAt, &c.DetectedAt, &clientInfo)
	if err == pgx.ErrNoRows {
		return model.Conflict{}, storage.ErrConflictNotFound
	}
	if err != nil {
		return model.Conflict{}, err
	}

	if err := json.Unmarshal(serverData, &c.ServerData); err != nil {
		return model.Conflict{}, err
	}
	if err := json.Unmarshal(clientData, &c.ClientData); err != nil {
		return model.Conflict{}, err
	}
	c.ConflictFields = []syncx.FieldConflict{}
	if err := json.Unmarshal(fields, &c.ConflictFields); err != nil {
		return model.Conflict{}, err
	}
	if resolvedData != nil {
		if err := json.Unmarshal(resolvedData, &c.ResolvedData); err != nil {
			return model.Conflict{}, err
		}
	}
	if clientInfo != nil {
		if err := json.Unmarshal(clientInfo, &c.ClientInfo); err != nil {
			return model.Conflict{}, err
		}
	}
	if resolvedBy != nil {
		c.ResolvedBy = *resolvedBy
	}
	return c, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
