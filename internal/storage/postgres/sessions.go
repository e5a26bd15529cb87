package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ukombozini/fieldsync/internal/model"
	"github.com/ukombozini/fieldsync/internal/storage"
)

type sessionStore struct {
	q querier
}

const sessionColumns = `id, session_id, session_type, owner_id, checkpoint, status,
	records_synced, conflicts_found, errors_count, started_at, completed_at,
	client_info, user_agent, ip_address, error_message, error_details`

func (s *sessionStore) Create(ctx context.Context, sess model.Session) (model.Session, error) {
	clientInfo, errorDetails, err := marshalSessionBlobs(sess)
	if err != nil {
		return model.Session{}, err
	}

	err = s.q.QueryRow(ctx, `
		INSERT INTO sync_session (
			session_id, session_type, owner_id, checkpoint, status,
			records_synced, conflicts_found, errors_count, started_at,
			completed_at, client_info, user_agent, ip_address,
			error_message, error_details
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`, sess.SessionID, sess.SessionType, sess.Owner, sess.Checkpoint, sess.Status,
		sess.RecordsSynced, sess.ConflictsFound, sess.ErrorsCount, sess.StartedAt,
		sess.CompletedAt, clientInfo, nullString(sess.UserAgent), nullString(sess.IPAddress),
		nullString(sess.ErrorMessage), errorDetails).Scan(&sess.ID)
	if err != nil {
		return model.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *sessionStore) Update(ctx context.Context, sess model.Session) error {
	clientInfo, errorDetails, err := marshalSessionBlobs(sess)
	if err != nil {
		return err
	}

	tag, err := s.q.Exec(ctx, `
		UPDATE sync_session
		SET status = $2, records_synced = $3, conflicts_found = $4,
		    errors_count = $5, completed_at = $6, client_info = $7,
		    error_message = $8, error_details = $9
		WHERE session_id = $1
	`, sess.SessionID, sess.Status, sess.RecordsSynced, sess.ConflictsFound,
		sess.ErrorsCount, sess.CompletedAt, clientInfo,
		nullString(sess.ErrorMessage), errorDetails)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrSessionNotFound
	}
	return nil
}

func (s *sessionStore) BySessionID(ctx context.Context, sessionID string) (model.Session, error) {
	row := s.q.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM sync_session WHERE session_id = $1`, sessionColumns), sessionID)
	return scanSession(row)
}

func (s *sessionStore) ListByOwner(ctx context.Context, owner string) ([]model.Session, error) {
	rows, err := s.q.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM sync_session
		WHERE owner_id = $1
		ORDER BY started_at DESC, id DESC
	`, sessionColumns), owner)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func marshalSessionBlobs(sess model.Session) (clientInfo, errorDetails []byte, err error) {
	if sess.ClientInfo != nil {
		if clientInfo, err = json.Marshal(sess.ClientInfo); err != nil {
			return
		}
	}
	if sess.ErrorDetails != nil {
		errorDetails, err = json.Marshal(sess.ErrorDetails)
	}
	return
}

func scanSession(row pgx.Row) (model.Session, error) {
	var (
		sess         model.Session
		clientInfo   []byte
		errorDetails []byte
		userAgent    *string
		ipAddress    *string
		errorMessage *string
	)
	err := row.Scan(&sess.ID, &sess.SessionID, &sess.SessionType, &sess.Owner,
		&sess.Checkpoint, &sess.Status, &sess.RecordsSynced, &sess.ConflictsFound,
		&sess.ErrorsCount, &sess.StartedAt, &sess.CompletedAt, &clientInfo,
		&userAgent, &ipAddress, &errorMessage, &errorDetails)
	if err == pgx.ErrNoRows {
		return model.Session{}, storage.ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, err
	}

	if clientInfo != nil {
		if err := json.Unmarshal(clientInfo, &sess.ClientInfo); err != nil {
			return model.Session{}, err
		}
	}
	if errorDetails != nil {
		if err := json.Unmarshal(errorDetails, &sess.ErrorDetails); err != nil {
			return model.Session{}, err
		}
	}
	if userAgent != nil {
		sess.UserAgent = *userAgent
	}
	if ipAddress != nil {
		sess.IPAddress = *ipAddress
	}
	if errorMessage != nil {
		sess.ErrorMessage = *errorMessage
	}
	return sess, nil
}
