package postgres

import (
	"context"
	"fmt"
)

type userStore struct {
	q querier
}

// Ensure upserts the actor by JWT subject, creating it on first auth.
func (s *userStore) Ensure(ctx context.Context, sub string) (string, error) {
	var id string
	err := s.q.QueryRow(ctx, `
		INSERT INTO app_user (sub)
		VALUES ($1)
		ON CONFLICT (sub) DO UPDATE SET sub = excluded.sub
		RETURNING id
	`, sub).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert user: %w", err)
	}
	return id, nil
}
