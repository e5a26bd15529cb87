// Package postgres implements the storage contracts over pgx. Each syncable
// entity type owns its own table of identical shape; domain payload fields
// live in a JSONB column.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ukombozini/fieldsync/internal/storage"
	"github.com/ukombozini/fieldsync/internal/syncx"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so stores work
// inside and outside transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB implements storage.DB over a pgx connection pool.
type DB struct {
	pool  *pgxpool.Pool
	clock syncx.Clock
}

// NewDB wraps an open pool.
func NewDB(pool *pgxpool.Pool, clock syncx.Clock) *DB {
	return &DB{pool: pool, clock: clock}
}

func (db *DB) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	pgtx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer pgtx.Rollback(ctx)

	if err := fn(&tx{q: pgtx, clock: db.clock}); err != nil {
		return err
	}
	return pgtx.Commit(ctx)
}

func (db *DB) Sessions() storage.SessionStore { return &sessionStore{q: db.pool} }

func (db *DB) Conflicts() storage.ConflictStore { return &conflictStore{q: db.pool} }

func (db *DB) Users() storage.UserStore { return &userStore{q: db.pool} }

type tx struct {
	q     pgx.Tx
	clock syncx.Clock
}

func (t *tx) Records(modelName string) (storage.RecordStore, error) {
	if !storage.KnownModel(modelName) {
		return nil, storage.ErrUnknownEntityType
	}
	return &recordStore{q: t.q, clock: t.clock, model: modelName}, nil
}

func (t *tx) Conflicts() storage.ConflictStore { return &conflictStore{q: t.q} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
