// Package memory provides mutex-guarded in-memory stores. Used by tests and
// by dev mode when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ukombozini/fieldsync/internal/model"
	"github.com/ukombozini/fieldsync/internal/storage"
	"github.com/ukombozini/fieldsync/internal/syncx"
)

// DB implements storage.DB over in-process maps. InTx runs the callback
// against the live stores without rollback; per-type isolation in the
// orchestrator is exercised through errors raised before any write.
type DB struct {
	clock syncx.Clock

	mu       sync.RWMutex
	records  map[string]*recordStore
	nextConf int64
	confs    map[int64]model.Conflict
	nextSess int64
	sessions map[string]model.Session
	users    map[string]string
}

// NewDB creates an empty in-memory database with one record store per
// allow-listed model.
func NewDB(clock syncx.Clock) *DB {
	db := &DB{
		clock:    clock,
		records:  make(map[string]*recordStore),
		confs:    make(map[int64]model.Conflict),
		sessions: make(map[string]model.Session),
		users:    make(map[string]string),
	}
	for _, name := range storage.ModelNames {
		db.records[name] = &recordStore{db: db, model: name, recs: make(map[int64]model.Record)}
	}
	return db
}

func (db *DB) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return fn(&tx{db: db})
}

func (db *DB) Sessions() storage.SessionStore { return &sessionStore{db: db} }

func (db *DB) Conflicts() storage.ConflictStore { return &conflictStore{db: db} }

func (db *DB) Users() storage.UserStore { return &userStore{db: db} }

// Records exposes a record store outside a transaction. Test helper.
func (db *DB) Records(modelName string) (storage.RecordStore, error) {
	rs, ok := db.records[modelName]
	if !ok {
		return nil, storage.ErrUnknownEntityType
	}
	return rs, nil
}

type tx struct {
	db *DB
}

func (t *tx) Records(modelName string) (storage.RecordStore, error) {
	return t.db.Records(modelName)
}

func (t *tx) Conflicts() storage.ConflictStore { return t.db.Conflicts() }

type recordStore struct {
	db     *DB
	model  string
	nextID int64
	recs   map[int64]model.Record
}

// touch assigns a sync token if absent and refreshes last_sync_at. Callers
// hold db.mu.
func (s *recordStore) touch(rec *model.Record) {
	now := s.db.clock.Now()
	if rec.SyncToken == "" {
		rec.SyncToken = syncx.NewToken(s.model, now)
	}
	rec.LastSyncAt = &now
}

func (s *recordStore) ChangesSince(ctx context.Context, q storage.ChangeQuery) ([]model.Record, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []model.Record
	for _, rec := range s.recs {
		if rec.IsDeleted {
			continue
		}
		if q.Checkpoint != nil && rec.LastSyncAt != nil && !rec.LastSyncAt.After(*q.Checkpoint) {
			continue
		}
		if q.MinSyncToken != "" && !syncx.TokenAfter(rec.SyncToken, q.MinSyncToken) {
			continue
		}
		out = append(out, copyRecord(rec))
	}
	sortRecords(out)
	return out, nil
}

func (s *recordStore) All(ctx context.Context) ([]model.Record, error) {
	return s.ChangesSince(ctx, storage.ChangeQuery{})
}

func (s *recordStore) BySyncToken(ctx context.Context, token string) (model.Record, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, rec := range s.recs {
		if rec.SyncToken == token {
			return copyRecord(rec), nil
		}
	}
	return model.Record{}, storage.ErrRecordNotFound
}

func (s *recordStore) ByID(ctx context.Context, id int64) (model.Record, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	rec, ok := s.recs[id]
	if !ok {
		return model.Record{}, storage.ErrRecordNotFound
	}
	return copyRecord(rec), nil
}

func (s *recordStore) Create(ctx context.Context, rec model.Record) (model.Record, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	s.touch(&rec)
	// Tokens are unique per entity type, the same scope the UNIQUE column
	// gives each entity table.
	for _, existing := range s.recs {
		if existing.SyncToken == rec.SyncToken {
			return model.Record{}, storage.ErrDuplicateToken
		}
	}

	s.nextID++
	rec.ID = s.nextID
	s.recs[rec.ID] = copyRecord(rec)
	return rec, nil
}

func (s *recordStore) Update(ctx context.Context, rec model.Record) (model.Record, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.recs[rec.ID]; !ok {
		return model.Record{}, storage.ErrRecordNotFound
	}
	s.touch(&rec)
	s.recs[rec.ID] = copyRecord(rec)
	return rec, nil
}

func (s *recordStore) SoftDelete(ctx context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	rec, ok := s.recs[id]
	if !ok {
		return storage.ErrRecordNotFound
	}
	now := s.db.clock.Now()
	rec.IsDeleted = true
	rec.DeletedAt = &now
	rec.LastSyncAt = &now
	s.recs[id] = rec
	return nil
}

func (s *recordStore) Restore(ctx context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	rec, ok := s.recs[id]
	if !ok {
		return storage.ErrRecordNotFound
	}
	now := s.db.clock.Now()
	rec.IsDeleted = false
	rec.DeletedAt = nil
	rec.LastSyncAt = &now
	s.recs[id] = rec
	return nil
}

type conflictStore struct {
	db *DB
}

func (s *conflictStore) Create(ctx context.Context, c model.Conflict) (model.Conflict, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	s.db.nextConf++
	c.ID = s.db.nextConf
	s.db.confs[c.ID] = c
	return c, nil
}

func (s *conflictStore) ByID(ctx context.Context, id int64) (model.Conflict, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	c, ok := s.db.confs[id]
	if !ok {
		return model.Conflict{}, storage.ErrConflictNotFound
	}
	return c, nil
}

func (s *conflictStore) Update(ctx context.Context, c model.Conflict) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.confs[c.ID]; !ok {
		return storage.ErrConflictNotFound
	}
	s.db.confs[c.ID] = c
	return nil
}

func (s *conflictStore) ListByOwner(ctx context.Context, owner string, status model.ResolutionStatus) ([]model.Conflict, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []model.Conflict
	for _, c := range s.db.confs {
		if c.Owner != owner {
			continue
		}
		if status != "" && c.ResolutionStatus != status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	return out, nil
}

type sessionStore struct {
	db *DB
}

func (s *sessionStore) Create(ctx context.Context, sess model.Session) (model.Session, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	s.db.nextSess++
	sess.ID = s.db.nextSess
	s.db.sessions[sess.SessionID] = sess
	return sess, nil
}

func (s *sessionStore) Update(ctx context.Context, sess model.Session) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.sessions[sess.SessionID]; !ok {
		return storage.ErrSessionNotFound
	}
	s.db.sessions[sess.SessionID] = sess
	return nil
}

func (s *sessionStore) BySessionID(ctx context.Context, sessionID string) (model.Session, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	sess, ok := s.db.sessions[sessionID]
	if !ok {
		return model.Session{}, storage.ErrSessionNotFound
	}
	return sess, nil
}

func (s *sessionStore) ListByOwner(ctx context.Context, owner string) ([]model.Session, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []model.Session
	for _, sess := range s.db.sessions {
		if sess.Owner == owner {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

type userStore struct {
	db *DB
}

func (s *userStore) Ensure(ctx context.Context, sub string) (string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if id, ok := s.db.users[sub]; ok {
		return id, nil
	}
	// Subjects are already stable identities; reuse them as actor IDs.
	s.db.users[sub] = sub
	return sub, nil
}

func copyRecord(rec model.Record) model.Record {
	out := rec
	out.Data = make(map[string]any, len(rec.Data))
	for k, v := range rec.Data {
		out.Data[k] = v
	}
	if rec.LastSyncAt != nil {
		t := *rec.LastSyncAt
		out.LastSyncAt = &t
	}
	if rec.DeletedAt != nil {
		t := *rec.DeletedAt
		out.DeletedAt = &t
	}
	return out
}

func sortRecords(recs []model.Record) {
	sort.Slice(recs, func(i, j int) bool {
		ti, tj := timeOrZero(recs[i].LastSyncAt), timeOrZero(recs[j].LastSyncAt)
		if ti.Equal(tj) {
			return recs[i].ID < recs[j].ID
		}
		return ti.Before(tj)
	})
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
