package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukombozini/fieldsync/internal/model"
	"github.com/ukombozini/fieldsync/internal/storage"
	"github.com/ukombozini/fieldsync/internal/syncx"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestDB() (*DB, *stepClock) {
	clock := &stepClock{t: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)}
	return NewDB(clock), clock
}

func TestCreate_AssignsTokenAndTimestamp(t *testing.T) {
	db, _ := newTestDB()
	loans, err := db.Records("loan")
	require.NoError(t, err)

	rec, err := loans.Create(context.Background(), model.Record{Data: map[string]any{"principal_amount": 50000.0}})
	require.NoError(t, err)

	assert.EqualValues(t, 1, rec.ID)
	require.NotNil(t, rec.LastSyncAt)
	tok, ok := syncx.ParseToken(rec.SyncToken)
	require.True(t, ok)
	assert.Equal(t, "loan", tok.Model)
}

func TestCreate_KeepsClientToken(t *testing.T) {
	db, _ := newTestDB()
	loans, _ := db.Records("loan")

	rec, err := loans.Create(context.Background(), model.Record{SyncToken: "ln_abc123", Data: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, "ln_abc123", rec.SyncToken)

	_, err = loans.Create(context.Background(), model.Record{SyncToken: "ln_abc123", Data: map[string]any{}})
	assert.ErrorIs(t, err, storage.ErrDuplicateToken)
}

func TestCreate_TokenUniquenessScopedPerType(t *testing.T) {
	db, _ := newTestDB()
	loans, _ := db.Records("loan")
	events, _ := db.Records("event")
	ctx := context.Background()

	_, err := loans.Create(ctx, model.Record{SyncToken: "tok_shared_1", Data: map[string]any{}})
	require.NoError(t, err)

	// A client-supplied token may repeat in a different type's table; only a
	// second record of the same type collides.
	_, err = events.Create(ctx, model.Record{SyncToken: "tok_shared_1", Data: map[string]any{}})
	assert.NoError(t, err)

	_, err = loans.Create(ctx, model.Record{SyncToken: "tok_shared_1", Data: map[string]any{}})
	assert.ErrorIs(t, err, storage.ErrDuplicateToken)
}

func TestChangesSince_CheckpointFilter(t *testing.T) {
	db, clock := newTestDB()
	loans, _ := db.Records("loan")
	ctx := context.Background()

	first, err := loans.Create(ctx, model.Record{Data: map[string]any{"n": 1.0}})
	require.NoError(t, err)
	checkpoint := clock.t

	second, err := loans.Create(ctx, model.Record{Data: map[string]any{"n": 2.0}})
	require.NoError(t, err)

	recs, err := loans.ChangesSince(ctx, storage.ChangeQuery{Checkpoint: &checkpoint})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, second.ID, recs[0].ID)

	// No checkpoint returns everything, ordered by (last_sync_at, id).
	recs, err = loans.ChangesSince(ctx, storage.ChangeQuery{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, first.ID, recs[0].ID)
	assert.Equal(t, second.ID, recs[1].ID)
}

func TestChangesSince_MinSyncToken(t *testing.T) {
	db, _ := newTestDB()
	msgs, _ := db.Records("message")
	ctx := context.Background()

	_, err := msgs.Create(ctx, model.Record{SyncToken: "message_aaa", Data: map[string]any{}})
	require.NoError(t, err)
	later, err := msgs.Create(ctx, model.Record{SyncToken: "message_bbb", Data: map[string]any{}})
	require.NoError(t, err)

	recs, err := msgs.ChangesSince(ctx, storage.ChangeQuery{MinSyncToken: "message_aaa"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, later.ID, recs[0].ID)
}

func TestSoftDelete_ExcludedFromQueries(t *testing.T) {
	db, _ := newTestDB()
	visits, _ := db.Records("field_visit")
	ctx := context.Background()

	rec, err := visits.Create(ctx, model.Record{Data: map[string]any{"site": "kisumu"}})
	require.NoError(t, err)

	require.NoError(t, visits.SoftDelete(ctx, rec.ID))

	recs, err := visits.ChangesSince(ctx, storage.ChangeQuery{})
	require.NoError(t, err)
	assert.Empty(t, recs)

	all, err := visits.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	// Still loadable by primary key and token.
	got, err := visits.ByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	require.NotNil(t, got.DeletedAt)

	got, err = visits.BySyncToken(ctx, rec.SyncToken)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
}

func TestRestore(t *testing.T) {
	db, _ := newTestDB()
	events, _ := db.Records("event")
	ctx := context.Background()

	rec, err := events.Create(ctx, model.Record{Data: map[string]any{}})
	require.NoError(t, err)
	require.NoError(t, events.SoftDelete(ctx, rec.ID))
	require.NoError(t, events.Restore(ctx, rec.ID))

	got, err := events.ByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDeleted)
	assert.Nil(t, got.DeletedAt)

	recs, err := events.ChangesSince(ctx, storage.ChangeQuery{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRecords_UnknownModel(t *testing.T) {
	db, _ := newTestDB()

	_, err := db.Records("grain_silo")
	assert.ErrorIs(t, err, storage.ErrUnknownEntityType)
}

func TestConflictStore_OwnerScoping(t *testing.T) {
	db, clock := newTestDB()
	ctx := context.Background()

	_, err := db.Conflicts().Create(ctx, model.Conflict{Owner: "alice", ModelName: "loan", DetectedAt: clock.Now(), ResolutionStatus: model.ResolutionPending})
	require.NoError(t, err)
	_, err = db.Conflicts().Create(ctx, model.Conflict{Owner: "bob", ModelName: "loan", DetectedAt: clock.Now(), ResolutionStatus: model.ResolutionPending})
	require.NoError(t, err)

	got, err := db.Conflicts().ListByOwner(ctx, "alice", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].Owner)

	got, err = db.Conflicts().ListByOwner(ctx, "alice", model.ResolutionResolved)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSessionStore_ListNewestFirst(t *testing.T) {
	db, clock := newTestDB()
	ctx := context.Background()

	s1, err := db.Sessions().Create(ctx, model.Session{SessionID: "s1", Owner: "alice", StartedAt: clock.Now()})
	require.NoError(t, err)
	s2, err := db.Sessions().Create(ctx, model.Session{SessionID: "s2", Owner: "alice", StartedAt: clock.Now()})
	require.NoError(t, err)

	got, err := db.Sessions().ListByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, s2.SessionID, got[0].SessionID)
	assert.Equal(t, s1.SessionID, got[1].SessionID)

	loaded, err := db.Sessions().BySessionID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, s1.ID, loaded.ID)
}
