package syncservice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukombozini/fieldsync/internal/model"
	"github.com/ukombozini/fieldsync/internal/storage"
	"github.com/ukombozini/fieldsync/internal/storage/memory"
)

// pushConflict seeds one loan and one divergent update, returning the
// pending conflict and the loan's record ID.
func pushConflict(t *testing.T, svc *Service, db *memory.DB) (model.Conflict, int64) {
	t.Helper()
	ctx := context.Background()

	rec := mustCreate(t, db, "loan", "", map[string]any{
		"principal_amount": 50000.0,
		"status":           "active",
	})

	resp, err := svc.Push(ctx, "officer-a", PushRequest{Changes: map[string][]model.Change{
		"loan": {{Type: model.ChangeUpdate, SyncToken: rec.SyncToken, Data: map[string]any{
			"principal_amount": 60000.0,
			"status":           "active",
		}}},
	}}, SessionMeta{})
	require.NoError(t, err)
	require.Len(t, resp.Conflicts, 1)

	return resp.Conflicts[0], rec.ID
}

func TestResolve_ServerWins(t *testing.T) {
	svc, db, _ := newTestService()
	ctx := context.Background()
	conflict, loanID := pushConflict(t, svc, db)

	rs, _ := db.Records("loan")
	before, err := rs.ByID(ctx, loanID)
	require.NoError(t, err)

	resolved, err := svc.Resolver().Resolve(ctx, "officer-a", conflict.ID, model.ConflictServerWins, nil, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, model.ResolutionResolved, resolved.ResolutionStatus)
	assert.Equal(t, model.ConflictServerWins, resolved.ConflictType)
	assert.Equal(t, "admin-1", resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, conflict.ServerData, resolved.ResolvedData)

	// Domain record provably unchanged, field for field.
	after, err := rs.ByID(ctx, loanID)
	require.NoError(t, err)
	assert.Equal(t, before.Data, after.Data)
	assert.Equal(t, before.LastSyncAt, after.LastSyncAt)
}

func TestResolve_ClientWins(t *testing.T) {
	svc, db, _ := newTestService()
	ctx := context.Background()
	conflict, loanID := pushConflict(t, svc, db)

	resolved, err := svc.Resolver().Resolve(ctx, "officer-a", conflict.ID, model.ConflictClientWins, nil, "admin-1")
	require.NoError(t, err)

	rs, _ := db.Records("loan")
	after, err := rs.ByID(ctx, loanID)
	require.NoError(t, err)

	// Every field of the original client payload matches post-resolution.
	for field, want := range conflict.ClientData {
		assert.Equal(t, want, after.Data[field], "field %s", field)
	}
	assert.Equal(t, 60000.0, resolved.ResolvedData["principal_amount"])
}

func TestResolve_ManualMerge(t *testing.T) {
	svc, db, _ := newTestService()
	ctx := context.Background()
	conflict, loanID := pushConflict(t, svc, db)

	merged := map[string]any{"principal_amount": 55000.0, "status": "under_review"}
	resolved, err := svc.Resolver().Resolve(ctx, "officer-a", conflict.ID, model.ConflictManualMerge, merged, "admin-1")
	require.NoError(t, err)

	rs, _ := db.Records("loan")
	after, err := rs.ByID(ctx, loanID)
	require.NoError(t, err)
	assert.Equal(t, 55000.0, after.Data["principal_amount"])
	assert.Equal(t, "under_review", after.Data["status"])
	assert.Equal(t, 55000.0, resolved.ResolvedData["principal_amount"])
}

func TestResolve_ManualMergeRequiresData(t *testing.T) {
	svc, db, _ := newTestService()
	conflict, _ := pushConflict(t, svc, db)

	_, err := svc.Resolver().Resolve(context.Background(), "officer-a", conflict.ID, model.ConflictManualMerge, nil, "admin-1")
	assert.ErrorIs(t, err, ErrResolvedDataRequired)
}

func TestResolve_InvalidType(t *testing.T) {
	svc, db, _ := newTestService()
	conflict, _ := pushConflict(t, svc, db)

	_, err := svc.Resolver().Resolve(context.Background(), "officer-a", conflict.ID, model.ConflictType("coin_toss"), nil, "admin-1")
	assert.ErrorIs(t, err, ErrInvalidResolutionType)

	// Detection-only types are not valid resolutions either.
	_, err = svc.Resolver().Resolve(context.Background(), "officer-a", conflict.ID, model.ConflictDuplicate, nil, "admin-1")
	assert.ErrorIs(t, err, ErrInvalidResolutionType)
}

func TestResolve_NotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Resolver().Resolve(context.Background(), "officer-a", 9999, model.ConflictServerWins, nil, "admin-1")
	assert.ErrorIs(t, err, storage.ErrConflictNotFound)
}

func TestResolve_OwnerScoped(t *testing.T) {
	svc, db, _ := newTestService()
	conflict, _ := pushConflict(t, svc, db)

	_, err := svc.Resolver().Resolve(context.Background(), "officer-z", conflict.ID, model.ConflictServerWins, nil, "officer-z")
	assert.ErrorIs(t, err, storage.ErrConflictNotFound)
}

func TestResolve_AlreadyResolved(t *testing.T) {
	svc, db, _ := newTestService()
	ctx := context.Background()
	conflict, _ := pushConflict(t, svc, db)

	_, err := svc.Resolver().Resolve(ctx, "officer-a", conflict.ID, model.ConflictServerWins, nil, "admin-1")
	require.NoError(t, err)

	_, err = svc.Resolver().Resolve(ctx, "officer-a", conflict.ID, model.ConflictClientWins, nil, "admin-1")
	assert.ErrorIs(t, err, ErrConflictAlreadyResolved)
}

func TestIgnore(t *testing.T) {
	svc, db, _ := newTestService()
	ctx := context.Background()
	conflict, loanID := pushConflict(t, svc, db)

	rs, _ := db.Records("loan")
	before, _ := rs.ByID(ctx, loanID)

	ignored, err := svc.Resolver().Ignore(ctx, "officer-a", conflict.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ResolutionIgnored, ignored.ResolutionStatus)

	after, _ := rs.ByID(ctx, loanID)
	assert.Equal(t, before.Data, after.Data)

	// Ignored is terminal.
	_, err = svc.Resolver().Resolve(ctx, "officer-a", conflict.ID, model.ConflictClientWins, nil, "admin-1")
	assert.ErrorIs(t, err, ErrConflictAlreadyResolved)
}

func TestList_FiltersByStatus(t *testing.T) {
	svc, db, _ := newTestService()
	ctx := context.Background()

	c1, _ := pushConflict(t, svc, db)
	_, err := svc.Resolver().Resolve(ctx, "officer-a", c1.ID, model.ConflictServerWins, nil, "admin-1")
	require.NoError(t, err)
	pushConflict(t, svc, db)

	pending, err := svc.Resolver().List(ctx, "officer-a", model.ResolutionPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	all, err := svc.Resolver().List(ctx, "officer-a", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestResolve_MissingRecordClientWins(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	resp, err := svc.Push(ctx, "officer-a", PushRequest{Changes: map[string][]model.Change{
		"loan": {{Type: model.ChangeUpdate, SyncToken: "loan_ghost_1", Data: map[string]any{"status": "active"}}},
	}}, SessionMeta{})
	require.NoError(t, err)
	require.Len(t, resp.Conflicts, 1)
	conflict := resp.Conflicts[0]
	require.Equal(t, model.ConflictMissing, conflict.ConflictType)

	// The server holds nothing to write the client's values into.
	_, err = svc.Resolver().Resolve(ctx, "officer-a", conflict.ID, model.ConflictClientWins, nil, "admin-1")
	assert.ErrorIs(t, err, ErrRecordMissing)

	// Still pending, so it can be settled another way.
	got, err := svc.Resolver().Get(ctx, "officer-a", conflict.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ResolutionPending, got.ResolutionStatus)

	resolved, err := svc.Resolver().Resolve(ctx, "officer-a", conflict.ID, model.ConflictServerWins, nil, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, model.ResolutionResolved, resolved.ResolutionStatus)
}

func TestResolve_RecordsResolutionSession(t *testing.T) {
	svc, db, _ := newTestService()
	ctx := context.Background()
	conflict, _ := pushConflict(t, svc, db)

	_, err := svc.Resolver().Resolve(ctx, "officer-a", conflict.ID, model.ConflictClientWins, nil, "admin-1")
	require.NoError(t, err)

	sessions, err := svc.Sessions().ListByOwner(ctx, "officer-a")
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	var sess *model.Session
	for i := range sessions {
		if sessions[i].SessionType == model.SessionResolution {
			sess = &sessions[i]
		}
	}
	require.NotNil(t, sess, "expected a conflict_resolution session in the audit trail")
	assert.Contains(t, sess.SessionID, "conflict_resolution_")
	assert.Equal(t, model.SessionCompleted, sess.Status)
	assert.Equal(t, 1, sess.RecordsSynced)
	assert.Equal(t, 1, sess.ConflictsFound)
	require.NotNil(t, sess.CompletedAt)
	assert.Equal(t, conflict.ID, sess.ClientInfo["conflict_id"])
	assert.Equal(t, "client_wins", sess.ClientInfo["outcome"])
}

func TestIgnore_RecordsResolutionSession(t *testing.T) {
	svc, db, _ := newTestService()
	ctx := context.Background()
	conflict, _ := pushConflict(t, svc, db)

	_, err := svc.Resolver().Ignore(ctx, "officer-a", conflict.ID)
	require.NoError(t, err)

	sessions, err := svc.Sessions().ListByOwner(ctx, "officer-a")
	require.NoError(t, err)

	var sess *model.Session
	for i := range sessions {
		if sessions[i].SessionType == model.SessionResolution {
			sess = &sessions[i]
		}
	}
	require.NotNil(t, sess)
	assert.Equal(t, 0, sess.RecordsSynced)
	assert.Equal(t, "ignored", sess.ClientInfo["outcome"])
}
