package syncservice

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ukombozini/fieldsync/internal/model"
	"github.com/ukombozini/fieldsync/internal/storage"
	"github.com/ukombozini/fieldsync/internal/syncx"
)

// Service is the single entry point for pull, push, and full_sync. It owns
// the transaction boundaries, per-entity-type error isolation, and session
// bookkeeping.
type Service struct {
	db       storage.DB
	clock    syncx.Clock
	detector *detector
	resolver *Resolver
}

// New constructs the sync service.
func New(db storage.DB, clock syncx.Clock) *Service {
	return &Service{
		db:       db,
		clock:    clock,
		detector: &detector{clock: clock},
		resolver: NewResolver(db, clock),
	}
}

// Resolver exposes the conflict resolution component.
func (s *Service) Resolver() *Resolver { return s.resolver }

// Sessions exposes the session audit trail.
func (s *Service) Sessions() storage.SessionStore { return s.db.Sessions() }

// Pull returns per-type deltas since the client's checkpoint, plus advisory
// conflict hints for records the client reported as locally dirty. All reads
// happen inside one transaction for a consistent snapshot; per-type errors
// are recorded in the session without aborting the call.
func (s *Service) Pull(ctx context.Context, owner string, req PullRequest, meta SessionMeta) (PullResponse, error) {
	session, err := s.beginSession(ctx, owner, model.SessionIncremental, req.LastSyncTimestamp, req.ClientInfo, meta)
	if err != nil {
		return PullResponse{}, err
	}

	var (
		changes    map[string][]model.ChangeRecord
		typeErrors map[string]string
		hints      []model.ConflictHint
	)
	err = s.db.InTx(ctx, func(tx storage.Tx) error {
		changes, typeErrors = extractChanges(ctx, tx, req.ModelNames, req.LastSyncTimestamp, req.SyncToken)
		hints = detectHints(ctx, tx, req.ClientState)
		return nil
	})
	if err != nil {
		s.failSession(ctx, &session, err)
		return PullResponse{}, fmt.Errorf("pull: %w", err)
	}

	records := 0
	for _, recs := range changes {
		records += len(recs)
	}
	s.finishSession(ctx, &session, records, len(hints), typeErrors, len(changes) > 0 || len(req.ModelNames) == 0)

	log.Info().
		Str("sessionId", session.SessionID).
		Str("owner", owner).
		Int("records", records).
		Int("conflicts", len(hints)).
		Int("errors", len(typeErrors)).
		Msg("pull completed")

	return PullResponse{
		SessionID:       session.SessionID,
		Changes:         changes,
		Conflicts:       hints,
		ServerTimestamp: s.clock.Now(),
	}, nil
}

// Push applies the client's submitted changes. Each entity type's batch runs
// in its own transaction: a failing type rolls back only its own writes and
// is recorded in the session error detail, while other types proceed.
// Conflicts are persisted as pending inside the same per-type transaction
// that detected them.
func (s *Service) Push(ctx context.Context, owner string, req PushRequest, meta SessionMeta) (PushResponse, error) {
	session, err := s.beginSession(ctx, owner, model.SessionIncremental, nil, req.ClientInfo, meta)
	if err != nil {
		return PushResponse{}, err
	}

	results := make(map[string][]model.ApplyResult)
	conflicts := []model.Conflict{}
	typeErrors := make(map[string]string)

	for _, modelName := range sortedKeys(req.Changes) {
		if !storage.KnownModel(modelName) {
			typeErrors[modelName] = storage.ErrUnknownEntityType.Error()
			continue
		}

		var (
			typeResults   []model.ApplyResult
			typeConflicts []model.Conflict
		)
		err := s.db.InTx(ctx, func(tx storage.Tx) error {
			rs, err := tx.Records(modelName)
			if err != nil {
				return err
			}

			for _, change := range req.Changes[modelName] {
				outcome, err := s.detector.apply(ctx, rs, modelName, change, owner, req.ClientInfo, req.ResolveConflicts)
				if err != nil {
					return fmt.Errorf("apply %s change %s: %w", change.Type, change.SyncToken, err)
				}

				if outcome.Conflict != nil {
					persisted, err := tx.Conflicts().Create(ctx, *outcome.Conflict)
					if err != nil {
						return err
					}
					typeConflicts = append(typeConflicts, persisted)
					continue
				}
				typeResults = append(typeResults, *outcome.Result)
			}
			return nil
		})
		if err != nil {
			log.Warn().Err(err).Str("model", modelName).Str("sessionId", session.SessionID).Msg("push batch failed")
			typeErrors[modelName] = err.Error()
			continue
		}

		if typeResults == nil {
			typeResults = []model.ApplyResult{}
		}
		results[modelName] = typeResults
		conflicts = append(conflicts, typeConflicts...)
	}

	records := 0
	for _, res := range results {
		records += len(res)
	}
	s.finishSession(ctx, &session, records, len(conflicts), typeErrors, len(results) > 0 || len(req.Changes) == 0)

	log.Info().
		Str("sessionId", session.SessionID).
		Str("owner", owner).
		Int("applied", records).
		Int("conflicts", len(conflicts)).
		Int("errors", len(typeErrors)).
		Msg("push completed")

	return PushResponse{
		SessionID:       session.SessionID,
		Results:         results,
		Conflicts:       conflicts,
		ServerTimestamp: s.clock.Now(),
	}, nil
}

// FullSync dumps every live record of each requested type, bypassing
// checkpoints. Used for initial bootstrap or recovery after checkpoint loss.
func (s *Service) FullSync(ctx context.Context, owner string, req FullSyncRequest, meta SessionMeta) (FullSyncResponse, error) {
	session, err := s.beginSession(ctx, owner, model.SessionFull, nil, req.ClientInfo, meta)
	if err != nil {
		return FullSyncResponse{}, err
	}

	var (
		data       map[string][]model.ChangeRecord
		typeErrors map[string]string
	)
	err = s.db.InTx(ctx, func(tx storage.Tx) error {
		data, typeErrors = extractAll(ctx, tx, req.ModelNames)
		return nil
	})
	if err != nil {
		s.failSession(ctx, &session, err)
		return FullSyncResponse{}, fmt.Errorf("full sync: %w", err)
	}

	records := 0
	for _, recs := range data {
		records += len(recs)
	}
	s.finishSession(ctx, &session, records, 0, typeErrors, len(data) > 0 || len(req.ModelNames) == 0)

	log.Info().
		Str("sessionId", session.SessionID).
		Str("owner", owner).
		Int("records", records).
		Int("errors", len(typeErrors)).
		Msg("full sync completed")

	return FullSyncResponse{
		SessionID:       session.SessionID,
		Data:            data,
		ServerTimestamp: s.clock.Now(),
	}, nil
}

// beginSession opens the audit row for one exchange. The session is written
// outside the entity transactions so it survives a failed exchange.
func (s *Service) beginSession(ctx context.Context, owner string, sessionType model.SessionType, checkpoint *time.Time, clientInfo map[string]any, meta SessionMeta) (model.Session, error) {
	now := s.clock.Now()

	prefix := "sync"
	if sessionType == model.SessionFull {
		prefix = "full_sync"
	}
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	sessionID := fmt.Sprintf("%s_%s_%d_%s", prefix, owner, now.Unix(), suffix)

	info := clientInfo
	if info == nil {
		info = meta.ClientInfo
	}

	return s.db.Sessions().Create(ctx, model.Session{
		SessionID:   sessionID,
		SessionType: sessionType,
		Owner:       owner,
		Checkpoint:  checkpoint,
		Status:      model.SessionInProgress,
		StartedAt:   now,
		ClientInfo:  info,
		UserAgent:   meta.UserAgent,
		IPAddress:   meta.IPAddress,
	})
}

// finishSession settles the session into its terminal state: completed when
// no type errored, partial when some types errored but others succeeded,
// failed when every requested type errored.
func (s *Service) finishSession(ctx context.Context, session *model.Session, records, conflicts int, typeErrors map[string]string, anySucceeded bool) {
	now := s.clock.Now()
	session.RecordsSynced = records
	session.ConflictsFound = conflicts
	session.ErrorsCount = len(typeErrors)
	session.CompletedAt = &now

	switch {
	case len(typeErrors) == 0:
		session.Status = model.SessionCompleted
	case anySucceeded:
		session.Status = model.SessionPartial
	default:
		session.Status = model.SessionFailed
	}
	if len(typeErrors) > 0 {
		session.ErrorDetails = typeErrors
	}

	if err := s.db.Sessions().Update(ctx, *session); err != nil {
		log.Error().Err(err).Str("sessionId", session.SessionID).Msg("failed to finalize sync session")
	}
}

// failSession marks the session failed with the escaping error captured. The
// row is retained for audit regardless of outcome.
func (s *Service) failSession(ctx context.Context, session *model.Session, cause error) {
	now := s.clock.Now()
	session.Status = model.SessionFailed
	session.ErrorMessage = cause.Error()
	session.CompletedAt = &now

	if err := s.db.Sessions().Update(ctx, *session); err != nil {
		log.Error().Err(err).Str("sessionId", session.SessionID).Msg("failed to record session failure")
	}
}

func sortedKeys(m map[string][]model.Change) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
