package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"field-sync-service/internal/entity"
	"field-sync-service/internal/logger"
	"field-sync-service/internal/queue"
	"field-sync-service/internal/remote"
)

const offlineMessage = "Saved locally, will sync when the connection returns"

// SaveEntity creates (isEdit false) or updates an entity. Online it calls
// the remote directly; offline, or when the remote fails in a retryable way,
// it queues the mutation and reports success with IsOffline set.
//
// A *ValidationError or a non-retryable remote error is returned as is and
// nothing is queued.
func (m *Manager) SaveEntity(ctx context.Context, payload entity.Entity, isEdit bool) (*SaveResult, error) {
	required := m.cfg.RequiredCreateFields
	if isEdit {
		required = m.cfg.RequiredUpdateFields
	}
	if err := validate(payload, required, isEdit); err != nil {
		return nil, err
	}

	defer m.state.update(func(*State) {})

	// An edit of an entity the server has not seen yet cannot be addressed
	// remotely; it joins its pending create instead.
	if m.monitor.IsOnline() && (!isEdit || payload.ID() != "") {
		result, err := m.saveRemote(ctx, payload, isEdit)
		if err == nil {
			m.markSynced(ctx)
			return &SaveResult{Success: true, Data: result}, nil
		}
		if !remote.IsRetryable(err) {
			return nil, err
		}
		logger.Log.Warn("Remote save failed, queueing for later sync",
			zap.Bool("edit", isEdit), zap.Error(err))
	}

	return m.saveOffline(ctx, payload, isEdit)
}

func (m *Manager) saveRemote(ctx context.Context, payload entity.Entity, isEdit bool) (entity.Entity, error) {
	body := payload.WithoutLocalFields()
	if isEdit {
		return m.remote.UpdateEntity(ctx, payload.ID(), body)
	}
	return m.remote.CreateEntity(ctx, body)
}

// markSynced records an online write as a successful sync unless a drain
// owns the phase.
func (m *Manager) markSynced(ctx context.Context) {
	if m.coordinator.Running() {
		return
	}

	now := m.nowFunc().UTC()
	m.lastSync.save(context.WithoutCancel(ctx), now)
	m.state.update(func(s *State) {
		if s.Phase == PhaseSyncing {
			return
		}
		s.Phase = PhaseSuccess
		s.LastSync = &now
	})
}

func (m *Manager) saveOffline(ctx context.Context, payload entity.Entity, isEdit bool) (*SaveResult, error) {
	record := payload.Clone()
	record[entity.FieldOfflineTimestamp] = m.nowFunc().UTC().Format(time.RFC3339Nano)

	var err error
	if isEdit {
		err = m.queueUpdate(ctx, record)
	} else {
		tempID := payload.ID()
		if tempID == "" {
			tempID = "tmp-" + uuid.New().String()
		}
		record[entity.FieldTempID] = tempID

		_, err = m.queue.Enqueue(ctx, queue.PendingOperation{
			Kind:    queue.CreateEntity,
			Payload: record,
			TempID:  tempID,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to queue entity: %w", err)
	}

	if _, err := m.mirror.Upsert(ctx, record); err != nil {
		logger.Log.Warn("Failed to update local mirror", zap.String("identity", record.Identity()), zap.Error(err))
	}

	logger.Log.Info("Entity saved offline",
		zap.Bool("edit", isEdit),
		zap.String("identity", record.Identity()),
		zap.Int("pending", m.queue.Len()),
	)
	return &SaveResult{
		Success:   true,
		Data:      record,
		IsOffline: true,
		Message:   offlineMessage,
	}, nil
}

// queueUpdate folds an edit of a not yet synced entity into its queued
// create when no drain is running, and otherwise queues an update.
func (m *Manager) queueUpdate(ctx context.Context, record entity.Entity) error {
	tempID := record.TempID()

	if record.ID() == "" && tempID != "" {
		var (
			folded  bool
			foldErr error
		)
		m.coordinator.ifIdle(func() {
			pending, ok := m.queue.FindPendingCreate(tempID)
			if !ok {
				return
			}
			pending.Payload = pending.Payload.Merge(record)
			foldErr = m.queue.Update(ctx, pending)
			folded = foldErr == nil
		})
		if foldErr != nil && !errors.Is(foldErr, queue.ErrNotFound) {
			return foldErr
		}
		if folded {
			return nil
		}
	}

	_, err := m.queue.Enqueue(ctx, queue.PendingOperation{
		Kind:    queue.UpdateEntity,
		Payload: record,
		TempID:  tempID,
	})
	return err
}
