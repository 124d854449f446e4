package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"field-sync-service/internal/entity"
	"field-sync-service/internal/logger"
	"field-sync-service/internal/queue"
	"field-sync-service/internal/remote"
	"field-sync-service/internal/store"
)

// Coordinator drains the pending queue against the remote service, one
// operation at a time in enqueue order. At most one drain runs at once.
type Coordinator struct {
	queue    *queue.Queue
	remote   remote.Service
	online   func() bool
	state    *stateTracker
	lastSync lastSyncStore
	history  *store.History
	nowFunc  func() time.Time

	// startMu makes the running check and the queue snapshot atomic with
	// respect to ifIdle.
	startMu sync.Mutex
	running atomic.Bool
}

// Running reports whether a drain is in progress.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// ifIdle runs fn only if no drain is in progress, and keeps a drain from
// starting until fn returns.
func (c *Coordinator) ifIdle(fn func()) bool {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if c.running.Load() {
		return false
	}
	fn()
	return true
}

func (c *Coordinator) begin() ([]queue.PendingOperation, bool) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if !c.running.CompareAndSwap(false, true) {
		return nil, false
	}
	return c.queue.List(), true
}

// Drain processes a snapshot of the queue. Per-item failures stay queued
// and do not stop the drain; a persistence failure, a cancelled ctx or a
// panic in the remote call aborts it with phase ERROR.
func (c *Coordinator) Drain(ctx context.Context) (DrainReport, error) {
	if !c.online() {
		logger.Log.Debug("Skipping sync, offline")
		return DrainReport{}, ErrOffline
	}

	ops, ok := c.begin()
	if !ok {
		logger.Log.Debug("Sync already running, trigger dropped")
		return DrainReport{}, ErrSyncInProgress
	}
	defer c.running.Store(false)

	report := DrainReport{StartedAt: c.nowFunc().UTC(), Outcomes: []ItemOutcome{}}
	c.state.update(func(s *State) { s.Phase = PhaseSyncing })

	logger.Log.Info("Starting sync", zap.Int("pending", len(ops)))

	err := c.run(ctx, ops, &report)

	report.CompletedAt = c.nowFunc().UTC()
	report.Remaining = c.queue.Len()

	if err != nil {
		c.state.update(func(s *State) { s.Phase = PhaseError })
		c.record(ctx, report, err)
		logger.Log.Error("Sync aborted",
			zap.Int("processed", report.Processed),
			zap.Int("remaining", report.Remaining),
			zap.Error(err),
		)
		return report, fmt.Errorf("%w: %w", ErrSyncAborted, err)
	}

	completed := report.CompletedAt
	c.lastSync.save(context.WithoutCancel(ctx), completed)
	c.state.update(func(s *State) {
		s.Phase = PhaseSuccess
		s.LastSync = &completed
	})
	c.record(ctx, report, nil)

	logger.Log.Info("Sync completed",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("remaining", report.Remaining),
	)
	return report, nil
}

func (c *Coordinator) run(ctx context.Context, ops []queue.PendingOperation, report *DrainReport) error {
	// Real ids handed out by creates in this drain, keyed by temp id. The
	// snapshot predates AssignID, so updates in it resolve through here.
	resolved := make(map[string]string)

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, err := c.dispatch(ctx, op, resolved)
		if err != nil {
			return err
		}
		report.add(outcome)

		if !outcome.Success {
			logger.Log.Warn("Operation failed, keeping it queued",
				zap.String("id", op.ID),
				zap.String("kind", string(op.Kind)),
				zap.String("error", outcome.Error),
			)
			// The snapshot copy may be stale: AssignID can have given it a real id.
			if err := c.queue.RecordFailure(ctx, op.ID, outcome.Error); err != nil && !errors.Is(err, queue.ErrNotFound) {
				return err
			}
			continue
		}

		if err := c.queue.Remove(ctx, op.ID); err != nil {
			return err
		}
		if op.Kind == queue.CreateEntity && op.TempID != "" && outcome.RealID != "" {
			resolved[op.TempID] = outcome.RealID
			if _, err := c.queue.AssignID(ctx, op.TempID, outcome.RealID); err != nil {
				return err
			}
		}
	}
	return nil
}

// dispatch sends one operation. Remote failures are reported in the
// outcome; only a cancelled ctx or a panic is returned as an error.
func (c *Coordinator) dispatch(ctx context.Context, op queue.PendingOperation, resolved map[string]string) (outcome ItemOutcome, err error) {
	outcome = ItemOutcome{OperationID: op.ID, Kind: op.Kind, TempID: op.TempID}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while syncing operation %s: %v", op.ID, r)
		}
	}()

	payload := op.Payload.WithoutLocalFields()

	var (
		result  entity.Entity
		callErr error
	)
	switch op.Kind {
	case queue.CreateEntity:
		result, callErr = c.remote.CreateEntity(ctx, payload)
	case queue.UpdateEntity:
		id := op.Payload.ID()
		if id == "" {
			id = resolved[op.TempID]
		}
		if id == "" {
			callErr = ErrMissingEntityID
			break
		}
		result, callErr = c.remote.UpdateEntity(ctx, id, payload)
		if callErr == nil && result.ID() == "" {
			outcome.RealID = id
		}
	default:
		callErr = fmt.Errorf("unknown operation kind %q", op.Kind)
	}

	if callErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome, ctxErr
		}
		outcome.Error = callErr.Error()
		return outcome, nil
	}

	outcome.Success = true
	if id := result.ID(); id != "" {
		outcome.RealID = id
	}
	return outcome, nil
}

func (c *Coordinator) record(ctx context.Context, report DrainReport, cause error) {
	if c.history == nil {
		return
	}

	completed := report.CompletedAt
	entry := store.SyncHistory{
		StartedAt:   report.StartedAt,
		CompletedAt: &completed,
		Status:      store.HistoryStatusSuccess,
		Processed:   report.Processed,
		Succeeded:   report.Succeeded,
		Failed:      report.Failed,
		Remaining:   report.Remaining,
	}
	if cause != nil {
		entry.Status = store.HistoryStatusError
		entry.ErrorMessage = cause.Error()
	}

	if err := c.history.Append(context.WithoutCancel(ctx), entry); err != nil {
		logger.Log.Warn("Failed to record sync history", zap.Error(err))
	}
}
