// Package queue is the durable, strictly ordered store of pending mutation
// intents. The whole list is persisted under one KV key on every mutation;
// on-device backlogs are small enough for that to be cheap.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"field-sync-service/internal/entity"
	"field-sync-service/internal/logger"
	"field-sync-service/internal/store"
)

type Kind string

const (
	CreateEntity Kind = "CREATE_ENTITY"
	UpdateEntity Kind = "UPDATE_ENTITY"
)

// ErrNotFound is returned by Update for an id that is not queued.
var ErrNotFound = errors.New("queue: operation not found")

// PendingOperation is a queued intent to create or update an entity.
type PendingOperation struct {
	ID         string        `json:"id"`
	Kind       Kind          `json:"kind"`
	Payload    entity.Entity `json:"payload"`
	TempID     string        `json:"tempId,omitempty"`
	EnqueuedAt time.Time     `json:"enqueuedAt"`
	Attempts   int           `json:"attempts,omitempty"`
	LastError  string        `json:"lastError,omitempty"`
}

// Queue is safe for concurrent use; mutations are serialised.
type Queue struct {
	kv  store.KV
	key string

	mu      sync.Mutex
	ops     []PendingOperation
	nowFunc func() time.Time
}

// Load opens the queue persisted under key. A read or decode failure is
// logged and yields an empty queue so the engine can still start.
func Load(ctx context.Context, kv store.KV, key string) *Queue {
	q := &Queue{kv: kv, key: key, nowFunc: time.Now}

	raw, found, err := kv.Get(ctx, key)
	switch {
	case err != nil:
		logger.Log.Warn("Failed to read pending operations, starting empty",
			zap.String("key", key), zap.Error(err))
	case found:
		if err := json.Unmarshal([]byte(raw), &q.ops); err != nil {
			logger.Log.Warn("Failed to decode pending operations, starting empty",
				zap.String("key", key), zap.Error(err))
			q.ops = nil
		}
	}

	logger.Log.Info("Loaded pending operations", zap.Int("count", len(q.ops)))
	return q
}

// Enqueue appends op, assigning an id and enqueue time when missing, and
// returns the stored record.
func (q *Queue) Enqueue(ctx context.Context, op PendingOperation) (PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = q.nowFunc().UTC()
	}
	op.Payload = op.Payload.Clone()

	next := make([]PendingOperation, len(q.ops), len(q.ops)+1)
	copy(next, q.ops)
	next = append(next, op)

	if err := q.persist(ctx, next); err != nil {
		return PendingOperation{}, err
	}
	q.ops = next
	return op, nil
}

// List returns a copy of the queue in enqueue order.
func (q *Queue) List() []PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]PendingOperation, len(q.ops))
	for i, op := range q.ops {
		op.Payload = op.Payload.Clone()
		out[i] = op
	}
	return out
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Remove drops the operation with id. Removing an absent id is a no-op.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := make([]PendingOperation, 0, len(q.ops))
	for _, op := range q.ops {
		if op.ID != id {
			next = append(next, op)
		}
	}
	if len(next) == len(q.ops) {
		return nil
	}

	if err := q.persist(ctx, next); err != nil {
		return err
	}
	q.ops = next
	return nil
}

// Update replaces the stored operation with op.ID, keeping its position.
func (q *Queue) Update(ctx context.Context, op PendingOperation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := -1
	for i := range q.ops {
		if q.ops[i].ID == op.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, op.ID)
	}

	next := make([]PendingOperation, len(q.ops))
	copy(next, q.ops)
	op.Payload = op.Payload.Clone()
	next[idx] = op

	if err := q.persist(ctx, next); err != nil {
		return err
	}
	q.ops = next
	return nil
}

// RecordFailure bumps the attempt count of the queued operation id and
// stores lastError. The rest of the record is left as queued.
func (q *Queue) RecordFailure(ctx context.Context, id, lastError string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := -1
	for i := range q.ops {
		if q.ops[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := make([]PendingOperation, len(q.ops))
	copy(next, q.ops)
	next[idx].Attempts++
	next[idx].LastError = lastError

	if err := q.persist(ctx, next); err != nil {
		return err
	}
	q.ops = next
	return nil
}

// FindPendingCreate returns the queued create for tempID, if any.
func (q *Queue) FindPendingCreate(tempID string) (PendingOperation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, op := range q.ops {
		if op.Kind == CreateEntity && op.TempID == tempID {
			op.Payload = op.Payload.Clone()
			return op, true
		}
	}
	return PendingOperation{}, false
}

// AssignID stamps realID onto every queued update for tempID that has no
// real id yet, and reports how many were changed.
func (q *Queue) AssignID(ctx context.Context, tempID, realID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := make([]PendingOperation, len(q.ops))
	changed := 0
	for i, op := range q.ops {
		if op.Kind == UpdateEntity && op.TempID == tempID && op.Payload.ID() == "" {
			op.Payload = op.Payload.Clone()
			op.Payload[entity.FieldID] = realID
			changed++
		}
		next[i] = op
	}
	if changed == 0 {
		return 0, nil
	}

	if err := q.persist(ctx, next); err != nil {
		return 0, err
	}
	q.ops = next
	return changed, nil
}

// Clear empties the queue.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.kv.Remove(ctx, q.key); err != nil {
		return fmt.Errorf("failed to clear pending operations: %w", err)
	}
	q.ops = nil
	return nil
}

// persist writes ops; the caller swaps them in only on success so a failed
// write leaves memory and storage in agreement.
func (q *Queue) persist(ctx context.Context, ops []PendingOperation) error {
	if ops == nil {
		ops = []PendingOperation{}
	}
	data, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to encode pending operations: %w", err)
	}
	if err := q.kv.Set(ctx, q.key, string(data)); err != nil {
		return fmt.Errorf("failed to persist pending operations: %w", err)
	}
	return nil
}
