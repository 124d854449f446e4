package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"field-sync-service/internal/logger"
	"field-sync-service/internal/store"
)

// stateTracker holds the published State and its subscribers. Handlers run
// outside the lock, after every update.
type stateTracker struct {
	mu      sync.Mutex
	state   State
	nextID  int
	handler map[int]func(State)

	// refresh fills fields owned by other components, such as the queue
	// length, right before a state is published.
	refresh func(*State)
}

func newStateTracker(initial State, refresh func(*State)) *stateTracker {
	return &stateTracker{
		state:   initial,
		handler: make(map[int]func(State)),
		refresh: refresh,
	}
}

func (t *stateTracker) get() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.refresh != nil {
		t.refresh(&t.state)
	}
	return copyState(t.state)
}

func (t *stateTracker) update(fn func(*State)) {
	t.mu.Lock()
	fn(&t.state)
	if t.refresh != nil {
		t.refresh(&t.state)
	}
	snapshot := copyState(t.state)
	handlers := make([]func(State), 0, len(t.handler))
	for _, h := range t.handler {
		handlers = append(handlers, h)
	}
	t.mu.Unlock()

	for _, h := range handlers {
		h(snapshot)
	}
}

func (t *stateTracker) subscribe(handler func(State)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.handler[id] = handler
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.handler, id)
			t.mu.Unlock()
		})
	}
}

func copyState(s State) State {
	if s.LastSync != nil {
		ts := *s.LastSync
		s.LastSync = &ts
	}
	return s
}

// lastSyncStore persists the last successful sync time as RFC 3339.
type lastSyncStore struct {
	kv  store.KV
	key string
}

func (l lastSyncStore) load(ctx context.Context) *time.Time {
	raw, found, err := l.kv.Get(ctx, l.key)
	if err != nil {
		logger.Log.Warn("Failed to read last sync time", zap.Error(err))
		return nil
	}
	if !found || raw == "" {
		return nil
	}

	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		logger.Log.Warn("Ignoring malformed last sync time", zap.String("value", raw), zap.Error(err))
		return nil
	}
	return &ts
}

// save is best effort: the in-memory stamp stays authoritative for this run.
func (l lastSyncStore) save(ctx context.Context, ts time.Time) {
	if err := l.kv.Set(ctx, l.key, ts.UTC().Format(time.RFC3339Nano)); err != nil {
		logger.Log.Warn("Failed to persist last sync time", zap.Error(err))
	}
}

func (l lastSyncStore) clear(ctx context.Context) error {
	return l.kv.Remove(ctx, l.key)
}
