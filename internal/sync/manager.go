package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"field-sync-service/internal/config"
	"field-sync-service/internal/connectivity"
	"field-sync-service/internal/logger"
	"field-sync-service/internal/mirror"
	"field-sync-service/internal/queue"
	"field-sync-service/internal/remote"
	"field-sync-service/internal/store"
)

const (
	statusIdle     = "idle"
	statusRunning  = "running"
	statusStopping = "stopping"
)

// Manager is the offline-first sync engine: it owns the queue, the local
// mirror and the coordinator, and exposes the state the application reads.
type Manager struct {
	cfg         config.SyncConfig
	remote      remote.Service
	monitor     *connectivity.Monitor
	queue       *queue.Queue
	mirror      *mirror.Store
	history     *store.History
	lastSync    lastSyncStore
	state       *stateTracker
	coordinator *Coordinator
	nowFunc     func() time.Time

	mu          sync.Mutex
	status      string
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe []func()
	wg          sync.WaitGroup
}

// NewManager loads persisted engine data from kv. Unreadable data starts
// empty; it never blocks construction.
func NewManager(ctx context.Context, cfg *config.Config, kv store.KV, svc remote.Service, signal connectivity.Signal) *Manager {
	keys := cfg.Storage.Keys

	m := &Manager{
		cfg:      cfg.Sync,
		remote:   svc,
		monitor:  connectivity.NewMonitor(signal),
		queue:    queue.Load(ctx, kv, keys.Queue),
		mirror:   mirror.Load(ctx, kv, keys.Mirror),
		history:  store.NewHistory(kv, keys.History, cfg.Sync.HistoryLimit),
		lastSync: lastSyncStore{kv: kv, key: keys.LastSync},
		nowFunc:  time.Now,
		status:   statusIdle,
	}

	m.state = newStateTracker(State{
		Phase:    PhaseIdle,
		LastSync: m.lastSync.load(ctx),
	}, func(s *State) {
		s.PendingCount = m.queue.Len()
		s.Connectivity = connectivityOf(m.monitor.IsOnline())
	})

	m.coordinator = &Coordinator{
		queue:    m.queue,
		remote:   svc,
		online:   m.monitor.IsOnline,
		state:    m.state,
		lastSync: m.lastSync,
		history:  m.history,
		nowFunc:  func() time.Time { return m.nowFunc() },
	}
	return m
}

// Start probes connectivity, wires the reconnect trigger and drains any
// backlog left from a previous run.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.status {
	case statusRunning:
		return fmt.Errorf("sync engine is already running")
	case statusStopping:
		return fmt.Errorf("sync engine is stopping")
	}

	logger.Log.Info("Starting sync engine", zap.Int("pending", m.queue.Len()))

	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))

	m.unsubscribe = []func(){
		m.monitor.Subscribe(func(bool) {
			m.state.update(func(*State) {})
		}),
		m.monitor.OnReconnect(func() {
			m.triggerAsync("reconnect")
		}),
	}
	m.monitor.Start(ctx)

	if m.monitor.IsOnline() && m.queue.Len() > 0 {
		m.spawnLocked("startup")
	}

	m.status = statusRunning
	return nil
}

// Stop detaches from the connectivity signal and waits for background
// drains to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.status != statusRunning {
		m.mu.Unlock()
		return
	}

	logger.Log.Info("Stopping sync engine")

	m.monitor.Stop()
	for _, unsubscribe := range m.unsubscribe {
		unsubscribe()
	}
	m.unsubscribe = nil
	m.cancel()
	m.status = statusStopping
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	m.status = statusIdle
	m.mu.Unlock()
}

// GetStatus reports whether the engine is started.
func (m *Manager) GetStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// triggerAsync starts a background drain unless the engine is stopped.
func (m *Manager) triggerAsync(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != statusRunning {
		logger.Log.Debug("Sync trigger ignored, engine not running", zap.String("reason", reason))
		return
	}
	m.spawnLocked(reason)
}

// spawnLocked runs a drain on its own goroutine. m.mu must be held so the
// WaitGroup is never grown once Stop has begun waiting.
func (m *Manager) spawnLocked(reason string) {
	ctx := m.ctx
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		logger.Log.Info("Triggering sync", zap.String("reason", reason))
		_, err := m.TriggerSync(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrSyncInProgress), errors.Is(err, ErrOffline):
			logger.Log.Debug("Sync trigger skipped", zap.String("reason", reason), zap.Error(err))
		default:
			logger.Log.Error("Background sync failed", zap.String("reason", reason), zap.Error(err))
		}
	}()
}

func (m *Manager) IsOnline() bool {
	return m.monitor.IsOnline()
}

// State returns the current engine state.
func (m *Manager) State() State {
	return m.state.get()
}

// Subscribe registers handler for state changes and returns its
// unsubscribe function.
func (m *Manager) Subscribe(handler func(State)) func() {
	return m.state.subscribe(handler)
}

// TriggerSync drains the queue now. It returns ErrOffline or
// ErrSyncInProgress without doing anything when the drain cannot start.
func (m *Manager) TriggerSync(ctx context.Context) (DrainReport, error) {
	return m.coordinator.Drain(ctx)
}

// Syncing reports whether a drain is running.
func (m *Manager) Syncing() bool {
	return m.coordinator.Running()
}

// ClearPendingData drops every queued operation. Mirror records are kept.
func (m *Manager) ClearPendingData(ctx context.Context) error {
	err := m.queue.Clear(ctx)
	m.state.update(func(*State) {})
	if err != nil {
		return err
	}

	logger.Log.Info("Cleared pending operations")
	return nil
}

// ResetLocalData drops the queue, the mirror and the last sync time.
func (m *Manager) ResetLocalData(ctx context.Context) error {
	err := errors.Join(
		m.queue.Clear(ctx),
		m.mirror.Clear(ctx),
		m.lastSync.clear(ctx),
	)
	m.state.update(func(s *State) {
		s.LastSync = nil
		if s.Phase != PhaseSyncing {
			s.Phase = PhaseIdle
		}
	})
	if err != nil {
		return fmt.Errorf("failed to reset local data: %w", err)
	}

	logger.Log.Info("Reset local data")
	return nil
}

// PendingOperations lists the queue in drain order.
func (m *Manager) PendingOperations() []queue.PendingOperation {
	return m.queue.List()
}

// LocalRecords lists the mirrored entities.
func (m *Manager) LocalRecords() []mirror.Record {
	return m.mirror.List()
}

// History returns up to limit past drains, newest first.
func (m *Manager) History(ctx context.Context, limit int) ([]store.SyncHistory, error) {
	return m.history.List(ctx, limit)
}
