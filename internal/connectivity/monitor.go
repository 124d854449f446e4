package connectivity

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"field-sync-service/internal/logger"
)

// Monitor exposes the current reachability and fans out transitions.
// Until the first probe completes it reports online: writes are never
// blocked on a reachability check that could not be made.
type Monitor struct {
	signal Signal

	mu          sync.Mutex
	online      bool
	known       bool
	version     uint64
	unsubscribe func()

	changes    broadcaster[bool]
	reconnects broadcaster[struct{}]
}

// NewMonitor wraps signal. A nil signal means reachability cannot be
// observed on this platform and the monitor stays online.
func NewMonitor(signal Signal) *Monitor {
	return &Monitor{signal: signal, online: true}
}

// Start subscribes to the signal and runs the initial probe. A probe error
// leaves the monitor online.
func (m *Monitor) Start(ctx context.Context) {
	if m.signal == nil {
		logger.Log.Warn("No connectivity signal available, assuming online")
		m.mu.Lock()
		m.known = true
		m.mu.Unlock()
		return
	}

	unsubscribe := m.signal.Subscribe(func(reachable bool) {
		m.set(reachable, "signal")
	})

	m.mu.Lock()
	m.unsubscribe = unsubscribe
	before := m.version
	m.mu.Unlock()

	reachable, err := m.signal.Probe(ctx)
	if err != nil {
		logger.Log.Warn("Connectivity probe failed, assuming online", zap.Error(err))
		reachable = true
	}

	m.mu.Lock()
	if m.version != before {
		// A pushed change landed while probing; it is newer than the probe.
		m.known = true
		m.mu.Unlock()
		return
	}
	m.online = reachable
	m.known = true
	m.version++
	m.mu.Unlock()

	logger.Log.Info("Initial connectivity", zap.Bool("online", reachable))
	m.changes.emit(reachable)
}

// Stop detaches from the signal. Subscribers stay registered.
func (m *Monitor) Stop() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers handler for reachability changes. If the initial
// state is already known the handler receives it immediately.
func (m *Monitor) Subscribe(handler func(online bool)) func() {
	unsubscribe := m.changes.add(handler)

	m.mu.Lock()
	known, online := m.known, m.online
	m.mu.Unlock()

	if known {
		handler(online)
	}
	return unsubscribe
}

// OnReconnect registers handler for offline→online transitions.
func (m *Monitor) OnReconnect(handler func()) func() {
	return m.reconnects.add(func(struct{}) { handler() })
}

func (m *Monitor) set(online bool, source string) {
	m.mu.Lock()
	was := m.online
	m.online = online
	m.known = true
	m.version++
	m.mu.Unlock()

	if was == online {
		return
	}

	logger.Log.Info("Connectivity changed",
		zap.Bool("online", online),
		zap.String("source", source),
	)
	m.changes.emit(online)

	if !was && online {
		m.reconnects.emit(struct{}{})
	}
}
