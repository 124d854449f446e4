// Package connectivity tracks network reachability and announces reconnects.
package connectivity

import (
	"context"
	"sync"
)

// Signal is the platform reachability source the Monitor reads.
type Signal interface {
	// Probe reports current reachability.
	Probe(ctx context.Context) (bool, error)
	// Subscribe registers handler for subsequent changes. The returned
	// function removes it.
	Subscribe(handler func(reachable bool)) (unsubscribe func())
}

// broadcaster is the subscriber bookkeeping shared by Signal implementations
// and the Monitor.
type broadcaster[T any] struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]func(T)
}

func (b *broadcaster[T]) add(handler func(T)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers == nil {
		b.handlers = make(map[int]func(T))
	}
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
		})
	}
}

func (b *broadcaster[T]) snapshot() []func(T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]func(T), 0, len(b.handlers))
	for _, h := range b.handlers {
		out = append(out, h)
	}
	return out
}

func (b *broadcaster[T]) emit(v T) {
	for _, h := range b.snapshot() {
		h(v)
	}
}

// ManualSignal is a Signal whose reachability is set by its owner: tests,
// or a host application that learns about the network itself.
type ManualSignal struct {
	mu        sync.Mutex
	reachable bool
	probeErr  error
	subs      broadcaster[bool]
}

func NewManualSignal(reachable bool) *ManualSignal {
	return &ManualSignal{reachable: reachable}
}

func (s *ManualSignal) Probe(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.probeErr != nil {
		return false, s.probeErr
	}
	return s.reachable, nil
}

func (s *ManualSignal) Subscribe(handler func(bool)) func() {
	return s.subs.add(handler)
}

// Set changes reachability and notifies subscribers when it differs.
func (s *ManualSignal) Set(reachable bool) {
	s.mu.Lock()
	changed := s.reachable != reachable
	s.reachable = reachable
	s.mu.Unlock()

	if changed {
		s.subs.emit(reachable)
	}
}

// FailProbe makes subsequent probes return err (nil restores them).
func (s *ManualSignal) FailProbe(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.probeErr = err
}
