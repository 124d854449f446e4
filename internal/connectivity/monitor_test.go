package connectivity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"field-sync-service/internal/config"
)

// recorder collects values delivered to a subscriber.
type recorder struct {
	mu     sync.Mutex
	values []bool
}

func (r *recorder) record(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder) get() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.values...)
}

func TestMonitor_InitialProbeEstablishesState(t *testing.T) {
	t.Parallel()

	m := NewMonitor(NewManualSignal(false))
	assert.True(t, m.IsOnline(), "online before the first probe")

	m.Start(context.Background())
	defer m.Stop()

	assert.False(t, m.IsOnline())
}

func TestMonitor_ProbeFailureFailsOpen(t *testing.T) {
	t.Parallel()

	sig := NewManualSignal(false)
	sig.FailProbe(errors.New("netinfo unavailable"))

	m := NewMonitor(sig)
	m.Start(context.Background())
	defer m.Stop()

	assert.True(t, m.IsOnline())
}

func TestMonitor_NilSignalFailsOpen(t *testing.T) {
	t.Parallel()

	m := NewMonitor(nil)
	m.Start(context.Background())
	defer m.Stop()

	assert.True(t, m.IsOnline())

	var rec recorder
	unsubscribe := m.Subscribe(rec.record)
	defer unsubscribe()
	assert.Equal(t, []bool{true}, rec.get())
}

func TestMonitor_LateSubscriberGetsLastKnownValue(t *testing.T) {
	t.Parallel()

	sig := NewManualSignal(false)
	m := NewMonitor(sig)
	m.Start(context.Background())
	defer m.Stop()

	var rec recorder
	unsubscribe := m.Subscribe(rec.record)
	assert.Equal(t, []bool{false}, rec.get(), "immediate delivery of last known state")

	sig.Set(true)
	assert.Equal(t, []bool{false, true}, rec.get())

	unsubscribe()
	sig.Set(false)
	assert.Equal(t, []bool{false, true}, rec.get(), "no delivery after unsubscribe")
}

func TestMonitor_SubscriberBeforeProbeWaitsForIt(t *testing.T) {
	t.Parallel()

	m := NewMonitor(NewManualSignal(false))

	var rec recorder
	defer m.Subscribe(rec.record)()
	assert.Empty(t, rec.get(), "nothing is known before the probe")

	m.Start(context.Background())
	defer m.Stop()
	assert.Equal(t, []bool{false}, rec.get())
}

func TestMonitor_ReconnectFiresOnlyOnFalseToTrue(t *testing.T) {
	t.Parallel()

	sig := NewManualSignal(true)
	m := NewMonitor(sig)
	m.Start(context.Background())
	defer m.Stop()

	var reconnects atomic.Int32
	defer m.OnReconnect(func() { reconnects.Add(1) })()

	sig.Set(true)
	assert.Equal(t, int32(0), reconnects.Load(), "already online")

	sig.Set(false)
	assert.Equal(t, int32(0), reconnects.Load())

	sig.Set(true)
	assert.Equal(t, int32(1), reconnects.Load())
	assert.True(t, m.IsOnline())
}

func TestMonitor_StopDetachesFromSignal(t *testing.T) {
	t.Parallel()

	sig := NewManualSignal(true)
	m := NewMonitor(sig)
	m.Start(context.Background())
	m.Stop()

	sig.Set(false)
	assert.True(t, m.IsOnline())
}

func TestHTTPSignal_ProbeAndPoll(t *testing.T) {
	t.Parallel()

	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sig := NewHTTPSignal(config.ConnectivityConfig{
		ProbeURL: srv.URL,
		Interval: "10ms",
		Timeout:  "1s",
	}, nil)

	ok, err := sig.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	var rec recorder
	defer sig.Subscribe(rec.record)()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sig.Run(ctx)
	}()

	require.Eventually(t, func() bool { return len(rec.get()) >= 1 }, time.Second, 5*time.Millisecond)
	healthy.Store(false)
	require.Eventually(t, func() bool {
		v := rec.get()
		return len(v) >= 2 && !v[len(v)-1]
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, []bool{true, false}, rec.get(), "only changes are delivered")
}

func TestHTTPSignal_UnreachableHostIsOffline(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	sig := NewHTTPSignal(config.ConnectivityConfig{ProbeURL: srv.URL, Timeout: "200ms"}, nil)
	ok, err := sig.Probe(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPSignal_NoURL(t *testing.T) {
	t.Parallel()

	sig := NewHTTPSignal(config.ConnectivityConfig{}, nil)
	_, err := sig.Probe(context.Background())
	assert.ErrorIs(t, err, ErrNoProbeURL)
	assert.NoError(t, sig.Run(context.Background()))
}
