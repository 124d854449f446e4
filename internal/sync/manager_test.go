package sync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"field-sync-service/internal/config"
	"field-sync-service/internal/connectivity"
	"field-sync-service/internal/entity"
	"field-sync-service/internal/queue"
	"field-sync-service/internal/store"
)

type updateCall struct {
	ID      string
	Payload entity.Entity
}

// fakeRemote records calls and assigns sequential server ids to creates.
type fakeRemote struct {
	mu      sync.Mutex
	seq     int
	created []entity.Entity
	updated []updateCall

	// createErr, when set, decides the outcome of each create.
	createErr func(payload entity.Entity) error
	updateErr func(id string) error

	// block, when set, holds every create until it is closed or ctx ends.
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeRemote) CreateEntity(ctx context.Context, payload entity.Entity) (entity.Entity, error) {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		if err := f.createErr(payload); err != nil {
			return nil, err
		}
	}
	f.seq++
	f.created = append(f.created, payload.Clone())

	out := payload.Clone()
	out[entity.FieldID] = fmt.Sprintf("srv-%d", f.seq)
	return out, nil
}

func (f *fakeRemote) UpdateEntity(_ context.Context, id string, payload entity.Entity) (entity.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		if err := f.updateErr(id); err != nil {
			return nil, err
		}
	}
	f.updated = append(f.updated, updateCall{ID: id, Payload: payload.Clone()})

	out := payload.Clone()
	out[entity.FieldID] = id
	return out, nil
}

func (f *fakeRemote) createdNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.created))
	for _, c := range f.created {
		names = append(names, fmt.Sprint(c["nom"]))
	}
	return names
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created) + len(f.updated)
}

func testConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{
			Keys: config.StorageKeys{
				Queue:    "sync_pending_operations",
				Mirror:   "local_clients",
				LastSync: "last_sync_date",
				History:  "sync_history",
			},
		},
		Sync: config.SyncConfig{
			RequiredCreateFields: []string{"nom", "prenom", "numeroCni", "telephone"},
			RequiredUpdateFields: []string{"numeroCni", "telephone"},
			HistoryLimit:         10,
		},
	}
}

func newKV(t *testing.T) store.KV {
	t.Helper()

	kv, err := store.NewBadgerStore("", true)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

// newManager builds an engine that has not been started; its monitor
// reports online until Start probes the signal.
func newManager(t *testing.T, kv store.KV, svc *fakeRemote, sig connectivity.Signal) *Manager {
	t.Helper()
	return NewManager(context.Background(), testConfig(), kv, svc, sig)
}

func startManager(t *testing.T, m *Manager) {
	t.Helper()

	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)
}

func client(nom string) entity.Entity {
	return entity.Entity{
		"nom":       nom,
		"prenom":    "Awa",
		"numeroCni": "CNI-" + nom,
		"telephone": "690000000",
	}
}

func enqueueCreates(t *testing.T, m *Manager, names ...string) []queue.PendingOperation {
	t.Helper()

	var ops []queue.PendingOperation
	for _, name := range names {
		op, err := m.queue.Enqueue(context.Background(), queue.PendingOperation{
			Kind:    queue.CreateEntity,
			Payload: client(name),
			TempID:  "tmp-" + name,
		})
		require.NoError(t, err)
		ops = append(ops, op)
	}
	return ops
}

func TestManager_StartTwiceFails(t *testing.T) {
	t.Parallel()

	m := newManager(t, newKV(t), &fakeRemote{}, connectivity.NewManualSignal(true))
	startManager(t, m)

	assert.Equal(t, statusRunning, m.GetStatus())
	assert.Error(t, m.Start(context.Background()))

	m.Stop()
	assert.Equal(t, statusIdle, m.GetStatus())
	m.Stop()
}

func TestManager_ReconnectsRacingStop(t *testing.T) {
	t.Parallel()

	sig := connectivity.NewManualSignal(true)
	m := newManager(t, newKV(t), &fakeRemote{}, sig)
	startManager(t, m)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			sig.Set(i%2 == 1)
		}
	}()
	m.Stop()
	<-done

	assert.Equal(t, statusIdle, m.GetStatus())
}

func TestManager_NoBackgroundDrainAfterStop(t *testing.T) {
	t.Parallel()

	svc := &fakeRemote{}
	m := newManager(t, newKV(t), svc, connectivity.NewManualSignal(true))
	startManager(t, m)
	m.Stop()

	enqueueCreates(t, m, "a")
	m.triggerAsync("reconnect")
	m.wg.Wait()

	assert.Zero(t, svc.calls())
	assert.Equal(t, 1, m.State().PendingCount)
	assert.Equal(t, PhaseIdle, m.State().Phase)
}

func TestManager_StartDrainsBacklogWhenOnline(t *testing.T) {
	t.Parallel()

	kv := newKV(t)
	svc := &fakeRemote{}

	seed := newManager(t, kv, svc, nil)
	enqueueCreates(t, seed, "a", "b")

	m := newManager(t, kv, svc, connectivity.NewManualSignal(true))
	assert.Equal(t, 2, m.State().PendingCount, "queue reloaded from storage")
	startManager(t, m)

	require.Eventually(t, func() bool { return m.State().PendingCount == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, svc.createdNames())
}

func TestManager_StartOfflineKeepsBacklog(t *testing.T) {
	t.Parallel()

	svc := &fakeRemote{}
	m := newManager(t, newKV(t), svc, connectivity.NewManualSignal(false))
	enqueueCreates(t, m, "a")
	startManager(t, m)

	state := m.State()
	assert.Equal(t, Offline, state.Connectivity)
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.Equal(t, 1, state.PendingCount)
	assert.Zero(t, svc.calls())
}

func TestManager_SubscribersSeeDrainPhases(t *testing.T) {
	t.Parallel()

	m := newManager(t, newKV(t), &fakeRemote{}, nil)
	enqueueCreates(t, m, "a")

	var (
		mu     sync.Mutex
		phases []Phase
		counts []int
	)
	unsubscribe := m.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, s.Phase)
		counts = append(counts, s.PendingCount)
	})

	_, err := m.TriggerSync(context.Background())
	require.NoError(t, err)
	unsubscribe()

	_, err = m.TriggerSync(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Phase{PhaseSyncing, PhaseSuccess}, phases)
	assert.Equal(t, []int{1, 0}, counts)
}

func TestManager_LastSyncAndHistorySurviveRestart(t *testing.T) {
	t.Parallel()

	kv := newKV(t)
	svc := &fakeRemote{}

	m := newManager(t, kv, svc, nil)
	enqueueCreates(t, m, "a")
	report, err := m.TriggerSync(context.Background())
	require.NoError(t, err)

	reloaded := newManager(t, kv, svc, nil)
	state := reloaded.State()
	require.NotNil(t, state.LastSync)
	assert.True(t, state.LastSync.Equal(report.CompletedAt))

	history, err := reloaded.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, store.HistoryStatusSuccess, history[0].Status)
	assert.Equal(t, 1, history[0].Succeeded)
}

func TestManager_ClearPendingDataKeepsMirror(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManager(t, newKV(t), &fakeRemote{}, connectivity.NewManualSignal(false))
	startManager(t, m)

	_, err := m.SaveEntity(ctx, client("a"), false)
	require.NoError(t, err)
	require.Equal(t, 1, m.State().PendingCount)

	require.NoError(t, m.ClearPendingData(ctx))
	assert.Equal(t, 0, m.State().PendingCount)
	assert.Empty(t, m.PendingOperations())
	assert.Len(t, m.LocalRecords(), 1)
}

func TestManager_ResetLocalData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := newKV(t)
	m := newManager(t, kv, &fakeRemote{}, nil)

	_, err := m.SaveEntity(ctx, client("a"), false)
	require.NoError(t, err)
	require.NotNil(t, m.State().LastSync)

	sig := connectivity.NewManualSignal(false)
	offline := newManager(t, kv, &fakeRemote{}, sig)
	startManager(t, offline)
	_, err = offline.SaveEntity(ctx, client("b"), false)
	require.NoError(t, err)

	require.NoError(t, offline.ResetLocalData(ctx))
	state := offline.State()
	assert.Nil(t, state.LastSync)
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.Equal(t, 0, state.PendingCount)
	assert.Empty(t, offline.LocalRecords())

	assert.Nil(t, newManager(t, kv, &fakeRemote{}, nil).State().LastSync)
}
