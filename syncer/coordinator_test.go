package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fitfriendsclub/khyrie-offline/domain"
	"github.com/fitfriendsclub/khyrie-offline/recordstore"
)

type pushCall struct {
	collection domain.Collection
	recordID   int64
	key        string
}

type stubPusher struct {
	mu       sync.Mutex
	calls    []pushCall
	inFlight atomic.Int32
	overlap  atomic.Bool
	// errFor returns the error for a given record id; nil accepts.
	errFor func(collection domain.Collection, id int64) error
	delay  time.Duration
}

func (p *stubPusher) PushRecord(_ context.Context, collection domain.Collection, record domain.Record) error {
	if p.inFlight.Add(1) > 1 {
		p.overlap.Store(true)
	}
	defer p.inFlight.Add(-1)

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	p.calls = append(p.calls, pushCall{collection: collection, recordID: record.ID, key: record.IdempotencyKey})
	p.mu.Unlock()

	if p.errFor != nil {
		return p.errFor(collection, record.ID)
	}
	return nil
}

func (p *stubPusher) callsFor(collection domain.Collection) []pushCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]pushCall, 0, len(p.calls))
	for _, call := range p.calls {
		if call.collection == collection {
			out = append(out, call)
		}
	}
	return out
}

type stubCatalog struct {
	entries []domain.ExerciseCatalogEntry
	err     error
	calls   int
}

func (c *stubCatalog) FetchExercises(context.Context) ([]domain.ExerciseCatalogEntry, error) {
	c.calls++
	return c.entries, c.err
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}

func newTestStore(t *testing.T) *recordstore.Store {
	t.Helper()
	store, err := recordstore.Open(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestCoordinator(t *testing.T, store *recordstore.Store, pusher RecordPusher, opts ...Option) *Coordinator {
	t.Helper()
	opts = append(opts, WithLogger(log.New(testWriter{t}, "", 0)))
	return New(store, pusher, time.Minute, 25, opts...)
}

func appendRecords(t *testing.T, store *recordstore.Store, collection domain.Collection, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := store.Append(context.Background(), collection, json.RawMessage(`{"set":1}`))
		require.NoError(t, err)
	}
}

func TestOfflineAppendsSyncAfterOnlineTransition(t *testing.T) {
	store := newTestStore(t)
	pusher := &stubPusher{}
	coordinator := newTestCoordinator(t, store, pusher)
	ctx := context.Background()

	appendRecords(t, store, domain.CollectionWorkouts, 3)

	coordinator.SetOnline(true)
	require.NoError(t, coordinator.SyncNow(ctx))

	calls := pusher.callsFor(domain.CollectionWorkouts)
	require.Len(t, calls, 3, "one POST per record")
	require.Equal(t, int64(1), calls[0].recordID)
	require.Equal(t, int64(2), calls[1].recordID)
	require.Equal(t, int64(3), calls[2].recordID)

	unsynced, err := store.ListUnsynced(ctx, domain.CollectionWorkouts, 0)
	require.NoError(t, err)
	require.Empty(t, unsynced)

	records, err := store.List(ctx, domain.CollectionWorkouts, 0)
	require.NoError(t, err)
	for _, record := range records {
		require.True(t, record.Synced)
		require.NotNil(t, record.SyncedAt)
	}
}

func TestPushesCarryIdempotencyKeys(t *testing.T) {
	store := newTestStore(t)
	pusher := &stubPusher{}
	coordinator := newTestCoordinator(t, store, pusher)

	appendRecords(t, store, domain.CollectionWorkouts, 2)
	require.NoError(t, coordinator.SyncNow(context.Background()))

	calls := pusher.callsFor(domain.CollectionWorkouts)
	require.Len(t, calls, 2)
	require.NotEmpty(t, calls[0].key)
	require.NotEqual(t, calls[0].key, calls[1].key)
}

func TestNoOverlappingPushesWithinCollection(t *testing.T) {
	store := newTestStore(t)
	pusher := &stubPusher{delay: 5 * time.Millisecond}
	coordinator := newTestCoordinator(t, store, pusher)
	ctx := context.Background()

	appendRecords(t, store, domain.CollectionWorkouts, 4)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = coordinator.SyncNow(ctx)
		}()
	}
	wg.Wait()

	require.False(t, pusher.overlap.Load(), "pushes for one collection must never overlap")

	// At-least-once, not at-most-once: duplicates are allowed, loss is not.
	require.GreaterOrEqual(t, len(pusher.callsFor(domain.CollectionWorkouts)), 4)
}

func TestDeepBacklogDrainsInOnePass(t *testing.T) {
	store := newTestStore(t)
	pusher := &stubPusher{}
	c := New(store, pusher, time.Minute, 2, WithLogger(log.New(testWriter{t}, "", 0)))
	appendRecords(t, store, domain.CollectionWorkouts, 5)

	require.NoError(t, c.SyncNow(context.Background()))

	unsynced, err := store.ListUnsynced(context.Background(), domain.CollectionWorkouts, 0)
	require.NoError(t, err)
	require.Empty(t, unsynced)
	require.Len(t, pusher.callsFor(domain.CollectionWorkouts), 5)
}

func TestPersistentFailuresDoNotSpinWithinAPass(t *testing.T) {
	store := newTestStore(t)
	pusher := &stubPusher{errFor: func(domain.Collection, int64) error {
		return errors.New("remote down")
	}}
	c := New(store, pusher, time.Minute, 2, WithLogger(log.New(testWriter{t}, "", 0)))
	appendRecords(t, store, domain.CollectionWorkouts, 4)

	require.NoError(t, c.SyncNow(context.Background()))

	// One attempt per record in the first full batch, then the pass ends.
	require.Len(t, pusher.callsFor(domain.CollectionWorkouts), 2)
}

func TestFailedPushLeavesOnlyThatRecordUnsynced(t *testing.T) {
	store := newTestStore(t)
	pusher := &stubPusher{
		errFor: func(_ domain.Collection, id int64) error {
			if id == 2 {
				return domain.ErrNetworkUnavailable
			}
			return nil
		},
	}
	coordinator := newTestCoordinator(t, store, pusher)
	ctx := context.Background()

	appendRecords(t, store, domain.CollectionWorkouts, 3)
	require.NoError(t, coordinator.SyncNow(ctx))

	unsynced, err := store.ListUnsynced(ctx, domain.CollectionWorkouts, 0)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	require.Equal(t, int64(2), unsynced[0].ID)

	// The failed record is retried on the next pass.
	pusher.errFor = nil
	require.NoError(t, coordinator.SyncNow(ctx))

	unsynced, err = store.ListUnsynced(ctx, domain.CollectionWorkouts, 0)
	require.NoError(t, err)
	require.Empty(t, unsynced)
}

func TestRejectedRecordStaysUnsynced(t *testing.T) {
	store := newTestStore(t)
	pusher := &stubPusher{
		errFor: func(domain.Collection, int64) error {
			return domain.ErrRemoteRejected
		},
	}
	coordinator := newTestCoordinator(t, store, pusher)
	ctx := context.Background()

	appendRecords(t, store, domain.CollectionProgress, 1)
	require.NoError(t, coordinator.SyncNow(ctx))

	unsynced, err := store.ListUnsynced(ctx, domain.CollectionProgress, 0)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
}

func TestCollectionsSyncIndependently(t *testing.T) {
	store := newTestStore(t)
	pusher := &stubPusher{
		errFor: func(collection domain.Collection, _ int64) error {
			if collection == domain.CollectionWorkouts {
				return domain.ErrNetworkUnavailable
			}
			return nil
		},
	}
	coordinator := newTestCoordinator(t, store, pusher)
	ctx := context.Background()

	appendRecords(t, store, domain.CollectionWorkouts, 1)
	appendRecords(t, store, domain.CollectionProgress, 1)

	require.NoError(t, coordinator.SyncNow(ctx))

	workouts, err := store.ListUnsynced(ctx, domain.CollectionWorkouts, 0)
	require.NoError(t, err)
	require.Len(t, workouts, 1)

	progress, err := store.ListUnsynced(ctx, domain.CollectionProgress, 0)
	require.NoError(t, err)
	require.Empty(t, progress)
}

func TestRefreshCatalog(t *testing.T) {
	store := newTestStore(t)
	catalog := &stubCatalog{entries: []domain.ExerciseCatalogEntry{
		{ID: "e1", Name: "Squat", Category: "legs"},
	}}
	coordinator := newTestCoordinator(t, store, &stubPusher{}, WithCatalogSource(catalog))
	ctx := context.Background()

	require.NoError(t, coordinator.RefreshCatalog(ctx))
	require.Equal(t, 1, catalog.calls)

	entries, err := store.ListExercises(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCatalogFailureDoesNotFailPass(t *testing.T) {
	store := newTestStore(t)
	catalog := &stubCatalog{err: errors.New("catalog endpoint down")}
	coordinator := newTestCoordinator(t, store, &stubPusher{}, WithCatalogSource(catalog))

	appendRecords(t, store, domain.CollectionWorkouts, 1)
	require.NoError(t, coordinator.SyncNow(context.Background()))

	unsynced, err := store.ListUnsynced(context.Background(), domain.CollectionWorkouts, 0)
	require.NoError(t, err)
	require.Empty(t, unsynced)
}

func TestOnlineTransitionWakesPollLoop(t *testing.T) {
	store := newTestStore(t)
	pusher := &stubPusher{}
	coordinator := New(store, pusher, time.Hour, 25, WithLogger(log.New(testWriter{t}, "", 0)))
	ctx, cancel := context.WithCancel(context.Background())

	appendRecords(t, store, domain.CollectionWorkouts, 1)

	go coordinator.Run(ctx)

	coordinator.SetOnline(true)

	require.Eventually(t, func() bool {
		unsynced, err := store.ListUnsynced(context.Background(), domain.CollectionWorkouts, 0)
		return err == nil && len(unsynced) == 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	coordinator.Wait()
}

func TestBackgroundSyncCallback(t *testing.T) {
	store := newTestStore(t)
	pusher := &stubPusher{}
	coordinator := newTestCoordinator(t, store, pusher)

	appendRecords(t, store, domain.CollectionWorkouts, 1)
	require.NoError(t, coordinator.HandleBackgroundSync(context.Background()))

	require.True(t, coordinator.Online())
	require.Len(t, pusher.callsFor(domain.CollectionWorkouts), 1)
}
