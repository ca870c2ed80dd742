package syncer_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldscan/internal/logging"
	"fieldscan/internal/queue"
	"fieldscan/internal/remote"
	"fieldscan/internal/scans"
	"fieldscan/internal/services"
	"fieldscan/internal/stats"
	"fieldscan/internal/syncer"
	"fieldscan/internal/testsupport"
)

type fixture struct {
	store  *queue.Store
	scans  *scans.Service
	remote *testsupport.FakeRemote
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	return &fixture{
		store:  store,
		scans:  testsupport.NewScans(store, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)),
		remote: testsupport.NewFakeRemote(),
	}
}

func (f *fixture) manager(opts ...syncer.Option) *syncer.Manager {
	return syncer.New(f.store, f.remote, stats.New(f.remote, logging.NewNop()), logging.NewNop(), opts...)
}

func (f *fixture) statusCounts(t *testing.T) map[queue.Status]int {
	t.Helper()
	counts, err := f.store.CountByStatus(context.Background())
	require.NoError(t, err)
	return counts
}

func TestRunReplaysEveryKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.Seed(
		remote.Record{ID: "r1", Code: "OLD", RowID: "row-1", OrderInRow: 0, UserID: "tester"},
		remote.Record{ID: "r2", Code: "GONE", RowID: "row-1", OrderInRow: 1, UserID: "tester"},
	)

	added := testsupport.QueueAdd(t, f.scans, "row-1", "NEW", 2)
	_, err := f.scans.QueueUpdate(ctx, scans.UpdateRequest{RecordID: "r1", RowID: "row-1", NewCode: "FIXED"})
	require.NoError(t, err)
	_, err = f.scans.QueueDelete(ctx, scans.DeleteRequest{RecordID: "r2", RowID: "row-1"})
	require.NoError(t, err)

	mgr := f.manager()
	var progress []syncer.Progress
	result := mgr.Run(ctx, func(p syncer.Progress) { progress = append(progress, p) })

	require.True(t, result.Success, "error: %v", result.Error)
	assert.Equal(t, 3, result.SyncedCount)
	assert.Zero(t, result.FailedCount)
	assert.NotEmpty(t, result.PassID)

	rec, ok := f.remote.Record(added.ID)
	require.True(t, ok, "ADD must use the mutation id as remote id")
	assert.Equal(t, "NEW", rec.Code)
	assert.False(t, rec.Pending)
	rec, _ = f.remote.Record("r1")
	assert.Equal(t, "FIXED", rec.Code)
	_, ok = f.remote.Record("r2")
	assert.False(t, ok)

	n, err := f.store.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	seq, err := f.store.Sequence(ctx, "row-1")
	require.NoError(t, err)
	assert.Zero(t, seq, "sequences reset after a full drain")

	require.Len(t, progress, 4)
	for i, p := range progress[:3] {
		assert.Equal(t, i, p.Done)
		assert.Equal(t, 3, p.Total)
		assert.Equal(t, result.PassID, p.PassID)
	}
	assert.Equal(t, 3, progress[3].Done)

	require.NotNil(t, result.Stats)
	assert.NoError(t, result.Stats.Err())
	count, ok := f.remote.Daily("tester", "2024-05-01")
	assert.True(t, ok)
	assert.Equal(t, 1, count)

	snap := mgr.Snapshot()
	assert.Equal(t, syncer.StateCompleted, snap.State)
	assert.False(t, snap.IsSyncing)
	assert.Equal(t, 3, snap.Progress)
	assert.Empty(t, snap.Error)
}

func TestRunRollsBackOnFirstFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, testsupport.QueueAdd(t, f.scans, "row-1", "C", i).ID)
	}
	f.remote.FailOn(ids[2], nil)

	mgr := f.manager()
	result := mgr.Run(ctx, nil)

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.SyncedCount)
	assert.Equal(t, 3, result.FailedCount)
	assert.True(t, errors.Is(result.Error, services.ErrRemoteFailure))

	counts := f.statusCounts(t)
	assert.Equal(t, 3, counts[queue.StatusPending])
	assert.Zero(t, counts[queue.StatusSyncing], "no mutation may be left syncing")
	assert.Equal(t, 2, f.remote.Len(), "acknowledged changes stay remote")

	for _, id := range ids[2:] {
		m, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusPending, m.Status)
	}
	seq, _ := f.store.Sequence(ctx, "row-1")
	assert.Equal(t, int64(5), seq, "sequences survive a failed pass")

	assert.Equal(t, syncer.StateRolledBack, mgr.State())
	assert.NotEmpty(t, mgr.Snapshot().Error)

	// The next pass picks up where the failed one stopped.
	f.remote.ClearFailures()
	again := mgr.Run(ctx, nil)
	require.True(t, again.Success)
	assert.Equal(t, 3, again.SyncedCount)
	assert.Equal(t, 5, f.remote.Len())
}

func TestRunIsIdempotentAfterPartialApply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := testsupport.QueueAdd(t, f.scans, "row-1", "DUP", 0)
	// The remote applied the insert but the acknowledgement was lost.
	f.remote.Seed(scans.PendingRecord(m))
	_, err := f.scans.QueueDelete(ctx, scans.DeleteRequest{RecordID: "never-existed", RowID: "row-1"})
	require.NoError(t, err)
	_, err = f.scans.QueueUpdate(ctx, scans.UpdateRequest{RecordID: "also-missing", RowID: "row-1", NewCode: "X"})
	require.NoError(t, err)

	result := f.manager().Run(ctx, nil)
	require.True(t, result.Success, "error: %v", result.Error)
	assert.Equal(t, 3, result.SyncedCount)
	assert.Equal(t, 1, f.remote.Len())
}

func TestStatsFailureDoesNotFailPass(t *testing.T) {
	f := newFixture(t)
	f.remote.FailStats(nil)
	testsupport.QueueAdd(t, f.scans, "row-1", "A", 0)

	result := f.manager().Run(context.Background(), nil)
	require.True(t, result.Success)
	require.NotNil(t, result.Stats)
	assert.True(t, errors.Is(result.Stats.Err(), services.ErrStatsFailure))
}

func TestEmptyQueueSucceeds(t *testing.T) {
	f := newFixture(t)
	var progress []syncer.Progress
	result := f.manager().Run(context.Background(), func(p syncer.Progress) { progress = append(progress, p) })
	assert.True(t, result.Success)
	assert.Zero(t, result.SyncedCount)
	assert.Nil(t, result.Stats)
	require.Len(t, progress, 1)
	assert.Zero(t, progress[0].Total)
}

func TestConcurrentRunIsSkipped(t *testing.T) {
	f := newFixture(t)
	testsupport.QueueAdd(t, f.scans, "row-1", "A", 0)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.remote.OnCall = func(op, id string) error {
		if op == "insert" {
			once.Do(func() { close(entered) })
			<-release
		}
		return nil
	}

	mgr := f.manager()
	done := make(chan syncer.Result, 1)
	go func() { done <- mgr.Run(context.Background(), nil) }()
	<-entered

	assert.True(t, mgr.Running())
	assert.True(t, mgr.Snapshot().IsSyncing)
	second := mgr.Run(context.Background(), nil)
	assert.True(t, second.Skipped)
	assert.ErrorIs(t, second.Error, syncer.ErrPassRunning)

	close(release)
	first := <-done
	assert.True(t, first.Success)
	assert.Equal(t, 1, first.SyncedCount)
}

func TestLockSerializesManagers(t *testing.T) {
	f := newFixture(t)
	testsupport.QueueAdd(t, f.scans, "row-1", "A", 0)
	lockPath := filepath.Join(t.TempDir(), "sync.lock")

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.remote.OnCall = func(op, id string) error {
		if op == "insert" {
			once.Do(func() { close(entered) })
			<-release
		}
		return nil
	}

	first := f.manager(syncer.WithLock(lockPath))
	other := f.manager(syncer.WithLock(lockPath))
	done := make(chan syncer.Result, 1)
	go func() { done <- first.Run(context.Background(), nil) }()
	<-entered

	skipped := other.Run(context.Background(), nil)
	assert.True(t, skipped.Skipped)

	close(release)
	require.True(t, (<-done).Success)
	// The lock is released once the pass ends.
	assert.False(t, other.Run(context.Background(), nil).Skipped)
}

func TestCancelledContextRollsBack(t *testing.T) {
	f := newFixture(t)
	testsupport.QueueAdd(t, f.scans, "row-1", "A", 0)
	testsupport.QueueAdd(t, f.scans, "row-1", "B", 1)

	ctx, cancel := context.WithCancel(context.Background())
	inserts := 0
	f.remote.OnCall = func(op, id string) error {
		if op == "insert" {
			inserts++
			if inserts == 2 {
				cancel()
			}
		}
		return nil
	}

	result := f.manager().Run(ctx, nil)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.SyncedCount)
	assert.Equal(t, 1, result.FailedCount)
	counts := f.statusCounts(t)
	assert.Equal(t, 1, counts[queue.StatusPending])
	assert.Zero(t, counts[queue.StatusSyncing])
}

func TestRequestTimeoutIsAFailure(t *testing.T) {
	f := newFixture(t)
	testsupport.QueueAdd(t, f.scans, "row-1", "A", 0)
	f.remote.OnCall = func(op, id string) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}

	result := f.manager(syncer.WithRequestTimeout(5 * time.Millisecond)).Run(context.Background(), nil)
	assert.False(t, result.Success)
	assert.True(t, errors.Is(result.Error, context.DeadlineExceeded))
	assert.Equal(t, 1, f.statusCounts(t)[queue.StatusPending])
}

func TestFailedMutationsAreNotReplayed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parked := testsupport.QueueAdd(t, f.scans, "row-1", "A", 0)
	testsupport.QueueAdd(t, f.scans, "row-1", "B", 1)
	require.NoError(t, f.store.MarkFailed(ctx, parked.ID))

	result := f.manager().Run(ctx, nil)
	require.True(t, result.Success)
	assert.Equal(t, 1, result.SyncedCount)
	_, ok := f.remote.Record(parked.ID)
	assert.False(t, ok)
	seq, _ := f.store.Sequence(ctx, "row-1")
	assert.Equal(t, int64(2), seq, "sequences are kept while mutations remain queued")
}

func TestScanQueuedDuringPassKeepsRowCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testsupport.QueueAdd(t, f.scans, "row-1", "A", 0)

	var late *queue.Mutation
	result := f.manager().Run(ctx, func(p syncer.Progress) {
		if late == nil {
			late = testsupport.QueueAdd(t, f.scans, "row-1", "B", 1)
		}
	})
	require.True(t, result.Success)
	require.NotNil(t, late)
	assert.Equal(t, int64(2), late.Payload.LocalSequence)

	seq, err := f.store.Sequence(ctx, "row-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq, "counter must survive while a scan is still queued")

	next := testsupport.QueueAdd(t, f.scans, "row-1", "C", 2)
	assert.Greater(t, next.Payload.LocalSequence, late.Payload.LocalSequence)
}
