package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mirrorerrors "github.com/meridianhq/indexmirror/internal/errors"
	"github.com/meridianhq/indexmirror/internal/watermark"
)

func newTestOrchestrator(t *testing.T, src *fakeProvider, sink *fakeSink, interval time.Duration) *Orchestrator {
	t.Helper()
	s := newTestSyncer(t, src, sink, DefaultConfig())
	dataDir := t.TempDir()
	o := NewOrchestrator(OrchestratorConfig{
		Owner:              "alice",
		DataDir:            dataDir,
		FullResyncInterval: interval,
	}, s, watermark.NewFileStore(dataDir))
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func TestOrchestrator_FirstTriggerRunsFullPass(t *testing.T) {
	src := newFakeProvider()
	for i := 1; i <= 100; i++ {
		src.addRecord(i)
	}
	sink := newFakeSink()
	o := newTestOrchestrator(t, src, sink, time.Hour)

	res, err := o.Trigger(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 100, res.Indexed)
	assert.False(t, res.Watermarks.LastFullSync.IsZero())
	assert.Equal(t, time.UnixMilli(100), res.Watermarks.LastDeltaUpdate)

	// A full pass baselined the state, so the persisted file agrees.
	st, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.Watermarks, st.Watermarks)
	assert.Equal(t, StateIdle, st.State)
}

func TestOrchestrator_SubsequentTriggerRunsDelta(t *testing.T) {
	src := newFakeProvider()
	for i := 1; i <= 10; i++ {
		src.addRecord(i)
	}
	sink := newFakeSink()
	o := newTestOrchestrator(t, src, sink, time.Hour)

	first, err := o.Trigger(context.Background())
	require.NoError(t, err)

	src.addRecord(200)
	src.addTombstone(300)

	second, err := o.Trigger(context.Background())
	require.NoError(t, err)

	// A delta pass keeps the full-sync watermark and only touches the
	// new work.
	assert.Equal(t, first.Watermarks.LastFullSync, second.Watermarks.LastFullSync)
	assert.Equal(t, 1, second.Indexed)
	assert.Equal(t, 1, second.Removed)
	assert.Equal(t, time.UnixMilli(200), second.Watermarks.LastDeltaUpdate)
	assert.Equal(t, time.UnixMilli(300), second.Watermarks.LastDeltaDelete)
}

func TestOrchestrator_StaleFullSyncForcesFullPass(t *testing.T) {
	src := newFakeProvider()
	src.addRecord(10)
	sink := newFakeSink()
	o := newTestOrchestrator(t, src, sink, time.Hour)

	first, err := o.Trigger(context.Background())
	require.NoError(t, err)

	// Advance the clock past the staleness threshold.
	o.now = func() time.Time { return first.Watermarks.LastFullSync.Add(2 * time.Hour) }
	o.syncer.now = o.now

	second, err := o.Trigger(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Watermarks.LastFullSync.After(first.Watermarks.LastFullSync))
	// Full passes re-index everything.
	assert.Equal(t, 1, second.Indexed)
}

func TestOrchestrator_TriggerFullBypassesStalenessCheck(t *testing.T) {
	src := newFakeProvider()
	src.addRecord(10)
	sink := newFakeSink()
	o := newTestOrchestrator(t, src, sink, time.Hour)

	first, err := o.Trigger(context.Background())
	require.NoError(t, err)

	second, err := o.TriggerFull(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Watermarks.LastFullSync.Before(first.Watermarks.LastFullSync))
	assert.Equal(t, 1, second.Indexed)
}

func TestOrchestrator_ConcurrentTriggerIsCoalesced(t *testing.T) {
	src := newFakeProvider()
	src.addRecord(10)
	src.blockScan = make(chan struct{})
	sink := newFakeSink()
	o := newTestOrchestrator(t, src, sink, 0)

	// Seed a persisted full sync so the blocked pass is a delta scan.
	require.NoError(t, o.store.Save(context.Background(), "alice",
		watermark.Watermarks{LastFullSync: time.UnixMilli(1)}))

	var wg sync.WaitGroup
	wg.Add(1)
	firstErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		_, err := o.Trigger(context.Background())
		firstErr <- err
	}()

	// Wait until the first trigger is inside its pass.
	require.Eventually(t, func() bool {
		st, err := o.Status(context.Background())
		return err == nil && st.State == StateRunningDelta
	}, 2*time.Second, 5*time.Millisecond)

	_, err := o.Trigger(context.Background())
	assert.ErrorIs(t, err, ErrPassInFlight)

	close(src.blockScan)
	wg.Wait()
	require.NoError(t, <-firstErr)
}

func TestOrchestrator_FailedPassPersistsNothing(t *testing.T) {
	// Scenario: pass fails partway; the watermark file keeps its old
	// contents and the next pass redoes the whole window.
	src := newFakeProvider()
	for i := 1; i <= 5; i++ {
		src.addRecord(i)
	}
	sink := newFakeSink()
	sink.failAddID = "3"
	o := newTestOrchestrator(t, src, sink, 0)

	seed := watermark.Watermarks{LastFullSync: time.UnixMilli(1)}
	require.NoError(t, o.store.Save(context.Background(), "alice", seed))

	_, err := o.Trigger(context.Background())
	require.Error(t, err)
	assert.Equal(t, mirrorerrors.ErrCodePassFailed, mirrorerrors.CodeOf(err))

	persisted, loadErr := o.store.Load(context.Background(), "alice")
	require.NoError(t, loadErr)
	assert.Equal(t, seed, persisted)

	st, stErr := o.Status(context.Background())
	require.NoError(t, stErr)
	assert.Equal(t, StateIdle, st.State)
	assert.NotEmpty(t, st.LastError)

	// The retry covers the full window and succeeds once the index
	// accepts writes again.
	sink.failAddID = ""
	res, err := o.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Indexed)
	assert.Equal(t, time.UnixMilli(5), res.Watermarks.LastDeltaUpdate)
}

func TestOrchestrator_WatermarksNeverRegress(t *testing.T) {
	src := newFakeProvider()
	src.addRecord(10)
	sink := newFakeSink()
	o := newTestOrchestrator(t, src, sink, 0)

	seed := watermark.Watermarks{
		LastFullSync:    time.UnixMilli(1),
		LastDeltaUpdate: time.UnixMilli(50),
		LastDeltaDelete: time.UnixMilli(50),
	}
	require.NoError(t, o.store.Save(context.Background(), "alice", seed))

	// Nothing is newer than the watermark, so the pass is a no-op and
	// every axis stays put.
	res, err := o.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Indexed)
	assert.True(t, res.Watermarks.AtLeast(seed))

	persisted, err := o.store.Load(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, seed, persisted)
}

func TestOrchestrator_SaveFailureSurfacesStateError(t *testing.T) {
	src := newFakeProvider()
	src.addRecord(10)
	sink := newFakeSink()
	s := newTestSyncer(t, src, sink, DefaultConfig())
	o := NewOrchestrator(OrchestratorConfig{
		Owner:   "alice",
		DataDir: t.TempDir(),
	}, s, failingStore{err: errors.New("disk full")})
	t.Cleanup(func() { _ = o.Close() })

	_, err := o.Trigger(context.Background())
	require.Error(t, err)
	assert.Equal(t, mirrorerrors.ErrCodeStateWrite, mirrorerrors.CodeOf(err))
}

func TestOrchestrator_SecondProcessLockIsRejected(t *testing.T) {
	src := newFakeProvider()
	src.addRecord(10)
	sink := newFakeSink()
	dataDir := t.TempDir()

	newOne := func() *Orchestrator {
		s := newTestSyncer(t, src, sink, DefaultConfig())
		return NewOrchestrator(OrchestratorConfig{
			Owner:   "alice",
			DataDir: dataDir,
		}, s, watermark.NewFileStore(dataDir))
	}

	first := newOne()
	t.Cleanup(func() { _ = first.Close() })
	_, err := first.Trigger(context.Background())
	require.NoError(t, err)

	second := newOne()
	t.Cleanup(func() { _ = second.Close() })
	_, err = second.Trigger(context.Background())
	require.Error(t, err)
	assert.Equal(t, mirrorerrors.ErrCodeOwnerBusy, mirrorerrors.CodeOf(err))
}

func TestOrchestrator_RestartResumesFromPersistedWatermarks(t *testing.T) {
	src := newFakeProvider()
	for i := 1; i <= 10; i++ {
		src.addRecord(i)
	}
	sink := newFakeSink()
	dataDir := t.TempDir()

	build := func() *Orchestrator {
		s := newTestSyncer(t, src, sink, DefaultConfig())
		return NewOrchestrator(OrchestratorConfig{
			Owner:              "alice",
			DataDir:            dataDir,
			FullResyncInterval: time.Hour,
		}, s, watermark.NewFileStore(dataDir))
	}

	first := build()
	res, err := first.Trigger(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// New process, same data dir: no second full pass, and the record
	// already covered by the watermark is not re-indexed.
	src.addRecord(100)
	second := build()
	t.Cleanup(func() { _ = second.Close() })

	res2, err := second.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.Watermarks.LastFullSync, res2.Watermarks.LastFullSync)
	assert.Equal(t, 1, res2.Indexed)
}

// failingStore is a watermark store whose Save always fails.
type failingStore struct {
	err error
}

func (f failingStore) Load(context.Context, string) (watermark.Watermarks, error) {
	return watermark.Watermarks{}, nil
}

func (f failingStore) Save(context.Context, string, watermark.Watermarks) error {
	return f.err
}
