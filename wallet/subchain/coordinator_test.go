package subchain

import (
	"context"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/openxnode/chaincore/blockoracle"
	"github.com/openxnode/chaincore/chain"
	"github.com/openxnode/chaincore/chainhash"
	"github.com/openxnode/chaincore/filteroracle"
	"github.com/openxnode/chaincore/storage/kvstore"
	"github.com/openxnode/chaincore/walletdb"
	"github.com/stretchr/testify/require"
)

type recordingRecorder struct {
	matches []chainhash.Position
}

func (r *recordingRecorder) RecordMatch(pos chainhash.Position, _ TxoState, _ []byte) {
	r.matches = append(r.matches, pos)
}

func newTestCoordinator(t *testing.T) (*StateData, kvstore.KV, *blockoracle.Oracle) {
	t.Helper()
	store := kvstore.NewMemory()
	cache := walletdb.New(store)
	blocks := blockoracle.New(chain.Bitcoin, chain.ProfileDesktop, nil, nil, nil)
	var key [16]byte
	fo := filteroracle.NewGCSOracle(chain.FilterTypeBasic, key, nil)

	var id ID
	require.NoError(t, store.Update(func(tx kvstore.Tx) error {
		var err error
		id, err = cache.GetIndex(tx, 0, 0, 0, 1)
		return err
	}))

	positions := map[int64]chainhash.Position{}
	positionAt := func(h int64) (chainhash.Position, bool) {
		p, ok := positions[h]
		return p, ok
	}

	sd := New("bitcoin", "external", KindExternal, id, store, cache, fo, blocks,
		&recordingRecorder{}, NewScriptElementSource(nil), positionAt)
	return sd, store, blocks
}

// TestBaseJobDropsStaleEpoch covers spec §8 "Epoch gating": a message
// tagged with an epoch older than the job's current one must be
// silently dropped without changing state.
func TestBaseJobDropsStaleEpoch(t *testing.T) {
	sd, _, _ := newTestCoordinator(t)

	require.NoError(t, sd.Process.Dispatch(Work{Kind: WorkPrepareReorg, Epoch: 5}))
	require.Equal(t, StateReorg, sd.Process.State())

	err := sd.Process.Dispatch(Work{Kind: WorkBlock, Epoch: 3})
	require.ErrorIs(t, err, ErrStaleEpoch)
	require.Equal(t, StateReorg, sd.Process.State())
}

// TestReorgDefersThenReplaysWorkOnFinish covers spec §4.5's routing
// table: process/reprocess work is deferred (not dropped) while a job
// is in Reorg, and replayed once finish_reorg arrives.
func TestReorgDefersThenReplaysWorkOnFinish(t *testing.T) {
	sd, _, _ := newTestCoordinator(t)

	require.NoError(t, sd.Progress.Dispatch(Work{Kind: WorkPrepareReorg, Epoch: 1}))
	require.NoError(t, sd.Progress.Dispatch(Work{Kind: WorkProcess, Position: chainhash.Position{Height: 4}}))
	require.Equal(t, chainhash.Position{}, sd.Progress.CheckCache(), "deferred work must not apply yet")

	require.NoError(t, sd.Progress.Dispatch(Work{Kind: WorkFinishReorg, Epoch: 1}))
	require.Equal(t, int64(4), sd.Progress.CheckCache().Height)
}

// TestConcurrentJobDispatchIsRaceFree drives twenty concurrent
// dispatches into the Progress job via an errgroup, matching the teacher's own
// errgroup-based fan-in idiom for synchronizing concurrent actors in
// tests.
func TestConcurrentJobDispatchIsRaceFree(t *testing.T) {
	sd, _, _ := newTestCoordinator(t)

	g, _ := errgroup.WithContext(context.Background())
	for i := 0; i < 20; i++ {
		pos := chainhash.Position{Height: int64(i)}
		g.Go(func() error {
			return sd.Progress.Dispatch(Work{Kind: WorkProcess, Position: pos})
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int64(19), sd.Progress.CheckCache().Height)
}

// TestWatchdogReportsStuckJobsNone verifies a freshly constructed
// coordinator's jobs have all acked (spec §4.5 watchdog).
func TestWatchdogReportsStuckJobsNone(t *testing.T) {
	sd, _, _ := newTestCoordinator(t)
	require.Empty(t, sd.StuckJobs())
}

// TestShutdownReachesTerminalState covers spec §4.5's state table:
// the terminal Shutdown state is reachable via prepare_shutdown ->
// shutdown, and further work is ignored once there.
func TestShutdownReachesTerminalState(t *testing.T) {
	sd, _, _ := newTestCoordinator(t)

	require.NoError(t, sd.Shutdown())
	require.Equal(t, StateShutdown, sd.Progress.State())
	require.Equal(t, StateShutdown, sd.Index.State())
	require.Equal(t, StateShutdown, sd.Scan.State())
	require.Equal(t, StateShutdown, sd.Process.State())
	require.Equal(t, StateShutdown, sd.Rescan.State())

	require.NoError(t, sd.Progress.Dispatch(Work{Kind: WorkProcess, Position: chainhash.Position{Height: 1}}))
	require.Equal(t, chainhash.Position{}, sd.Progress.CheckCache(), "work dispatched after Shutdown must be ignored")
}

// TestIndexAddKeysPersistsAndNotifiesScan covers spec §4.5 Index:
// AddKeys writes patterns and last_indexed under one transaction and
// emits a key notification downstream.
func TestIndexAddKeysPersistsAndNotifiesScan(t *testing.T) {
	sd, _, _ := newTestCoordinator(t)
	notified := false
	next := sd.Index.onKey
	sd.Index.onKey = func(w Work) {
		notified = w.Kind == WorkKey
		next(w)
	}
	require.NoError(t, sd.Index.AddKeys([][]byte{[]byte("script-a"), []byte("script-b")}))

	last, ok := sd.Index.cache.LastIndexed(sd.ID)
	require.True(t, ok)
	require.Equal(t, uint32(2), last)
	require.True(t, sd.Index.cache.MayContainPattern([]byte("script-a")))
	require.True(t, sd.Index.cache.MayContainPattern([]byte("script-b")))
	require.True(t, notified, "AddKeys must emit a key notification to Scan")
}
