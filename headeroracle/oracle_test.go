package headeroracle

import (
	"math/rand"
	"testing"

	"github.com/openxnode/chaincore/chain"
	"github.com/openxnode/chaincore/chainhash"
	"github.com/stretchr/testify/require"
)

type fakeHasher struct{}

func (fakeHasher) Hash(b []byte) chainhash.Hash { return chainhash.Hash{} }

func hashFor(n byte) chainhash.BlockHash {
	var h chainhash.BlockHash
	h[0] = n
	return h
}

func genesisHeader() *Header {
	return &Header{Hash: hashFor(0), Height: 0, PowTarget: 0x1d00ffff}
}

func child(parent *Header, n byte) *Header {
	return &Header{Hash: hashFor(n), ParentHash: parent.Hash, Height: parent.Height + 1, PowTarget: 0x1d00ffff}
}

func newTestOracle(t *testing.T) *Oracle {
	t.Helper()
	params, _ := chain.Lookup(chain.Bitcoin)
	return New(chain.Bitcoin, params, fakeHasher{}, genesisHeader())
}

// TestHeaderInsertion mirrors the teacher's TestHeaderInsertion
// (core/headerchain_test.go): verifies best-chain tracking as headers
// are appended.
func TestHeaderInsertion(t *testing.T) {
	o := newTestOracle(t)
	g := genesisHeader()
	prev := g
	for i := byte(1); i <= 10; i++ {
		h := child(prev, i)
		require.NoError(t, o.AddHeader(h))
		prev = h
	}
	require.Equal(t, int64(10), o.BestChain().Height)
}

// TestHeaderDeterminism verifies spec §8's "Header determinism"
// property: replaying the same header set in any order yields the same
// best chain, because cumulative work is commutative.
func TestHeaderDeterminism(t *testing.T) {
	params, _ := chain.Lookup(chain.Bitcoin)
	g := genesisHeader()

	build := func() []*Header {
		var out []*Header
		prev := g
		for i := byte(1); i <= 8; i++ {
			h := child(prev, i)
			out = append(out, h)
			prev = h
		}
		return out
	}

	for trial := 0; trial < 5; trial++ {
		headers := build()
		rand.Shuffle(len(headers), func(i, j int) { headers[i], headers[j] = headers[j], headers[i] })
		o := New(chain.Bitcoin, params, fakeHasher{}, genesisHeader())
		remaining := headers
		for len(remaining) > 0 {
			progressed := false
			var next []*Header
			for _, h := range remaining {
				if err := o.AddHeader(h); err == ErrParentUnknown {
					next = append(next, h)
					continue
				} else {
					require.NoError(t, err)
					progressed = true
				}
			}
			remaining = next
			if !progressed && len(remaining) > 0 {
				t.Fatalf("no progress with %d headers remaining", len(remaining))
			}
		}
		require.Equal(t, int64(8), o.BestChain().Height)
	}
}

// TestCheckpointViolationRejectsWrongHash verifies spec §4.1: a header
// at the configured checkpoint height with a hash other than the
// required one fails AddHeader with ErrCheckpointViolation, and is not
// stored (the accept-time path, distinct from retroactive activation).
func TestCheckpointViolationRejectsWrongHash(t *testing.T) {
	params, _ := chain.Lookup(chain.Bitcoin)
	params.Checkpoint = &chain.Checkpoint{Height: 2, RequiredHash: hashFor(200)}
	o := New(chain.Bitcoin, params, fakeHasher{}, genesisHeader())

	g := genesisHeader()
	h1 := child(g, 1)
	require.NoError(t, o.AddHeader(h1))

	wrong := child(h1, 2)
	require.ErrorIs(t, o.AddHeader(wrong), ErrCheckpointViolation)
	_, ok := o.Header(wrong.Hash)
	require.False(t, ok, "a header that violates the checkpoint must not be stored")
	require.Equal(t, int64(1), o.BestChain().Height)

	correct := &Header{Hash: hashFor(200), ParentHash: h1.Hash, Height: 2, PowTarget: 0x1d00ffff}
	require.NoError(t, o.AddHeader(correct))
	require.Equal(t, int64(2), o.BestChain().Height)
}

func TestParentUnknown(t *testing.T) {
	o := newTestOracle(t)
	orphan := &Header{Hash: hashFor(99), ParentHash: hashFor(55), Height: 1, PowTarget: 0x1d00ffff}
	require.ErrorIs(t, o.AddHeader(orphan), ErrParentUnknown)
}

func TestIdempotentAccept(t *testing.T) {
	o := newTestOracle(t)
	g := genesisHeader()
	h := child(g, 1)
	require.NoError(t, o.AddHeader(h))
	require.NoError(t, o.AddHeader(h))
	require.Equal(t, int64(1), o.BestChain().Height)
}

// TestReorgCompleteness verifies spec §8's "Reorg completeness"
// property against a concrete fork: A0..A10 vs. a heavier B-fork
// branching at A5, mirroring the end-to-end scenario in spec §8.2.
func TestReorgCompleteness(t *testing.T) {
	o := newTestOracle(t)
	g := genesisHeader()

	branchPoint := g
	var aChain []*Header
	cur := g
	for i := byte(1); i <= 10; i++ {
		h := child(cur, i)
		require.NoError(t, o.AddHeader(h))
		aChain = append(aChain, h)
		cur = h
		if i == 5 {
			branchPoint = h
		}
	}
	oldTip := o.BestChain()
	require.Equal(t, int64(10), oldTip.Height)

	// B-fork: branches off A and needs to out-work A's tail, so extend
	// eight blocks from the branch point (to height 13, three past A's
	// height) to guarantee more cumulative work under equal per-block
	// targets.
	bCur := branchPoint
	for i := byte(100); i <= 107; i++ {
		h := child(bCur, i)
		require.NoError(t, o.AddHeader(h))
		bCur = h
	}
	newTip := o.BestChain()
	require.NotEqual(t, oldTip.Hash, newTip.Hash)

	rollback, err := o.CalculateReorg(oldTip)
	require.NoError(t, err)
	require.Len(t, rollback, 5, "A6..A10 must be rolled back, exclusive of the fork point A5")
	for _, pos := range rollback {
		require.Greater(t, pos.Height, branchPoint.Height)
	}
}

func TestSiblingsTracksNonBestTips(t *testing.T) {
	o := newTestOracle(t)
	g := genesisHeader()
	a := child(g, 1)
	b := child(g, 2)
	require.NoError(t, o.AddHeader(a))
	require.NoError(t, o.AddHeader(b))
	sibs := o.Siblings()
	require.Len(t, sibs, 1)
}

// TestPruneSiblingsDropsStaleFork verifies SPEC_FULL.md's "Sibling
// pruning": a sibling tip that falls more than window blocks behind
// the best tip is removed, while the best chain itself is untouched.
func TestPruneSiblingsDropsStaleFork(t *testing.T) {
	o := newTestOracle(t)
	g := genesisHeader()

	stale := child(g, 1)
	require.NoError(t, o.AddHeader(stale))

	cur := g
	for i := byte(10); i <= 20; i++ {
		h := child(cur, i)
		require.NoError(t, o.AddHeader(h))
		cur = h
	}
	require.Len(t, o.Siblings(), 1)

	o.PruneSiblings(1)

	require.Empty(t, o.Siblings())
	_, ok := o.Header(stale.Hash)
	require.False(t, ok, "pruned sibling must no longer be reachable")
	require.Equal(t, int64(11), o.BestChain().Height, "pruning must not touch the best chain")
}
