package blockoracle

import (
	"context"
	"testing"
	"time"

	"github.com/openxnode/chaincore/chain"
	"github.com/openxnode/chaincore/chainhash"
	"github.com/openxnode/chaincore/storage/kvstore"
	"github.com/stretchr/testify/require"
)

func testHash(n byte) chainhash.BlockHash {
	var h chainhash.BlockHash
	h[0] = n
	return h
}

// fakeHasher is a stand-in crypto.Hasher whose digest is just the
// payload's first byte, so test bytes can be made to match a target
// hash without computing a real double-SHA256.
type fakeHasher struct{}

func (fakeHasher) Hash(data []byte) chainhash.Hash {
	var h chainhash.Hash
	if len(data) > 0 {
		h[0] = data[0]
	}
	return h
}

// blockBytesFor returns payload bytes whose fakeHasher digest equals h,
// so SubmitBlock's content-hash check passes.
func blockBytesFor(h chainhash.BlockHash) []byte {
	return append([]byte{h[0]}, []byte("payload")...)
}

func newTestOracle(t *testing.T) *Oracle {
	t.Helper()
	return New(chain.Bitcoin, chain.ProfileDesktop, fakeHasher{}, kvstore.NewMemory(), AcceptAllValidator{})
}

// TestLoadBlocksOnDemand mirrors the teacher's downloader queue tests:
// requesting a hash that isn't local enqueues it for download exactly
// once, and SubmitBlock resolves the outstanding future.
func TestLoadBlocksOnDemand(t *testing.T) {
	o := newTestOracle(t)
	h := testHash(1)

	f1 := o.Load(h)
	f2 := o.Load(h)
	require.Same(t, f1, f2, "a second Load before resolution must return the same future")
	require.Equal(t, 1, o.DownloadQueue())

	bytes := blockBytesFor(h)
	require.NoError(t, o.SubmitBlock(h, bytes))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	block, err := f1.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, bytes, block.Bytes)
}

// TestLoadAlreadyPersistent verifies Load resolves immediately for a
// block that is already stored, without enqueuing a download.
func TestLoadAlreadyPersistent(t *testing.T) {
	o := newTestOracle(t)
	h := testHash(2)
	require.NoError(t, o.SubmitBlock(h, blockBytesFor(h)))

	f := o.Load(h)
	require.True(t, f.Ready())
	require.Equal(t, 0, o.DownloadQueue())
}

// TestGetWorkFIFOFairness verifies the SUPPLEMENTED FEATURES fairness
// guarantee: GetWork serves the queue in arrival order and a batch's
// hashes are removed from DownloadQueue's count while in-flight.
func TestGetWorkFIFOFairness(t *testing.T) {
	o := newTestOracle(t)
	var hashes []chainhash.BlockHash
	for i := byte(1); i <= 5; i++ {
		hashes = append(hashes, testHash(i))
		o.Load(testHash(i))
	}
	require.Equal(t, 5, o.DownloadQueue())

	batch, ok := o.GetWork(3)
	require.True(t, ok)
	require.Equal(t, hashes[:3], batch.Hashes)
	require.Equal(t, 2, o.DownloadQueue())

	batch2, ok := o.GetWork(3)
	require.True(t, ok)
	require.Equal(t, hashes[3:], batch2.Hashes)
}

// TestCancelJobRequeuesAtFront verifies a cancelled job's hashes are
// retried before newly-arrived work (spec §8 "Duplicate download"
// scenario: a dropped peer must not lose its assigned hashes).
func TestCancelJobRequeuesAtFront(t *testing.T) {
	o := newTestOracle(t)
	o.Load(testHash(1))
	o.Load(testHash(2))
	batch, ok := o.GetWork(2)
	require.True(t, ok)

	o.Load(testHash(3))
	batch.Cancel()

	next, ok := o.GetWork(10)
	require.True(t, ok)
	require.Equal(t, []chainhash.BlockHash{testHash(1), testHash(2), testHash(3)}, next.Hashes)
}

// TestFinishJobRequeuesUnresolvedHashes verifies that hashes a peer
// claimed but never actually delivered via SubmitBlock go back on the
// queue when the job completes.
func TestFinishJobRequeuesUnresolvedHashes(t *testing.T) {
	o := newTestOracle(t)
	o.Load(testHash(1))
	o.Load(testHash(2))
	batch, ok := o.GetWork(2)
	require.True(t, ok)

	require.NoError(t, o.SubmitBlock(testHash(1), blockBytesFor(testHash(1))))
	require.NoError(t, o.FinishJob(batch.JobID))

	require.Equal(t, 1, o.DownloadQueue())
	next, ok := o.GetWork(10)
	require.True(t, ok)
	require.Equal(t, []chainhash.BlockHash{testHash(2)}, next.Hashes)
}

// TestSubmitBlockRejectsInvalidAndRequeues exercises the validation
// pipeline's invalid branch (spec §4.2 case (c), §8 "Bad block
// reproducibility"): a block that fails validation is neither cached
// nor resolved onto the waiting future. Instead it is deleted and
// re-enqueued, so the future stays pending until a good copy arrives.
func TestSubmitBlockRejectsInvalidAndRequeues(t *testing.T) {
	o := newTestOracle(t)
	o.validator = rejectAll{}
	h := testHash(9)
	f := o.Load(h)
	require.Equal(t, 1, o.DownloadQueue())

	require.ErrorIs(t, o.SubmitBlock(h, blockBytesFor(h)), ErrInvalid)

	require.False(t, f.Ready(), "a rejected block must leave its future pending, not resolve it with an error")
	require.Equal(t, 1, o.DownloadQueue(), "a rejected block must be re-queued for download")

	batch, ok := o.GetWork(10)
	require.True(t, ok)
	require.Equal(t, []chainhash.BlockHash{h}, batch.Hashes)

	o.validator = AcceptAllValidator{}
	require.NoError(t, o.SubmitBlock(h, blockBytesFor(h)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := f.Wait(ctx)
	require.NoError(t, err)
}

// TestSubmitBlockRejectsMismatchedHash verifies spec §4.2 step 2: a
// peer returning bytes whose computed hash does not match the
// requested hash is rejected as content-address forgery, not silently
// cached under the wrong key.
func TestSubmitBlockRejectsMismatchedHash(t *testing.T) {
	o := newTestOracle(t)
	h := testHash(9)
	o.Load(h)

	require.ErrorIs(t, o.SubmitBlock(h, blockBytesFor(testHash(8))), ErrInvalid)
	require.False(t, o.BlockExists(h).IsValid())
}

type rejectAll struct{}

func (rejectAll) Validate(chainhash.BlockHash, []byte) bool { return false }

// TestRepairTipStopsAtGoodBlock verifies the documented tip-repair
// termination rule: walk back until a locally-valid block is found.
func TestRepairTipStopsAtGoodBlock(t *testing.T) {
	o := newTestOracle(t)
	good := testHash(5)
	require.NoError(t, o.SubmitBlock(good, blockBytesFor(good)))
	o.SetTip(chainhash.Position{Height: 10, Hash: testHash(10)})

	parents := map[chainhash.BlockHash]chainhash.Position{
		testHash(10): {Height: 9, Hash: testHash(9)},
		testHash(9):  {Height: 8, Hash: testHash(8)},
		testHash(8):  {Height: 7, Hash: testHash(7)},
		testHash(7):  {Height: 6, Hash: testHash(6)},
		testHash(6):  {Height: 5, Hash: good},
	}
	repaired := o.RepairTip(func(h chainhash.BlockHash) (chainhash.Position, bool) {
		p, ok := parents[h]
		return p, ok
	})
	require.Equal(t, int64(5), repaired.Height)
	require.Equal(t, good, repaired.Hash)
}

// TestRepairTipStopsAtGenesis verifies that with no good block found,
// the walk stops at the chain's genesis height rather than erroring.
func TestRepairTipStopsAtGenesis(t *testing.T) {
	o := newTestOracle(t)
	o.SetTip(chainhash.Position{Height: 3, Hash: testHash(3)})
	parents := map[chainhash.BlockHash]chainhash.Position{
		testHash(3): {Height: 2, Hash: testHash(2)},
		testHash(2): {Height: 1, Hash: testHash(1)},
		testHash(1): {Height: 0, Hash: testHash(0)},
	}
	repaired := o.RepairTip(func(h chainhash.BlockHash) (chainhash.Position, bool) {
		p, ok := parents[h]
		return p, ok
	})
	require.Equal(t, int64(0), repaired.Height)
}

// TestRepairTipRewindsPastCorruption verifies spec §4.2/§8 scenario 5:
// a block that is present but corrupt (fails re-validation) must not be
// treated as a good tip; the walk continues past it to the last block
// whose bytes actually re-validate.
func TestRepairTipRewindsPastCorruption(t *testing.T) {
	o := newTestOracle(t)
	good := testHash(96)
	require.NoError(t, o.SubmitBlock(good, blockBytesFor(good)))

	// Blocks 97-100 are present in the store but corrupt: their stored
	// bytes no longer hash to their own key (the leading 0 byte is the
	// fake digest, which matches none of 97-100).
	for i := byte(97); i <= 100; i++ {
		h := testHash(i)
		require.NoError(t, o.store.Update(func(tx kvstore.Tx) error {
			return tx.Put(blocksBucket, h[:], append([]byte{0}, "corrupted"...))
		}))
	}

	o.SetTip(chainhash.Position{Height: 100, Hash: testHash(100)})
	parents := map[chainhash.BlockHash]chainhash.Position{
		testHash(100): {Height: 99, Hash: testHash(99)},
		testHash(99):  {Height: 98, Hash: testHash(98)},
		testHash(98):  {Height: 97, Hash: testHash(97)},
		testHash(97):  {Height: 96, Hash: good},
	}
	repaired := o.RepairTip(func(h chainhash.BlockHash) (chainhash.Position, bool) {
		p, ok := parents[h]
		return p, ok
	})
	require.Equal(t, int64(96), repaired.Height)
	require.Equal(t, good, repaired.Hash)
}
