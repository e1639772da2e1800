package blockoracle

import (
	"context"
	"sync"

	"github.com/openxnode/chaincore/chainhash"
)

// Future resolves exactly once to either a Block or an error, mirroring
// the teacher's eth/downloader queue's per-hash result channel (pinned
// by eth/downloader/downloader_test.go's fetchHeaders/fetchBodies
// synchronization idiom) adapted to a public, block-level completion
// handle.
type Future struct {
	hash chainhash.BlockHash
	done chan struct{}
	once sync.Once

	block *Block
	err   error
}

func newFuture(hash chainhash.BlockHash) *Future {
	return &Future{hash: hash, done: make(chan struct{})}
}

// complete resolves the future exactly once; later calls are no-ops,
// giving the "exactly-once future completion" guarantee (spec §8).
func (f *Future) complete(block *Block, err error) {
	f.once.Do(func() {
		f.block, f.err = block, err
		close(f.done)
	})
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future) Wait(ctx context.Context) (*Block, error) {
	select {
	case <-f.done:
		return f.block, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ready reports whether the future has already resolved, without
// blocking.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
