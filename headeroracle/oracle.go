package headeroracle

import (
	"sync"
	"sync/atomic"

	"github.com/holiman/uint256"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openxnode/chaincore/chain"
	"github.com/openxnode/chaincore/chainhash"
	"github.com/openxnode/chaincore/log"
	"github.com/openxnode/chaincore/metrics"
)

// Snapshot is the immutable, atomically-swapped view queries run
// against — "lock-free reads on an immutable snapshot" (spec §5).
type Snapshot struct {
	headers  map[chainhash.BlockHash]*Header
	children map[chainhash.BlockHash][]chainhash.BlockHash
	tips     map[chainhash.BlockHash]struct{}
	best     chainhash.Position
	bestWork *uint256.Int
}

func (s *Snapshot) Header(h chainhash.BlockHash) (*Header, bool) {
	hdr, ok := s.headers[h]
	return hdr, ok
}

// Oracle is the per-chain HeaderOracle actor.
type Oracle struct {
	chainID  chain.Chain
	params   chain.Params
	provider hasher
	log      log.Logger

	writeMu sync.Mutex // serializes all mutation (spec §5 single writer)
	snap    atomic.Pointer[Snapshot]

	state        atomic.Int32 // State
	reorgEpoch   atomic.Uint64
	participants []ReorgParticipant
	partMu       sync.Mutex

	cache *lru.Cache[chainhash.BlockHash, *Header]
}

type hasher interface {
	Hash([]byte) chainhash.Hash
}

// New constructs an Oracle seeded with the chain's genesis header.
func New(c chain.Chain, params chain.Params, provider hasher, genesis *Header) *Oracle {
	o := &Oracle{chainID: c, params: params, provider: provider, log: log.New("component", "headeroracle", "chain", c.String())}
	cache, _ := lru.New[chainhash.BlockHash, *Header](4096)
	o.cache = cache

	genesis.WorkSoFar = workForHeader(genesis.PowTarget)
	snap := &Snapshot{
		headers:  map[chainhash.BlockHash]*Header{genesis.Hash: genesis},
		children: map[chainhash.BlockHash][]chainhash.BlockHash{},
		tips:     map[chainhash.BlockHash]struct{}{genesis.Hash: {}},
		best:     chainhash.Position{Height: genesis.Height, Hash: genesis.Hash},
		bestWork: genesis.WorkSoFar,
	}
	o.snap.Store(snap)
	metrics.HeaderDAGSize.WithLabelValues(c.String()).Set(1)
	return o
}

func (o *Oracle) Current() *Snapshot { return o.snap.Load() }

// Header returns the header for hash, consulting the bounded LRU cache
// before falling back to the current snapshot (hot path for repeated
// parent-hash lookups during header validation).
func (o *Oracle) Header(hash chainhash.BlockHash) (*Header, bool) {
	if h, ok := o.cache.Get(hash); ok {
		return h, true
	}
	h, ok := o.snap.Load().headers[hash]
	if ok {
		o.cache.Add(hash, h)
	}
	return h, ok
}

// BestChain returns the current best tip position.
func (o *Oracle) BestChain() chainhash.Position {
	return o.snap.Load().best
}

// Siblings returns the set of non-best tip hashes.
func (o *Oracle) Siblings() []chainhash.BlockHash {
	s := o.snap.Load()
	out := make([]chainhash.BlockHash, 0, len(s.tips))
	for h := range s.tips {
		if h != s.best.Hash {
			out = append(out, h)
		}
	}
	return out
}

// PruneSiblings drops non-best tips (and their exclusive ancestor
// chains, up to the first header still shared with the best chain)
// whose height trails the best tip by more than window blocks, to
// bound DAG memory (SPEC_FULL.md "Sibling pruning"). It is invoked
// periodically by the host, never from the hot AddHeaders path.
func (o *Oracle) PruneSiblings(window uint64) {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()

	cur := o.snap.Load()
	threshold := cur.best.Height - int64(window)

	next := &Snapshot{
		headers:  cloneHeaders(cur.headers),
		children: cloneChildren(cur.children),
		tips:     cloneTips(cur.tips),
		best:     cur.best,
		bestWork: cur.bestWork,
	}

	for tip := range cur.tips {
		if tip == cur.best.Hash {
			continue
		}
		hdr, ok := cur.headers[tip]
		if !ok || hdr.Height > threshold {
			continue
		}
		// Walk back deleting this sibling's exclusive ancestry: stop at
		// genesis, at a header still on the best chain, or at a header
		// with more than one child (shared with another surviving tip).
		h := tip
		for {
			hdr, ok := next.headers[h]
			if !ok {
				break
			}
			if onBest, _ := o.isOnBestChain(next, h); onBest {
				break
			}
			if len(next.children[hdr.ParentHash]) > 1 {
				delete(next.headers, h)
				delete(next.tips, h)
				break
			}
			parent := hdr.ParentHash
			delete(next.headers, h)
			delete(next.tips, h)
			delete(next.children, hdr.ParentHash)
			if hdr.Height == o.params.GenesisHeight {
				break
			}
			h = parent
		}
	}

	o.snap.Store(next)
	metrics.HeaderDAGSize.WithLabelValues(o.chainID.String()).Set(float64(len(next.headers)))
}

// BestHash returns the hash on the best chain at height, if known.
func (o *Oracle) BestHash(height int64) (chainhash.BlockHash, bool) {
	s := o.snap.Load()
	if height < 0 || height > s.best.Height {
		return chainhash.BlockHash{}, false
	}
	h := s.best.Hash
	for {
		hdr, ok := s.headers[h]
		if !ok {
			return chainhash.BlockHash{}, false
		}
		if hdr.Height == height {
			return h, true
		}
		h = hdr.ParentHash
	}
}

// BestHashes returns up to limit consecutive best-chain hashes
// starting at start.
func (o *Oracle) BestHashes(start int64, limit int) []chainhash.BlockHash {
	s := o.snap.Load()
	out := make([]chainhash.BlockHash, 0, limit)
	for height := start; height <= s.best.Height && len(out) < limit; height++ {
		h, ok := o.BestHash(height)
		if !ok {
			break
		}
		out = append(out, h)
	}
	return out
}

// BestHashesFromLocator implements the common block-locator protocol:
// it returns up to limit best-chain hashes starting just after the
// highest element of previous[] that lies on the best chain, ending
// early once stop is included (spec §4.1).
func (o *Oracle) BestHashesFromLocator(previous []chainhash.BlockHash, stop chainhash.BlockHash, limit int) []chainhash.BlockHash {
	s := o.snap.Load()
	var fromHeight int64 = -1
	for _, h := range previous {
		hdr, ok := s.headers[h]
		if !ok {
			continue
		}
		if onBest, _ := o.isOnBestChain(s, h); onBest && hdr.Height > fromHeight {
			fromHeight = hdr.Height
		}
	}
	out := o.BestHashes(fromHeight+1, limit)
	trimmed := make([]chainhash.BlockHash, 0, len(out))
	for _, h := range out {
		trimmed = append(trimmed, h)
		if h == stop {
			break
		}
	}
	return trimmed
}

func (o *Oracle) isOnBestChain(s *Snapshot, h chainhash.BlockHash) (bool, int64) {
	hdr, ok := s.headers[h]
	if !ok {
		return false, 0
	}
	onBest, _ := o.BestHash(hdr.Height)
	return onBest == h, hdr.Height
}

// Ancestors returns the positions on the best chain from start back to
// the common ancestor of target, up to limit entries (spec §4.1).
func (o *Oracle) Ancestors(start chainhash.Position, target chainhash.Position, limit int) ([]chainhash.Position, error) {
	s := o.snap.Load()
	if _, ok := s.headers[start.Hash]; !ok {
		return nil, ErrUnknownPosition
	}
	fork := o.commonAncestor(s, start.Hash, target.Hash)
	out := make([]chainhash.Position, 0, limit)
	h := start.Hash
	for len(out) < limit {
		hdr, ok := s.headers[h]
		if !ok || hdr.Height <= fork.Height {
			break
		}
		out = append(out, chainhash.Position{Height: hdr.Height, Hash: h})
		h = hdr.ParentHash
	}
	return out, nil
}

func (o *Oracle) commonAncestor(s *Snapshot, a, b chainhash.BlockHash) chainhash.Position {
	seen := map[chainhash.BlockHash]struct{}{}
	cur := a
	for {
		hdr, ok := s.headers[cur]
		if !ok {
			break
		}
		seen[cur] = struct{}{}
		if hdr.Height == o.params.GenesisHeight {
			break
		}
		cur = hdr.ParentHash
	}
	cur = b
	for {
		hdr, ok := s.headers[cur]
		if !ok {
			break
		}
		if _, found := seen[cur]; found {
			return chainhash.Position{Height: hdr.Height, Hash: cur}
		}
		if hdr.Height == o.params.GenesisHeight {
			return chainhash.Position{Height: hdr.Height, Hash: cur}
		}
		cur = hdr.ParentHash
	}
	return chainhash.Position{Height: o.params.GenesisHeight}
}

// State returns the oracle's current Normal/Reorg state.
func (o *Oracle) State() State { return State(o.state.Load()) }
