package blockoracle

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openxnode/chaincore/chain"
	"github.com/openxnode/chaincore/chainhash"
	"github.com/openxnode/chaincore/crypto"
	"github.com/openxnode/chaincore/log"
	"github.com/openxnode/chaincore/metrics"
	"github.com/openxnode/chaincore/storage/kvstore"
)

var blocksBucket = []byte("blocks")

// Oracle is the per-chain BlockOracle actor: a content-addressed block
// cache/store, a FIFO download queue, and a futures registry, modeled
// on the teacher's eth/downloader.Downloader (pinned by
// eth/downloader/downloader_test.go's queue/peer-set/results-cache
// triad) generalized from block-number ranges to content-addressed
// hashes per spec §4.2.
type Oracle struct {
	chainID   chain.Chain
	profile   chain.Profile
	store     kvstore.KV // nil under ProfileMobile: cache-only, never persists
	cache     *lru.Cache[chainhash.BlockHash, *Block]
	hasher    crypto.Hasher
	validator Validator
	log       log.Logger

	queueMu   sync.Mutex
	queue     []chainhash.BlockHash
	assigned  map[chainhash.BlockHash]uint64
	jobs      map[uint64]*job
	nextJobID uint64

	futuresMu sync.RWMutex
	futures   map[chainhash.BlockHash]*Future

	tipMu sync.Mutex
	tip   chainhash.Position

	ibd atomic.Bool
}

// New constructs a BlockOracle. store may be nil for ProfileMobile,
// which never persists blocks beyond the bounded in-memory cache (spec
// §1 profile notes). hasher computes the chain-defined content hash
// checkBlock verifies every submitted block against (spec §4.2
// validation pipeline, step 2); it defaults to crypto.Secp256k1Provider
// when nil, matching validator's own nil default.
func New(c chain.Chain, profile chain.Profile, hasher crypto.Hasher, store kvstore.KV, validator Validator) *Oracle {
	if validator == nil {
		validator = AcceptAllValidator{}
	}
	if hasher == nil {
		hasher = crypto.Secp256k1Provider{}
	}
	cache, _ := lru.New[chainhash.BlockHash, *Block](2048)
	o := &Oracle{
		chainID:   c,
		profile:   profile,
		store:     store,
		cache:     cache,
		hasher:    hasher,
		validator: validator,
		log:       log.New("component", "blockoracle", "chain", c.String()),
		assigned:  map[chainhash.BlockHash]uint64{},
		jobs:      map[uint64]*job{},
		futures:   map[chainhash.BlockHash]*Future{},
	}
	o.ibd.Store(true)
	return o
}

// BlockExists reports whether hash is locally available, and where.
func (o *Oracle) BlockExists(hash chainhash.BlockHash) Location {
	if b, ok := o.cache.Get(hash); ok {
		return Location{Kind: LocationCached, Bytes: b.Bytes}
	}
	if o.store == nil {
		return Location{Kind: LocationMissing}
	}
	var out Location
	_ = o.store.View(func(tx kvstore.Tx) error {
		v, ok, err := tx.Get(blocksBucket, hash[:])
		if err != nil || !ok {
			return err
		}
		out = Location{Kind: LocationPersistent, Bytes: v}
		return nil
	})
	if out.Kind == LocationMissing {
		return Location{Kind: LocationMissing}
	}
	return out
}

// Load returns a Future for hash, enqueuing a download if the block is
// not already available locally and no future is already outstanding
// (spec §8: "at most one in-flight download per hash").
func (o *Oracle) Load(hash chainhash.BlockHash) *Future {
	if loc := o.BlockExists(hash); loc.IsValid() {
		f := newFuture(hash)
		f.complete(&Block{Hash: hash, Bytes: loc.Bytes}, nil)
		return f
	}

	o.futuresMu.Lock()
	if f, ok := o.futures[hash]; ok {
		o.futuresMu.Unlock()
		return f
	}
	f := newFuture(hash)
	o.futures[hash] = f
	o.futuresMu.Unlock()

	o.enqueue(hash)
	metrics.FuturesOutstanding.WithLabelValues(o.chainID.String()).Inc()
	return f
}

// LoadAll is the batch form of Load, used by IBD to pipeline many
// outstanding downloads at once (spec §4.2 FetchAllBlocks).
func (o *Oracle) LoadAll(hashes []chainhash.BlockHash) []*Future {
	out := make([]*Future, len(hashes))
	for i, h := range hashes {
		out[i] = o.Load(h)
	}
	return out
}

// checkBlock is the three-way validation pipeline (spec §4.2): bytes
// must parse (here: be non-empty — full chain-specific parsing is the
// Validator's concern), the hasher's digest of bytes must equal the
// requested content-addressed hash, and the pluggable validator must
// accept the result.
func (o *Oracle) checkBlock(hash chainhash.BlockHash, bytes []byte) CheckResult {
	if len(bytes) == 0 {
		return CheckMalformed
	}
	if computed := chainhash.BlockHash(o.hasher.Hash(bytes)); computed != hash {
		return CheckInvalid
	}
	if !o.validator.Validate(hash, bytes) {
		return CheckInvalid
	}
	return CheckValid
}

// SubmitBlock runs the validation pipeline, stores the block if it
// passes, and resolves (exactly once) any outstanding future waiting
// on it (spec §4.2, §8 "exactly-once future completion"). A block that
// fails validation goes through badBlock instead of resolving the
// future: the hash is re-queued and the future stays pending until a
// good copy arrives (spec §4.2 case (c), §8 "Bad block reproducibility").
func (o *Oracle) SubmitBlock(hash chainhash.BlockHash, bytes []byte) error {
	switch o.checkBlock(hash, bytes) {
	case CheckMalformed:
		o.badBlock(hash)
		return ErrMalformed
	case CheckInvalid:
		o.badBlock(hash)
		return ErrInvalid
	}

	block := &Block{Hash: hash, Bytes: bytes}
	if o.profile.PersistsBlocks() && o.store != nil {
		if err := o.store.Update(func(tx kvstore.Tx) error {
			return tx.Put(blocksBucket, hash[:], bytes)
		}); err != nil {
			o.resolve(hash, nil, err)
			return err
		}
	}
	// Always populate the hot cache too, regardless of profile.
	o.cache.Add(hash, block)

	o.resolve(hash, block, nil)
	return nil
}

// badBlock implements spec §4.2's bad_block event: any cached or
// persistent copy of hash is deleted and hash is pushed back onto the
// download queue, but any future already registered for hash is left
// pending rather than completed, so the next successful SubmitBlock for
// the same hash is what resolves it (spec §8 "Bad block reproducibility":
// "the next Load(h) issues a fresh download (future not pre-resolved
// with the stale block)").
func (o *Oracle) badBlock(hash chainhash.BlockHash) {
	o.cache.Remove(hash)
	if o.store != nil {
		if err := o.store.Update(func(tx kvstore.Tx) error {
			return tx.Delete(blocksBucket, hash[:])
		}); err != nil {
			o.log.Warn("bad_block: failed to delete persistent copy", "hash", hash.String(), "err", err)
		}
	}
	o.enqueue(hash)
	o.log.Warn("bad block, re-queued for download", "hash", hash.String())
}

func (o *Oracle) resolve(hash chainhash.BlockHash, block *Block, err error) {
	o.futuresMu.Lock()
	f, ok := o.futures[hash]
	if ok {
		delete(o.futures, hash)
	}
	o.futuresMu.Unlock()
	if ok {
		f.complete(block, err)
		metrics.FuturesOutstanding.WithLabelValues(o.chainID.String()).Dec()
	}
}

// GetTip returns the block-oracle's own notion of the persisted chain
// tip (distinct from HeaderOracle.BestChain: this tracks how far block
// bodies, not just headers, have been validated and stored).
func (o *Oracle) GetTip() chainhash.Position {
	o.tipMu.Lock()
	defer o.tipMu.Unlock()
	return o.tip
}

// SetTip records a new block-body tip.
func (o *Oracle) SetTip(pos chainhash.Position) {
	o.tipMu.Lock()
	o.tip = pos
	o.tipMu.Unlock()
}

// SetIBD marks whether the oracle considers itself still in initial
// block download.
func (o *Oracle) SetIBD(active bool) {
	o.ibd.Store(active)
	v := float64(0)
	if active {
		v = 1
	}
	metrics.IBDActive.WithLabelValues(o.chainID.String()).Set(v)
}

// IsIBD reports whether the oracle is still catching up.
func (o *Oracle) IsIBD() bool { return o.ibd.Load() }

// FetchAllBlocks reports whether peers should aggressively request
// every block rather than only wallet-required ones: true once the
// "server" profile has finished initial block download (spec §4.2).
func (o *Oracle) FetchAllBlocks() bool {
	return o.profile == chain.ProfileServer && !o.IsIBD()
}

// RepairTip walks backward from the current tip via parentOf until it
// finds the first locally-stored block whose bytes re-validate (parse
// and hash-check per checkBlock), or reaches the chain's genesis
// height, whichever comes first (DESIGN.md Open Question decision:
// terminate at "first good block or genesis", never walking past height
// 0). Each corrupt block encountered along the way is logged by
// position and evicted via badBlock (spec §4.2 "Persistent corruption
// at startup: tip rewind with explicit log per position").
func (o *Oracle) RepairTip(parentOf func(chainhash.BlockHash) (chainhash.Position, bool)) chainhash.Position {
	cur := o.GetTip()
	for cur.Height > o.genesisHeight() {
		if loc := o.BlockExists(cur.Hash); loc.IsValid() {
			if o.checkBlock(cur.Hash, loc.Bytes) == CheckValid {
				o.SetTip(cur)
				return cur
			}
			o.log.Warn("corrupt block found during tip repair, rewinding",
				"height", cur.Height, "hash", cur.Hash.String())
			o.badBlock(cur.Hash)
		}
		parent, ok := parentOf(cur.Hash)
		if !ok {
			break
		}
		cur = parent
	}
	o.SetTip(cur)
	return cur
}

func (o *Oracle) genesisHeight() int64 {
	if p, ok := chain.Lookup(o.chainID); ok {
		return p.GenesisHeight
	}
	return 0
}
