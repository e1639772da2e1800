package filteroracle

import (
	"sync"

	"github.com/decred/dcrd/gcs/v4"
	"github.com/openxnode/chaincore/chain"
	"github.com/openxnode/chaincore/chainhash"
)

const gcsP = 19 // matches BIP-158 basic filter false-positive rate.

// ElementExtractor pulls the set of script/output elements a filter
// should commit to out of a raw block (spec §4.3's "filter commits to
// a deterministic element set"). Supplied by the caller so this
// package stays agnostic of block wire format.
type ElementExtractor func(blockBytes []byte) [][]byte

// storedFilter keeps the element count alongside the encoded filter:
// gcs.FromBytes needs N to reconstruct the correct match modulus.
type storedFilter struct {
	n    uint32
	data []byte
}

// GCSOracle is a reference FilterOracle built on Golomb-coded sets,
// matching BIP-158-style compact block filters. It keeps all filters
// in memory; a production deployment would back it with
// storage/kvstore the same way walletdb does.
type GCSOracle struct {
	filterType chain.FilterType
	key        [gcs.KeySize]byte
	extract    ElementExtractor

	mu      sync.RWMutex
	tip     chainhash.Position
	filters map[chainhash.Position]storedFilter
	headers map[chainhash.Position]chainhash.FilterHash

	subMu sync.Mutex
	subs  map[int]func(chainhash.Position)
	nextS int
}

// NewGCSOracle constructs a reference oracle. key is the per-chain GCS
// siphash key (spec §4.3 leaves key derivation to the deployment).
func NewGCSOracle(filterType chain.FilterType, key [gcs.KeySize]byte, extract ElementExtractor) *GCSOracle {
	return &GCSOracle{
		filterType: filterType,
		key:        key,
		extract:    extract,
		filters:    map[chainhash.Position]storedFilter{},
		headers:    map[chainhash.Position]chainhash.FilterHash{},
		subs:       map[int]func(chainhash.Position){},
	}
}

func (g *GCSOracle) DefaultType() chain.FilterType { return g.filterType }

func (g *GCSOracle) Tip() chainhash.Position {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.tip
}

func (g *GCSOracle) ProcessBlock(pos chainhash.Position, blockBytes []byte) error {
	elements := g.extract(blockBytes)
	filter, err := gcs.NewFilter(gcsP, g.key, elements)
	if err != nil {
		return err
	}
	raw, err := filter.Bytes()
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.filters[pos] = storedFilter{n: uint32(len(elements)), data: raw}
	if pos.Height > g.tip.Height || g.tip.IsNone() {
		g.tip = pos
	}
	g.mu.Unlock()

	g.notify(pos)
	return nil
}

// ProcessSyncData ingests filters received from a peer. Synced filters
// carry no element count, so they satisfy FilterAt/availability checks
// but cannot be queried with Match until reprocessed locally from a
// full block via ProcessBlock. Unlike ProcessBlock, it does not notify
// subscribers.
func (g *GCSOracle) ProcessSyncData(data SyncData) error {
	g.mu.Lock()
	for i, raw := range data.Filters {
		pos := chainhash.Position{Height: data.Position.Height + int64(i), Hash: data.Position.Hash}
		g.filters[pos] = storedFilter{data: raw}
		if pos.Height > g.tip.Height {
			g.tip = pos
		}
	}
	for i, h := range data.Headers {
		pos := chainhash.Position{Height: data.Position.Height + int64(i), Hash: data.Position.Hash}
		g.headers[pos] = h
	}
	g.mu.Unlock()
	return nil
}

func (g *GCSOracle) FilterAt(pos chainhash.Position) ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	stored, ok := g.filters[pos]
	if !ok {
		return nil, ErrNotAvailable
	}
	return stored.data, nil
}

func (g *GCSOracle) Subscribe(fn func(chainhash.Position)) func() {
	g.subMu.Lock()
	id := g.nextS
	g.nextS++
	g.subs[id] = fn
	g.subMu.Unlock()
	return func() {
		g.subMu.Lock()
		delete(g.subs, id)
		g.subMu.Unlock()
	}
}

func (g *GCSOracle) notify(pos chainhash.Position) {
	g.subMu.Lock()
	fns := make([]func(chainhash.Position), 0, len(g.subs))
	for _, fn := range g.subs {
		fns = append(fns, fn)
	}
	g.subMu.Unlock()
	for _, fn := range fns {
		fn(pos)
	}
}

// Match reports whether any of elements is committed to by the filter
// at pos, the primitive the wallet's Scan job is built on (spec §4.5).
func (g *GCSOracle) Match(pos chainhash.Position, elements [][]byte) (bool, error) {
	g.mu.RLock()
	stored, ok := g.filters[pos]
	g.mu.RUnlock()
	if !ok {
		return false, ErrNotAvailable
	}
	filter, err := gcs.FromBytes(stored.n, gcsP, g.key, stored.data)
	if err != nil {
		return false, err
	}
	return filter.MatchAny(g.key, elements), nil
}
