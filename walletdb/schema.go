// Package walletdb implements SubchainCache: a thin caching layer over
// a transactional key-value store holding the five logical tables of
// spec §4.6 (scan cursors, patterns, pattern indexes). Modeled on the
// teacher's ethdb/memorydb for the KV contract shape and on
// btcwallet's walletdb bucket layout (see other_examples manifest
// gcash-bchwallet) for the multi-value "many per key" tables.
package walletdb

import (
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"
	bloomfilter "github.com/holiman/bloomfilter/v2"
	"github.com/openxnode/chaincore/chainhash"
	"github.com/openxnode/chaincore/log"
	"github.com/openxnode/chaincore/storage/kvstore"
)

var (
	idIndexBucket     = []byte("id_index")
	lastIndexedBucket = []byte("last_indexed")
	lastScannedBucket = []byte("last_scanned")
	patternsBucket    = []byte("patterns")
	patternIdxBucket  = []byte("pattern_index")
)

// ErrInvariantBroken is returned (and should be treated as fatal by the
// caller, per spec §4.6) when GetIndex cannot guarantee the
// disk/memory invariant it promises.
var ErrInvariantBroken = errors.New("walletdb: could not maintain SubchainID disk invariant")

// SubchainID is the content-addressed identifier derived by
// deriveSubchainID from AccountID(subaccount ∥ subchain ∥ filter_type ∥
// version); walletdb treats it as an opaque fixed-width key.
type SubchainID = chainhash.Hash

// ElementID identifies one registered pattern element.
type ElementID uint64

// Identity is the decoded value stored under id_index.
type Identity struct {
	Subaccount uint32
	Subchain   uint8
	FilterType uint8
	Version    uint8
}

func (id Identity) encode() []byte {
	buf := make([]byte, 7)
	binary.BigEndian.PutUint32(buf[0:4], id.Subaccount)
	buf[4], buf[5], buf[6] = id.Subchain, id.FilterType, id.Version
	return buf
}

func decodeIdentity(b []byte) (Identity, bool) {
	if len(b) != 7 {
		return Identity{}, false
	}
	return Identity{
		Subaccount: binary.BigEndian.Uint32(b[0:4]),
		Subchain:   b[4],
		FilterType: b[5],
		Version:    b[6],
	}, true
}

// Cache is SubchainCache: a memory-resident view backed by a
// transactional KV, plus a bloom pre-filter over registered pattern
// bytes so Scan can cheaply skip filters with no chance of a match
// before doing the exact GCS match (spec §4.5 Scan job, SPEC_FULL.md
// DOMAIN STACK bloomfilter wiring).
type Cache struct {
	store kvstore.KV
	log   log.Logger

	mu        sync.RWMutex
	ids       map[SubchainID]Identity
	lastIdx   map[SubchainID]uint32
	lastScan  map[SubchainID]chainhash.Position
	nextElem  ElementID
	patternBF *bloomfilter.Filter
}

// New constructs a Cache backed by store, seeding the bloom pre-filter
// with the patterns already persisted there.
func New(store kvstore.KV) *Cache {
	bf, _ := bloomfilter.NewOptimal(1<<20, 0.001)
	if store != nil {
		_ = store.View(func(tx kvstore.Tx) error {
			return tx.ForEach(patternsBucket, func(_, v []byte) error {
				bf.Add(bloomfilter.HashBytes(v))
				return nil
			})
		})
	}
	return &Cache{
		store:     store,
		log:       log.New("component", "walletdb"),
		ids:       map[SubchainID]Identity{},
		lastIdx:   map[SubchainID]uint32{},
		lastScan:  map[SubchainID]chainhash.Position{},
		patternBF: bf,
	}
}
