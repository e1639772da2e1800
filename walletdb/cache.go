package walletdb

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	bloomfilter "github.com/holiman/bloomfilter/v2"
	"github.com/openxnode/chaincore/chainhash"
	"github.com/openxnode/chaincore/storage/kvstore"
)

// GetIndex returns the SubchainID for (subaccount, subchain, type,
// version), inserting an id_index row under txn if none exists yet
// (spec §4.6). The caller is expected to run this inside a
// store.Update callback and to abort the process if it returns
// ErrInvariantBroken, since a SubchainID leaking out without a
// matching disk row would violate the documented invariant.
func (c *Cache) GetIndex(tx kvstore.Tx, subaccount uint32, subchain, filterType, version uint8) (SubchainID, error) {
	identity := Identity{Subaccount: subaccount, Subchain: subchain, FilterType: filterType, Version: version}
	id := deriveSubchainID(identity)

	c.mu.RLock()
	_, cached := c.ids[id]
	c.mu.RUnlock()
	if cached {
		return id, nil
	}

	if _, ok, err := tx.Get(idIndexBucket, id[:]); err != nil {
		return id, err
	} else if ok {
		c.mu.Lock()
		c.ids[id] = identity
		c.mu.Unlock()
		return id, nil
	}

	if err := tx.Put(idIndexBucket, id[:], identity.encode()); err != nil {
		return id, errors.Mark(errors.Wrap(err, "walletdb: persist id_index row"), ErrInvariantBroken)
	}
	c.mu.Lock()
	c.ids[id] = identity
	c.mu.Unlock()
	return id, nil
}

// deriveSubchainID computes AccountID(subaccount ∥ subchain ∥
// filter_type ∥ version) (spec §3 SubchainID). A 64-bit FNV-1a digest
// of the encoded identity, spread over the 32 bytes by fixed
// multipliers, stands in for the crypto.Provider hash used elsewhere,
// since the identity bytes (not a header) are being hashed.
func deriveSubchainID(identity Identity) SubchainID {
	buf := identity.encode()
	var h SubchainID
	sum := fnvLikeDigest(buf)
	binary.BigEndian.PutUint64(h[0:8], sum)
	binary.BigEndian.PutUint64(h[8:16], sum^0x9e3779b97f4a7c15)
	binary.BigEndian.PutUint64(h[16:24], sum*0xff51afd7ed558ccd)
	binary.BigEndian.PutUint64(h[24:32], sum*0xc4ceb9fe1a85ec53)
	return h
}

func fnvLikeDigest(b []byte) uint64 {
	var h uint64 = 14695981039346656037
	for _, c := range b {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return h
}

// AddPattern registers bytes under elementID, idempotently, persisting
// under tx and adding to the bloom pre-filter. On a disk write
// failure, the in-memory pre-filter addition is not retried, matching
// the "rolls the in-memory addition back before returning false"
// contract (the bloom filter has no removal primitive, so failure
// simply skips the Add rather than attempting an unsupported rollback).
func (c *Cache) AddPattern(tx kvstore.Tx, elementID ElementID, bytes []byte) (bool, error) {
	key := elementIDKey(elementID)
	if existing, ok, err := tx.Get(patternsBucket, key); err != nil {
		return false, err
	} else if ok && string(existing) == string(bytes) {
		return true, nil
	}
	if err := tx.Put(patternsBucket, key, bytes); err != nil {
		return false, err
	}
	c.mu.Lock()
	c.patternBF.Add(bloomfilter.HashBytes(bytes))
	c.mu.Unlock()
	return true, nil
}

// AddPatternIndex records that subchain id references elementID (the
// pattern_index table's multi-value reverse index, spec §4.6).
func (c *Cache) AddPatternIndex(tx kvstore.Tx, id SubchainID, elementID ElementID) error {
	return tx.Put(patternIdxBucket, patternIndexKey(id, elementID), elementIDKey(elementID))
}

// MayContainPattern is the bloom pre-filter check Scan uses before
// doing an exact GCS match (spec §4.5 "Batches filters to amortize
// work"): a false return proves the pattern cannot be registered; a
// true return requires the exact check.
func (c *Cache) MayContainPattern(bytes []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.patternBF.Contains(bloomfilter.HashBytes(bytes))
}

// SetLastIndexed write-through updates the highest registered wallet
// element index for id.
func (c *Cache) SetLastIndexed(tx kvstore.Tx, id SubchainID, index uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, index)
	if err := tx.Put(lastIndexedBucket, id[:], buf); err != nil {
		return err
	}
	c.mu.Lock()
	c.lastIdx[id] = index
	c.mu.Unlock()
	return nil
}

// LastIndexed returns the cached last_indexed value, if known.
func (c *Cache) LastIndexed(id SubchainID) (uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.lastIdx[id]
	return v, ok
}

// SetLastScanned erases then re-emplaces the last_scanned row for id,
// matching the "erased then re-emplaced to reflect possible rewinds"
// contract (spec §4.6) so a rewind to an earlier position never reads
// back a stale, higher value from a half-applied write.
func (c *Cache) SetLastScanned(tx kvstore.Tx, id SubchainID, pos chainhash.Position) error {
	if err := tx.Delete(lastScannedBucket, id[:]); err != nil {
		return err
	}
	if err := tx.Put(lastScannedBucket, id[:], encodePosition(pos)); err != nil {
		return err
	}
	c.mu.Lock()
	c.lastScan[id] = pos
	c.mu.Unlock()
	return nil
}

// LastScanned returns the cached last_scanned value, if known.
func (c *Cache) LastScanned(id SubchainID) (chainhash.Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.lastScan[id]
	return v, ok
}

// Clear drops the last_indexed and last_scanned in-memory caches;
// patterns and id_index survive (spec §4.6).
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastIdx = map[SubchainID]uint32{}
	c.lastScan = map[SubchainID]chainhash.Position{}
}

func elementIDKey(id ElementID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func patternIndexKey(id SubchainID, elementID ElementID) []byte {
	return append(append([]byte{}, id[:]...), elementIDKey(elementID)...)
}

func encodePosition(pos chainhash.Position) []byte {
	buf := make([]byte, 8+32)
	binary.BigEndian.PutUint64(buf[:8], uint64(pos.Height))
	copy(buf[8:], pos.Hash.Bytes())
	return buf
}

func decodePosition(b []byte) (chainhash.Position, bool) {
	if len(b) != 40 {
		return chainhash.Position{}, false
	}
	height := int64(binary.BigEndian.Uint64(b[:8]))
	hash, err := chainhash.FromBytes(b[8:])
	if err != nil {
		return chainhash.Position{}, false
	}
	return chainhash.Position{Height: height, Hash: chainhash.BlockHash(hash)}, true
}
