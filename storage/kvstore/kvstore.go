// Package kvstore defines the transactional key-value contract the
// core's durable components (headeroracle's DAG store, blockoracle's
// persistent block store, walletdb's SubchainCache tables) are built
// on. The shape — bucketed Update/View transactions — is grounded on
// two real examples in the retrieval pack: the teacher's own
// ethdb.KeyValueStore (github.com/ethereum/go-ethereum/ethdb, pinned
// here by ethdb/memorydb's test-exercised Get/Put/Delete/Has/Batch
// surface) and btcwallet's walletdb.DB
// (github.com/gcash/bchwallet/walletdb, referenced transitively by
// other_examples/manifests/gcash-bchwallet), which is exactly a
// bucketed Update/View transactional KV over a wallet's scan state —
// the same role this package plays for SubchainCache.
package kvstore

import "errors"

// ErrNotFound is returned by Tx.Get when no value is stored at key.
var ErrNotFound = errors.New("kvstore: key not found")

// Tx is a single read or read-write transaction. All operations inside
// one Tx observe a consistent snapshot; Update transactions commit
// atomically on return with a nil error and roll back entirely on a
// non-nil error (spec §7: "Never partially persist a last_scanned
// advancement without its corresponding pattern writes").
type Tx interface {
	// Get reads key from bucket. ok is false if the key is absent.
	Get(bucket, key []byte) (value []byte, ok bool, err error)
	Put(bucket, key, value []byte) error
	Delete(bucket, key []byte) error
	// ForEach calls fn for every key in bucket in unspecified order;
	// fn must not mutate the bucket it is iterating.
	ForEach(bucket []byte, fn func(key, value []byte) error) error
}

// KV is the transactional key-value engine. A single writer may hold
// an Update transaction at a time; any number of View transactions may
// run concurrently with each other. Whether a View runs alongside an
// in-flight Update depends on the engine: the memory engine blocks it,
// the pebble engine reads from a snapshot taken when the View starts
// (spec §4.6: "All readers hold only a shared lock; single writer per
// key").
type KV interface {
	View(fn func(Tx) error) error
	Update(fn func(Tx) error) error
	Close() error
}
