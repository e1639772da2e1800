package subchain

import (
	"github.com/openxnode/chaincore/storage/kvstore"
	"github.com/openxnode/chaincore/walletdb"
)

// IndexJob owns the current wallet element set for a subchain (spec
// §4.5 Index). AddKeys is its only real entry point; the embedded
// baseJob exists so it still participates in reorg/shutdown routing
// like every other job.
type IndexJob struct {
	*baseJob

	store   kvstore.KV
	cache   *walletdb.Cache
	id      ID
	source  ElementSource
	nextElm walletdb.ElementID

	onKey func(Work)
}

func NewIndexJob(chain, subchn string, store kvstore.KV, cache *walletdb.Cache, id ID, source ElementSource, onKey func(Work)) *IndexJob {
	j := &IndexJob{store: store, cache: cache, id: id, source: source, onKey: onKey}
	j.baseJob = newBaseJob("index", chain, subchn, j)
	return j
}

// AddKeys persists newly derived pattern elements and bumps
// last_indexed, all under one transaction, then emits a key
// notification for downstream jobs to re-scan (spec §4.5).
func (j *IndexJob) AddKeys(elements [][]byte) error {
	if len(elements) == 0 {
		return nil
	}
	err := j.store.Update(func(tx kvstore.Tx) error {
		for _, elem := range elements {
			eid := j.nextElm
			j.nextElm++
			if _, err := j.cache.AddPattern(tx, eid, elem); err != nil {
				return err
			}
			if err := j.cache.AddPatternIndex(tx, j.id, eid); err != nil {
				return err
			}
		}
		last, _ := j.cache.LastIndexed(j.id)
		return j.cache.SetLastIndexed(tx, j.id, last+uint32(len(elements)))
	})
	if err != nil {
		return err
	}
	// onKey is dispatched after the transaction commits, not from
	// inside it: downstream jobs (Scan) open their own transactions
	// when they react, and kvstore.KV's single-writer-per-transaction
	// contract (spec §4.6) does not allow a nested Update from the
	// same goroutine.
	if j.onKey != nil {
		j.onKey(Work{Kind: WorkKey})
	}
	return nil
}

// handle satisfies Handler; Index only reacts to its own AddKeys calls,
// so routed work is a no-op here.
func (j *IndexJob) handle(Work) error { return nil }
