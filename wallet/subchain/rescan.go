package subchain

import (
	"context"

	"github.com/openxnode/chaincore/chainhash"
	"github.com/openxnode/chaincore/storage/kvstore"
	"github.com/openxnode/chaincore/walletdb"
)

// RescanJob rewinds last_scanned to a target position (spec §4.5
// Rescan), used both for an explicit do_rescan request and as the
// reorg-recovery path (spec §8 scenario 2). Rewind(target, currentTip)
// re-drives Scan up through currentTip; routed do_rescan/rescan work
// and StateData.rewindTo pass target as both ends, so they rewind
// without scanning forward.
type RescanJob struct {
	*baseJob

	store kvstore.KV
	cache *walletdb.Cache
	id    ID
	scan  *ScanJob
}

func NewRescanJob(chain, subchn string, store kvstore.KV, cache *walletdb.Cache, id ID, scan *ScanJob) *RescanJob {
	j := &RescanJob{store: store, cache: cache, id: id, scan: scan}
	j.baseJob = newBaseJob("rescan", chain, subchn, j)
	return j
}

func (j *RescanJob) handle(w Work) error {
	switch w.Kind {
	case WorkDoRescan, WorkRescan:
		return j.rescanFrom(w.Position, w.Position)
	default:
		return nil
	}
}

// Rewind sets last_scanned back to target and hands the subsequent
// range (up through currentTip) back to Scan.
func (j *RescanJob) Rewind(target, currentTip chainhash.Position) error {
	return j.rescanFrom(target, currentTip)
}

func (j *RescanJob) rescanFrom(target, tip chainhash.Position) error {
	if err := j.store.Update(func(tx kvstore.Tx) error {
		return j.cache.SetLastScanned(tx, j.id, target)
	}); err != nil {
		return err
	}
	return j.scan.scanTo(context.Background(), tip)
}
