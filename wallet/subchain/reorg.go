package subchain

import (
	"github.com/openxnode/chaincore/chainhash"
)

// Reorg is the per-subchain slave HeaderOracle consults before
// committing a chain-wide reorg (spec §4.4 "brokers reorg participation
// via a Reorg slave", §4.1 Execute). It implements
// headeroracle.ReorgParticipant without importing headeroracle
// directly, avoiding an import cycle (headeroracle knows nothing about
// wallets; a host ties the two together by passing
// StateData.ReorgParticipant to HeaderOracle.RegisterParticipant, which
// cmd/chaincored does not do).
type Reorg struct {
	sd *StateData
}

func newReorg(sd *StateData) *Reorg { return &Reorg{sd: sd} }

// AcknowledgePrepareReorg transitions every job into Reorg state and
// rewinds the subchain's scan cursor to the fork point if it had
// scanned past it, vetoing the chain-wide reorg only if the rewind
// itself fails (spec §8 "Reorg rewind": last_scanned lands at or
// before the fork height). Forward scanning of the new branch is left
// to the next ordinary filter notification once back in Normal state,
// since filter/update work is dropped (not deferred) while in Reorg.
func (r *Reorg) AcknowledgePrepareReorg(epoch uint64, forkPoint chainhash.Position, rollback []chainhash.Position) bool {
	jobs := []interface{ Dispatch(Work) error }{r.sd.Index, r.sd.Scan, r.sd.Process, r.sd.Rescan, r.sd.Progress}
	for _, j := range jobs {
		_ = j.Dispatch(Work{Kind: WorkPrepareReorg, Epoch: epoch})
	}

	if target, ok := r.sd.forkRewindTarget(forkPoint); ok {
		if err := r.sd.rewindTo(target); err != nil {
			r.sd.log.Error("reorg rewind failed, vetoing", "err", err)
			return false
		}
	}

	for _, j := range jobs {
		_ = j.Dispatch(Work{Kind: WorkFinishReorg, Epoch: epoch})
	}
	return true
}

// forkRewindTarget reports the position this subchain should rewind
// last_scanned to: the fork point if last_scanned is at or beyond it,
// otherwise no rewind is necessary (the reverted range never reached
// this subchain).
func (sd *StateData) forkRewindTarget(fork chainhash.Position) (chainhash.Position, bool) {
	last, ok := sd.Scan.cache.LastScanned(sd.ID)
	if !ok || last.Height <= fork.Height {
		return chainhash.Position{}, false
	}
	return fork, true
}
