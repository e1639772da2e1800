package subchain

import (
	"sync/atomic"

	"github.com/openxnode/chaincore/blockoracle"
	"github.com/openxnode/chaincore/chainhash"
	"github.com/openxnode/chaincore/filteroracle"
	"github.com/openxnode/chaincore/log"
	"github.com/openxnode/chaincore/metrics"
	"github.com/openxnode/chaincore/storage/kvstore"
	"github.com/openxnode/chaincore/walletdb"
)

// StateData is Wallet.SubchainStateData: one coordinator per
// (subaccount, subchain kind), owning the five jobs and brokering
// reorg participation through its Reorg mediator (spec §4.4).
type StateData struct {
	ID     ID
	Kind   Kind
	chain  string
	log    log.Logger

	Index    *IndexJob
	Scan     *ScanJob
	Process  *ProcessJob
	Rescan   *RescanJob
	Progress *ProgressJob

	reorg *Reorg

	started atomic.Bool
}

// New wires up all five jobs for one subchain, matching spec §4.4's
// "owns the five jobs and their message routing" with the routing
// itself expressed as direct callback wiring between jobs (Index ->
// Scan -> Process -> Progress) rather than a generic message bus,
// since every core actor in this repository favors typed callbacks
// over an untyped mailbox.
func New(chainName, subchnName string, kind Kind, id ID, store kvstore.KV, cache *walletdb.Cache,
	filters filteroracle.FilterOracle, blocks *blockoracle.Oracle, recorder UTXORecorder,
	source ElementSource, positionAt func(int64) (chainhash.Position, bool)) *StateData {

	sd := &StateData{ID: id, Kind: kind, chain: chainName, log: log.New("component", "subchain.coordinator", "chain", chainName, "subchain", subchnName)}

	sd.Progress = NewProgressJob(chainName, subchnName, func(pos chainhash.Position) {
		metrics.SubchainScanHeight.WithLabelValues(chainName, subchnName).Set(float64(pos.Height))
	})
	sd.Process = NewProcessJob(chainName, subchnName, blocks, recorder, func(w Work) {
		_ = sd.Progress.Dispatch(w)
	})
	sd.Scan = NewScanJob(chainName, subchnName, store, cache, filters, id, source, positionAt, func(w Work) {
		_ = sd.Process.Dispatch(w)
	})
	sd.Index = NewIndexJob(chainName, subchnName, store, cache, id, source, func(w Work) {
		_ = sd.Scan.Dispatch(w)
	})
	sd.Rescan = NewRescanJob(chainName, subchnName, store, cache, id, sd.Scan)

	sd.reorg = newReorg(sd)
	return sd
}

// DoStartup marks the coordinator as started (spec §4.4 do_startup).
// It seeds no contact data and starts no jobs (New has already wired
// them); it reports busy=false on the first call and true on every
// later call.
func (sd *StateData) DoStartup() (busy bool) {
	first := sd.started.CompareAndSwap(false, true)
	return !first
}

// Work drives one unit of coordinator-level work (spec §4.4 work),
// returning whether more work remains. This core's jobs are callback
// driven rather than polled, so there is never queued coordinator-level
// work left once DoStartup has run.
func (sd *StateData) Work() (more bool) {
	return false
}

// HandleBlockMatches delivers a matched block to Process directly,
// bypassing Scan's own filter walk (spec §4.4 handle_block_matches),
// used when a peer pushes a block that is already known to match
// (e.g. from a mempool or OTDHT announcement).
func (sd *StateData) HandleBlockMatches(pos chainhash.Position) error {
	return sd.Process.Dispatch(Work{Kind: WorkProcess, Position: pos})
}

// HandleMempoolMatch dispatches an unconfirmed match to Process as
// WorkMempool (spec §4.4 handle_mempool_match). ProcessJob does not act
// on WorkMempool, so no match is recorded for it.
func (sd *StateData) HandleMempoolMatch(txBytes []byte) error {
	return sd.Process.Dispatch(Work{Kind: WorkMempool, Block: txBytes})
}

// DoRescan dispatches an explicit user-intent rescan to the Rescan job,
// which rewinds last_scanned to target (spec §4.4 process / §4.5
// Rescan). tip is not used: no block after target is scanned by this
// call; Scan picks that range up on its next filter notification.
func (sd *StateData) DoRescan(target, tip chainhash.Position) error {
	return sd.Rescan.Dispatch(Work{Kind: WorkDoRescan, Position: target})
}

// OnFilter notifies Scan that a new filter is available up to pos
// (spec §4.3 filter notification -> §4.5 Scan).
func (sd *StateData) OnFilter(pos chainhash.Position) error {
	return sd.Scan.Dispatch(Work{Kind: WorkFilter, Position: pos})
}

// ReorgParticipant returns the mediator HeaderOracle should register
// via RegisterParticipant (spec §5).
func (sd *StateData) ReorgParticipant() *Reorg { return sd.reorg }

// rewindTo resets the subchain's last_scanned cursor to target without
// scanning forward, used by Reorg.AcknowledgePrepareReorg (spec §8
// "Reorg rewind"); the subsequent range is picked up by Scan on the
// next ordinary filter notification once back in Normal state.
func (sd *StateData) rewindTo(target chainhash.Position) error {
	return sd.Rescan.Rewind(target, target)
}

// Shutdown drives all five jobs through prepare_shutdown -> shutdown
// (spec §4.5, §5), returning the first error encountered but still
// attempting every job so a single stuck job doesn't block the rest.
func (sd *StateData) Shutdown() error {
	var first error
	for _, j := range []*baseJob{sd.Index.baseJob, sd.Scan.baseJob, sd.Process.baseJob, sd.Rescan.baseJob, sd.Progress.baseJob} {
		if err := j.Shutdown(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// StuckJobs reports which of the five jobs missed their watchdog ack.
func (sd *StateData) StuckJobs() []string {
	var stuck []string
	for name, ok := range map[string]bool{
		"index":    sd.Index.Watchdog(),
		"scan":     sd.Scan.Watchdog(),
		"process":  sd.Process.Watchdog(),
		"rescan":   sd.Rescan.Watchdog(),
		"progress": sd.Progress.Watchdog(),
	} {
		if !ok {
			stuck = append(stuck, name)
		}
	}
	return stuck
}
