package subchain

import (
	"context"

	"github.com/openxnode/chaincore/blockoracle"
	"github.com/openxnode/chaincore/chainhash"
)

// TxoState classifies a match handed to the UTXORecorder (spec §4.5
// Process). ProcessJob records every block match as TxoConfirmed;
// TxoUnconfirmed and TxoImmature are not produced in this package.
type TxoState int

const (
	TxoUnconfirmed TxoState = iota
	TxoConfirmed
	TxoImmature
)

// UTXORecorder is the delegate Process hands confirmed matches to; the
// UTXO set itself is out of this core's scope (spec §1 Non-goals) but
// the hook is where a host wallet would plug one in.
type UTXORecorder interface {
	RecordMatch(pos chainhash.Position, state TxoState, blockBytes []byte)
}

// ProcessJob loads the matching block from BlockOracle, waits on its
// future, and hands the result to the coordinator via onProcessed
// (spec §4.5 Process).
type ProcessJob struct {
	*baseJob

	blocks    *blockoracle.Oracle
	recorder  UTXORecorder
	onProcessed func(Work)
}

func NewProcessJob(chain, subchn string, blocks *blockoracle.Oracle, recorder UTXORecorder, onProcessed func(Work)) *ProcessJob {
	j := &ProcessJob{blocks: blocks, recorder: recorder, onProcessed: onProcessed}
	j.baseJob = newBaseJob("process", chain, subchn, j)
	return j
}

func (j *ProcessJob) handle(w Work) error {
	switch w.Kind {
	case WorkProcess, WorkReprocess:
		return j.processBlock(context.Background(), w.Position)
	default:
		return nil
	}
}

func (j *ProcessJob) processBlock(ctx context.Context, pos chainhash.Position) error {
	future := j.blocks.Load(pos.Hash)
	block, err := future.Wait(ctx)
	if err != nil {
		return err
	}
	state := TxoConfirmed
	if j.recorder != nil {
		j.recorder.RecordMatch(pos, state, block.Bytes)
	}
	if j.onProcessed != nil {
		j.onProcessed(Work{Kind: WorkProcess, Position: pos, Confirmed: true})
	}
	return nil
}
