package headeroracle

import (
	"github.com/holiman/uint256"
	"github.com/openxnode/chaincore/chainhash"
	"github.com/openxnode/chaincore/metrics"
)

// AddHeader validates and inserts a single header (spec §4.1).
func (o *Oracle) AddHeader(h *Header) error {
	return o.AddHeaders([]*Header{h})
}

// AddHeaders validates and inserts headers in order, moving the best
// tip whenever a header has strictly more cumulative work, then
// publishes one snapshot and starts at most one reorg for the batch.
func (o *Oracle) AddHeaders(headers []*Header) error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()

	cur := o.snap.Load()
	// Copy-on-write: build the next snapshot from the current one.
	next := &Snapshot{
		headers:  cloneHeaders(cur.headers),
		children: cloneChildren(cur.children),
		tips:     cloneTips(cur.tips),
		best:     cur.best,
		bestWork: cur.bestWork,
	}

	oldTip := next.best
	changed := false
	for _, h := range headers {
		if _, exists := next.headers[h.Hash]; exists {
			continue // idempotent (spec §4.1 "Header accepted twice")
		}
		parent, isGenesis := next.headers[h.ParentHash], h.Height == o.params.GenesisHeight
		if parent == nil && !isGenesis {
			return ErrParentUnknown
		}
		if o.params.Checkpoint != nil && h.Height == o.params.Checkpoint.Height && h.Hash != o.params.Checkpoint.RequiredHash {
			// Accept-time checkpoint mismatch is a hard failure (spec
			// §4.1: "Fails with ... CheckpointViolation"), distinct from
			// the retroactive-activation case (spec §4.1 edge cases),
			// which only arises for headers stored before a checkpoint
			// at their height existed and is not reachable through this
			// method since Params.Checkpoint is fixed at construction.
			return ErrCheckpointViolation
		}
		if !o.validPow(h) {
			return ErrPowInvalid
		}
		parentWork := uint256.NewInt(0)
		if parent != nil {
			parentWork = parent.WorkSoFar
			delete(next.tips, h.ParentHash)
		}
		h.WorkSoFar = new(uint256.Int).Add(parentWork, workForHeader(h.PowTarget))
		next.headers[h.Hash] = h
		next.tips[h.Hash] = struct{}{}
		next.children[h.ParentHash] = append(next.children[h.ParentHash], h.Hash)

		// Best-tip tie-break: strictly greater work wins; equal work
		// keeps the existing tip (stability bias, spec §4.1).
		if h.WorkSoFar.Gt(next.bestWork) {
			next.best = chainhash.Position{Height: h.Height, Hash: h.Hash}
			next.bestWork = h.WorkSoFar
			changed = true
		}
	}

	o.snap.Store(next)
	metrics.HeaderDAGSize.WithLabelValues(o.chainID.String()).Set(float64(len(next.headers)))

	if changed && next.best.Hash != oldTip.Hash {
		return o.beginReorg(next, oldTip, next.best)
	}
	return nil
}

// validPow checks the header's digest (computed by the injected
// crypto.Hasher over HeaderBytes) against its own compact PoW target:
// the digest, read as a big-endian 256-bit integer, must not exceed the
// target (spec §1: "PoW ... validation beyond checkpoint validation" is
// in scope; script execution is not). The genesis header is exempt.
func (o *Oracle) validPow(h *Header) bool {
	if h.Height == o.params.GenesisHeight {
		return true
	}
	if h.PowTarget == 0 {
		return false
	}
	target := compactToBig(h.PowTarget)
	digest := o.provider.Hash(h.HeaderBytes)
	value := new(uint256.Int).SetBytes(digest[:])
	return value.Cmp(target) <= 0
}

// beginReorg transitions Normal -> Reorg, computes the rollback plan,
// and collects participant votes before committing or aborting (spec
// §4.1 Execute, SPEC_FULL.md's two-phase veto note).
func (o *Oracle) beginReorg(next *Snapshot, oldTip, newTip chainhash.Position) error {
	o.state.Store(int32(StateReorg))
	epoch := o.reorgEpoch.Add(1)

	rollback, err := o.calculateReorgLocked(next, oldTip)
	if err != nil {
		o.state.Store(int32(StateNormal))
		return err
	}
	fork := o.commonAncestor(next, oldTip.Hash, next.best.Hash)

	o.partMu.Lock()
	participants := append([]ReorgParticipant(nil), o.participants...)
	o.partMu.Unlock()

	for _, p := range participants {
		if !p.AcknowledgePrepareReorg(epoch, fork, rollback) {
			o.state.Store(int32(StateNormal))
			return ErrReorgVetoed
		}
	}

	metrics.ReorgTotal.WithLabelValues(o.chainID.String()).Inc()
	o.state.Store(int32(StateNormal))
	return nil
}

// RegisterParticipant adds p to the set consulted on every reorg.
func (o *Oracle) RegisterParticipant(p ReorgParticipant) {
	o.partMu.Lock()
	defer o.partMu.Unlock()
	o.participants = append(o.participants, p)
}

// CalculateReorg returns the ordered list of positions that must be
// rolled back to move from tip to the current best chain (spec §4.1).
func (o *Oracle) CalculateReorg(tip chainhash.Position) ([]chainhash.Position, error) {
	return o.calculateReorgLocked(o.snap.Load(), tip)
}

func (o *Oracle) calculateReorgLocked(s *Snapshot, tip chainhash.Position) ([]chainhash.Position, error) {
	if _, ok := s.headers[tip.Hash]; !ok {
		return nil, ErrUnknownPosition
	}
	fork := o.commonAncestor(s, tip.Hash, s.best.Hash)
	out := []chainhash.Position{}
	h := tip.Hash
	for {
		hdr, ok := s.headers[h]
		if !ok || hdr.Height <= fork.Height {
			break
		}
		out = append(out, chainhash.Position{Height: hdr.Height, Hash: h})
		h = hdr.ParentHash
	}
	return out, nil
}

// Execute runs jobs under the exclusive header lock; each job sees a
// consistent snapshot and may reject the reorg by returning an error,
// which aborts the remaining jobs (spec §4.1 Execute).
func (o *Oracle) Execute(jobs []ReorgJob) error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	snap := *o.snap.Load()
	for _, job := range jobs {
		if err := job(snap); err != nil {
			return err
		}
	}
	return nil
}

func cloneHeaders(m map[chainhash.BlockHash]*Header) map[chainhash.BlockHash]*Header {
	out := make(map[chainhash.BlockHash]*Header, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneChildren(m map[chainhash.BlockHash][]chainhash.BlockHash) map[chainhash.BlockHash][]chainhash.BlockHash {
	out := make(map[chainhash.BlockHash][]chainhash.BlockHash, len(m)+1)
	for k, v := range m {
		cp := make([]chainhash.BlockHash, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

func cloneTips(m map[chainhash.BlockHash]struct{}) map[chainhash.BlockHash]struct{} {
	out := make(map[chainhash.BlockHash]struct{}, len(m)+1)
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
