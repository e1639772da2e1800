// Package headeroracle implements the authoritative view of each
// chain's header DAG: best chain selection, checkpoint enforcement,
// and reorg planning (spec §4.1). It is modeled on the teacher's
// core.HeaderChain (pinned by core/headerchain_test.go's
// NewHeaderChain/InsertHeaderChain/WriteStatus surface): a single
// writer mutates an append-only header store while readers see an
// immutable, atomically-swapped snapshot.
package headeroracle

import (
	"errors"

	"github.com/holiman/uint256"
	"github.com/openxnode/chaincore/chainhash"
)

// Header is the internal view of a block header (spec §3).
type Header struct {
	Hash        chainhash.BlockHash
	ParentHash  chainhash.BlockHash
	Height      int64
	PowTarget   uint32
	WorkSoFar   *uint256.Int
	HeaderBytes []byte
}

// workForHeader returns the proof-of-work contribution of a single
// header, derived from its compact target, as a 256-bit value so
// cumulative sums never round-trip through math/big on the
// header-acceptance hot path (teacher's core/types uses uint256.Int for
// exactly this reason; see DESIGN.md).
func workForHeader(bits uint32) *uint256.Int {
	target := compactToBig(bits)
	if target.IsZero() {
		return uint256.NewInt(1)
	}
	// work = 2^256 / (target+1), standard Bitcoin-family work formula.
	one := uint256.NewInt(1)
	denom := new(uint256.Int)
	overflow := denom.AddOverflow(target, one)
	if overflow || denom.IsZero() {
		return uint256.NewInt(1)
	}
	maxVal, _ := uint256.FromHex("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	work := new(uint256.Int).Div(maxVal, denom)
	return work
}

// compactToBig expands a 32-bit "compact" PoW target (the Bitcoin-family
// nBits encoding) into a 256-bit integer.
func compactToBig(bits uint32) *uint256.Int {
	exponent := bits >> 24
	mantissa := bits & 0x007fffff
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		return uint256.NewInt(uint64(mantissa))
	}
	result := uint256.NewInt(uint64(mantissa))
	result = new(uint256.Int).Lsh(result, uint(8*(exponent-3)))
	return result
}

var (
	ErrParentUnknown       = errors.New("headeroracle: parent unknown")
	ErrCheckpointViolation = errors.New("headeroracle: checkpoint violation")
	ErrPowInvalid          = errors.New("headeroracle: proof of work invalid")
	ErrUnknownPosition     = errors.New("headeroracle: start position not known")
	ErrReorgInProgress     = errors.New("headeroracle: reorg in progress")
	ErrReorgVetoed         = errors.New("headeroracle: reorg vetoed by a participant")
)

// State is the oracle's own Normal/Reorg state (spec §4.1), distinct
// from the per-job state machine in wallet/subchain.
type State int

const (
	StateNormal State = iota
	StateReorg
)

// ReorgParticipant is a consumer the oracle must get acknowledgement
// from before a reorg completes (spec §4.1 Execute, §9's two-phase
// veto note in SPEC_FULL.md). The wallet's Reorg mediator implements
// this.
type ReorgParticipant interface {
	// AcknowledgePrepareReorg is invoked with the reorg's epoch, the
	// common-ancestor fork point, and the ordered positions being rolled
	// back; returning false vetoes the whole chain-wide reorg.
	AcknowledgePrepareReorg(epoch uint64, forkPoint chainhash.Position, rollback []chainhash.Position) bool
}

// ReorgJob is a caller-supplied task run under Execute's exclusive
// header lock (spec §4.1 Execute).
type ReorgJob func(snapshot Snapshot) error
