// Package filteroracle defines the FilterOracle contract: the
// wallet's sole dependency for compact block filters, deliberately
// left abstract over the filter algorithm (spec §4.3). It mirrors the
// teacher's les/vflux pull-based, capacity-negotiated data contract
// (pinned by les/vflux's client/server request-for-value shape): a
// consumer asks for data keyed by chain position and gets either the
// value or a clear "not yet available" answer, never a blocking call.
package filteroracle

import (
	"errors"

	"github.com/openxnode/chaincore/chain"
	"github.com/openxnode/chaincore/chainhash"
)

var ErrNotAvailable = errors.New("filteroracle: filter not available at position")

// Matcher is an optional capability a FilterOracle implementation may
// expose for testing a candidate element set against the filter at a
// position, without the caller needing to know the filter encoding
// (spec §4.5 Scan job). GCSOracle implements it; the bare FilterOracle
// contract does not require it.
type Matcher interface {
	Match(pos chainhash.Position, elements [][]byte) (bool, error)
}

// SyncData is the wire-level filter-sync payload exchanged with peers
// (spec §4.3): a filter header chain plus, optionally, full filters.
type SyncData struct {
	Position chainhash.Position
	Headers  []chainhash.FilterHash
	Filters  [][]byte
}

// FilterOracle is implemented by whatever compact-filter algorithm a
// deployment chooses; the wallet only ever talks to this interface
// (spec §1: "FilterOracle is a dependency, not a module this core
// implements").
type FilterOracle interface {
	// DefaultType returns the filter type this instance serves.
	DefaultType() chain.FilterType

	// Tip returns the highest position this oracle currently has a
	// filter for.
	Tip() chainhash.Position

	// ProcessBlock derives and stores the filter for a newly connected
	// block.
	ProcessBlock(pos chainhash.Position, blockBytes []byte) error

	// ProcessSyncData ingests a batch of filters received from a peer.
	ProcessSyncData(data SyncData) error

	// FilterAt returns the raw filter bytes at pos, or ErrNotAvailable.
	FilterAt(pos chainhash.Position) ([]byte, error)

	// Subscribe registers fn to be called whenever a new filter becomes
	// available, matching the wallet's Scan job trigger (spec §4.5).
	Subscribe(fn func(chainhash.Position)) (unsubscribe func())
}
