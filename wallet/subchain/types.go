// Package subchain implements Wallet.SubchainStateData and its five
// cooperative jobs (Index, Scan, Process, Rescan, Progress), the
// shared Normal/Reorg/PreShutdown/Shutdown job state machine, and the
// ElementSource abstraction over notification-vs-script decoding (spec
// §4.4-4.5). Modeled on the teacher's miner/worker (pinned by
// miner/worker_test.go's explicit state-transition, watchdog-ticker
// shape) crossed with les/fetcher's announce-then-pull staged pipeline
// for the Index -> Scan -> Process -> Progress flow.
package subchain

import (
	"errors"
	"time"

	"github.com/openxnode/chaincore/chainhash"
	"github.com/openxnode/chaincore/walletdb"
)

// Kind is the subchain's role within a sub-account (spec §3 Subchain
// kind).
type Kind uint8

const (
	KindExternal Kind = iota
	KindInternal
	KindIncoming
	KindOutgoing
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindExternal:
		return "external"
	case KindInternal:
		return "internal"
	case KindIncoming:
		return "incoming"
	case KindOutgoing:
		return "outgoing"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// ID is the content-addressed SubchainID (spec §3), reused verbatim
// from walletdb since it is the table key there too.
type ID = walletdb.SubchainID

// JobState is the shared four-state machine every job runs (spec
// §4.5): Normal is the only state in which work kinds actually run;
// Reorg defers the "process" work kinds and ignores filter/update
// work; PreShutdown/Shutdown ignore all work and watchdog probes, and
// the only transition they accept is PreShutdown -> Shutdown.
type JobState int

const (
	StateNormal JobState = iota
	StateReorg
	StatePreShutdown
	StateShutdown
)

// WorkKind enumerates the message types routed through a job's work
// queue (spec §4.5 routing table).
type WorkKind int

const (
	WorkFilter WorkKind = iota
	WorkUpdate
	WorkMempool
	WorkStartScan
	WorkProcess
	WorkReprocess
	WorkRescan
	WorkDoRescan
	WorkBlock
	WorkKey
	WorkPrepareReorg
	WorkFinishReorg
	WorkPrepareShutdown
	WorkShutdown
	WorkWatchdog
)

// Work is one routed message. Epoch carries the reorg epoch in its
// "first frame", per spec §4.5 ("update messages carry the reorg epoch
// in their first frame"); non-epoch-bearing work kinds leave it zero
// and are never dropped for staleness.
type Work struct {
	Kind      WorkKind
	Epoch     uint64
	Position  chainhash.Position
	Rollback  []chainhash.Position
	Patterns  [][]byte
	Block     []byte
	Confirmed bool
}

// Route classifies how a WorkKind is handled in each JobState (spec
// §4.5 table).
type Route int

const (
	RouteProcess Route = iota
	RouteDefer
	RouteIgnore
	RouteTransition
	RouteError
	RouteAck
)

func route(state JobState, kind WorkKind) Route {
	switch kind {
	case WorkFilter, WorkUpdate:
		if state == StateNormal {
			return RouteProcess
		}
		return RouteIgnore
	case WorkMempool, WorkStartScan, WorkProcess, WorkReprocess, WorkRescan, WorkDoRescan, WorkBlock, WorkKey:
		switch state {
		case StateNormal:
			return RouteProcess
		case StateReorg:
			return RouteDefer
		default:
			return RouteIgnore
		}
	case WorkPrepareReorg:
		if state == StateNormal {
			return RouteTransition
		}
		return RouteError
	case WorkFinishReorg:
		if state == StateReorg {
			return RouteTransition
		}
		return RouteError
	case WorkPrepareShutdown:
		if state == StateNormal {
			return RouteTransition
		}
		return RouteError
	case WorkShutdown:
		if state == StatePreShutdown {
			return RouteTransition
		}
		return RouteError
	case WorkWatchdog:
		if state == StatePreShutdown || state == StateShutdown {
			return RouteIgnore
		}
		return RouteAck
	default:
		return RouteIgnore
	}
}

// WatchdogInterval is the 10s cadence every job acks on (spec §4.5).
const WatchdogInterval = 10 * time.Second

var (
	ErrStaleEpoch    = errors.New("subchain: stale or missing reorg epoch")
	ErrWrongState    = errors.New("subchain: work kind invalid in current state")
	ErrReorgVetoed   = errors.New("subchain: reorg vetoed")
	ErrJobStuck      = errors.New("subchain: job missed its watchdog ack")
)

// ElementSource abstracts the decoding of wallet elements a job scans
// for: generic script/output patterns for ordinary subchains, or
// payment-code elements for KindNotification subchains (spec §4.4:
// "Sub-accounts classified as Notification subscribe to
// notification-specific decoding"; SUPPLEMENTED FEATURES).
type ElementSource interface {
	// Elements returns the current set of pattern bytes this source
	// wants registered with the Index job.
	Elements() [][]byte
	// Decode extracts match candidates for a block, in the source's own
	// encoding.
	Decode(blockBytes []byte) [][]byte
}

// ScriptElementSource decodes ordinary output-script patterns.
type ScriptElementSource struct {
	patterns [][]byte
}

func NewScriptElementSource(patterns [][]byte) *ScriptElementSource {
	return &ScriptElementSource{patterns: patterns}
}

func (s *ScriptElementSource) Elements() [][]byte { return s.patterns }

func (s *ScriptElementSource) Decode(blockBytes []byte) [][]byte {
	// Script matching happens at the GCS filter layer; the decoded
	// candidate set for a matched block is just its registered patterns.
	return s.patterns
}

// PaymentCodeElementSource decodes BIP-47-style payment-code
// notification elements instead of plain scripts (SUPPLEMENTED
// FEATURES, spec §4.4 notification subchains).
type PaymentCodeElementSource struct {
	codes [][]byte
}

func NewPaymentCodeElementSource(codes [][]byte) *PaymentCodeElementSource {
	return &PaymentCodeElementSource{codes: codes}
}

func (p *PaymentCodeElementSource) Elements() [][]byte { return p.codes }

func (p *PaymentCodeElementSource) Decode(blockBytes []byte) [][]byte { return p.codes }
