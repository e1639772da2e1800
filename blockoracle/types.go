// Package blockoracle implements content-addressed block access: a
// cache/persistence layer, a download queue with at-most-once in-flight
// jobs, a futures registry, and initial-block-download tracking (spec
// §4.2). Modeled on the teacher's eth/downloader + eth/fetcher pair
// (pinned by eth/downloader/downloader_test.go's queue/peer/futures
// harness and eth/fetcher's announce-then-fetch shape): peers pull
// batches of work and push results back through the same queue that
// gated the request.
package blockoracle

import (
	"errors"

	"github.com/openxnode/chaincore/chainhash"
)

// Block is the opaque, content-addressed payload the core stores and
// serves. Parsing/validation beyond hash verification is delegated to
// Validator.
type Block struct {
	Hash  chainhash.BlockHash
	Bytes []byte
}

// LocationKind tags which of the three block-location variants a hash
// currently occupies (spec §3 Block location).
type LocationKind uint8

const (
	LocationMissing LocationKind = iota
	LocationCached
	LocationPersistent
)

// Location is a sum type over the three cases the spec names: not
// locally available, held in-memory only (mobile profile), or stored
// durably (non-mobile profile).
type Location struct {
	Kind  LocationKind
	Bytes []byte
}

func (l Location) IsValid() bool { return l.Kind != LocationMissing }

var (
	ErrNotFound       = errors.New("blockoracle: block not found")
	ErrAlreadyWaiting = errors.New("blockoracle: hash already enqueued")
	ErrUnknownJob     = errors.New("blockoracle: unknown job id")
	ErrMalformed      = errors.New("blockoracle: block malformed")
	ErrInvalid        = errors.New("blockoracle: block invalid")
)

// CheckResult is the three-way outcome of the validation pipeline
// (spec §4.2).
type CheckResult int

const (
	CheckValid CheckResult = iota
	CheckMalformed
	CheckInvalid
)

// Validator is the pluggable script/consensus validator (spec §1, §9:
// "default returns a validator that accepts everything").
type Validator interface {
	Validate(hash chainhash.BlockHash, bytes []byte) bool
}

// AcceptAllValidator is the default Validator, matching the teacher
// domain's own documented default (spec §9 Open Question: "the
// source's get_validator default returns a validator that accepts
// everything").
type AcceptAllValidator struct{}

func (AcceptAllValidator) Validate(chainhash.BlockHash, []byte) bool { return true }

// BlockBatch is work handed to a peer by GetWork: a contiguous run of
// waiting hashes under one job id, plus the two closures the peer must
// invoke (spec §4.2).
type BlockBatch struct {
	Hashes []chainhash.BlockHash
	JobID  uint64
	Cancel func()
	Done   func()
}
