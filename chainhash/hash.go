// Package chainhash defines the fixed-width opaque hash type shared by
// block, transaction, and filter hashes, distinguished only by tag, and
// the totally-ordered block position pair built on top of it. It wraps
// github.com/btcsuite/btcd/chaincfg/chainhash.Hash, the real upstream
// type for exactly this role, rather than redefining hashing from
// scratch.
package chainhash

import (
	"bytes"
	"encoding/hex"
	"fmt"

	upstream "github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Hash is a fixed-width (32-byte, per spec §3) byte string.
type Hash upstream.Hash

// Zero is the all-zero hash, used as the sentinel hash half of "no
// position" (spec §3 Block position).
var Zero Hash

func FromBytes(b []byte) (Hash, error) {
	var h Hash
	u, err := upstream.NewHash(b)
	if err != nil {
		return h, fmt.Errorf("chainhash: %w", err)
	}
	return Hash(*u), nil
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) String() string { return hex.EncodeToString(reverse(h[:])) }

func (h Hash) IsZero() bool { return h == Zero }

// Compare returns -1, 0, or 1 comparing h and other lexicographically
// on the raw bytes, used for the best-chain tie-break (spec §3, §4.1).
func (h Hash) Compare(other Hash) int { return bytes.Compare(h[:], other[:]) }

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// tagged hash types: distinct by tag even though identically shaped,
// per spec §3 "share the width but are distinct types by tag".
type (
	BlockHash  Hash
	TxHash     Hash
	FilterHash Hash
)

func (h BlockHash) String() string  { return Hash(h).String() }
func (h BlockHash) IsZero() bool    { return Hash(h).IsZero() }
func (h BlockHash) Bytes() []byte   { return h[:] }
func (h TxHash) String() string     { return Hash(h).String() }
func (h FilterHash) String() string { return Hash(h).String() }

// Position is the pair (height, hash); height is signed so that -1
// plus a zero hash can denote "no position" (spec §3).
type Position struct {
	Height int64
	Hash   BlockHash
}

// NoPosition is the canonical "nothing known yet" position.
var NoPosition = Position{Height: -1}

func (p Position) IsNone() bool { return p.Height < 0 && Hash(p.Hash).IsZero() }

// Less orders positions first by height, then by hash lexicographically
// (spec §3 Block position: "totally ordered first by height, then by
// hash lexicographically").
func (p Position) Less(other Position) bool {
	if p.Height != other.Height {
		return p.Height < other.Height
	}
	return Hash(p.Hash).Compare(Hash(other.Hash)) < 0
}

func (p Position) Equal(other Position) bool {
	return p.Height == other.Height && p.Hash == other.Hash
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%s)", p.Height, Hash(p.Hash).String())
}
