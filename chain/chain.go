// Package chain identifies the blockchains a single chaincore process
// can host concurrently and carries the per-chain constants that
// determine hash functions, filter parameters, genesis values, and
// serialization rules. It deliberately does not implement any chain's
// consensus or wire rules itself — see crypto.Provider and
// filteroracle.Oracle for the pluggable pieces.
package chain

import "github.com/openxnode/chaincore/chainhash"

// Chain enumerates a supported blockchain.
type Chain int

const (
	Unknown Chain = iota
	Bitcoin
	BitcoinCash
	Litecoin
	BitcoinTestnet3
	BitcoinCashTestnet3
	LitecoinTestnet4
)

func (c Chain) String() string {
	switch c {
	case Bitcoin:
		return "bitcoin"
	case BitcoinCash:
		return "bitcoincash"
	case Litecoin:
		return "litecoin"
	case BitcoinTestnet3:
		return "bitcoin-testnet3"
	case BitcoinCashTestnet3:
		return "bitcoincash-testnet3"
	case LitecoinTestnet4:
		return "litecoin-testnet4"
	default:
		return "unknown"
	}
}

// FilterType identifies the compact filter encoding a chain's
// FilterOracle produces, matched against subchain registrations.
type FilterType uint8

const (
	FilterTypeBasic FilterType = iota
	FilterTypeExtended
)

// Checkpoint pins the required hash at a given height; at most one is
// active per chain at a time (spec §3 Checkpoint).
type Checkpoint struct {
	Height       int64
	RequiredHash chainhash.BlockHash
}

// Params carries the constants a chain contributes to the core: its
// genesis, its compiled checkpoint (if any), the filter encoding it
// uses, and the hash width its HashWidth field promises (all chains in
// this corpus use 32 bytes, but the field keeps the contract explicit
// rather than hard-coded).
type Params struct {
	Chain         Chain
	GenesisHash   chainhash.BlockHash
	GenesisHeight int64
	Checkpoint    *Checkpoint
	DefaultFilter FilterType
	HashWidth     int
	PeerTarget    int
}

var registry = map[Chain]Params{}

// Register installs p under p.Chain. Intended to be called from
// chain-specific init() functions (see chain/bitcoin, chain/litecoin in
// a full deployment); the core package itself stays chain-agnostic.
func Register(p Params) { registry[p.Chain] = p }

// Lookup returns the registered Params for c and whether it was found.
func Lookup(c Chain) (Params, bool) {
	p, ok := registry[c]
	return p, ok
}

func init() {
	Register(Params{
		Chain:         Bitcoin,
		GenesisHeight: 0,
		DefaultFilter: FilterTypeBasic,
		HashWidth:     32,
		PeerTarget:    8,
	})
	Register(Params{
		Chain:         BitcoinCash,
		GenesisHeight: 0,
		DefaultFilter: FilterTypeBasic,
		HashWidth:     32,
		PeerTarget:    8,
	})
	Register(Params{
		Chain:         Litecoin,
		GenesisHeight: 0,
		DefaultFilter: FilterTypeBasic,
		HashWidth:     32,
		PeerTarget:    8,
	})
}

// Profile is the deployment mode, governing cache-vs-persistent block
// storage and IBD aggressiveness (spec §6).
type Profile int

const (
	ProfileMobile Profile = iota
	ProfileDesktop
	ProfileDesktopNative
	ProfileServer
)

func (p Profile) String() string {
	switch p {
	case ProfileMobile:
		return "mobile"
	case ProfileDesktop:
		return "desktop"
	case ProfileDesktopNative:
		return "desktop_native"
	case ProfileServer:
		return "server"
	default:
		return "unknown"
	}
}

// PersistsBlocks reports whether this profile stores blocks durably
// (Persistent location) rather than only in-memory (Cached location).
func (p Profile) PersistsBlocks() bool { return p != ProfileMobile }
