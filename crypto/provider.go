// Package crypto defines the opaque cryptographic provider contracts
// the core depends on (spec §1: "cryptographic primitive
// implementations (treated as opaque providers Hash, ECDSA, Sign,
// Verify, BIP32.Derive)"). Core logic never reaches past these
// interfaces into a concrete curve or hash implementation.
package crypto

import "github.com/openxnode/chaincore/chainhash"

// Hasher computes the chain-defined block/transaction hash over raw
// bytes. Distinct from chainhash.Hash (the value); this is the
// function that produces one.
type Hasher interface {
	Hash(data []byte) chainhash.Hash
}

// ECDSA is the opaque signature provider backing header and
// transaction validation hooks that need it (the core itself never
// verifies transaction signatures; this exists for components layered
// on top, e.g. a concrete Validator).
type ECDSA interface {
	Sign(privateKey, digest []byte) (signature []byte, err error)
	Verify(publicKey, digest, signature []byte) bool
}

// BIP32 is the opaque HD key derivation provider used by wallet
// element sources (spec §1).
type BIP32 interface {
	Derive(parentKey []byte, index uint32, hardened bool) (childKey []byte, err error)
}

// Provider bundles the three opaque contracts the core is handed at
// construction time. It is never asserted to a concrete type inside
// headeroracle, blockoracle, or wallet/subchain.
type Provider interface {
	Hasher
	ECDSA
	BIP32
}
