package crypto

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/openxnode/chaincore/chainhash"
)

// Secp256k1Provider is a concrete Provider backed by
// github.com/btcsuite/btcd/btcec/v2, the Bitcoin-family curve
// implementation. It exists so tests and example hosts have a real,
// non-mock Provider to construct oracles with; core logic still only
// ever sees the Provider interface.
type Secp256k1Provider struct{}

func (Secp256k1Provider) Hash(data []byte) chainhash.Hash {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return chainhash.Hash(second)
}

func (Secp256k1Provider) Sign(privateKey, digest []byte) ([]byte, error) {
	priv, _ := btcec.PrivKeyFromBytes(privateKey)
	sig := ecdsa.Sign(priv, digest)
	return sig.Serialize(), nil
}

func (Secp256k1Provider) Verify(publicKey, digest, signature []byte) bool {
	pub, err := btcec.ParsePubKey(publicKey)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(digest, pub)
}

// Derive implements a simplified, non-hardened-only BIP32 step
// sufficient for the wallet element sources exercised by this core;
// full hardened derivation belongs to the custodial key-management
// layer this core treats as a collaborator (spec §1 Non-goals).
func (Secp256k1Provider) Derive(parentKey []byte, index uint32, hardened bool) ([]byte, error) {
	if hardened {
		return nil, errHardenedUnsupported
	}
	mac := sha256.New()
	mac.Write(parentKey)
	mac.Write([]byte{byte(index >> 24), byte(index >> 16), byte(index >> 8), byte(index)})
	sum := mac.Sum(nil)
	return sum, nil
}

var errHardenedUnsupported = hardenedErr{}

type hardenedErr struct{}

func (hardenedErr) Error() string {
	return "crypto: hardened derivation requires the custodial key-management layer"
}
