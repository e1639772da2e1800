package otdht

import (
	"encoding/binary"
	"errors"

	"github.com/openxnode/chaincore/chain"
	"github.com/openxnode/chaincore/chainhash"
)

var errShortFrame = errors.New("otdht: frame too short")

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readUint32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

func appendBytes(buf, v []byte) []byte {
	buf = appendUint32(buf, uint32(len(v)))
	return append(buf, v...)
}

func readBytes(b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, errShortFrame
	}
	n := int(readUint32(b))
	b = b[4:]
	if len(b) < n {
		return nil, nil, errShortFrame
	}
	return b[:n], b[n:], nil
}

func appendString(buf []byte, s string) []byte { return appendBytes(buf, []byte(s)) }

func readString(b []byte) (string, []byte, error) {
	v, rest, err := readBytes(b)
	return string(v), rest, err
}

func appendStates(buf []byte, states []State) []byte {
	buf = appendUint32(buf, uint32(len(states)))
	for _, s := range states {
		buf = appendUint32(buf, uint32(s.Chain))
		buf = appendUint32(buf, uint32(s.Tip.Height))
		buf = append(buf, s.Tip.Hash.Bytes()...)
		buf = append(buf, s.Genesis.Bytes()...)
	}
	return buf
}

func readStates(b []byte) ([]State, []byte, error) {
	if len(b) < 4 {
		return nil, nil, errShortFrame
	}
	n := int(readUint32(b))
	b = b[4:]
	states := make([]State, 0, n)
	for i := 0; i < n; i++ {
		if len(b) < 4+4+32+32 {
			return nil, nil, errShortFrame
		}
		c := chain.Chain(readUint32(b))
		b = b[4:]
		height := int64(int32(readUint32(b)))
		b = b[4:]
		var hash, genesis chainhash.Hash
		copy(hash[:], b[:32])
		b = b[32:]
		copy(genesis[:], b[:32])
		b = b[32:]
		states = append(states, State{
			Chain:   c,
			Tip:     chainhash.Position{Height: height, Hash: chainhash.BlockHash(hash)},
			Genesis: chainhash.BlockHash(genesis),
		})
	}
	return states, b, nil
}
