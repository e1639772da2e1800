package filteroracle

import (
	"testing"

	"github.com/openxnode/chaincore/chain"
	"github.com/openxnode/chaincore/chainhash"
	"github.com/stretchr/testify/require"
)

func splitBlockIntoElements(b []byte) [][]byte {
	if len(b) == 0 {
		return nil
	}
	out := make([][]byte, 0, len(b))
	for _, c := range b {
		out = append(out, []byte{c})
	}
	return out
}

func TestGCSOracleProcessAndMatch(t *testing.T) {
	var key [16]byte
	o := NewGCSOracle(chain.FilterTypeBasic, key, splitBlockIntoElements)

	pos := chainhash.Position{Height: 1, Hash: chainhash.BlockHash{1}}
	require.NoError(t, o.ProcessBlock(pos, []byte("abc")))
	require.Equal(t, pos, o.Tip())

	match, err := o.Match(pos, [][]byte{[]byte("a")})
	require.NoError(t, err)
	require.True(t, match)

	noMatch, err := o.Match(pos, [][]byte{[]byte("z")})
	require.NoError(t, err)
	require.False(t, noMatch)
}

func TestGCSOracleNotAvailable(t *testing.T) {
	var key [16]byte
	o := NewGCSOracle(chain.FilterTypeBasic, key, splitBlockIntoElements)
	_, err := o.FilterAt(chainhash.Position{Height: 5})
	require.ErrorIs(t, err, ErrNotAvailable)
}

func TestGCSOracleSubscribeNotifiesOnProcessBlock(t *testing.T) {
	var key [16]byte
	o := NewGCSOracle(chain.FilterTypeBasic, key, splitBlockIntoElements)

	var got chainhash.Position
	unsub := o.Subscribe(func(pos chainhash.Position) { got = pos })
	defer unsub()

	pos := chainhash.Position{Height: 2, Hash: chainhash.BlockHash{2}}
	require.NoError(t, o.ProcessBlock(pos, []byte("xy")))
	require.Equal(t, pos, got)
}
