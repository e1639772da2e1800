package walletdb

import (
	"testing"

	"github.com/openxnode/chaincore/chainhash"
	"github.com/openxnode/chaincore/storage/kvstore"
	"github.com/stretchr/testify/require"
)

func TestGetIndexIsStableAndPersisted(t *testing.T) {
	store := kvstore.NewMemory()
	c := New(store)

	var id1, id2 SubchainID
	require.NoError(t, store.Update(func(tx kvstore.Tx) error {
		var err error
		id1, err = c.GetIndex(tx, 0, 0, 0, 1)
		return err
	}))
	require.NoError(t, store.Update(func(tx kvstore.Tx) error {
		var err error
		id2, err = c.GetIndex(tx, 0, 0, 0, 1)
		return err
	}))
	require.Equal(t, id1, id2)

	require.NoError(t, store.View(func(tx kvstore.Tx) error {
		_, ok, err := tx.Get(idIndexBucket, id1[:])
		require.NoError(t, err)
		require.True(t, ok, "id_index row must exist on disk after commit")
		return nil
	}))
}

func TestGetIndexDistinguishesIdentities(t *testing.T) {
	store := kvstore.NewMemory()
	c := New(store)
	var idExternal, idInternal SubchainID
	require.NoError(t, store.Update(func(tx kvstore.Tx) error {
		var err error
		idExternal, err = c.GetIndex(tx, 7, 0, 0, 1)
		return err
	}))
	require.NoError(t, store.Update(func(tx kvstore.Tx) error {
		var err error
		idInternal, err = c.GetIndex(tx, 7, 1, 0, 1)
		return err
	}))
	require.NotEqual(t, idExternal, idInternal)
}

func TestAddPatternIdempotentAndPreFilter(t *testing.T) {
	store := kvstore.NewMemory()
	c := New(store)
	pattern := []byte("script-bytes")

	require.NoError(t, store.Update(func(tx kvstore.Tx) error {
		ok, err := c.AddPattern(tx, 1, pattern)
		require.True(t, ok)
		return err
	}))
	require.NoError(t, store.Update(func(tx kvstore.Tx) error {
		ok, err := c.AddPattern(tx, 1, pattern)
		require.True(t, ok)
		return err
	}))
	require.True(t, c.MayContainPattern(pattern))
	require.False(t, c.MayContainPattern([]byte("never-registered")))
}

func TestSetLastScannedRewindAndClear(t *testing.T) {
	store := kvstore.NewMemory()
	c := New(store)
	var id SubchainID
	id[0] = 1

	require.NoError(t, store.Update(func(tx kvstore.Tx) error {
		return c.SetLastScanned(tx, id, chainhash.Position{Height: 10, Hash: chainhash.BlockHash{10}})
	}))
	got, ok := c.LastScanned(id)
	require.True(t, ok)
	require.Equal(t, int64(10), got.Height)

	require.NoError(t, store.Update(func(tx kvstore.Tx) error {
		return c.SetLastScanned(tx, id, chainhash.Position{Height: 5, Hash: chainhash.BlockHash{5}})
	}))
	got, ok = c.LastScanned(id)
	require.True(t, ok)
	require.Equal(t, int64(5), got.Height, "rewind must be reflected, not the stale higher value")

	require.NoError(t, store.Update(func(tx kvstore.Tx) error {
		return c.SetLastIndexed(tx, id, 42)
	}))
	c.Clear()
	_, ok = c.LastScanned(id)
	require.False(t, ok, "Clear must drop last_scanned")
	_, ok = c.LastIndexed(id)
	require.False(t, ok, "Clear must drop last_indexed")
}
