package index

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tkobori/ShachiDB/storage/access"
	"github.com/tkobori/ShachiDB/storage/buffer"
	"github.com/tkobori/ShachiDB/storage/disk"
)

func TestHashTableIndex(t *testing.T) {
	dm := disk.NewVirtualDiskManagerImpl("test.db")
	t.Cleanup(dm.ShutDown)
	bpm := buffer.NewBufferPoolManager(32, dm)

	idx, err := NewHashTableIndex(bpm, 16)
	require.NoError(t, err)
	txn := access.NewTransaction(0, access.REPEATABLE_READ)

	for key := int64(0); key < 100; key++ {
		require.NoError(t, idx.InsertEntry(txn, key, ridFor(key)))
	}
	require.ErrorIs(t, idx.InsertEntry(txn, 42, ridFor(42)), ErrKeyExists)
	idx.GetTable().VerifyIntegrity()

	for key := int64(0); key < 100; key++ {
		value, err := idx.GetValue(txn, key)
		require.NoError(t, err)
		require.Equal(t, ridFor(key), value)
	}
	_, err = idx.GetValue(txn, 1000)
	require.ErrorIs(t, err, ErrKeyMissing)

	require.NoError(t, idx.DeleteEntry(txn, 42))
	require.ErrorIs(t, idx.DeleteEntry(txn, 42), ErrKeyMissing)
	_, err = idx.GetValue(txn, 42)
	require.ErrorIs(t, err, ErrKeyMissing)
}
