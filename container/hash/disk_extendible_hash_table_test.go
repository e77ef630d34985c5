package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tkobori/ShachiDB/storage/buffer"
	"github.com/tkobori/ShachiDB/storage/disk"
	"github.com/tkobori/ShachiDB/storage/page"
	"github.com/tkobori/ShachiDB/types"
)

func ridOf(i int64) page.RID {
	return page.RID{PageId: types.PageID(i), SlotNum: uint32(i)}
}

func TestDiskExtendibleHashTableDirectoryDoubling(t *testing.T) {
	dm := disk.NewVirtualDiskManagerImpl("test.db")
	defer dm.ShutDown()
	bpm := buffer.NewBufferPoolManager(16, dm)

	ht, err := NewDiskExtendibleHashTable(bpm, 2)
	require.NoError(t, err)
	require.Equal(t, uint32(0), ht.GetGlobalDepth())
	ht.VerifyIntegrity()

	// two entries fill the single bucket
	require.NoError(t, ht.Insert(nil, 0, ridOf(0)))
	ht.VerifyIntegrity()
	require.NoError(t, ht.Insert(nil, 1, ridOf(1)))
	ht.VerifyIntegrity()
	require.Equal(t, uint32(0), ht.GetGlobalDepth())

	// the third entry forces a split and doubles the directory
	require.NoError(t, ht.Insert(nil, 2, ridOf(2)))
	ht.VerifyIntegrity()
	require.True(t, ht.GetGlobalDepth() >= 1)

	for i := int64(0); i < 3; i++ {
		value, found := ht.GetValue(nil, i)
		require.True(t, found)
		require.Equal(t, ridOf(i), value)
	}
	_, found := ht.GetValue(nil, 42)
	require.False(t, found)
}

func TestDiskExtendibleHashTableUpsert(t *testing.T) {
	dm := disk.NewVirtualDiskManagerImpl("test.db")
	defer dm.ShutDown()
	bpm := buffer.NewBufferPoolManager(16, dm)

	ht, err := NewDiskExtendibleHashTable(bpm, 8)
	require.NoError(t, err)

	require.NoError(t, ht.Insert(nil, 5, ridOf(5)))
	require.NoError(t, ht.Insert(nil, 5, ridOf(99)))

	value, found := ht.GetValue(nil, 5)
	require.True(t, found)
	require.Equal(t, ridOf(99), value)
}

func TestDiskExtendibleHashTableInsertRemoveMany(t *testing.T) {
	dm := disk.NewVirtualDiskManagerImpl("test.db")
	defer dm.ShutDown()
	bpm := buffer.NewBufferPoolManager(64, dm)

	ht, err := NewDiskExtendibleHashTable(bpm, 4)
	require.NoError(t, err)

	const n = int64(200)
	for i := int64(0); i < n; i++ {
		require.NoError(t, ht.Insert(nil, i, ridOf(i)))
	}
	ht.VerifyIntegrity()
	require.True(t, ht.GetGlobalDepth() >= 1)

	for i := int64(0); i < n; i++ {
		value, found := ht.GetValue(nil, i)
		require.True(t, found, "key %d", i)
		require.Equal(t, ridOf(i), value)
	}

	// removing everything merges buckets back; misses report false
	for i := int64(0); i < n; i++ {
		require.True(t, ht.Remove(nil, i))
		if i%37 == 0 {
			ht.VerifyIntegrity()
		}
	}
	ht.VerifyIntegrity()

	for i := int64(0); i < n; i++ {
		_, found := ht.GetValue(nil, i)
		require.False(t, found)
	}
	require.False(t, ht.Remove(nil, 0))

	// no mutation leaked a pin: every frame must be reclaimable
	for i := uint32(0); i < bpm.GetPoolSize(); i++ {
		_, err := bpm.NewPage()
		require.NoError(t, err)
	}
}
