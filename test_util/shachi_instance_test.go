package test_util

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tkobori/ShachiDB/storage/access"
	"github.com/tkobori/ShachiDB/storage/index"
	"github.com/tkobori/ShachiDB/storage/page"
	"github.com/tkobori/ShachiDB/types"
)

// an executor-shaped walk through the core: lock the table, mutate the
// index under row locks, commit, and let a second transaction read.
func TestInstanceEndToEnd(t *testing.T) {
	instance := NewShachiInstance(32)
	defer instance.Finalize()

	lm := instance.GetLockManager()
	tm := instance.GetTransactionManager()
	table := types.TableOID(1)

	idx := index.NewBPlusTreeIndex(instance.GetBufferPoolManager(), 8, 8)

	writer := tm.Begin(access.REPEATABLE_READ)
	require.NoError(t, lm.LockTable(writer, access.INTENTION_EXCLUSIVE, table))
	for key := int64(1); key <= 20; key++ {
		rid := page.RID{PageId: types.PageID(key), SlotNum: uint32(key)}
		require.NoError(t, lm.LockRow(writer, access.EXCLUSIVE, table, rid))
		require.NoError(t, idx.InsertEntry(writer, key, rid))
	}
	tm.Commit(writer)

	reader := tm.Begin(access.READ_COMMITTED)
	require.NoError(t, lm.LockTable(reader, access.INTENTION_SHARED, table))
	for key := int64(1); key <= 20; key++ {
		rid := page.RID{PageId: types.PageID(key), SlotNum: uint32(key)}
		require.NoError(t, lm.LockRow(reader, access.SHARED, table, rid))
		value, err := idx.GetValue(reader, key)
		require.NoError(t, err)
		require.Equal(t, rid, value)
	}

	it := idx.Scan(reader)
	count := 0
	last := int64(0)
	for !it.IsEnd() {
		kv := it.Current()
		require.Greater(t, kv.First, last)
		last = kv.First
		count++
		it.Advance()
	}
	it.Close()
	require.Equal(t, 20, count)
	tm.Commit(reader)
}
