package index

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tkobori/ShachiDB/storage/access"
	"github.com/tkobori/ShachiDB/storage/buffer"
	"github.com/tkobori/ShachiDB/storage/disk"
	"github.com/tkobori/ShachiDB/storage/page"
	"github.com/tkobori/ShachiDB/types"
)

func ridFor(key int64) page.RID {
	return page.RID{PageId: types.PageID(key), SlotNum: uint32(key)}
}

func newTestTree(t *testing.T, poolSize uint32, leafMax int32, internalMax int32) (*BPlusTree, *buffer.BufferPoolManager) {
	dm := disk.NewVirtualDiskManagerImpl("test.db")
	t.Cleanup(dm.ShutDown)
	bpm := buffer.NewBufferPoolManager(poolSize, dm)
	return NewBPlusTree(bpm, leafMax, internalMax), bpm
}

// collect walks the iterator and closes it
func collect(it *IndexIterator) []int64 {
	keys := make([]int64, 0)
	for !it.IsEnd() {
		keys = append(keys, it.Current().First)
		it.Advance()
	}
	it.Close()
	return keys
}

func TestBPlusTreeNoSplitBelowMax(t *testing.T) {
	tree, bpm := newTestTree(t, 32, 5, 5)
	txn := access.NewTransaction(0, access.REPEATABLE_READ)

	for key := int64(1); key <= 4; key++ {
		require.True(t, tree.Insert(key, ridFor(key), txn))
	}

	rootPage, err := bpm.FetchPage(tree.GetRootPageId())
	require.NoError(t, err)
	require.True(t, castTreePage(rootPage).IsLeafPage())
	require.Equal(t, int32(4), castTreePage(rootPage).GetSize())
	require.True(t, bpm.UnpinPage(rootPage.GetPageId(), false))
}

func TestBPlusTreeInsertSplit(t *testing.T) {
	tree, bpm := newTestTree(t, 32, 4, 4)
	txn := access.NewTransaction(0, access.REPEATABLE_READ)

	for key := int64(1); key <= 4; key++ {
		require.True(t, tree.Insert(key, ridFor(key), txn))
	}

	// the fourth insert split the root leaf: [1 2 3] | [4], separator 4
	rootPage, err := bpm.FetchPage(tree.GetRootPageId())
	require.NoError(t, err)
	root := castInternalPage(rootPage)
	require.False(t, root.IsLeafPage())
	require.Equal(t, int32(2), root.GetSize())
	require.Equal(t, int64(4), root.KeyAt(1))

	leftPage, err := bpm.FetchPage(root.ValueAt(0))
	require.NoError(t, err)
	left := castLeafPage(leftPage)
	require.Equal(t, int32(3), left.GetSize())

	rightPage, err := bpm.FetchPage(root.ValueAt(1))
	require.NoError(t, err)
	right := castLeafPage(rightPage)
	require.Equal(t, int32(1), right.GetSize())
	require.Equal(t, int64(4), right.KeyAt(0))

	// leaves chain left to right
	require.Equal(t, rightPage.GetPageId(), left.GetNextPageId())
	require.Equal(t, types.InvalidPageID, right.GetNextPageId())

	require.True(t, bpm.UnpinPage(leftPage.GetPageId(), false))
	require.True(t, bpm.UnpinPage(rightPage.GetPageId(), false))
	require.True(t, bpm.UnpinPage(rootPage.GetPageId(), false))

	// the fifth insert lands in the right leaf
	require.True(t, tree.Insert(5, ridFor(5), txn))
	require.Equal(t, []int64{1, 2, 3, 4, 5}, collect(tree.Iterator()))

	// duplicate keys are rejected
	require.False(t, tree.Insert(3, ridFor(3), txn))
}

func TestBPlusTreeInsertGetRemove(t *testing.T) {
	tree, _ := newTestTree(t, 64, 4, 4)
	txn := access.NewTransaction(0, access.REPEATABLE_READ)

	const n = int64(128)
	for key := int64(1); key <= n; key++ {
		require.True(t, tree.Insert(key, ridFor(key), txn))
	}

	for key := int64(1); key <= n; key++ {
		value, found := tree.GetValue(key, txn)
		require.True(t, found, "key %d", key)
		require.Equal(t, ridFor(key), value)
	}
	_, found := tree.GetValue(n+1, txn)
	require.False(t, found)

	// a full scan visits every key in strictly increasing order
	require.Equal(t, int(n), len(collect(tree.Iterator())))
	keys := collect(tree.Iterator())
	for i := 1; i < len(keys); i++ {
		require.Less(t, keys[i-1], keys[i])
	}

	// a bounded scan starts at the lower bound
	it := tree.IteratorFrom(100)
	require.Equal(t, int64(100), it.Current().First)
	it.Close()

	// remove the odd keys and verify the evens survive
	for key := int64(1); key <= n; key += 2 {
		require.True(t, tree.Remove(key, txn))
	}
	require.False(t, tree.Remove(1, txn))

	for key := int64(1); key <= n; key++ {
		_, found := tree.GetValue(key, txn)
		require.Equal(t, key%2 == 0, found, "key %d", key)
	}

	// remove everything that is left
	for key := int64(2); key <= n; key += 2 {
		require.True(t, tree.Remove(key, txn))
	}
	require.Equal(t, []int64{}, collect(tree.Iterator()))
}

func TestBPlusTreeRootCollapse(t *testing.T) {
	tree, bpm := newTestTree(t, 32, 4, 4)
	txn := access.NewTransaction(0, access.REPEATABLE_READ)

	for key := int64(1); key <= 5; key++ {
		require.True(t, tree.Insert(key, ridFor(key), txn))
	}
	rootPage, err := bpm.FetchPage(tree.GetRootPageId())
	require.NoError(t, err)
	require.False(t, castTreePage(rootPage).IsLeafPage())
	require.True(t, bpm.UnpinPage(rootPage.GetPageId(), false))

	// deleting down to a single child folds the root into it
	require.True(t, tree.Remove(4, txn))
	require.True(t, tree.Remove(5, txn))

	rootPage, err = bpm.FetchPage(tree.GetRootPageId())
	require.NoError(t, err)
	require.True(t, castTreePage(rootPage).IsLeafPage())
	require.True(t, castTreePage(rootPage).IsRootPage())
	require.True(t, bpm.UnpinPage(rootPage.GetPageId(), false))

	require.Equal(t, []int64{1, 2, 3}, collect(tree.Iterator()))
	_, found := tree.GetValue(5, txn)
	require.False(t, found)
}

func TestBPlusTreeConcurrentReadWrite(t *testing.T) {
	tree, _ := newTestTree(t, 128, 32, 32)

	var done int32
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		txn := access.NewTransaction(0, access.REPEATABLE_READ)
		for key := int64(1); key <= 1000; key++ {
			tree.Insert(key, ridFor(key), txn)
		}
		atomic.StoreInt32(&done, 1)
	}()

	go func() {
		defer wg.Done()
		for atomic.LoadInt32(&done) == 0 {
			value, found := tree.GetValue(500, nil)
			if found {
				require.Equal(t, ridFor(500), value)
			}
		}
	}()

	wg.Wait()

	value, found := tree.GetValue(500, nil)
	require.True(t, found)
	require.Equal(t, ridFor(500), value)

	require.Equal(t, 1000, len(collect(tree.Iterator())))
}

func TestBPlusTreeIndexSurface(t *testing.T) {
	dm := disk.NewVirtualDiskManagerImpl("test.db")
	t.Cleanup(dm.ShutDown)
	bpm := buffer.NewBufferPoolManager(32, dm)
	idx := NewBPlusTreeIndex(bpm, 8, 8)
	txn := access.NewTransaction(0, access.REPEATABLE_READ)

	require.NoError(t, idx.InsertEntry(txn, 10, ridFor(10)))
	require.ErrorIs(t, idx.InsertEntry(txn, 10, ridFor(10)), ErrKeyExists)

	value, err := idx.GetValue(txn, 10)
	require.NoError(t, err)
	require.Equal(t, ridFor(10), value)

	require.NoError(t, idx.DeleteEntry(txn, 10))
	require.ErrorIs(t, idx.DeleteEntry(txn, 10), ErrKeyMissing)
	_, err = idx.GetValue(txn, 10)
	require.ErrorIs(t, err, ErrKeyMissing)
}
