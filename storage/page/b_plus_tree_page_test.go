package page

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tkobori/ShachiDB/types"
)

func TestBPlusTreeLeafPageInsertAndBounds(t *testing.T) {
	leaf := &BPlusTreeLeafPage{}
	leaf.Init(1, types.InvalidPageID, 8)
	require.True(t, leaf.IsLeafPage())
	require.True(t, leaf.IsRootPage())
	require.Equal(t, types.InvalidPageID, leaf.GetNextPageId())

	for _, key := range []int64{30, 10, 20} {
		require.True(t, leaf.Insert(key, RID{PageId: types.PageID(key)}))
	}
	require.False(t, leaf.Insert(20, RID{}))

	require.Equal(t, int64(10), leaf.KeyAt(0))
	require.Equal(t, int64(20), leaf.KeyAt(1))
	require.Equal(t, int64(30), leaf.KeyAt(2))

	require.Equal(t, int32(1), leaf.LowerBound(15))
	require.Equal(t, int32(1), leaf.LowerBound(20))
	require.Equal(t, int32(3), leaf.LowerBound(99))
}

func TestBPlusTreeLeafPageMoveHalfTo(t *testing.T) {
	leaf := &BPlusTreeLeafPage{}
	leaf.Init(1, types.InvalidPageID, 4)
	for key := int64(1); key <= 4; key++ {
		require.True(t, leaf.Insert(key, RID{}))
	}

	right := &BPlusTreeLeafPage{}
	right.Init(2, types.InvalidPageID, 4)
	leaf.MoveHalfTo(right)

	// the entries above the split boundary max/2 moved right
	require.Equal(t, int32(3), leaf.GetSize())
	require.Equal(t, int32(1), right.GetSize())
	require.Equal(t, int64(4), right.KeyAt(0))
	require.Equal(t, types.PageID(2), leaf.GetNextPageId())
}

func TestBPlusTreeInternalPageUpperBound(t *testing.T) {
	internal := &BPlusTreeInternalPage{}
	internal.Init(1, types.InvalidPageID, 8)
	internal.SetValueAt(0, 100)
	internal.InsertKV(10, 101)
	internal.InsertKV(20, 102)
	require.Equal(t, int32(3), internal.GetSize())

	// descending follows child UpperBound-1
	require.Equal(t, int32(0), internal.UpperBound(5)-1)
	require.Equal(t, int32(1), internal.UpperBound(10)-1)
	require.Equal(t, int32(1), internal.UpperBound(15)-1)
	require.Equal(t, int32(2), internal.UpperBound(25)-1)
}

func TestBPlusTreePageSafety(t *testing.T) {
	leaf := &BPlusTreeLeafPage{}
	leaf.Init(1, 99, 4)
	require.Equal(t, int32(2), leaf.GetMinSize())

	leaf.SetSize(2)
	require.True(t, leaf.IsSafe(WriteTypeInsert))
	leaf.SetSize(3)
	require.False(t, leaf.IsSafe(WriteTypeInsert))

	require.True(t, leaf.IsSafe(WriteTypeDelete))
	leaf.SetSize(2)
	require.False(t, leaf.IsSafe(WriteTypeDelete))
	require.False(t, leaf.NeedMerge())
	leaf.SetSize(1)
	require.True(t, leaf.NeedMerge())
}
