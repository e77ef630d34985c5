package page

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/tkobori/ShachiDB/common"
)

func TestPagePinCountAndDirty(t *testing.T) {
	pg := NewEmpty(42)
	require.Equal(t, int32(1), pg.PinCount())

	pg.IncPinCount()
	pg.IncPinCount()
	require.Equal(t, int32(3), pg.PinCount())
	pg.DecPinCount()
	require.Equal(t, int32(2), pg.PinCount())

	require.False(t, pg.IsDirty())
	pg.SetIsDirty(true)
	require.True(t, pg.IsDirty())

	pg.Copy(10, []byte("abc"))
	require.Equal(t, byte('b'), pg.Data()[11])
}

// the on-disk structures must fit the page frame
func TestPageLayoutSizes(t *testing.T) {
	require.LessOrEqual(t, int(unsafe.Sizeof(HashTableDirectoryPage{})), common.PageSize)
	require.LessOrEqual(t, int(unsafe.Sizeof(HashTableBucketPage{})), common.PageSize)
	require.LessOrEqual(t, int(unsafe.Sizeof(BPlusTreeLeafPage{})), common.PageSize)
	require.LessOrEqual(t, int(unsafe.Sizeof(BPlusTreeInternalPage{})), common.PageSize)
}
