package disk

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tkobori/ShachiDB/common"
	"github.com/tkobori/ShachiDB/types"
)

func TestReadWritePage(t *testing.T) {
	dm := NewDiskManagerTest()
	defer dm.ShutDown()

	data := make([]byte, common.PageSize)
	buf := make([]byte, common.PageSize)
	copy(data, "A test string.")

	page0 := dm.AllocatePage()
	require.Equal(t, types.PageID(0), page0)
	require.NoError(t, dm.WritePage(page0, data))
	require.NoError(t, dm.ReadPage(page0, buf))
	require.Equal(t, data, buf)

	page1 := dm.AllocatePage()
	require.Equal(t, types.PageID(1), page1)

	copy(data, "Another test string.")
	require.NoError(t, dm.WritePage(page1, data))
	require.NoError(t, dm.ReadPage(page1, buf))
	require.Equal(t, data, buf)
}

func TestVirtualDiskManager(t *testing.T) {
	dm := NewVirtualDiskManagerImpl("virtual_test.db")
	defer dm.ShutDown()

	data := make([]byte, common.PageSize)
	buf := make([]byte, common.PageSize)
	copy(data, "in memory page")

	pageID := dm.AllocatePage()
	require.Equal(t, types.PageID(0), pageID)
	require.NoError(t, dm.WritePage(pageID, data))
	require.NoError(t, dm.ReadPage(pageID, buf))
	require.Equal(t, data, buf)

	require.Equal(t, uint64(1), dm.GetNumWrites())
	require.Equal(t, int64(common.PageSize), dm.Size())
}
