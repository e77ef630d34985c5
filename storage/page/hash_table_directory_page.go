package page

import (
	"github.com/tkobori/ShachiDB/common"
	"github.com/tkobori/ShachiDB/types"
)

/**
 * Directory page for the extendible hash table.
 *
 * Directory format (size in byte):
 *  --------------------------------------------------------------------
 * | PageId (4) | GlobalDepth (4) | LocalDepths (512) | BucketPageIds (2048) |
 *  --------------------------------------------------------------------
 */
type HashTableDirectoryPage struct {
	pageId        types.PageID
	globalDepth   uint32
	localDepths   [common.DirectoryArraySize]uint8
	bucketPageIds [common.DirectoryArraySize]types.PageID
}

func (page *HashTableDirectoryPage) GetPageId() types.PageID {
	return page.pageId
}

func (page *HashTableDirectoryPage) SetPageId(pageId types.PageID) {
	page.pageId = pageId
}

func (page *HashTableDirectoryPage) GetGlobalDepth() uint32 {
	return page.globalDepth
}

// GetGlobalDepthMask returns a mask of globalDepth 1's and the rest 0's
func (page *HashTableDirectoryPage) GetGlobalDepthMask() uint32 {
	return (1 << page.globalDepth) - 1
}

func (page *HashTableDirectoryPage) IncrGlobalDepth() {
	page.globalDepth++
}

func (page *HashTableDirectoryPage) DecrGlobalDepth() {
	page.globalDepth--
}

// Size returns the current number of directory slots
func (page *HashTableDirectoryPage) Size() uint32 {
	return 1 << page.globalDepth
}

func (page *HashTableDirectoryPage) GetBucketPageId(index uint32) types.PageID {
	return page.bucketPageIds[index]
}

func (page *HashTableDirectoryPage) SetBucketPageId(index uint32, pageId types.PageID) {
	page.bucketPageIds[index] = pageId
}

func (page *HashTableDirectoryPage) GetLocalDepth(index uint32) uint32 {
	return uint32(page.localDepths[index])
}

func (page *HashTableDirectoryPage) SetLocalDepth(index uint32, depth uint8) {
	page.localDepths[index] = depth
}

func (page *HashTableDirectoryPage) IncrLocalDepth(index uint32) {
	page.localDepths[index]++
}

func (page *HashTableDirectoryPage) DecrLocalDepth(index uint32) {
	page.localDepths[index]--
}

// GetSplitImageIndex returns the slot whose index differs from index in
// bit localDepth-1 only. Callers must ensure the local depth is not zero.
func (page *HashTableDirectoryPage) GetSplitImageIndex(index uint32) uint32 {
	localDepth := page.GetLocalDepth(index)
	return index ^ (1 << (localDepth - 1))
}

// CanShrink returns true when every bucket has a local depth strictly
// smaller than the global depth, so the upper half of the directory
// mirrors the lower half.
func (page *HashTableDirectoryPage) CanShrink() bool {
	if page.globalDepth == 0 {
		return false
	}
	for i := uint32(0); i < page.Size(); i++ {
		if page.GetLocalDepth(i) >= page.globalDepth {
			return false
		}
	}
	return true
}

// VerifyIntegrity checks the directory invariants:
// (1) every local depth is at most the global depth
// (2) following stride 2^localDepth(i) from any slot visits exactly the
//     slots sharing slot i's bucket
func (page *HashTableDirectoryPage) VerifyIntegrity() {
	size := page.Size()
	for i := uint32(0); i < size; i++ {
		localDepth := page.GetLocalDepth(i)
		common.SH_Assert(localDepth <= page.globalDepth,
			"HashTableDirectoryPage: local depth greater than global depth")

		stride := uint32(1) << localDepth
		suffix := i & (stride - 1)
		for j := uint32(0); j < size; j++ {
			sameBucket := page.GetBucketPageId(j) == page.GetBucketPageId(i)
			sameSuffix := j&(stride-1) == suffix
			common.SH_Assert(sameBucket == sameSuffix,
				"HashTableDirectoryPage: bucket sharing does not match the local depth suffix")
			if sameBucket {
				common.SH_Assert(page.GetLocalDepth(j) == localDepth,
					"HashTableDirectoryPage: slots of one bucket carry different local depths")
			}
		}
	}
}
