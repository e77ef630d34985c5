package hash

import (
	"fmt"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/tkobori/ShachiDB/common"
	"github.com/tkobori/ShachiDB/storage/access"
	"github.com/tkobori/ShachiDB/storage/buffer"
	"github.com/tkobori/ShachiDB/storage/page"
	"github.com/tkobori/ShachiDB/types"
)

// ErrDirectoryFull is returned when a split would outgrow the directory page
var ErrDirectoryFull = errors.New("extendible hash table directory page is full")

/**
 * DiskExtendibleHashTable is the on-disk extendible hash table: one
 * directory page of bucket pointers with global/local depths plus bucket
 * pages, all living in the buffer pool. Lookups and removals run under
 * the table latch in read mode with bucket page latches; splits and
 * merges take the table latch in write mode.
 */
type DiskExtendibleHashTable struct {
	directoryPageID types.PageID
	bpm             *buffer.BufferPoolManager
	bucketCapacity  uint32
	tableLatch      common.ReaderWriterLatch
}

// NewDiskExtendibleHashTable creates a table whose buckets hold at most
// bucketCapacity entries (clamped to the bucket page layout). The
// directory starts at global depth zero with a single bucket.
func NewDiskExtendibleHashTable(bpm *buffer.BufferPoolManager, bucketCapacity uint32) (*DiskExtendibleHashTable, error) {
	if bucketCapacity == 0 || bucketCapacity > common.BucketArraySize {
		bucketCapacity = common.BucketArraySize
	}

	dirPage, err := bpm.NewPage()
	if err != nil {
		return nil, errors.Wrap(err, "hash table directory allocation failed")
	}
	bucketPage, err := bpm.NewPage()
	if err != nil {
		bpm.UnpinPage(dirPage.GetPageId(), false)
		return nil, errors.Wrap(err, "hash table bucket allocation failed")
	}

	dir := castDirectoryPage(dirPage)
	dir.SetPageId(dirPage.GetPageId())
	dir.SetBucketPageId(0, bucketPage.GetPageId())
	dir.SetLocalDepth(0, 0)

	ht := &DiskExtendibleHashTable{
		directoryPageID: dirPage.GetPageId(),
		bpm:             bpm,
		bucketCapacity:  bucketCapacity,
		tableLatch:      common.NewRWLatch(),
	}
	bpm.UnpinPage(dirPage.GetPageId(), true)
	bpm.UnpinPage(bucketPage.GetPageId(), true)
	return ht, nil
}

func castDirectoryPage(p *page.Page) *page.HashTableDirectoryPage {
	return (*page.HashTableDirectoryPage)(unsafe.Pointer(p.Data()))
}

func castBucketPage(p *page.Page) *page.HashTableBucketPage {
	return (*page.HashTableBucketPage)(unsafe.Pointer(p.Data()))
}

func (ht *DiskExtendibleHashTable) fetchPage(pageID types.PageID) *page.Page {
	p, err := ht.bpm.FetchPage(pageID)
	if err != nil {
		panic(fmt.Sprintf("DiskExtendibleHashTable: fetch of page %d failed: %v", pageID, err))
	}
	return p
}

func (ht *DiskExtendibleHashTable) keyToDirectoryIndex(key int64, dir *page.HashTableDirectoryPage) uint32 {
	return HashInt64(key) & dir.GetGlobalDepthMask()
}

// GetValue returns the value stored under key
func (ht *DiskExtendibleHashTable) GetValue(txn *access.Transaction, key int64) (page.RID, bool) {
	ht.tableLatch.RLock()
	defer ht.tableLatch.RUnlock()

	dirPage := ht.fetchPage(ht.directoryPageID)
	dir := castDirectoryPage(dirPage)
	bucketPageID := dir.GetBucketPageId(ht.keyToDirectoryIndex(key, dir))
	bucketPage := ht.fetchPage(bucketPageID)

	bucketPage.RLatch()
	value, found := castBucketPage(bucketPage).GetValue(key)
	bucketPage.RUnlatch()

	ht.bpm.UnpinPage(bucketPageID, false)
	ht.bpm.UnpinPage(ht.directoryPageID, false)
	return value, found
}

// Insert upserts key/value. A full bucket splits, doubling the directory
// when its local depth has reached the global depth.
func (ht *DiskExtendibleHashTable) Insert(txn *access.Transaction, key int64, value page.RID) error {
	ht.tableLatch.RLock()

	dirPage := ht.fetchPage(ht.directoryPageID)
	dir := castDirectoryPage(dirPage)
	bucketPageID := dir.GetBucketPageId(ht.keyToDirectoryIndex(key, dir))
	bucketPage := ht.fetchPage(bucketPageID)
	bucket := castBucketPage(bucketPage)

	bucketPage.WLatch()
	_, present := bucket.GetValue(key)
	if present || bucket.NumReadable() < ht.bucketCapacity {
		bucket.Insert(key, value)
		bucketPage.WUnlatch()
		ht.bpm.UnpinPage(bucketPageID, true)
		ht.bpm.UnpinPage(ht.directoryPageID, false)
		ht.tableLatch.RUnlock()
		return nil
	}
	bucketPage.WUnlatch()

	ht.bpm.UnpinPage(bucketPageID, false)
	ht.bpm.UnpinPage(ht.directoryPageID, false)
	ht.tableLatch.RUnlock()
	return ht.splitInsert(txn, key, value)
}

// splitInsert splits the target bucket (possibly repeatedly, when every
// entry keeps landing on one side) and retries the insert.
func (ht *DiskExtendibleHashTable) splitInsert(txn *access.Transaction, key int64, value page.RID) error {
	ht.tableLatch.WLock()
	defer ht.tableLatch.WUnlock()

	dirPage := ht.fetchPage(ht.directoryPageID)
	dir := castDirectoryPage(dirPage)

	for {
		bucketIdx := ht.keyToDirectoryIndex(key, dir)
		bucketPageID := dir.GetBucketPageId(bucketIdx)
		bucketPage := ht.fetchPage(bucketPageID)
		bucket := castBucketPage(bucketPage)

		_, present := bucket.GetValue(key)
		if present || bucket.NumReadable() < ht.bucketCapacity {
			bucketPage.WLatch()
			bucket.Insert(key, value)
			bucketPage.WUnlatch()
			ht.bpm.UnpinPage(bucketPageID, true)
			ht.bpm.UnpinPage(ht.directoryPageID, true)
			return nil
		}

		localDepth := dir.GetLocalDepth(bucketIdx)
		if localDepth == dir.GetGlobalDepth() {
			oldSize := dir.Size()
			if oldSize*2 > common.DirectoryArraySize {
				ht.bpm.UnpinPage(bucketPageID, false)
				ht.bpm.UnpinPage(ht.directoryPageID, true)
				return ErrDirectoryFull
			}
			// duplicate every slot
			for i := uint32(0); i < oldSize; i++ {
				dir.SetBucketPageId(i+oldSize, dir.GetBucketPageId(i))
				dir.SetLocalDepth(i+oldSize, uint8(dir.GetLocalDepth(i)))
			}
			dir.IncrGlobalDepth()
		}

		imagePage, err := ht.bpm.NewPage()
		if err != nil {
			ht.bpm.UnpinPage(bucketPageID, false)
			ht.bpm.UnpinPage(ht.directoryPageID, true)
			return errors.Wrap(err, "hash bucket split allocation failed")
		}
		image := castBucketPage(imagePage)
		imagePageID := imagePage.GetPageId()

		// repoint the bucket family: the new depth bit decides the side
		newDepth := localDepth + 1
		bit := uint32(1) << localDepth
		for j := uint32(0); j < dir.Size(); j++ {
			if dir.GetBucketPageId(j) != bucketPageID {
				continue
			}
			dir.SetLocalDepth(j, uint8(newDepth))
			if j&bit != 0 {
				dir.SetBucketPageId(j, imagePageID)
			}
		}

		// move the entries whose new suffix bit is one
		bucketPage.WLatch()
		for i := uint32(0); i < common.BucketArraySize; i++ {
			if !bucket.IsOccupied(i) {
				break
			}
			if !bucket.IsReadable(i) {
				continue
			}
			if HashInt64(bucket.KeyAt(i))&bit != 0 {
				image.Insert(bucket.KeyAt(i), bucket.ValueAt(i))
				bucket.RemoveAt(i)
			}
		}
		bucketPage.WUnlatch()

		ht.bpm.UnpinPage(bucketPageID, true)
		ht.bpm.UnpinPage(imagePageID, true)
	}
}

// Remove deletes key, merging the emptied bucket with its split image
// when both share the local depth.
func (ht *DiskExtendibleHashTable) Remove(txn *access.Transaction, key int64) bool {
	ht.tableLatch.RLock()

	dirPage := ht.fetchPage(ht.directoryPageID)
	dir := castDirectoryPage(dirPage)
	bucketPageID := dir.GetBucketPageId(ht.keyToDirectoryIndex(key, dir))
	bucketPage := ht.fetchPage(bucketPageID)
	bucket := castBucketPage(bucketPage)

	bucketPage.WLatch()
	removed := bucket.Remove(key)
	empty := bucket.IsEmpty()
	bucketPage.WUnlatch()

	ht.bpm.UnpinPage(bucketPageID, removed)
	ht.bpm.UnpinPage(ht.directoryPageID, false)
	ht.tableLatch.RUnlock()

	if removed && empty {
		ht.merge(txn, key)
	}
	return removed
}

// merge folds an empty bucket into its split image and contracts the
// directory while every bucket's local depth allows it.
func (ht *DiskExtendibleHashTable) merge(txn *access.Transaction, key int64) {
	ht.tableLatch.WLock()
	defer ht.tableLatch.WUnlock()

	dirPage := ht.fetchPage(ht.directoryPageID)
	dir := castDirectoryPage(dirPage)

	bucketIdx := ht.keyToDirectoryIndex(key, dir)
	bucketPageID := dir.GetBucketPageId(bucketIdx)
	localDepth := dir.GetLocalDepth(bucketIdx)
	if localDepth == 0 {
		ht.bpm.UnpinPage(ht.directoryPageID, false)
		return
	}

	imageIdx := dir.GetSplitImageIndex(bucketIdx)
	imagePageID := dir.GetBucketPageId(imageIdx)
	if dir.GetLocalDepth(imageIdx) != localDepth || imagePageID == bucketPageID {
		ht.bpm.UnpinPage(ht.directoryPageID, false)
		return
	}

	bucketPage := ht.fetchPage(bucketPageID)
	bucketPage.RLatch()
	empty := castBucketPage(bucketPage).IsEmpty()
	bucketPage.RUnlatch()
	ht.bpm.UnpinPage(bucketPageID, false)
	if !empty {
		ht.bpm.UnpinPage(ht.directoryPageID, false)
		return
	}

	for j := uint32(0); j < dir.Size(); j++ {
		if dir.GetBucketPageId(j) == bucketPageID {
			dir.SetBucketPageId(j, imagePageID)
		}
	}
	for j := uint32(0); j < dir.Size(); j++ {
		if dir.GetBucketPageId(j) == imagePageID {
			dir.SetLocalDepth(j, uint8(localDepth-1))
		}
	}
	ht.bpm.DeletePage(bucketPageID)

	for dir.CanShrink() {
		dir.DecrGlobalDepth()
	}
	ht.bpm.UnpinPage(ht.directoryPageID, true)
}

// GetGlobalDepth returns the directory's global depth
func (ht *DiskExtendibleHashTable) GetGlobalDepth() uint32 {
	ht.tableLatch.RLock()
	defer ht.tableLatch.RUnlock()

	dirPage := ht.fetchPage(ht.directoryPageID)
	globalDepth := castDirectoryPage(dirPage).GetGlobalDepth()
	ht.bpm.UnpinPage(ht.directoryPageID, false)
	return globalDepth
}

// VerifyIntegrity checks the directory invariants
func (ht *DiskExtendibleHashTable) VerifyIntegrity() {
	ht.tableLatch.RLock()
	defer ht.tableLatch.RUnlock()

	dirPage := ht.fetchPage(ht.directoryPageID)
	castDirectoryPage(dirPage).VerifyIntegrity()
	ht.bpm.UnpinPage(ht.directoryPageID, false)
}
