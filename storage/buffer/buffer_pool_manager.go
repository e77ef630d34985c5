package buffer

import (
	"encoding/binary"

	"github.com/ncw/directio"
	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"
	"github.com/spaolacci/murmur3"
	"github.com/tkobori/ShachiDB/common"
	"github.com/tkobori/ShachiDB/container/extendible_hash"
	"github.com/tkobori/ShachiDB/storage/disk"
	"github.com/tkobori/ShachiDB/storage/page"
	"github.com/tkobori/ShachiDB/types"
)

// ErrNoAvailableFrame is returned when every frame is pinned and the free
// list is empty.
var ErrNoAvailableFrame = errors.New("buffer pool has no free frame and no evictable frame")

// pageTableBucketSize bounds the page table's in-memory buckets
const pageTableBucketSize = 32

// BufferPoolManager mediates every page access between the callers and
// the disk manager. A single internal mutex serializes the page table,
// the free list and the replacer.
type BufferPoolManager struct {
	diskManager disk.DiskManager
	pages       []*page.Page // index is FrameID
	replacer    Replacer
	freeList    []FrameID
	pageTable   *extendible_hash.ExtendibleHashTable[types.PageID, FrameID]
	mutex       deadlock.Mutex
}

// NewBufferPoolManager returns an empty buffer pool with an LRU-K
// replacer of the default history length.
func NewBufferPoolManager(poolSize uint32, diskManager disk.DiskManager) *BufferPoolManager {
	return NewBufferPoolManagerWithReplacer(poolSize, diskManager, NewLRUKReplacer(poolSize, common.LRUKDefaultK))
}

// NewBufferPoolManagerWithReplacer returns an empty buffer pool using the
// passed victim-selection policy.
func NewBufferPoolManagerWithReplacer(poolSize uint32, diskManager disk.DiskManager, replacer Replacer) *BufferPoolManager {
	freeList := make([]FrameID, poolSize)
	pages := make([]*page.Page, poolSize)
	for i := uint32(0); i < poolSize; i++ {
		freeList[i] = FrameID(i)
	}

	pageTable := extendible_hash.NewExtendibleHashTable[types.PageID, FrameID](pageTableBucketSize, hashPageID)
	return &BufferPoolManager{
		diskManager: diskManager,
		pages:       pages,
		replacer:    replacer,
		freeList:    freeList,
		pageTable:   pageTable,
	}
}

func hashPageID(pageID types.PageID) uint32 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(pageID))
	return murmur3.Sum32(buf[:])
}

// FetchPage fetches the requested page from the buffer pool, reading it
// from disk when not resident.
func (b *BufferPoolManager) FetchPage(pageID types.PageID) (*page.Page, error) {
	b.mutex.Lock()

	if frameID, ok := b.pageTable.Find(pageID); ok {
		pg := b.pages[frameID]
		pg.IncPinCount()
		b.replacer.RecordAccess(frameID)
		b.replacer.Pin(frameID)
		b.mutex.Unlock()
		return pg, nil
	}

	frameID, err := b.getFrameID()
	if err != nil {
		b.mutex.Unlock()
		return nil, err
	}

	data := directio.AlignedBlock(common.PageSize)
	if err := b.diskManager.ReadPage(pageID, data); err != nil {
		// hand the frame back, nothing was cached out of it
		b.freeList = append(b.freeList, frameID)
		b.mutex.Unlock()
		return nil, errors.Wrapf(err, "fetch of page %d failed", pageID)
	}

	var pageData [common.PageSize]byte
	copy(pageData[:], data)
	pg := page.New(pageID, false, &pageData)

	b.pageTable.Insert(pageID, frameID)
	b.pages[frameID] = pg
	b.replacer.RecordAccess(frameID)
	b.replacer.Pin(frameID)
	b.mutex.Unlock()

	return pg, nil
}

// NewPage allocates a new page in the buffer pool with the disk manager's
// help. The zeroed page is written through so a later fetch observes it.
func (b *BufferPoolManager) NewPage() (*page.Page, error) {
	b.mutex.Lock()

	frameID, err := b.getFrameID()
	if err != nil {
		b.mutex.Unlock()
		return nil, err
	}

	pageID := b.diskManager.AllocatePage()
	pg := page.NewEmpty(pageID)

	if err := b.diskManager.WritePage(pageID, pg.Data()[:]); err != nil {
		common.Logger.WithError(err).Warnf("write-through of new page %d failed", pageID)
	}

	b.pageTable.Insert(pageID, frameID)
	b.pages[frameID] = pg
	b.replacer.RecordAccess(frameID)
	b.replacer.Pin(frameID)
	b.mutex.Unlock()

	return pg, nil
}

// UnpinPage unpins the target page from the buffer pool. Returns true iff
// the pin count was decremented.
func (b *BufferPoolManager) UnpinPage(pageID types.PageID, isDirty bool) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	frameID, ok := b.pageTable.Find(pageID)
	if !ok {
		return false
	}

	pg := b.pages[frameID]
	if pg.PinCount() <= 0 {
		return false
	}

	if isDirty {
		pg.SetIsDirty(true)
	}
	pg.DecPinCount()
	if pg.PinCount() == 0 {
		b.replacer.Unpin(frameID)
	}
	return true
}

// FlushPage writes the target page to disk and clears its dirty bit
func (b *BufferPoolManager) FlushPage(pageID types.PageID) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.flushFrame(pageID)
}

func (b *BufferPoolManager) flushFrame(pageID types.PageID) bool {
	frameID, ok := b.pageTable.Find(pageID)
	if !ok {
		return false
	}

	pg := b.pages[frameID]
	if err := b.diskManager.WritePage(pageID, pg.Data()[:]); err != nil {
		// keep the dirty bit so the next flush retries
		common.Logger.WithError(err).Warnf("flush of page %d failed", pageID)
		return false
	}
	pg.SetIsDirty(false)
	return true
}

// FlushAllPages flushes every resident page to disk
func (b *BufferPoolManager) FlushAllPages() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for frameID := range b.pages {
		pg := b.pages[frameID]
		if pg != nil {
			b.flushFrame(pg.GetPageId())
		}
	}
}

// DeletePage deletes a page from the buffer pool. Returns false when the
// page is still pinned.
func (b *BufferPoolManager) DeletePage(pageID types.PageID) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	frameID, ok := b.pageTable.Find(pageID)
	if !ok {
		b.diskManager.DeallocatePage(pageID)
		return true
	}

	pg := b.pages[frameID]
	if pg.PinCount() > 0 {
		return false
	}

	b.pageTable.Remove(pageID)
	b.replacer.Remove(frameID)
	b.pages[frameID] = nil
	b.diskManager.DeallocatePage(pageID)
	b.freeList = append(b.freeList, frameID)
	return true
}

// getFrameID hands out a frame from the free list, falling back to
// evicting a victim. Called with the pool mutex held.
func (b *BufferPoolManager) getFrameID() (FrameID, error) {
	if len(b.freeList) > 0 {
		frameID := b.freeList[0]
		b.freeList = b.freeList[1:]
		return frameID, nil
	}

	victim := b.replacer.Victim()
	if victim == nil {
		return 0, ErrNoAvailableFrame
	}

	frameID := *victim
	currentPage := b.pages[frameID]
	if currentPage != nil {
		if currentPage.PinCount() != 0 {
			panic("BufferPoolManager: pin count of the victim page must be zero")
		}
		if currentPage.IsDirty() {
			currentPage.WLatch()
			err := b.diskManager.WritePage(currentPage.GetPageId(), currentPage.Data()[:])
			currentPage.WUnlatch()
			if err != nil {
				common.Logger.WithError(err).Warnf("write-back of victim page %d failed", currentPage.GetPageId())
				b.replacer.Unpin(frameID)
				return 0, ErrNoAvailableFrame
			}
		}
		b.pageTable.Remove(currentPage.GetPageId())
		b.pages[frameID] = nil
	}
	return frameID, nil
}

// GetPoolSize returns the number of frames of the pool
func (b *BufferPoolManager) GetPoolSize() uint32 {
	return uint32(len(b.pages))
}

// GetNumFreeFrames returns how many frames are either free or hold an
// evictable (unpinned) page
func (b *BufferPoolManager) GetNumFreeFrames() uint32 {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return uint32(len(b.freeList)) + b.replacer.Size()
}
