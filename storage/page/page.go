package page

import (
	"sync/atomic"

	"github.com/tkobori/ShachiDB/common"
	"github.com/tkobori/ShachiDB/types"
)

/**
 * Page is the basic unit of storage within the database system. Page wraps
 * an actual data page held in main memory plus the book-keeping
 * information used by the buffer pool manager: pin count, dirty flag and
 * page id.
 */
type Page struct {
	id       types.PageID
	pinCount int32
	isDirty  bool
	data     *[common.PageSize]byte
	rwlatch  common.ReaderWriterLatch
}

// IncPinCount increments pin count
func (p *Page) IncPinCount() {
	atomic.AddInt32(&p.pinCount, 1)
}

// DecPinCount decrements pin count
func (p *Page) DecPinCount() {
	atomic.AddInt32(&p.pinCount, -1)
}

// PinCount returns the pin count
func (p *Page) PinCount() int32 {
	return atomic.LoadInt32(&p.pinCount)
}

// GetPageId returns the page id
func (p *Page) GetPageId() types.PageID {
	return p.id
}

// Data returns the data of the page
func (p *Page) Data() *[common.PageSize]byte {
	return p.data
}

// SetIsDirty sets the isDirty bit
func (p *Page) SetIsDirty(isDirty bool) {
	p.isDirty = isDirty
}

// IsDirty checks if the page is dirty
func (p *Page) IsDirty() bool {
	return p.isDirty
}

// Copy copies data into the page starting at offset
func (p *Page) Copy(offset uint32, data []byte) {
	copy(p.data[offset:], data)
}

// WLatch acquires the page write latch
func (p *Page) WLatch() {
	p.rwlatch.WLock()
}

// WUnlatch releases the page write latch
func (p *Page) WUnlatch() {
	p.rwlatch.WUnlock()
}

// RLatch acquires the page read latch
func (p *Page) RLatch() {
	p.rwlatch.RLock()
}

// RUnlatch releases the page read latch
func (p *Page) RUnlatch() {
	p.rwlatch.RUnlock()
}

// New creates a page with the passed data. The page starts pinned once.
func New(id types.PageID, isDirty bool, data *[common.PageSize]byte) *Page {
	return &Page{id, int32(1), isDirty, data, common.NewRWLatch()}
}

// NewEmpty creates a zeroed page. The page starts pinned once.
func NewEmpty(id types.PageID) *Page {
	return &Page{id, int32(1), false, &[common.PageSize]byte{}, common.NewRWLatch()}
}
