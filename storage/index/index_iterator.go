package index

import (
	"fmt"

	pair "github.com/notEpsilon/go-pair"
	"github.com/tkobori/ShachiDB/storage/buffer"
	"github.com/tkobori/ShachiDB/storage/page"
	"github.com/tkobori/ShachiDB/types"
)

// IndexIterator walks the leaf chain in ascending key order. The current
// leaf stays pinned for the iterator's lifetime and is read-latched only
// for the duration of a dereference or an advance.
type IndexIterator struct {
	bpm      *buffer.BufferPoolManager
	leafPage *page.Page
	index    int32
}

func newIndexIterator(bpm *buffer.BufferPoolManager, pageID types.PageID, index int32) *IndexIterator {
	it := &IndexIterator{bpm: bpm, index: index}
	if pageID != types.InvalidPageID {
		leafPage, err := bpm.FetchPage(pageID)
		if err != nil {
			panic(fmt.Sprintf("IndexIterator: fetch of leaf %d failed: %v", pageID, err))
		}
		it.leafPage = leafPage
	}
	return it
}

// IsEnd reports whether the iterator moved past the last entry
func (it *IndexIterator) IsEnd() bool {
	if it.leafPage == nil {
		return true
	}

	it.leafPage.RLatch()
	defer it.leafPage.RUnlatch()
	leaf := castLeafPage(it.leafPage)
	return it.index >= leaf.GetSize() && leaf.GetNextPageId() == types.InvalidPageID
}

// Current returns the entry under the iterator
func (it *IndexIterator) Current() pair.Pair[int64, page.RID] {
	it.leafPage.RLatch()
	defer it.leafPage.RUnlatch()
	kv := castLeafPage(it.leafPage).GetKV(it.index)
	return pair.Pair[int64, page.RID]{First: kv.Key, Second: kv.Value}
}

// Advance moves to the next entry, following the leaf chain. The next
// leaf is fetched before the current one is unpinned.
func (it *IndexIterator) Advance() {
	if it.leafPage == nil {
		return
	}

	it.leafPage.RLatch()
	leaf := castLeafPage(it.leafPage)
	it.index++
	if it.index < leaf.GetSize() || leaf.GetNextPageId() == types.InvalidPageID {
		it.leafPage.RUnlatch()
		return
	}
	nextPageID := leaf.GetNextPageId()
	it.leafPage.RUnlatch()

	nextPage, err := it.bpm.FetchPage(nextPageID)
	if err != nil {
		panic(fmt.Sprintf("IndexIterator: fetch of leaf %d failed: %v", nextPageID, err))
	}
	it.bpm.UnpinPage(it.leafPage.GetPageId(), false)
	it.leafPage = nextPage
	it.index = 0
}

// Close unpins the current leaf. The iterator is unusable afterwards.
func (it *IndexIterator) Close() {
	if it.leafPage != nil {
		it.bpm.UnpinPage(it.leafPage.GetPageId(), false)
		it.leafPage = nil
	}
}
