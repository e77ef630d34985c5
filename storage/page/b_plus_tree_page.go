package page

import (
	"github.com/tkobori/ShachiDB/types"
)

// IndexPageType distinguishes the two B+-tree node kinds
type IndexPageType int32

const (
	InvalidIndexPage IndexPageType = iota
	LeafPage
	InternalPage
)

// WriteType is the kind of structural mutation a write descent performs
type WriteType int32

const (
	WriteTypeInsert WriteType = iota
	WriteTypeDelete
)

/**
 * BPlusTreePage is the header both node kinds share. Internal and leaf
 * pages start with this exact layout, so a frame's data can be viewed as
 * a BPlusTreePage to inspect the header before choosing the full cast.
 *
 * Header format (size in byte):
 *  ----------------------------------------------------------------------
 * | PageType (4) | Size (4) | MaxSize (4) | ParentPageId (4) | PageId (4) |
 *  ----------------------------------------------------------------------
 */
type BPlusTreePage struct {
	pageType     IndexPageType
	size         int32
	maxSize      int32
	parentPageId types.PageID
	pageId       types.PageID
}

func (p *BPlusTreePage) IsLeafPage() bool {
	return p.pageType == LeafPage
}

func (p *BPlusTreePage) IsRootPage() bool {
	return p.parentPageId == types.InvalidPageID
}

func (p *BPlusTreePage) SetPageType(pageType IndexPageType) {
	p.pageType = pageType
}

func (p *BPlusTreePage) GetSize() int32 {
	return p.size
}

func (p *BPlusTreePage) SetSize(size int32) {
	p.size = size
}

func (p *BPlusTreePage) IncreaseSize(amount int32) {
	p.size += amount
}

func (p *BPlusTreePage) GetMaxSize() int32 {
	return p.maxSize
}

func (p *BPlusTreePage) SetMaxSize(maxSize int32) {
	p.maxSize = maxSize
}

// GetMinSize returns the occupancy floor of a non-root page
func (p *BPlusTreePage) GetMinSize() int32 {
	return (p.maxSize + 1) / 2
}

func (p *BPlusTreePage) GetParentPageId() types.PageID {
	return p.parentPageId
}

func (p *BPlusTreePage) SetParentPageId(parentPageId types.PageID) {
	p.parentPageId = parentPageId
}

func (p *BPlusTreePage) GetPageId() types.PageID {
	return p.pageId
}

func (p *BPlusTreePage) SetPageId(pageId types.PageID) {
	p.pageId = pageId
}

// IsSafe reports whether a mutation of the given kind on this page cannot
// propagate a structural change to the parent.
func (p *BPlusTreePage) IsSafe(writeType WriteType) bool {
	if writeType == WriteTypeInsert {
		return p.size < p.maxSize-1
	}

	if p.IsRootPage() {
		if p.IsLeafPage() {
			return p.size > 1
		}
		return p.size > 2
	}
	return p.size > p.GetMinSize()
}

// NeedMerge reports whether the page dropped below its occupancy floor
func (p *BPlusTreePage) NeedMerge() bool {
	return p.size < p.GetMinSize()
}
