package page

import (
	"github.com/tkobori/ShachiDB/types"
)

// LeafArraySize is how many key/value entries fit a leaf page:
// (PageSize - 24 byte header) / 16 byte entries
const LeafArraySize = 254

// LeafEntry is one key/value pair of a leaf page
type LeafEntry struct {
	Key   int64
	Value RID
}

/**
 * Leaf page of the B+-tree. Stores the indexed key/value pairs in key
 * order plus the page id of the next leaf, forming the singly linked
 * chain range scans follow.
 *
 * Leaf page format:
 *  ---------------------------------------------------------------------
 * | Header (20) | NextPageId (4) | KEY(1)+RID(1) | ... | KEY(n)+RID(n) |
 *  ---------------------------------------------------------------------
 */
type BPlusTreeLeafPage struct {
	BPlusTreePage
	nextPageId types.PageID
	array      [LeafArraySize]LeafEntry
}

// Init sets up a freshly allocated leaf page
func (p *BPlusTreeLeafPage) Init(pageId types.PageID, parentId types.PageID, maxSize int32) {
	p.SetPageType(LeafPage)
	p.SetSize(0)
	p.SetPageId(pageId)
	p.SetParentPageId(parentId)
	p.SetMaxSize(maxSize)
	p.SetNextPageId(types.InvalidPageID)
}

func (p *BPlusTreeLeafPage) GetNextPageId() types.PageID {
	return p.nextPageId
}

func (p *BPlusTreeLeafPage) SetNextPageId(nextPageId types.PageID) {
	p.nextPageId = nextPageId
}

func (p *BPlusTreeLeafPage) KeyAt(index int32) int64 {
	return p.array[index].Key
}

func (p *BPlusTreeLeafPage) ValueAt(index int32) RID {
	return p.array[index].Value
}

func (p *BPlusTreeLeafPage) GetKV(index int32) LeafEntry {
	return p.array[index]
}

func (p *BPlusTreeLeafPage) SetKV(index int32, kv LeafEntry) {
	p.array[index] = kv
}

// LowerBound returns the first index whose key is not less than key
func (p *BPlusTreeLeafPage) LowerBound(key int64) int32 {
	l := int32(0)
	r := p.GetSize()
	for l < r {
		m := (l + r) / 2
		if p.KeyAt(m) < key {
			l = m + 1
		} else {
			r = m
		}
	}
	return l
}

// Insert places key/value keeping the key order. Returns false when the
// key is already present (unique index).
func (p *BPlusTreeLeafPage) Insert(key int64, value RID) bool {
	index := p.LowerBound(key)
	if index < p.GetSize() && p.KeyAt(index) == key {
		return false
	}

	for i := p.GetSize(); i > index; i-- {
		p.array[i] = p.array[i-1]
	}
	p.array[index] = LeafEntry{key, value}
	p.IncreaseSize(1)
	return true
}

// MoveHalfTo moves the entries above the split boundary max_size/2 to the
// fresh right sibling and links it into the leaf chain.
func (p *BPlusTreeLeafPage) MoveHalfTo(right *BPlusTreeLeafPage) {
	moveStart := p.GetMaxSize()/2 + 1
	moved := p.GetSize() - moveStart
	copy(right.array[:moved], p.array[moveStart:p.GetSize()])
	right.SetSize(moved)
	p.SetSize(moveStart)

	right.SetNextPageId(p.GetNextPageId())
	p.SetNextPageId(right.GetPageId())
}
