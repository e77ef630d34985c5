package page

import (
	"github.com/tkobori/ShachiDB/types"
)

// InternalArraySize is how many separator/child entries fit an internal
// page: (PageSize - padded 24 byte header) / 16 byte entries
const InternalArraySize = 254

// InternalEntry is one separator/child pair of an internal page. The key
// of entry 0 is unused.
type InternalEntry struct {
	Key   int64
	Value types.PageID
}

/**
 * Internal page of the B+-tree. Size counts children; KEY(0) is unused
 * and KEY(i) is the minimum key of the subtree rooted at CHILD(i).
 *
 * Internal page format:
 *  ----------------------------------------------------------------
 * | Header (20) | KEY(0)+CHILD(0) | KEY(1)+CHILD(1) | ... |
 *  ----------------------------------------------------------------
 */
type BPlusTreeInternalPage struct {
	BPlusTreePage
	array [InternalArraySize]InternalEntry
}

// Init sets up a freshly allocated internal page. The slot 0 child is
// filled by the caller; size starts at 1 to account for it.
func (p *BPlusTreeInternalPage) Init(pageId types.PageID, parentId types.PageID, maxSize int32) {
	p.SetPageType(InternalPage)
	p.SetSize(1)
	p.SetPageId(pageId)
	p.SetParentPageId(parentId)
	p.SetMaxSize(maxSize)
}

func (p *BPlusTreeInternalPage) KeyAt(index int32) int64 {
	return p.array[index].Key
}

func (p *BPlusTreeInternalPage) SetKeyAt(index int32, key int64) {
	p.array[index].Key = key
}

func (p *BPlusTreeInternalPage) ValueAt(index int32) types.PageID {
	return p.array[index].Value
}

func (p *BPlusTreeInternalPage) SetValueAt(index int32, value types.PageID) {
	p.array[index].Value = value
}

func (p *BPlusTreeInternalPage) GetKV(index int32) InternalEntry {
	return p.array[index]
}

func (p *BPlusTreeInternalPage) SetKV(index int32, kv InternalEntry) {
	p.array[index] = kv
}

// UpperBound returns the first index in [1, size] whose key is greater
// than key; descending follows child UpperBound-1.
func (p *BPlusTreeInternalPage) UpperBound(key int64) int32 {
	l := int32(0)
	r := p.GetSize()
	for l+1 < r {
		m := (l + r) / 2
		if p.KeyAt(m) > key {
			r = m
		} else {
			l = m
		}
	}
	return r
}

// InsertKV places a separator/child entry keeping the key order
func (p *BPlusTreeInternalPage) InsertKV(key int64, value types.PageID) {
	index := p.UpperBound(key)
	for i := p.GetSize(); i > index; i-- {
		p.array[i] = p.array[i-1]
	}
	p.array[index] = InternalEntry{key, value}
	p.IncreaseSize(1)
}

// MoveHalfAndInsert splits a full page before inserting: the upper half
// moves to the fresh right sibling, then key/value lands on whichever
// side its position falls. Splitting first keeps the array from
// overflowing its on-page capacity.
func (p *BPlusTreeInternalPage) MoveHalfAndInsert(right *BPlusTreeInternalPage, key int64, value types.PageID) {
	middle := (p.GetMaxSize() + 1) / 2
	insertRight := p.UpperBound(key) >= middle
	if !insertRight {
		middle--
	}

	moved := p.GetSize() - middle
	copy(right.array[:moved], p.array[middle:p.GetSize()])
	p.SetSize(middle)
	right.SetSize(moved)

	if insertRight && key < right.KeyAt(0) {
		// the entry belongs at the right page's beginning
		for i := right.GetSize(); i > 0; i-- {
			right.SetKV(i, right.GetKV(i-1))
		}
		right.SetKV(0, InternalEntry{key, value})
		right.IncreaseSize(1)
		return
	}

	if insertRight {
		right.InsertKV(key, value)
	} else {
		p.InsertKV(key, value)
	}
}
