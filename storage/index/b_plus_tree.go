package index

import (
	"fmt"
	"unsafe"

	"github.com/tkobori/ShachiDB/common"
	"github.com/tkobori/ShachiDB/storage/access"
	"github.com/tkobori/ShachiDB/storage/buffer"
	"github.com/tkobori/ShachiDB/storage/page"
	"github.com/tkobori/ShachiDB/types"
)

/**
 * BPlusTree is a concurrent B+-tree over int64 keys and RID values.
 * Internal pages direct the search, leaf pages hold the data and chain
 * into a singly linked list for range scans. Only unique keys are
 * supported.
 *
 * Reads crab read-latches parent to child. Writes first descend
 * optimistically, write-latching only the leaf; when the leaf turns out
 * unsafe they release everything and re-descend under write latches and
 * the tree latch, releasing ancestors as soon as a safe child is
 * reached. Pages emptied by a mutation are freed only after every latch
 * of the mutation is released.
 */
type BPlusTree struct {
	rootPageID      types.PageID
	bpm             *buffer.BufferPoolManager
	leafMaxSize     int32
	internalMaxSize int32
	// treeLatch protects rootPageID
	treeLatch common.ReaderWriterLatch
}

// NewBPlusTree creates an empty tree with the given node capacities,
// clamped to the on-page array sizes.
func NewBPlusTree(bpm *buffer.BufferPoolManager, leafMaxSize int32, internalMaxSize int32) *BPlusTree {
	if leafMaxSize <= 0 || leafMaxSize > page.LeafArraySize {
		leafMaxSize = page.LeafArraySize
	}
	if internalMaxSize <= 2 || internalMaxSize > page.InternalArraySize {
		internalMaxSize = page.InternalArraySize
	}
	return &BPlusTree{
		rootPageID:      types.InvalidPageID,
		bpm:             bpm,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		treeLatch:       common.NewRWLatch(),
	}
}

func castTreePage(p *page.Page) *page.BPlusTreePage {
	return (*page.BPlusTreePage)(unsafe.Pointer(p.Data()))
}

func castLeafPage(p *page.Page) *page.BPlusTreeLeafPage {
	return (*page.BPlusTreeLeafPage)(unsafe.Pointer(p.Data()))
}

func castInternalPage(p *page.Page) *page.BPlusTreeInternalPage {
	return (*page.BPlusTreeInternalPage)(unsafe.Pointer(p.Data()))
}

func (t *BPlusTree) fetchPage(pageID types.PageID) *page.Page {
	p, err := t.bpm.FetchPage(pageID)
	if err != nil {
		panic(fmt.Sprintf("BPlusTree: fetch of page %d failed: %v", pageID, err))
	}
	return p
}

func (t *BPlusTree) newPage() *page.Page {
	p, err := t.bpm.NewPage()
	if err != nil {
		panic(fmt.Sprintf("BPlusTree: page allocation failed: %v", err))
	}
	return p
}

// IsEmpty reports whether the tree holds no page at all
func (t *BPlusTree) IsEmpty() bool {
	return t.rootPageID == types.InvalidPageID
}

// GetRootPageId returns the page id of the root node
func (t *BPlusTree) GetRootPageId() types.PageID {
	t.treeLatch.RLock()
	defer t.treeLatch.RUnlock()
	return t.rootPageID
}

/*****************************************************************************
 * SEARCH
 *****************************************************************************/

// GetValue returns the value associated with key
func (t *BPlusTree) GetValue(key int64, txn *access.Transaction) (page.RID, bool) {
	if t.IsEmpty() {
		return page.RID{}, false
	}

	leafPage := t.findLeafPageForRead(key, false, nil)
	leaf := castLeafPage(leafPage)
	index := leaf.LowerBound(key)

	var value page.RID
	found := false
	if index < leaf.GetSize() && leaf.KeyAt(index) == key {
		value = leaf.ValueAt(index)
		found = true
	}

	leafPage.RUnlatch()
	t.bpm.UnpinPage(leafPage.GetPageId(), false)
	return value, found
}

// findLeafPageForRead descends with read-latch crabbing: the child's
// latch is acquired before the parent's is released. With
// writeLatchLeaf the leaf is write-latched instead and recorded in the
// transaction's page set (the optimistic write descent).
func (t *BPlusTree) findLeafPageForRead(key int64, writeLatchLeaf bool, txn *access.Transaction) *page.Page {
	t.treeLatch.RLock()
	nodePage := t.fetchPage(t.rootPageID)
	if writeLatchLeaf && castTreePage(nodePage).IsLeafPage() {
		nodePage.WLatch()
		txn.AddIntoPageSet(nodePage)
	} else {
		nodePage.RLatch()
	}
	t.treeLatch.RUnlock()

	for !castTreePage(nodePage).IsLeafPage() {
		internal := castInternalPage(nodePage)
		index := internal.UpperBound(key) - 1
		childPage := t.fetchPage(internal.ValueAt(index))

		// acquire the child's latch before releasing the parent's
		if writeLatchLeaf && castTreePage(childPage).IsLeafPage() {
			childPage.WLatch()
			txn.AddIntoPageSet(childPage)
		} else {
			childPage.RLatch()
		}
		nodePage.RUnlatch()
		t.bpm.UnpinPage(nodePage.GetPageId(), false)
		nodePage = childPage
	}

	return nodePage
}

// findLeafPageForWrite re-descends under write latches, holding the tree
// latch from the start; every ancestor above a safe node is released on
// the way down. The latched pages accumulate in the transaction's page
// set, a nil entry standing for the tree latch.
func (t *BPlusTree) findLeafPageForWrite(key int64, writeType page.WriteType, txn *access.Transaction) *page.Page {
	t.treeLatch.WLock()
	txn.AddIntoPageSet(nil)

	nodePage := t.fetchPage(t.rootPageID)
	nodePage.WLatch()
	txn.AddIntoPageSet(nodePage)

	for !castTreePage(nodePage).IsLeafPage() {
		internal := castInternalPage(nodePage)
		index := internal.UpperBound(key) - 1
		childPage := t.fetchPage(internal.ValueAt(index))

		childPage.WLatch()
		if castTreePage(childPage).IsSafe(writeType) {
			// the child cannot propagate a change upward, release every
			// ancestor latch
			for _, p := range txn.GetPageSet() {
				if p == nil {
					t.treeLatch.WUnlock()
				} else {
					p.WUnlatch()
					t.bpm.UnpinPage(p.GetPageId(), false)
				}
			}
			txn.SetPageSet(nil)
		}
		txn.AddIntoPageSet(childPage)
		nodePage = childPage
	}

	return nodePage
}

// releaseAllLatches unwinds the transaction's page set in descent order
// and only then frees the pages the mutation emptied.
func (t *BPlusTree) releaseAllLatches(txn *access.Transaction, isDirty bool) {
	for _, p := range txn.GetPageSet() {
		if p == nil {
			t.treeLatch.WUnlock()
		} else {
			p.WUnlatch()
			t.bpm.UnpinPage(p.GetPageId(), isDirty)
		}
	}
	txn.SetPageSet(nil)

	for _, pageID := range txn.GetDeletedPageSet().ToSlice() {
		t.bpm.DeletePage(pageID)
	}
	txn.ClearDeletedPageSet()
}

/*****************************************************************************
 * INSERTION
 *****************************************************************************/

// Insert places key/value into the tree, growing it from the root when
// empty. Returns false on a duplicate key.
func (t *BPlusTree) Insert(key int64, value page.RID, txn *access.Transaction) bool {
	if t.IsEmpty() {
		t.treeLatch.WLock()
		if t.IsEmpty() {
			rootPage := t.newPage()
			leaf := castLeafPage(rootPage)
			leaf.Init(rootPage.GetPageId(), types.InvalidPageID, t.leafMaxSize)
			t.rootPageID = rootPage.GetPageId()
			t.bpm.UnpinPage(rootPage.GetPageId(), true)
		}
		t.treeLatch.WUnlock()
	}

	leafPage := t.findLeafPageForRead(key, true, txn)
	if castTreePage(leafPage).IsSafe(page.WriteTypeInsert) {
		ans := t.leafInsert(key, value, txn)
		t.releaseAllLatches(txn, ans)
		return ans
	}

	// the leaf may split; restart under write latches
	t.releaseAllLatches(txn, false)
	t.findLeafPageForWrite(key, page.WriteTypeInsert, txn)
	ans := t.leafInsert(key, value, txn)
	t.releaseAllLatches(txn, ans)
	return ans
}

func (t *BPlusTree) leafInsert(key int64, value page.RID, txn *access.Transaction) bool {
	pageSet := txn.GetPageSet()
	leafPage := pageSet[len(pageSet)-1]
	leaf := castLeafPage(leafPage)

	if !leaf.Insert(key, value) {
		return false
	}

	if leaf.GetSize() >= leaf.GetMaxSize() {
		rightPage := t.newPage()
		right := castLeafPage(rightPage)
		right.Init(rightPage.GetPageId(), leaf.GetParentPageId(), t.leafMaxSize)
		leaf.MoveHalfTo(right)

		t.internalInsert(leafPage, right.KeyAt(0), right.GetPageId())
		t.bpm.UnpinPage(rightPage.GetPageId(), true)
	}
	return true
}

// internalInsert inserts a separator/child entry into the parent of
// leftPage, splitting upward as needed. A splitting root is replaced by
// a fresh root holding the two halves; the pessimistic descent holds the
// tree latch here.
func (t *BPlusTree) internalInsert(leftPage *page.Page, key int64, value types.PageID) {
	left := castTreePage(leftPage)

	if left.IsRootPage() {
		rootPage := t.newPage()
		root := castInternalPage(rootPage)
		root.Init(rootPage.GetPageId(), types.InvalidPageID, t.internalMaxSize)
		root.SetValueAt(0, left.GetPageId())
		root.SetKeyAt(1, key)
		root.SetValueAt(1, value)
		root.IncreaseSize(1)

		t.rootPageID = rootPage.GetPageId()
		t.updateParentPageId(left.GetPageId(), t.rootPageID)
		t.updateParentPageId(value, t.rootPageID)
		t.bpm.UnpinPage(rootPage.GetPageId(), true)
		return
	}

	parentPage := t.fetchPage(left.GetParentPageId())
	parent := castInternalPage(parentPage)
	if parent.GetSize() < parent.GetMaxSize() {
		parent.InsertKV(key, value)
	} else {
		rightPage := t.newPage()
		right := castInternalPage(rightPage)
		right.Init(rightPage.GetPageId(), parent.GetParentPageId(), t.internalMaxSize)

		parent.MoveHalfAndInsert(right, key, value)
		t.refreshChildParentId(right)

		t.internalInsert(parentPage, right.KeyAt(0), right.GetPageId())
		t.bpm.UnpinPage(rightPage.GetPageId(), true)
	}
	t.bpm.UnpinPage(parentPage.GetPageId(), true)
}

func (t *BPlusTree) updateParentPageId(childPageID types.PageID, parentPageID types.PageID) {
	childPage := t.fetchPage(childPageID)
	castTreePage(childPage).SetParentPageId(parentPageID)
	t.bpm.UnpinPage(childPageID, true)
}

func (t *BPlusTree) refreshChildParentId(internal *page.BPlusTreeInternalPage) {
	for i := int32(0); i < internal.GetSize(); i++ {
		t.updateParentPageId(internal.ValueAt(i), internal.GetPageId())
	}
}

/*****************************************************************************
 * REMOVE
 *****************************************************************************/

// Remove deletes key from the tree, rebalancing by borrow or merge.
// Returns false when the key is not present.
func (t *BPlusTree) Remove(key int64, txn *access.Transaction) bool {
	if t.IsEmpty() {
		return false
	}

	leafPage := t.findLeafPageForRead(key, true, txn)
	if castTreePage(leafPage).IsSafe(page.WriteTypeDelete) {
		ans := t.leafRemove(key, txn)
		t.releaseAllLatches(txn, ans)
		return ans
	}

	// the leaf may underflow; restart under write latches
	t.releaseAllLatches(txn, false)
	t.findLeafPageForWrite(key, page.WriteTypeDelete, txn)
	ans := t.leafRemove(key, txn)
	t.releaseAllLatches(txn, ans)
	return ans
}

func (t *BPlusTree) leafRemove(key int64, txn *access.Transaction) bool {
	pageSet := txn.GetPageSet()
	leafPage := pageSet[len(pageSet)-1]
	leaf := castLeafPage(leafPage)

	index := leaf.LowerBound(key)
	if index >= leaf.GetSize() || leaf.KeyAt(index) != key {
		return false
	}

	// the pre-removal minimum locates the leaf's slot in the parent
	minKey := leaf.KeyAt(0)
	for i := index + 1; i < leaf.GetSize(); i++ {
		leaf.SetKV(i-1, leaf.GetKV(i))
	}
	leaf.IncreaseSize(-1)

	if !leaf.IsRootPage() && leaf.NeedMerge() {
		t.leafMerge(leafPage, minKey, txn)
	}
	return true
}

// leafMerge rebalances an underflowing leaf: borrow from the left
// sibling, borrow from the right, merge into the left, merge the right
// into it, in that order.
func (t *BPlusTree) leafMerge(leafPage *page.Page, minKey int64, txn *access.Transaction) {
	leaf := castLeafPage(leafPage)
	parentPage := t.fetchPage(leaf.GetParentPageId())
	parent := castInternalPage(parentPage)
	index := parent.UpperBound(minKey) - 1

	var leftPage, rightPage *page.Page
	if index-1 >= 0 {
		leftPage = t.fetchPage(parent.ValueAt(index - 1))
	}
	if index+1 < parent.GetSize() {
		rightPage = t.fetchPage(parent.ValueAt(index + 1))
	}

	status := false
	if leftPage != nil {
		leftPage.WLatch()
		status = t.borrowLeftLeaf(leaf, castLeafPage(leftPage), parent, index)
		leftPage.WUnlatch()
	}
	if !status && rightPage != nil {
		rightPage.WLatch()
		status = t.borrowRightLeaf(leaf, castLeafPage(rightPage), parent, index)
		rightPage.WUnlatch()
	}
	if !status && leftPage != nil {
		leftPage.WLatch()
		status = t.leafMergeRightToLeft(castLeafPage(leftPage), leaf, parent, index, txn)
		leftPage.WUnlatch()
	}
	if !status && rightPage != nil {
		rightPage.WLatch()
		status = t.leafMergeRightToLeft(leaf, castLeafPage(rightPage), parent, index+1, txn)
		rightPage.WUnlatch()
	}

	if leftPage != nil {
		t.bpm.UnpinPage(leftPage.GetPageId(), status)
	}
	if rightPage != nil {
		t.bpm.UnpinPage(rightPage.GetPageId(), status)
	}
	t.bpm.UnpinPage(parentPage.GetPageId(), status)
}

func (t *BPlusTree) borrowLeftLeaf(leaf *page.BPlusTreeLeafPage, left *page.BPlusTreeLeafPage, parent *page.BPlusTreeInternalPage, leafIndex int32) bool {
	if left.GetSize() <= left.GetMinSize() {
		return false
	}

	// move the left sibling's last entry to the leaf's front
	for i := leaf.GetSize(); i > 0; i-- {
		leaf.SetKV(i, leaf.GetKV(i-1))
	}
	leaf.SetKV(0, left.GetKV(left.GetSize()-1))

	leaf.IncreaseSize(1)
	left.IncreaseSize(-1)

	parent.SetKeyAt(leafIndex, leaf.KeyAt(0))
	return true
}

func (t *BPlusTree) borrowRightLeaf(leaf *page.BPlusTreeLeafPage, right *page.BPlusTreeLeafPage, parent *page.BPlusTreeInternalPage, leafIndex int32) bool {
	if right.GetSize() <= right.GetMinSize() {
		return false
	}

	// move the right sibling's first entry to the leaf's tail
	leaf.SetKV(leaf.GetSize(), right.GetKV(0))
	for i := int32(1); i < right.GetSize(); i++ {
		right.SetKV(i-1, right.GetKV(i))
	}

	leaf.IncreaseSize(1)
	right.IncreaseSize(-1)

	parent.SetKeyAt(leafIndex+1, right.KeyAt(0))
	return true
}

func (t *BPlusTree) leafMergeRightToLeft(left *page.BPlusTreeLeafPage, right *page.BPlusTreeLeafPage, parent *page.BPlusTreeInternalPage, rightIndex int32, txn *access.Transaction) bool {
	for i := int32(0); i < right.GetSize(); i++ {
		left.SetKV(left.GetSize()+i, right.GetKV(i))
	}
	left.IncreaseSize(right.GetSize())
	left.SetNextPageId(right.GetNextPageId())

	// freed once every latch of this mutation is released
	txn.AddIntoDeletedPageSet(right.GetPageId())

	// save a key locating the parent before its entry goes away
	minKey := parent.KeyAt(1)

	for i := rightIndex + 1; i < parent.GetSize(); i++ {
		parent.SetKV(i-1, parent.GetKV(i))
	}
	parent.IncreaseSize(-1)

	if t.internalNeedMerge(parent) {
		t.internalMerge(parent, minKey, txn)
	}
	return true
}

func (t *BPlusTree) internalNeedMerge(internal *page.BPlusTreeInternalPage) bool {
	if internal.IsRootPage() {
		return internal.GetSize() == 1
	}
	return internal.NeedMerge()
}

// internalMerge rebalances an underflowing internal page. An interior
// root shrunk to a single child is replaced by that child.
func (t *BPlusTree) internalMerge(internal *page.BPlusTreeInternalPage, minKey int64, txn *access.Transaction) {
	if internal.IsRootPage() {
		if internal.GetSize() == 1 {
			// the pessimistic descent holds the tree latch already
			t.updateParentPageId(internal.ValueAt(0), types.InvalidPageID)
			t.rootPageID = internal.ValueAt(0)
			txn.AddIntoDeletedPageSet(internal.GetPageId())
		}
		return
	}

	parentPage := t.fetchPage(internal.GetParentPageId())
	parent := castInternalPage(parentPage)
	index := parent.UpperBound(minKey) - 1

	var leftPage, rightPage *page.Page
	if index-1 >= 0 {
		leftPage = t.fetchPage(parent.ValueAt(index - 1))
	}
	if index+1 < parent.GetSize() {
		rightPage = t.fetchPage(parent.ValueAt(index + 1))
	}

	status := false
	if leftPage != nil {
		leftPage.WLatch()
		status = t.borrowLeftInternal(internal, castInternalPage(leftPage), parent, index)
		leftPage.WUnlatch()
	}
	if !status && rightPage != nil {
		rightPage.WLatch()
		status = t.borrowRightInternal(internal, castInternalPage(rightPage), parent, index)
		rightPage.WUnlatch()
	}
	if !status && leftPage != nil {
		leftPage.WLatch()
		status = t.internalMergeRightToLeft(castInternalPage(leftPage), internal, parent, index, txn)
		leftPage.WUnlatch()
	}
	if !status && rightPage != nil {
		rightPage.WLatch()
		status = t.internalMergeRightToLeft(internal, castInternalPage(rightPage), parent, index+1, txn)
		rightPage.WUnlatch()
	}

	if leftPage != nil {
		t.bpm.UnpinPage(leftPage.GetPageId(), status)
	}
	if rightPage != nil {
		t.bpm.UnpinPage(rightPage.GetPageId(), status)
	}
	t.bpm.UnpinPage(parentPage.GetPageId(), status)
}

func (t *BPlusTree) borrowLeftInternal(internal *page.BPlusTreeInternalPage, left *page.BPlusTreeInternalPage, parent *page.BPlusTreeInternalPage, internalIndex int32) bool {
	if left.GetSize() <= left.GetMinSize() {
		return false
	}

	for i := internal.GetSize(); i > 0; i-- {
		internal.SetKV(i, internal.GetKV(i-1))
	}

	// the parent separator rotates down, the left sibling's last key up
	internal.SetKeyAt(1, parent.KeyAt(internalIndex))
	parent.SetKeyAt(internalIndex, left.KeyAt(left.GetSize()-1))

	internal.SetValueAt(0, left.ValueAt(left.GetSize()-1))
	t.updateParentPageId(internal.ValueAt(0), internal.GetPageId())

	internal.IncreaseSize(1)
	left.IncreaseSize(-1)
	return true
}

func (t *BPlusTree) borrowRightInternal(internal *page.BPlusTreeInternalPage, right *page.BPlusTreeInternalPage, parent *page.BPlusTreeInternalPage, internalIndex int32) bool {
	if right.GetSize() <= right.GetMinSize() {
		return false
	}

	internal.SetKeyAt(internal.GetSize(), parent.KeyAt(internalIndex+1))
	internal.SetValueAt(internal.GetSize(), right.ValueAt(0))
	t.updateParentPageId(internal.ValueAt(internal.GetSize()), internal.GetPageId())

	parent.SetKeyAt(internalIndex+1, right.KeyAt(1))

	for i := int32(1); i < right.GetSize(); i++ {
		right.SetKV(i-1, right.GetKV(i))
	}

	internal.IncreaseSize(1)
	right.IncreaseSize(-1)
	return true
}

func (t *BPlusTree) internalMergeRightToLeft(left *page.BPlusTreeInternalPage, right *page.BPlusTreeInternalPage, parent *page.BPlusTreeInternalPage, rightIndex int32, txn *access.Transaction) bool {
	oldSize := left.GetSize()
	for i := int32(0); i < right.GetSize(); i++ {
		left.SetKV(oldSize+i, right.GetKV(i))
		t.updateParentPageId(right.ValueAt(i), left.GetPageId())
	}
	// right's slot 0 key is meaningless, the parent separator fills it
	left.SetKeyAt(oldSize, parent.KeyAt(rightIndex))
	left.IncreaseSize(right.GetSize())

	txn.AddIntoDeletedPageSet(right.GetPageId())

	minKey := parent.KeyAt(1)

	for i := rightIndex + 1; i < parent.GetSize(); i++ {
		parent.SetKV(i-1, parent.GetKV(i))
	}
	parent.IncreaseSize(-1)

	if t.internalNeedMerge(parent) {
		t.internalMerge(parent, minKey, txn)
	}
	return true
}

/*****************************************************************************
 * INDEX ITERATOR
 *****************************************************************************/

// Iterator returns an iterator positioned at the smallest key
func (t *BPlusTree) Iterator() *IndexIterator {
	if t.IsEmpty() {
		return newIndexIterator(t.bpm, types.InvalidPageID, 0)
	}

	t.treeLatch.RLock()
	nodePage := t.fetchPage(t.rootPageID)
	nodePage.RLatch()
	t.treeLatch.RUnlock()

	for !castTreePage(nodePage).IsLeafPage() {
		internal := castInternalPage(nodePage)
		childPage := t.fetchPage(internal.ValueAt(0))
		childPage.RLatch()
		nodePage.RUnlatch()
		t.bpm.UnpinPage(nodePage.GetPageId(), false)
		nodePage = childPage
	}

	it := newIndexIterator(t.bpm, nodePage.GetPageId(), 0)
	nodePage.RUnlatch()
	t.bpm.UnpinPage(nodePage.GetPageId(), false)
	return it
}

// IteratorFrom returns an iterator positioned at the first key not less
// than key
func (t *BPlusTree) IteratorFrom(key int64) *IndexIterator {
	if t.IsEmpty() {
		return newIndexIterator(t.bpm, types.InvalidPageID, 0)
	}

	leafPage := t.findLeafPageForRead(key, false, nil)
	leaf := castLeafPage(leafPage)
	startPageID := leafPage.GetPageId()
	index := leaf.LowerBound(key)
	if index >= leaf.GetSize() && leaf.GetNextPageId() != types.InvalidPageID {
		// every key of this leaf is smaller; the range starts on the next leaf
		startPageID = leaf.GetNextPageId()
		index = 0
	}
	it := newIndexIterator(t.bpm, startPageID, index)

	leafPage.RUnlatch()
	t.bpm.UnpinPage(leafPage.GetPageId(), false)
	return it
}
