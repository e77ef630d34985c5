package index

import (
	"github.com/tkobori/ShachiDB/storage/access"
	"github.com/tkobori/ShachiDB/storage/buffer"
	"github.com/tkobori/ShachiDB/storage/page"
)

// BPlusTreeIndex adapts the B+-tree to the Index surface
type BPlusTreeIndex struct {
	tree *BPlusTree
}

func NewBPlusTreeIndex(bpm *buffer.BufferPoolManager, leafMaxSize int32, internalMaxSize int32) *BPlusTreeIndex {
	return &BPlusTreeIndex{tree: NewBPlusTree(bpm, leafMaxSize, internalMaxSize)}
}

func (idx *BPlusTreeIndex) InsertEntry(txn *access.Transaction, key int64, rid page.RID) error {
	if !idx.tree.Insert(key, rid, txn) {
		return ErrKeyExists
	}
	return nil
}

func (idx *BPlusTreeIndex) DeleteEntry(txn *access.Transaction, key int64) error {
	if !idx.tree.Remove(key, txn) {
		return ErrKeyMissing
	}
	return nil
}

func (idx *BPlusTreeIndex) GetValue(txn *access.Transaction, key int64) (page.RID, error) {
	value, found := idx.tree.GetValue(key, txn)
	if !found {
		return page.RID{}, ErrKeyMissing
	}
	return value, nil
}

// Scan iterates the whole index in key order
func (idx *BPlusTreeIndex) Scan(txn *access.Transaction) *IndexIterator {
	return idx.tree.Iterator()
}

// ScanFrom iterates from the first key not less than key
func (idx *BPlusTreeIndex) ScanFrom(txn *access.Transaction, key int64) *IndexIterator {
	return idx.tree.IteratorFrom(key)
}

// GetTree exposes the underlying tree
func (idx *BPlusTreeIndex) GetTree() *BPlusTree {
	return idx.tree
}
