package index

import (
	"github.com/tkobori/ShachiDB/container/hash"
	"github.com/tkobori/ShachiDB/storage/access"
	"github.com/tkobori/ShachiDB/storage/buffer"
	"github.com/tkobori/ShachiDB/storage/page"
)

// HashTableIndex adapts the on-disk extendible hash table to the Index
// surface. Being unordered it supports no range scans.
type HashTableIndex struct {
	table *hash.DiskExtendibleHashTable
}

func NewHashTableIndex(bpm *buffer.BufferPoolManager, bucketCapacity uint32) (*HashTableIndex, error) {
	table, err := hash.NewDiskExtendibleHashTable(bpm, bucketCapacity)
	if err != nil {
		return nil, err
	}
	return &HashTableIndex{table: table}, nil
}

func (idx *HashTableIndex) InsertEntry(txn *access.Transaction, key int64, rid page.RID) error {
	if _, found := idx.table.GetValue(txn, key); found {
		return ErrKeyExists
	}
	return idx.table.Insert(txn, key, rid)
}

func (idx *HashTableIndex) DeleteEntry(txn *access.Transaction, key int64) error {
	if !idx.table.Remove(txn, key) {
		return ErrKeyMissing
	}
	return nil
}

func (idx *HashTableIndex) GetValue(txn *access.Transaction, key int64) (page.RID, error) {
	value, found := idx.table.GetValue(txn, key)
	if !found {
		return page.RID{}, ErrKeyMissing
	}
	return value, nil
}

// GetTable exposes the underlying hash table
func (idx *HashTableIndex) GetTable() *hash.DiskExtendibleHashTable {
	return idx.table
}
