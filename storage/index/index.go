package index

import (
	"github.com/pkg/errors"
	"github.com/tkobori/ShachiDB/storage/access"
	"github.com/tkobori/ShachiDB/storage/page"
)

// ErrKeyExists reports a unique-key violation on insert
var ErrKeyExists = errors.New("key already exists in the index")

// ErrKeyMissing reports a lookup or removal of an absent key
var ErrKeyMissing = errors.New("key does not exist in the index")

// Index is the executor-facing surface every index implements
type Index interface {
	InsertEntry(txn *access.Transaction, key int64, rid page.RID) error
	DeleteEntry(txn *access.Transaction, key int64) error
	GetValue(txn *access.Transaction, key int64) (page.RID, error)
}

// RangeScanIndex is implemented by ordered indexes additionally
// supporting forward iteration
type RangeScanIndex interface {
	Index
	Scan(txn *access.Transaction) *IndexIterator
	ScanFrom(txn *access.Transaction, key int64) *IndexIterator
}
