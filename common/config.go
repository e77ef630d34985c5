package common

import (
	"time"
)

// CycleDetectionInterval is the sleep between two runs of the deadlock detector.
var CycleDetectionInterval = 50 * time.Millisecond

var EnableDebug bool = false

const (
	// invalid page id
	InvalidPageID = -1
	// invalid transaction id
	InvalidTxnID = -1
	// size of a data page in byte
	PageSize = 4096
	// number of directory slots of a hash table directory page
	DirectoryArraySize = 512
	// number of entries of a hash table bucket page
	BucketArraySize = 252
	// default history length of the LRU-K replacer
	LRUKDefaultK = 2
)
