package extendible_hash

import (
	"github.com/sasha-s/go-deadlock"
	"github.com/tkobori/ShachiDB/common"
)

type entry[K comparable, V any] struct {
	key   K
	value V
}

// bucket holds plain entry lists. Several directory slots share one
// bucket handle while their suffixes agree on localDepth bits.
type bucket[K comparable, V any] struct {
	localDepth uint32
	items      []entry[K, V]
}

func (b *bucket[K, V]) find(key K) (V, bool) {
	for _, item := range b.items {
		if item.key == key {
			return item.value, true
		}
	}
	var none V
	return none, false
}

func (b *bucket[K, V]) insert(key K, value V, capacity uint32) bool {
	for i := range b.items {
		if b.items[i].key == key {
			b.items[i].value = value
			return true
		}
	}
	if uint32(len(b.items)) >= capacity {
		return false
	}
	b.items = append(b.items, entry[K, V]{key, value})
	return true
}

func (b *bucket[K, V]) remove(key K) bool {
	for i := range b.items {
		if b.items[i].key == key {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

// ExtendibleHashTable is the in-memory variant of the extendible hash
// table; the buffer pool uses it as its page table. One table-wide latch
// serializes all operations.
type ExtendibleHashTable[K comparable, V any] struct {
	globalDepth uint32
	bucketSize  uint32
	dir         []*bucket[K, V]
	hashFn      func(K) uint32
	latch       deadlock.RWMutex
}

// NewExtendibleHashTable instantiates a table whose buckets hold at most
// bucketSize entries. hashFn maps a key to the bits the directory
// indexes with.
func NewExtendibleHashTable[K comparable, V any](bucketSize uint32, hashFn func(K) uint32) *ExtendibleHashTable[K, V] {
	return &ExtendibleHashTable[K, V]{
		bucketSize: bucketSize,
		dir:        []*bucket[K, V]{{localDepth: 0}},
		hashFn:     hashFn,
	}
}

func (ht *ExtendibleHashTable[K, V]) indexOf(key K) uint32 {
	return ht.hashFn(key) & ((1 << ht.globalDepth) - 1)
}

// Find returns the value stored under key
func (ht *ExtendibleHashTable[K, V]) Find(key K) (V, bool) {
	ht.latch.RLock()
	defer ht.latch.RUnlock()
	return ht.dir[ht.indexOf(key)].find(key)
}

// Insert upserts key/value. A full bucket splits, doubling the directory
// when its local depth has reached the global depth; the insert then
// retries (possibly splitting again when every item lands on one side).
func (ht *ExtendibleHashTable[K, V]) Insert(key K, value V) {
	ht.latch.Lock()
	defer ht.latch.Unlock()

	for {
		target := ht.dir[ht.indexOf(key)]
		if target.insert(key, value, ht.bucketSize) {
			return
		}

		if target.localDepth == ht.globalDepth {
			// duplicate every slot
			ht.dir = append(ht.dir, ht.dir...)
			ht.globalDepth++
		}
		ht.splitBucket(target)
	}
}

// splitBucket replaces a full bucket by two siblings one bit deeper and
// redistributes its items by the new suffix bit.
func (ht *ExtendibleHashTable[K, V]) splitBucket(target *bucket[K, V]) {
	newDepth := target.localDepth + 1
	zero := &bucket[K, V]{localDepth: newDepth}
	one := &bucket[K, V]{localDepth: newDepth}

	bit := uint32(1) << target.localDepth
	for _, item := range target.items {
		if ht.hashFn(item.key)&bit != 0 {
			one.items = append(one.items, item)
		} else {
			zero.items = append(zero.items, item)
		}
	}

	for i := range ht.dir {
		if ht.dir[i] != target {
			continue
		}
		if uint32(i)&bit != 0 {
			ht.dir[i] = one
		} else {
			ht.dir[i] = zero
		}
	}
}

// Remove deletes key. An emptied bucket merges with its split image when
// both carry the same local depth; the directory halves while every
// bucket's local depth allows it.
func (ht *ExtendibleHashTable[K, V]) Remove(key K) bool {
	ht.latch.Lock()
	defer ht.latch.Unlock()

	index := ht.indexOf(key)
	target := ht.dir[index]
	if !target.remove(key) {
		return false
	}

	if len(target.items) == 0 && target.localDepth > 0 {
		imageIndex := index ^ (1 << (target.localDepth - 1))
		image := ht.dir[imageIndex&((1<<ht.globalDepth)-1)]
		if image != target && image.localDepth == target.localDepth {
			image.localDepth--
			for i := range ht.dir {
				if ht.dir[i] == target {
					ht.dir[i] = image
				}
			}
		}
	}

	for ht.canShrink() {
		ht.globalDepth--
		ht.dir = ht.dir[:1<<ht.globalDepth]
	}
	return true
}

func (ht *ExtendibleHashTable[K, V]) canShrink() bool {
	if ht.globalDepth == 0 {
		return false
	}
	for _, b := range ht.dir {
		if b.localDepth >= ht.globalDepth {
			return false
		}
	}
	return true
}

// GetGlobalDepth returns the current directory depth
func (ht *ExtendibleHashTable[K, V]) GetGlobalDepth() uint32 {
	ht.latch.RLock()
	defer ht.latch.RUnlock()
	return ht.globalDepth
}

// Size returns the number of stored entries
func (ht *ExtendibleHashTable[K, V]) Size() uint32 {
	ht.latch.RLock()
	defer ht.latch.RUnlock()

	size := uint32(0)
	seen := make(map[*bucket[K, V]]bool)
	for _, b := range ht.dir {
		if !seen[b] {
			seen[b] = true
			size += uint32(len(b.items))
		}
	}
	return size
}

// VerifyIntegrity checks that the directory size is 2^globalDepth and
// that following stride 2^localDepth from any slot visits exactly the
// slots sharing its bucket.
func (ht *ExtendibleHashTable[K, V]) VerifyIntegrity() {
	ht.latch.RLock()
	defer ht.latch.RUnlock()

	common.SH_Assert(len(ht.dir) == 1<<ht.globalDepth,
		"ExtendibleHashTable: directory size is not 2^globalDepth")

	for i, b := range ht.dir {
		common.SH_Assert(b.localDepth <= ht.globalDepth,
			"ExtendibleHashTable: local depth greater than global depth")

		stride := 1 << b.localDepth
		suffix := i & (stride - 1)
		for j := range ht.dir {
			sameBucket := ht.dir[j] == b
			sameSuffix := j&(stride-1) == suffix
			common.SH_Assert(sameBucket == sameSuffix,
				"ExtendibleHashTable: bucket sharing does not match the local depth suffix")
		}
	}
}
