package page

import (
	"github.com/tkobori/ShachiDB/common"
)

// HashTablePair is one key/value entry of a bucket page
type HashTablePair struct {
	Key   int64
	Value RID
}

const bitmapSize = (common.BucketArraySize-1)/8 + 1

/**
 * Bucket page of the extendible hash table. Keys are stored together with
 * their values; the occupied bitmap marks slots that have ever held an
 * entry (scan terminator), the readable bitmap marks live entries.
 *
 * Bucket page format:
 *  ---------------------------------------------------------------
 * | occupied bitmap | readable bitmap | KEY(1)+VALUE(1) | ... | KEY(n)+VALUE(n)
 *  ---------------------------------------------------------------
 */
type HashTableBucketPage struct {
	occupied [bitmapSize]byte
	readable [bitmapSize]byte
	array    [common.BucketArraySize]HashTablePair
}

// KeyAt gets the key at the index in the bucket
func (page *HashTableBucketPage) KeyAt(index uint32) int64 {
	return page.array[index].Key
}

// ValueAt gets the value at the index in the bucket
func (page *HashTableBucketPage) ValueAt(index uint32) RID {
	return page.array[index].Value
}

// GetValue returns the live value stored under key
func (page *HashTableBucketPage) GetValue(key int64) (RID, bool) {
	for i := uint32(0); i < common.BucketArraySize; i++ {
		if !page.IsOccupied(i) {
			break
		}
		if page.IsReadable(i) && page.KeyAt(i) == key {
			return page.ValueAt(i), true
		}
	}
	return RID{}, false
}

// Insert upserts key into the bucket. A live entry with the same key has
// its value replaced. Returns false when the bucket has no slot left.
func (page *HashTableBucketPage) Insert(key int64, value RID) bool {
	for i := uint32(0); i < common.BucketArraySize; i++ {
		if !page.IsOccupied(i) {
			break
		}
		if page.IsReadable(i) && page.KeyAt(i) == key {
			page.array[i].Value = value
			return true
		}
	}

	for i := uint32(0); i < common.BucketArraySize; i++ {
		if !page.IsReadable(i) {
			page.array[i] = HashTablePair{key, value}
			page.setOccupied(i)
			page.setReadable(i)
			return true
		}
	}
	return false
}

// Remove deletes the entry stored under key
func (page *HashTableBucketPage) Remove(key int64) bool {
	for i := uint32(0); i < common.BucketArraySize; i++ {
		if !page.IsOccupied(i) {
			break
		}
		if page.IsReadable(i) && page.KeyAt(i) == key {
			page.RemoveAt(i)
			return true
		}
	}
	return false
}

// RemoveAt clears the readable bit of the slot, leaving a tombstone
func (page *HashTableBucketPage) RemoveAt(index uint32) {
	page.readable[index/8] &= ^(1 << (index % 8))
}

// IsOccupied returns whether the slot ever held an entry
func (page *HashTableBucketPage) IsOccupied(index uint32) bool {
	return (page.occupied[index/8] & (1 << (index % 8))) != 0
}

// IsReadable returns whether the slot holds a live entry
func (page *HashTableBucketPage) IsReadable(index uint32) bool {
	return (page.readable[index/8] & (1 << (index % 8))) != 0
}

func (page *HashTableBucketPage) setOccupied(index uint32) {
	page.occupied[index/8] |= 1 << (index % 8)
}

func (page *HashTableBucketPage) setReadable(index uint32) {
	page.readable[index/8] |= 1 << (index % 8)
}

// NumReadable returns the number of live entries
func (page *HashTableBucketPage) NumReadable() uint32 {
	num := uint32(0)
	for i := uint32(0); i < common.BucketArraySize; i++ {
		if !page.IsOccupied(i) {
			break
		}
		if page.IsReadable(i) {
			num++
		}
	}
	return num
}

// IsEmpty returns whether the bucket holds no live entry
func (page *HashTableBucketPage) IsEmpty() bool {
	return page.NumReadable() == 0
}
