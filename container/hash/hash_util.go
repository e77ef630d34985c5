package hash

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

// GenHashMurMur hashes a serialized key down to the 32 bits the
// directory indexes with
func GenHashMurMur(key []byte) uint32 {
	h := murmur3.New128()
	h.Write(key)

	hash := h.Sum(nil)
	return binary.LittleEndian.Uint32(hash)
}

// HashInt64 hashes an integer key
func HashInt64(key int64) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	return GenHashMurMur(buf[:])
}
