package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
	"github.com/spaolacci/murmur3"
)

// Func computes the hash of a key. The table addresses its directory with the
// low bits of the returned value.
type Func[K comparable] func(key K) uint64

// sumInt64 uses the given hasher function to calculate the hash of a key.
func sumInt64(hasher func(b []byte) uint64, key int64) uint64 {
	buf := make([]byte, binary.MaxVarintLen64)
	binary.PutVarint(buf, key)
	return hasher(buf)
}

// XxHasher returns the xxHash hash of the given key.
func XxHasher(key int64) uint64 {
	return sumInt64(xxhash.Sum64, key)
}

// MurmurHasher returns the MurmurHash3 hash of the given key.
func MurmurHasher(key int64) uint64 {
	return sumInt64(murmur3.Sum64, key)
}

// IdentityHasher returns the key itself. Useful when the directory slot for a
// key must be predictable, eg in tests.
func IdentityHasher(key int64) uint64 {
	return uint64(key)
}
