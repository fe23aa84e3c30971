package hash

// pair is a single key-value entry within a bucket.
type pair[K comparable, V any] struct {
	key   K
	value V
}

// bucket holds the entries whose hashes share the bucket's low-localDepth-bit
// pattern. Buckets are created by the table constructor and by splits, and
// are never freed.
type bucket[K comparable, V any] struct {
	id         int64 // The low-localDepth-bit hash pattern shared by all keys in this bucket
	localDepth int64 // The **local** depth of the bucket
	entries    []pair[K, V]
}

// newBucket constructs a new, empty bucket with the specified id and local depth.
func newBucket[K comparable, V any](id int64, localDepth int64, capacity int64) *bucket[K, V] {
	return &bucket[K, V]{
		id:         id,
		localDepth: localDepth,
		entries:    make([]pair[K, V], 0, capacity),
	}
}

// find returns the value stored under the given key, reporting whether the
// key is present.
func (bucket *bucket[K, V]) find(key K) (V, bool) {
	for i := range bucket.entries {
		if bucket.entries[i].key == key {
			return bucket.entries[i].value, true
		}
	}
	var zero V
	return zero, false
}

// replace overwrites the value of an existing entry, reporting whether the
// key was present.
func (bucket *bucket[K, V]) replace(key K, value V) bool {
	for i := range bucket.entries {
		if bucket.entries[i].key == key {
			bucket.entries[i].value = value
			return true
		}
	}
	return false
}

// remove deletes the entry with the given key, reporting whether it existed.
func (bucket *bucket[K, V]) remove(key K) bool {
	for i := range bucket.entries {
		if bucket.entries[i].key == key {
			bucket.entries[i] = bucket.entries[len(bucket.entries)-1]
			bucket.entries = bucket.entries[:len(bucket.entries)-1]
			return true
		}
	}
	return false
}
