package entry

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Size is the number of bytes an Entry occupies when marshalled:
// a fixed-width varint slot for the key followed by one for the value.
const Size int64 = binary.MaxVarintLen64 * 2

// Entry is a key-value pair stored in a B+Tree leaf. The value is a packed
// record identifier handed out by the tuple layer.
type Entry struct {
	Key   int64
	Value int64
}

// New constructs and returns a new Entry with the specified key and value.
func New(key int64, value int64) Entry {
	return Entry{Key: key, Value: value}
}

// Marshal serializes the entry into a fixed-width byte slice of length Size.
func (entry Entry) Marshal() []byte {
	data := make([]byte, Size)
	binary.PutVarint(data[:Size/2], entry.Key)
	binary.PutVarint(data[Size/2:], entry.Value)
	return data
}

// Unmarshal deserializes a byte slice produced by Marshal into an entry.
func Unmarshal(data []byte) Entry {
	k, _ := binary.Varint(data[:len(data)/2])
	v, _ := binary.Varint(data[len(data)/2:])
	return Entry{Key: k, Value: v}
}

// Print writes the entry to the specified writer in the following format,
// including the trailing comma and space: (<key>, <value>),
func (entry Entry) Print(w io.Writer) {
	fmt.Fprintf(w, "(%d, %d), ", entry.Key, entry.Value)
}
