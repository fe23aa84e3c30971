// Package cursor defines the iteration contract shared by index cursors.
package cursor

import "pinedb/pkg/entry"

// Cursor steps through the entries of an index in ascending key order.
type Cursor interface {
	// Next advances the cursor by one entry, returning true at the end of the index.
	Next() (atEnd bool)
	// GetEntry returns the entry the cursor currently points at.
	GetEntry() (entry.Entry, error)
	// Close releases the cursor's lease on the index.
	Close()
}
