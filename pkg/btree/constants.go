package btree

import (
	"encoding/binary"

	"pinedb/pkg/entry"
	"pinedb/pkg/page"
)

// Entry constants.
const ENTRYSIZE int64 = entry.Size

// Node header constants. Every node starts with a type tag followed by
// fixed-width varint slots for its size, max size, pagenum and parent pagenum.
const (
	NODETYPE_OFFSET  int64 = 0
	NODETYPE_SIZE    int64 = 1
	NUM_KEYS_OFFSET  int64 = NODETYPE_OFFSET + NODETYPE_SIZE
	NUM_KEYS_SIZE    int64 = binary.MaxVarintLen64
	MAX_KEYS_OFFSET  int64 = NUM_KEYS_OFFSET + NUM_KEYS_SIZE
	MAX_KEYS_SIZE    int64 = binary.MaxVarintLen64
	PAGENUM_OFFSET   int64 = MAX_KEYS_OFFSET + MAX_KEYS_SIZE
	PAGENUM_SIZE     int64 = binary.MaxVarintLen64
	PARENT_PN_OFFSET int64 = PAGENUM_OFFSET + PAGENUM_SIZE
	PARENT_PN_SIZE   int64 = binary.MaxVarintLen64
	NODE_HEADER_SIZE int64 = NODETYPE_SIZE + NUM_KEYS_SIZE + MAX_KEYS_SIZE + PAGENUM_SIZE + PARENT_PN_SIZE
)

// Leaf node header constants. Each node keeps one spare entry slot beyond its
// max size so an insert can overflow in place before splitting.
const (
	NEXT_PN_OFFSET        int64 = NODE_HEADER_SIZE
	NEXT_PN_SIZE          int64 = binary.MaxVarintLen64
	LEAF_NODE_HEADER_SIZE int64 = NODE_HEADER_SIZE + NEXT_PN_SIZE
	ENTRIES_PER_LEAF_NODE int64 = (page.Pagesize-LEAF_NODE_HEADER_SIZE)/ENTRYSIZE - 1
)

// Internal node header constants. Keys and child pagenums are stored as two
// packed arrays; the key in slot 0 is never consulted.
const (
	KEY_SIZE                  int64 = binary.MaxVarintLen64
	PN_SIZE                   int64 = binary.MaxVarintLen64
	INTERNAL_NODE_HEADER_SIZE int64 = NODE_HEADER_SIZE
	ptrSpace                  int64 = page.Pagesize - INTERNAL_NODE_HEADER_SIZE
	ENTRIES_PER_INTERNAL_NODE int64 = ptrSpace/(KEY_SIZE+PN_SIZE) - 1
	KEYS_OFFSET               int64 = INTERNAL_NODE_HEADER_SIZE
	KEYS_SIZE                 int64 = KEY_SIZE * (ENTRIES_PER_INTERNAL_NODE + 1)
	PNS_OFFSET                int64 = KEYS_OFFSET + KEYS_SIZE
)
