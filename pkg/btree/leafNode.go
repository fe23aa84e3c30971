package btree

import (
	"sort"

	"pinedb/pkg/entry"
	"pinedb/pkg/page"
)

// leafNode is a typed view over a page holding a B+Tree leaf: a dense array
// of key-value entries ordered strictly by key, plus the pagenum of the next
// leaf in key order.
type leafNode struct {
	node
}

// asLeafNode reinterprets the given pinned page as a leaf node.
func asLeafNode(p *page.Page) *leafNode {
	return &leafNode{node{page: p}}
}

// init formats the page as an empty leaf with no next sibling.
func (n *leafNode) init(pagenum int64, parent int64, maxSize int64) {
	n.initHeader(LEAF_NODE, pagenum, parent, maxSize)
	n.setNextPageNum(page.NoPage)
}

// getNextPageNum returns the pagenum of the next leaf, or page.NoPage.
func (n *leafNode) getNextPageNum() int64 {
	return n.readVarintAt(NEXT_PN_OFFSET)
}

// setNextPageNum updates the next-leaf pagenum.
func (n *leafNode) setNextPageNum(pagenum int64) {
	n.writeVarintAt(NEXT_PN_OFFSET, pagenum)
}

// entryPos returns the page offset to the entry at the given index.
func entryPos(index int64) int64 {
	return LEAF_NODE_HEADER_SIZE + index*ENTRYSIZE
}

// getEntry returns the entry stored at the given index.
func (n *leafNode) getEntry(index int64) entry.Entry {
	startPos := entryPos(index)
	return entry.Unmarshal(n.page.GetData()[startPos : startPos+ENTRYSIZE])
}

// modifyEntry writes the given entry into the slot at the given index.
func (n *leafNode) modifyEntry(index int64, e entry.Entry) {
	n.page.Update(e.Marshal(), entryPos(index), ENTRYSIZE)
}

// keyAt returns the key stored at the given index of the leaf node.
func (n *leafNode) keyAt(index int64) int64 {
	return n.getEntry(index).Key
}

// setKeyAt updates the key at the given index of the leaf node.
func (n *leafNode) setKeyAt(index int64, newKey int64) {
	n.modifyEntry(index, entry.New(newKey, n.valueAt(index)))
}

// valueAt returns the record id stored at the given index of the leaf node.
func (n *leafNode) valueAt(index int64) int64 {
	return n.getEntry(index).Value
}

// keyIndex returns the first index whose key >= the given key.
// If no key satisfies this condition, returns the node's size.
func (n *leafNode) keyIndex(key int64) int64 {
	minIndex := sort.Search(
		int(n.getSize()),
		func(idx int) bool {
			return n.keyAt(int64(idx)) >= key
		},
	)
	return int64(minIndex)
}

// lookup returns the record id stored under the given key, reporting whether
// an exact match exists.
func (n *leafNode) lookup(key int64) (int64, bool) {
	index := n.keyIndex(key)
	if index >= n.getSize() || n.keyAt(index) != key {
		return 0, false
	}
	return n.valueAt(index), true
}

// insert places (key, value) at its ordered position and returns the new
// size. Callers ensure the key is absent and a slot is available.
func (n *leafNode) insert(key int64, value int64) int64 {
	insertPos := n.keyIndex(key)
	size := n.getSize()
	for i := size - 1; i >= insertPos; i-- {
		n.modifyEntry(i+1, n.getEntry(i))
	}
	n.modifyEntry(insertPos, entry.New(key, value))
	n.setSize(size + 1)
	return size + 1
}

// removeAndDeleteRecord deletes the entry with the given key if present and
// returns the resulting size.
func (n *leafNode) removeAndDeleteRecord(key int64) int64 {
	size := n.getSize()
	deletePos := n.keyIndex(key)
	if deletePos >= size || n.keyAt(deletePos) != key {
		return size
	}
	for i := deletePos; i < size-1; i++ {
		n.modifyEntry(i, n.getEntry(i+1))
	}
	n.setSize(size - 1)
	return size - 1
}

// moveHalfTo moves the upper half of this node's entries, rounded up, to the
// initially empty recipient.
func (n *leafNode) moveHalfTo(recipient *leafNode) {
	size := n.getSize()
	movedCount := (size + 1) / 2
	splitPos := size - movedCount
	for i := splitPos; i < size; i++ {
		recipient.modifyEntry(i-splitPos, n.getEntry(i))
	}
	recipient.setSize(movedCount)
	n.setSize(splitPos)
}

// moveAllTo appends all of this node's entries to the recipient, its left
// neighbor, which also inherits this node's next-leaf pointer.
func (n *leafNode) moveAllTo(recipient *leafNode) {
	size := n.getSize()
	recipientSize := recipient.getSize()
	for i := int64(0); i < size; i++ {
		recipient.modifyEntry(recipientSize+i, n.getEntry(i))
	}
	recipient.setSize(recipientSize + size)
	recipient.setNextPageNum(n.getNextPageNum())
	n.setSize(0)
}

// moveFirstToEndOf moves this node's first entry to the end of the recipient,
// its left sibling, and refreshes the separator key for this node in parent.
func (n *leafNode) moveFirstToEndOf(recipient *leafNode, parent *internalNode, nodeIdxInParent int64) {
	moved := n.getEntry(0)
	size := n.getSize()
	for i := int64(0); i < size-1; i++ {
		n.modifyEntry(i, n.getEntry(i+1))
	}
	n.setSize(size - 1)
	recipient.modifyEntry(recipient.getSize(), moved)
	recipient.setSize(recipient.getSize() + 1)
	parent.setKeyAt(nodeIdxInParent, n.keyAt(0))
}

// moveLastToFrontOf moves this node's last entry to the front of the
// recipient, its right sibling, and refreshes the recipient's separator key
// in parent.
func (n *leafNode) moveLastToFrontOf(recipient *leafNode, parent *internalNode, recipientIdxInParent int64) {
	size := n.getSize()
	moved := n.getEntry(size - 1)
	n.setSize(size - 1)
	recipientSize := recipient.getSize()
	for i := recipientSize - 1; i >= 0; i-- {
		recipient.modifyEntry(i+1, recipient.getEntry(i))
	}
	recipient.modifyEntry(0, moved)
	recipient.setSize(recipientSize + 1)
	parent.setKeyAt(recipientIdxInParent, moved.Key)
}
