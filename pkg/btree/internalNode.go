package btree

import (
	"sort"

	"pinedb/pkg/buffer"
	"pinedb/pkg/page"
)

// internalNode is a typed view over a page holding a B+Tree internal node: a
// dense array of (key, child pagenum) pairs whose slot 0 key is never
// consulted. The size counts children, including slot 0.
type internalNode struct {
	node
}

// asInternalNode reinterprets the given pinned page as an internal node.
func asInternalNode(p *page.Page) *internalNode {
	return &internalNode{node{page: p}}
}

// init formats the page as an empty internal node.
func (n *internalNode) init(pagenum int64, parent int64, maxSize int64) {
	n.initHeader(INTERNAL_NODE, pagenum, parent, maxSize)
}

// keyPos returns the page offset of the internal node's ith key.
func keyPos(index int64) int64 {
	return KEYS_OFFSET + index*KEY_SIZE
}

// pnPos returns the page offset of the internal node's ith child pagenum.
func pnPos(index int64) int64 {
	return PNS_OFFSET + index*PN_SIZE
}

// keyAt returns the key stored at the given index of the internal node.
func (n *internalNode) keyAt(index int64) int64 {
	return n.readVarintAt(keyPos(index))
}

// setKeyAt updates the key at the given index of the internal node.
func (n *internalNode) setKeyAt(index int64, newKey int64) {
	n.writeVarintAt(keyPos(index), newKey)
}

// valueAt returns the child pagenum stored at the given index.
func (n *internalNode) valueAt(index int64) int64 {
	return n.readVarintAt(pnPos(index))
}

// setValueAt updates the child pagenum at the given index.
func (n *internalNode) setValueAt(index int64, pagenum int64) {
	n.writeVarintAt(pnPos(index), pagenum)
}

// valueIndex returns the index of the child with the given pagenum, or -1.
func (n *internalNode) valueIndex(pagenum int64) int64 {
	for i := int64(0); i < n.getSize(); i++ {
		if n.valueAt(i) == pagenum {
			return i
		}
	}
	return -1
}

// lookup returns the pagenum of the child whose subtree covers the given
// key: the child after the rightmost separator <= key.
func (n *internalNode) lookup(key int64) int64 {
	childIdx := sort.Search(
		int(n.getSize()-1),
		func(idx int) bool {
			return n.keyAt(int64(idx)+1) > key
		},
	)
	return n.valueAt(int64(childIdx))
}

// populateNewRoot installs the two children produced by a root split.
func (n *internalNode) populateNewRoot(leftPagenum int64, key int64, rightPagenum int64) {
	n.setValueAt(0, leftPagenum)
	n.setKeyAt(1, key)
	n.setValueAt(1, rightPagenum)
	n.setSize(2)
}

// insertNodeAfter inserts (key, newPagenum) immediately after the slot whose
// child is oldPagenum, returning the new size.
func (n *internalNode) insertNodeAfter(oldPagenum int64, key int64, newPagenum int64) int64 {
	insertPos := n.valueIndex(oldPagenum) + 1
	size := n.getSize()
	for i := size - 1; i >= insertPos; i-- {
		n.setKeyAt(i+1, n.keyAt(i))
		n.setValueAt(i+1, n.valueAt(i))
	}
	n.setKeyAt(insertPos, key)
	n.setValueAt(insertPos, newPagenum)
	n.setSize(size + 1)
	return size + 1
}

// remove deletes the (key, child) pair at the given index.
func (n *internalNode) remove(index int64) {
	size := n.getSize()
	for i := index; i < size-1; i++ {
		n.setKeyAt(i, n.keyAt(i+1))
		n.setValueAt(i, n.valueAt(i+1))
	}
	n.setSize(size - 1)
}

// removeAndReturnOnlyChild empties the node and returns its single child.
func (n *internalNode) removeAndReturnOnlyChild() int64 {
	onlyChild := n.valueAt(0)
	n.setSize(0)
	return onlyChild
}

// moveHalfTo moves the upper half of this node's pairs, rounded up, to the
// initially empty recipient, adopting the moved children. The recipient's
// slot 0 key holds the separator to promote.
func (n *internalNode) moveHalfTo(recipient *internalNode, pool *buffer.Manager) error {
	size := n.getSize()
	movedCount := (size + 1) / 2
	splitPos := size - movedCount
	for i := splitPos; i < size; i++ {
		recipient.setKeyAt(i-splitPos, n.keyAt(i))
		recipient.setValueAt(i-splitPos, n.valueAt(i))
	}
	recipient.setSize(movedCount)
	n.setSize(splitPos)
	return recipient.adoptChildren(0, movedCount, pool)
}

// moveAllTo appends all of this node's pairs to the recipient, its left
// neighbor, rewriting the dangling slot 0 key with the separator pulled down
// from the parent and adopting the moved children.
func (n *internalNode) moveAllTo(recipient *internalNode, middleKey int64, pool *buffer.Manager) error {
	size := n.getSize()
	recipientSize := recipient.getSize()
	recipient.setKeyAt(recipientSize, middleKey)
	recipient.setValueAt(recipientSize, n.valueAt(0))
	for i := int64(1); i < size; i++ {
		recipient.setKeyAt(recipientSize+i, n.keyAt(i))
		recipient.setValueAt(recipientSize+i, n.valueAt(i))
	}
	recipient.setSize(recipientSize + size)
	n.setSize(0)
	return recipient.adoptChildren(recipientSize, recipientSize+size, pool)
}

// moveFirstToEndOf rotates this node's first child to the end of the
// recipient, its left sibling, pulling the separator down from the parent
// and pushing this node's next key up in its place.
func (n *internalNode) moveFirstToEndOf(recipient *internalNode, parent *internalNode, nodeIdxInParent int64, pool *buffer.Manager) error {
	movedChild := n.valueAt(0)
	newSeparator := n.keyAt(1)
	recipientSize := recipient.getSize()
	recipient.setKeyAt(recipientSize, parent.keyAt(nodeIdxInParent))
	recipient.setValueAt(recipientSize, movedChild)
	recipient.setSize(recipientSize + 1)
	parent.setKeyAt(nodeIdxInParent, newSeparator)
	n.remove(0)
	return recipient.adoptChildren(recipientSize, recipientSize+1, pool)
}

// moveLastToFrontOf rotates this node's last child to the front of the
// recipient, its right sibling, pulling the separator down from the parent
// and pushing this node's last key up in its place.
func (n *internalNode) moveLastToFrontOf(recipient *internalNode, parent *internalNode, recipientIdxInParent int64, pool *buffer.Manager) error {
	size := n.getSize()
	movedChild := n.valueAt(size - 1)
	newSeparator := n.keyAt(size - 1)
	n.setSize(size - 1)
	recipientSize := recipient.getSize()
	for i := recipientSize - 1; i >= 1; i-- {
		recipient.setKeyAt(i+1, recipient.keyAt(i))
		recipient.setValueAt(i+1, recipient.valueAt(i))
	}
	recipient.setKeyAt(1, parent.keyAt(recipientIdxInParent))
	recipient.setValueAt(1, recipient.valueAt(0))
	recipient.setValueAt(0, movedChild)
	recipient.setSize(recipientSize + 1)
	parent.setKeyAt(recipientIdxInParent, newSeparator)
	return recipient.adoptChildren(0, 1, pool)
}

// adoptChildren rewrites the parent pointer of the children in slots
// [from, to) to this node, fetching each through the buffer pool.
func (n *internalNode) adoptChildren(from int64, to int64, pool *buffer.Manager) error {
	for i := from; i < to; i++ {
		childPagenum := n.valueAt(i)
		childPage, err := pool.FetchPage(childPagenum)
		if err != nil {
			return err
		}
		child := node{page: childPage}
		child.setParentPageNum(n.page.GetPageNum())
		if err := pool.UnpinPage(childPagenum, true); err != nil {
			return err
		}
	}
	return nil
}
