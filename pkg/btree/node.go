package btree

import (
	"encoding/binary"

	"pinedb/pkg/page"
)

/////////////////////////////////////////////////////////////////////////////
///////////////////////// Structs and interfaces ////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// NodeType identifies if a node is a leaf node or an internal node.
type NodeType bool

const (
	INTERNAL_NODE NodeType = false
	LEAF_NODE     NodeType = true
)

// Node is the common surface of leaf and internal nodes that the tree's
// restructuring logic needs.
type Node interface {
	getPage() *page.Page
	getNodeType() NodeType
	getSize() int64
	getMaxSize() int64
	getMinSize() int64
	getParentPageNum() int64
	setParentPageNum(pagenum int64)
	isRoot() bool
	// keyAt returns the key stored at the given slot.
	keyAt(index int64) int64
}

// node is a typed view over the bytes of a currently-pinned page. Views must
// not outlive their pin: after an unpin/fetch cycle the view is recomputed.
type node struct {
	page *page.Page
}

/////////////////////////////////////////////////////////////////////////////
//////////////////////// Generic Helper Functions ///////////////////////////
/////////////////////////////////////////////////////////////////////////////

// pageToNode returns the leaf or internal node stored in the given page.
func pageToNode(p *page.Page) Node {
	if nodeTypeOf(p) == LEAF_NODE {
		return asLeafNode(p)
	}
	return asInternalNode(p)
}

// nodeTypeOf reads the node type tag from the given page.
func nodeTypeOf(p *page.Page) NodeType {
	if p.GetData()[NODETYPE_OFFSET] == 0 {
		return INTERNAL_NODE
	}
	return LEAF_NODE
}

// readVarintAt decodes the fixed-width varint slot at the given page offset.
func (n *node) readVarintAt(offset int64) int64 {
	value, _ := binary.Varint(n.page.GetData()[offset : offset+binary.MaxVarintLen64])
	return value
}

// writeVarintAt encodes value into the fixed-width varint slot at the given
// page offset, marking the page dirty.
func (n *node) writeVarintAt(offset int64, value int64) {
	data := make([]byte, binary.MaxVarintLen64)
	binary.PutVarint(data, value)
	n.page.Update(data, offset, int64(len(data)))
}

// initHeader resets the page and writes the common node header.
func (n *node) initHeader(nodeType NodeType, pagenum int64, parent int64, maxSize int64) {
	n.page.Zero()
	tag := make([]byte, NODETYPE_SIZE)
	if nodeType == LEAF_NODE {
		tag[0] = 1
	}
	n.page.Update(tag, NODETYPE_OFFSET, NODETYPE_SIZE)
	n.setSize(0)
	n.setMaxSize(maxSize)
	n.writeVarintAt(PAGENUM_OFFSET, pagenum)
	n.setParentPageNum(parent)
}

// getPage returns the pinned page that backs this node view.
func (n *node) getPage() *page.Page {
	return n.page
}

// getNodeType returns whether this node is a leaf or an internal node.
func (n *node) getNodeType() NodeType {
	return nodeTypeOf(n.page)
}

// getSize returns the number of entries currently stored in the node.
func (n *node) getSize() int64 {
	return n.readVarintAt(NUM_KEYS_OFFSET)
}

// setSize updates the size field in the node header.
func (n *node) setSize(newSize int64) {
	n.writeVarintAt(NUM_KEYS_OFFSET, newSize)
}

// getMaxSize returns the maximum number of entries the node may hold at rest.
func (n *node) getMaxSize() int64 {
	return n.readVarintAt(MAX_KEYS_OFFSET)
}

// setMaxSize updates the max size field in the node header.
func (n *node) setMaxSize(maxSize int64) {
	n.writeVarintAt(MAX_KEYS_OFFSET, maxSize)
}

// getMinSize returns the fewest entries a non-root node may hold at rest.
func (n *node) getMinSize() int64 {
	return (n.getMaxSize() + 1) / 2
}

// getParentPageNum returns the pagenum of the node's parent, or page.NoPage
// at the root.
func (n *node) getParentPageNum() int64 {
	return n.readVarintAt(PARENT_PN_OFFSET)
}

// setParentPageNum updates the parent pagenum in the node header.
func (n *node) setParentPageNum(pagenum int64) {
	n.writeVarintAt(PARENT_PN_OFFSET, pagenum)
}

// isRoot returns true if this node has no parent.
func (n *node) isRoot() bool {
	return n.getParentPageNum() == page.NoPage
}
