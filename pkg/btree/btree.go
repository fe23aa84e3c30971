// Package btree implements a B+Tree index on top of the buffer pool,
// supporting unique-key point lookup, insertion with node split, deletion
// with redistribute/coalesce, and forward leaf iteration.
package btree

import (
	"errors"
	"fmt"
	"sync"

	"pinedb/pkg/buffer"
	"pinedb/pkg/concurrency"
	"pinedb/pkg/logger"
	"pinedb/pkg/page"
)

// Error for when the root record could not be persisted to the header page.
var ErrHeaderFull = errors.New("header page cannot hold another index record")

// BPlusTree is an index that uses a B+Tree as its underlying data structure.
// The tree owns only its root pagenum; all node storage is loaned from the
// buffer pool for the duration of a pin.
//
// A tree-wide latch serializes Insert and Remove against each other and
// against readers.
type BPlusTree struct {
	name            string          // Identifies this index's record in the header page.
	pool            *buffer.Manager // The buffer pool used to store the B+Tree's data.
	rootPN          int64           // The pagenum of this B+Tree's root node, or page.NoPage.
	leafMaxSize     int64
	internalMaxSize int64
	log             logger.Logger
	rwlock          sync.RWMutex
}

// Options tune a BPlusTree. Zero values select the page-derived defaults.
type Options struct {
	LeafMaxSize     int64 // Maximum entries per leaf at rest.
	InternalMaxSize int64 // Maximum children per internal node at rest.
	Logger          logger.Logger
}

// New opens the named index against the given buffer pool, reading its root
// pagenum from the header page. An index that was never written starts empty.
func New(name string, pool *buffer.Manager, opts *Options) (*BPlusTree, error) {
	if name == "" {
		return nil, errors.New("index name must not be empty")
	}
	tree := &BPlusTree{
		name:            name,
		pool:            pool,
		rootPN:          page.NoPage,
		leafMaxSize:     ENTRIES_PER_LEAF_NODE,
		internalMaxSize: ENTRIES_PER_INTERNAL_NODE,
		log:             logger.Discard{},
	}
	if opts != nil {
		if opts.LeafMaxSize > 0 {
			tree.leafMaxSize = opts.LeafMaxSize
		}
		if opts.InternalMaxSize > 0 {
			tree.internalMaxSize = opts.InternalMaxSize
		}
		if opts.Logger != nil {
			tree.log = opts.Logger
		}
	}
	headerPage, err := pool.FetchPage(page.HeaderPageID)
	if err != nil {
		return nil, fmt.Errorf("failed to read header page: %w", err)
	}
	if rootPN, ok := page.AsHeader(headerPage).GetRootPageID(name); ok {
		tree.rootPN = rootPN
	}
	if err := pool.UnpinPage(page.HeaderPageID, false); err != nil {
		return nil, err
	}
	return tree, nil
}

// GetName returns the name of this index.
func (tree *BPlusTree) GetName() string {
	return tree.name
}

// IsEmpty reports whether the tree holds no entries.
func (tree *BPlusTree) IsEmpty() bool {
	tree.rwlock.RLock()
	defer tree.rwlock.RUnlock()
	return tree.rootPN == page.NoPage
}

/////////////////////////////////////////////////////////////////////////////
/////////////////////////////////// Search //////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// GetValue returns the record ids stored under the given key: one element on
// a hit, none on a miss.
func (tree *BPlusTree) GetValue(key int64, txn *concurrency.Transaction) ([]int64, error) {
	tree.rwlock.RLock()
	defer tree.rwlock.RUnlock()
	if tree.rootPN == page.NoPage {
		return nil, nil
	}
	leaf, err := tree.findLeaf(key, false)
	if err != nil {
		return nil, err
	}
	value, found := leaf.lookup(key)
	if err := tree.pool.UnpinPage(leaf.page.GetPageNum(), false); err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return []int64{value}, nil
}

// findLeaf descends from the root to the leaf covering the given key (or the
// leftmost leaf), returning it pinned. Interior pins are released on the way
// down, including on error paths.
func (tree *BPlusTree) findLeaf(key int64, leftmost bool) (*leafNode, error) {
	pagenum := tree.rootPN
	curPage, err := tree.pool.FetchPage(pagenum)
	if err != nil {
		return nil, err
	}
	for nodeTypeOf(curPage) != LEAF_NODE {
		curNode := asInternalNode(curPage)
		var childPagenum int64
		if leftmost {
			childPagenum = curNode.valueAt(0)
		} else {
			childPagenum = curNode.lookup(key)
		}
		childPage, err := tree.pool.FetchPage(childPagenum)
		if err != nil {
			tree.pool.UnpinPage(pagenum, false)
			return nil, err
		}
		tree.pool.UnpinPage(pagenum, false)
		curPage = childPage
		pagenum = childPagenum
	}
	return asLeafNode(curPage), nil
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////////////// Insertion ////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Insert adds (key, value) to the tree. Returns false with no error when the
// key is already present.
func (tree *BPlusTree) Insert(key int64, value int64, txn *concurrency.Transaction) (bool, error) {
	tree.rwlock.Lock()
	defer tree.rwlock.Unlock()
	if tree.rootPN == page.NoPage {
		return true, tree.startNewTree(key, value)
	}
	leaf, err := tree.findLeaf(key, false)
	if err != nil {
		return false, err
	}
	leafPN := leaf.page.GetPageNum()
	if _, found := leaf.lookup(key); found {
		tree.pool.UnpinPage(leafPN, false)
		return false, nil
	}
	leaf.insert(key, value)
	if leaf.getSize() <= leaf.getMaxSize() {
		return true, tree.pool.UnpinPage(leafPN, true)
	}
	// The leaf overflowed into its spare slot. Split it and propagate.
	sibling, err := tree.splitLeaf(leaf)
	if err != nil {
		// Put the leaf back the way we found it.
		leaf.removeAndDeleteRecord(key)
		tree.pool.UnpinPage(leafPN, false)
		return false, err
	}
	siblingPN := sibling.page.GetPageNum()
	err = tree.insertIntoParent(leaf, sibling.keyAt(0), sibling)
	tree.pool.UnpinPage(leafPN, true)
	tree.pool.UnpinPage(siblingPN, true)
	return err == nil, err
}

// startNewTree creates a root leaf holding the first entry.
func (tree *BPlusTree) startNewTree(key int64, value int64) error {
	rootPage, err := tree.pool.NewPage()
	if err != nil {
		return err
	}
	rootPN := rootPage.GetPageNum()
	root := asLeafNode(rootPage)
	root.init(rootPN, page.NoPage, tree.leafMaxSize)
	root.insert(key, value)
	tree.rootPN = rootPN
	if err := tree.updateRootPageNum(); err != nil {
		tree.rootPN = page.NoPage
		tree.pool.UnpinPage(rootPN, false)
		tree.pool.DeletePage(rootPN)
		return err
	}
	tree.log.Debug("started new tree", "index", tree.name, "root", rootPN)
	return tree.pool.UnpinPage(rootPN, true)
}

// splitLeaf allocates a sibling, moves the upper half of the leaf's entries
// into it, and threads the next-leaf chain through it.
func (tree *BPlusTree) splitLeaf(leaf *leafNode) (*leafNode, error) {
	siblingPage, err := tree.pool.NewPage()
	if err != nil {
		return nil, err
	}
	sibling := asLeafNode(siblingPage)
	sibling.init(siblingPage.GetPageNum(), leaf.getParentPageNum(), leaf.getMaxSize())
	leaf.moveHalfTo(sibling)
	sibling.setNextPageNum(leaf.getNextPageNum())
	leaf.setNextPageNum(siblingPage.GetPageNum())
	return sibling, nil
}

// splitInternal allocates a sibling and moves the upper half of the node's
// pairs into it, re-parenting the moved children.
func (tree *BPlusTree) splitInternal(n *internalNode) (*internalNode, error) {
	siblingPage, err := tree.pool.NewPage()
	if err != nil {
		return nil, err
	}
	sibling := asInternalNode(siblingPage)
	sibling.init(siblingPage.GetPageNum(), n.getParentPageNum(), n.getMaxSize())
	if err := n.moveHalfTo(sibling, tree.pool); err != nil {
		tree.pool.UnpinPage(siblingPage.GetPageNum(), true)
		return nil, err
	}
	return sibling, nil
}

// insertIntoParent links a freshly split right node into the parent of left,
// splitting the parent recursively while it overflows. Pins on left and
// right stay with the caller; pages fetched here are released here.
func (tree *BPlusTree) insertIntoParent(left Node, key int64, right Node) error {
	leftPN := left.getPage().GetPageNum()
	rightPN := right.getPage().GetPageNum()
	if left.isRoot() {
		rootPage, err := tree.pool.NewPage()
		if err != nil {
			return err
		}
		rootPN := rootPage.GetPageNum()
		root := asInternalNode(rootPage)
		root.init(rootPN, page.NoPage, tree.internalMaxSize)
		root.populateNewRoot(leftPN, key, rightPN)
		left.setParentPageNum(rootPN)
		right.setParentPageNum(rootPN)
		tree.rootPN = rootPN
		if err := tree.updateRootPageNum(); err != nil {
			tree.pool.UnpinPage(rootPN, true)
			return err
		}
		tree.log.Debug("split grew tree", "index", tree.name, "root", rootPN)
		return tree.pool.UnpinPage(rootPN, true)
	}
	parentPN := left.getParentPageNum()
	parentPage, err := tree.pool.FetchPage(parentPN)
	if err != nil {
		return err
	}
	parent := asInternalNode(parentPage)
	parent.insertNodeAfter(leftPN, key, rightPN)
	right.setParentPageNum(parentPN)
	if parent.getSize() <= parent.getMaxSize() {
		return tree.pool.UnpinPage(parentPN, true)
	}
	// The parent overflowed into its spare slot; split it and recurse. The
	// pending entry is already in place, so the halves route it naturally and
	// moveHalfTo re-parents right if its slot moved.
	newParent, err := tree.splitInternal(parent)
	if err != nil {
		tree.pool.UnpinPage(parentPN, true)
		return err
	}
	newParentPN := newParent.page.GetPageNum()
	err = tree.insertIntoParent(parent, newParent.keyAt(0), newParent)
	tree.pool.UnpinPage(parentPN, true)
	tree.pool.UnpinPage(newParentPN, true)
	return err
}

/////////////////////////////////////////////////////////////////////////////
/////////////////////////////////// Removal /////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Remove deletes the entry with the given key. Removing an absent key is a
// no-op.
func (tree *BPlusTree) Remove(key int64, txn *concurrency.Transaction) error {
	tree.rwlock.Lock()
	defer tree.rwlock.Unlock()
	if tree.rootPN == page.NoPage {
		return nil
	}
	leaf, err := tree.findLeaf(key, false)
	if err != nil {
		return err
	}
	leafPN := leaf.page.GetPageNum()
	oldSize := leaf.getSize()
	newSize := leaf.removeAndDeleteRecord(key)
	if newSize == oldSize {
		return tree.pool.UnpinPage(leafPN, false)
	}
	if !leaf.isRoot() && newSize < leaf.getMinSize() {
		return tree.coalesceOrRedistribute(leaf)
	}
	if leaf.isRoot() && newSize == 0 {
		return tree.adjustRoot(leaf)
	}
	return tree.pool.UnpinPage(leafPN, true)
}

// coalesceOrRedistribute repairs an underflowing node by borrowing an entry
// from a sibling or merging with it, recursing up when the parent underflows
// in turn. Takes over the pin on n.
func (tree *BPlusTree) coalesceOrRedistribute(n Node) error {
	if n.isRoot() {
		return tree.adjustRoot(n)
	}
	nodePN := n.getPage().GetPageNum()
	parentPN := n.getParentPageNum()
	parentPage, err := tree.pool.FetchPage(parentPN)
	if err != nil {
		tree.pool.UnpinPage(nodePN, true)
		return err
	}
	parent := asInternalNode(parentPage)
	nodeIdx := parent.valueIndex(nodePN)
	// Prefer the left sibling; fall back to the right for the first child.
	siblingIdx := nodeIdx - 1
	if nodeIdx == 0 {
		siblingIdx = 1
	}
	siblingPN := parent.valueAt(siblingIdx)
	siblingPage, err := tree.pool.FetchPage(siblingPN)
	if err != nil {
		tree.pool.UnpinPage(nodePN, true)
		tree.pool.UnpinPage(parentPN, false)
		return err
	}
	sibling := pageToNode(siblingPage)

	if sibling.getSize()+n.getSize() > n.getMaxSize() {
		err := tree.redistribute(sibling, n, parent, nodeIdx)
		tree.pool.UnpinPage(nodePN, true)
		tree.pool.UnpinPage(siblingPN, true)
		if err != nil {
			tree.pool.UnpinPage(parentPN, true)
			return err
		}
		return tree.pool.UnpinPage(parentPN, true)
	}
	return tree.coalesce(sibling, n, parent, nodeIdx)
}

// redistribute moves a single entry from sibling into n across their shared
// separator in parent: a left sibling gives its last entry to n's front, a
// right sibling gives its first entry to n's end.
func (tree *BPlusTree) redistribute(sibling Node, n Node, parent *internalNode, nodeIdx int64) error {
	switch underflowed := n.(type) {
	case *leafNode:
		if nodeIdx == 0 {
			sibling.(*leafNode).moveFirstToEndOf(underflowed, parent, 1)
		} else {
			sibling.(*leafNode).moveLastToFrontOf(underflowed, parent, nodeIdx)
		}
		return nil
	case *internalNode:
		if nodeIdx == 0 {
			return sibling.(*internalNode).moveFirstToEndOf(underflowed, parent, 1, tree.pool)
		}
		return sibling.(*internalNode).moveLastToFrontOf(underflowed, parent, nodeIdx, tree.pool)
	}
	return fmt.Errorf("unknown node type for page %d", n.getPage().GetPageNum())
}

// coalesce merges the right of (n, sibling) into the left, deletes the
// emptied page, and removes the separator from parent, recursing when the
// parent underflows. Consumes the pins on n and sibling.
func (tree *BPlusTree) coalesce(sibling Node, n Node, parent *internalNode, nodeIdx int64) error {
	parentPN := parent.page.GetPageNum()
	left, right := sibling, n
	rightIdx := nodeIdx
	if nodeIdx == 0 {
		left, right = n, sibling
		rightIdx = 1
	}
	leftPN := left.getPage().GetPageNum()
	rightPN := right.getPage().GetPageNum()

	var moveErr error
	switch emptied := right.(type) {
	case *leafNode:
		emptied.moveAllTo(left.(*leafNode))
	case *internalNode:
		moveErr = emptied.moveAllTo(left.(*internalNode), parent.keyAt(rightIdx), tree.pool)
	}
	tree.pool.UnpinPage(leftPN, true)
	tree.pool.UnpinPage(rightPN, true)
	if moveErr != nil {
		tree.pool.UnpinPage(parentPN, true)
		return moveErr
	}
	if err := tree.pool.DeletePage(rightPN); err != nil {
		tree.pool.UnpinPage(parentPN, true)
		return err
	}
	parent.remove(rightIdx)
	if !parent.isRoot() && parent.getSize() < parent.getMinSize() {
		return tree.coalesceOrRedistribute(parent)
	}
	if parent.isRoot() && parent.getSize() == 1 {
		return tree.adjustRoot(parent)
	}
	return tree.pool.UnpinPage(parentPN, true)
}

// adjustRoot handles an underflowing root: an internal root with a single
// child hands the root role to that child, and an empty leaf root leaves the
// tree empty. Consumes the pin on root.
func (tree *BPlusTree) adjustRoot(root Node) error {
	rootPN := root.getPage().GetPageNum()
	if root.getNodeType() == INTERNAL_NODE && root.getSize() == 1 {
		newRootPN := root.(*internalNode).removeAndReturnOnlyChild()
		tree.rootPN = newRootPN
		if err := tree.updateRootPageNum(); err != nil {
			tree.pool.UnpinPage(rootPN, true)
			return err
		}
		childPage, err := tree.pool.FetchPage(newRootPN)
		if err != nil {
			tree.pool.UnpinPage(rootPN, true)
			return err
		}
		newRoot := node{page: childPage}
		newRoot.setParentPageNum(page.NoPage)
		tree.pool.UnpinPage(newRootPN, true)
		tree.pool.UnpinPage(rootPN, false)
		tree.log.Debug("root collapsed", "index", tree.name, "root", newRootPN)
		return tree.pool.DeletePage(rootPN)
	}
	if root.getNodeType() == LEAF_NODE && root.getSize() == 0 {
		tree.rootPN = page.NoPage
		if err := tree.updateRootPageNum(); err != nil {
			tree.pool.UnpinPage(rootPN, true)
			return err
		}
		tree.pool.UnpinPage(rootPN, false)
		tree.log.Debug("tree emptied", "index", tree.name)
		return tree.pool.DeletePage(rootPN)
	}
	return tree.pool.UnpinPage(rootPN, true)
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// Header page ///////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// updateRootPageNum persists the tree's root pagenum to the header page,
// inserting the record on the first root and updating it afterwards.
func (tree *BPlusTree) updateRootPageNum() error {
	headerPage, err := tree.pool.FetchPage(page.HeaderPageID)
	if err != nil {
		return err
	}
	header := page.AsHeader(headerPage)
	if !header.UpdateRecord(tree.name, tree.rootPN) {
		if !header.InsertRecord(tree.name, tree.rootPN) {
			tree.pool.UnpinPage(page.HeaderPageID, false)
			return ErrHeaderFull
		}
	}
	return tree.pool.UnpinPage(page.HeaderPageID, true)
}
