package btree

import (
	"errors"

	"pinedb/pkg/cursor"
	"pinedb/pkg/entry"
	"pinedb/pkg/page"
)

// Error for opening a cursor over an empty tree.
var ErrEmptyTree = errors.New("tree has no entries")

// BTreeCursor iterates through the entries in a B+Tree's leaf nodes in
// ascending key order. The cursor pins exactly its current leaf and holds
// the tree's read latch until Close.
type BTreeCursor struct {
	tree     *BPlusTree // The B+Tree index that this cursor iterates through.
	curNode  *leafNode  // Current leaf node we are pointing at.
	curIndex int64      // The current index within curNode that we are pointing at.
	atEnd    bool       // Set once the cursor has run off the last leaf.
}

// CursorAtStart returns a cursor pointing to the first entry of the B+Tree.
func (tree *BPlusTree) CursorAtStart() (cursor.Cursor, error) {
	tree.rwlock.RLock()
	if tree.rootPN == page.NoPage {
		tree.rwlock.RUnlock()
		return nil, ErrEmptyTree
	}
	leaf, err := tree.findLeaf(0, true)
	if err != nil {
		tree.rwlock.RUnlock()
		return nil, err
	}
	return &BTreeCursor{tree: tree, curNode: leaf, curIndex: 0}, nil
}

// CursorAt returns a cursor pointing to the entry with the given key, or to
// the next entry after where the key would be if it is absent.
func (tree *BPlusTree) CursorAt(key int64) (cursor.Cursor, error) {
	tree.rwlock.RLock()
	if tree.rootPN == page.NoPage {
		tree.rwlock.RUnlock()
		return nil, ErrEmptyTree
	}
	leaf, err := tree.findLeaf(key, false)
	if err != nil {
		tree.rwlock.RUnlock()
		return nil, err
	}
	c := &BTreeCursor{tree: tree, curNode: leaf, curIndex: leaf.keyIndex(key)}
	// The key would sort after this leaf's last entry; start at the next one.
	if c.curIndex >= c.curNode.getSize() {
		c.curIndex = c.curNode.getSize() - 1
		c.Next()
	}
	return c, nil
}

// Next moves the cursor ahead by one entry, following the next-leaf chain
// across node boundaries. Returns true at the end of the tree.
func (c *BTreeCursor) Next() (atEnd bool) {
	if c.atEnd {
		return true
	}
	if c.curIndex+1 >= c.curNode.getSize() {
		nextPN := c.curNode.getNextPageNum()
		if nextPN == page.NoPage {
			c.atEnd = true
			return true
		}
		nextPage, err := c.tree.pool.FetchPage(nextPN)
		if err != nil {
			c.atEnd = true
			return true
		}
		c.tree.pool.UnpinPage(c.curNode.page.GetPageNum(), false)
		c.curNode = asLeafNode(nextPage)
		c.curIndex = 0
		return false
	}
	c.curIndex++
	return false
}

// GetEntry returns the entry currently pointed to by the cursor.
func (c *BTreeCursor) GetEntry() (entry.Entry, error) {
	if c.atEnd || c.curIndex >= c.curNode.getSize() {
		return entry.Entry{}, errors.New("cursor is not pointing at a valid entry")
	}
	return c.curNode.getEntry(c.curIndex), nil
}

// Close releases the cursor's leaf pin and the tree's read latch.
func (c *BTreeCursor) Close() {
	c.tree.pool.UnpinPage(c.curNode.page.GetPageNum(), false)
	c.tree.rwlock.RUnlock()
}
