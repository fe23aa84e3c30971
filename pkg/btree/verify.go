package btree

import (
	"fmt"
	"math"

	"pinedb/pkg/page"
)

// Verify walks the whole tree and checks its structural invariants: size
// bounds on non-root nodes, uniform leaf depth, strictly increasing keys,
// separator-bounded subtrees, consistent parent pointers, and a next-leaf
// chain that enumerates every key in ascending order.
func (tree *BPlusTree) Verify() error {
	tree.rwlock.RLock()
	defer tree.rwlock.RUnlock()
	if tree.rootPN == page.NoPage {
		return nil
	}
	leafDepth := int64(-1)
	treeKeys, err := tree.verifyNode(tree.rootPN, page.NoPage, 0, &leafDepth, math.MinInt64, math.MaxInt64)
	if err != nil {
		return err
	}
	chainKeys, err := tree.walkLeafChain()
	if err != nil {
		return err
	}
	if treeKeys != chainKeys {
		return fmt.Errorf("leaf chain enumerates %d keys, tree holds %d", chainKeys, treeKeys)
	}
	return nil
}

// verifyNode checks one node and recurses into its children, returning the
// number of keys in the subtree. Keys in the subtree must lie in [lo, hi).
func (tree *BPlusTree) verifyNode(pagenum int64, parentPN int64, depth int64, leafDepth *int64, lo int64, hi int64) (int64, error) {
	curPage, err := tree.pool.FetchPage(pagenum)
	if err != nil {
		return 0, err
	}
	defer tree.pool.UnpinPage(pagenum, false)
	n := pageToNode(curPage)
	size := n.getSize()
	if n.getParentPageNum() != parentPN {
		return 0, fmt.Errorf("page %d records parent %d, reached from %d", pagenum, n.getParentPageNum(), parentPN)
	}
	if !n.isRoot() && (size < n.getMinSize() || size > n.getMaxSize()) {
		return 0, fmt.Errorf("page %d has size %d outside [%d, %d]", pagenum, size, n.getMinSize(), n.getMaxSize())
	}

	if leaf, ok := n.(*leafNode); ok {
		if *leafDepth == -1 {
			*leafDepth = depth
		} else if *leafDepth != depth {
			return 0, fmt.Errorf("leaf %d at depth %d, expected %d", pagenum, depth, *leafDepth)
		}
		prev := int64(math.MinInt64)
		for i := int64(0); i < size; i++ {
			key := leaf.keyAt(i)
			if i > 0 && key <= prev {
				return 0, fmt.Errorf("leaf %d keys not strictly increasing at index %d", pagenum, i)
			}
			if key < lo || key >= hi {
				return 0, fmt.Errorf("leaf %d key %d outside subtree range [%d, %d)", pagenum, key, lo, hi)
			}
			prev = key
		}
		return size, nil
	}

	internal := n.(*internalNode)
	keyCount := int64(0)
	for i := int64(0); i < size; i++ {
		childLo, childHi := lo, hi
		if i > 0 {
			childLo = internal.keyAt(i)
			if i > 1 && internal.keyAt(i) <= internal.keyAt(i-1) {
				return 0, fmt.Errorf("internal %d keys not strictly increasing at index %d", pagenum, i)
			}
		}
		if i+1 < size {
			childHi = internal.keyAt(i + 1)
		}
		childKeys, err := tree.verifyNode(internal.valueAt(i), pagenum, depth+1, leafDepth, childLo, childHi)
		if err != nil {
			return 0, err
		}
		keyCount += childKeys
	}
	return keyCount, nil
}

// walkLeafChain follows the next-leaf pointers from the leftmost leaf and
// returns the number of keys seen, checking ascending order along the way.
func (tree *BPlusTree) walkLeafChain() (int64, error) {
	leaf, err := tree.findLeaf(0, true)
	if err != nil {
		return 0, err
	}
	count := int64(0)
	prev := int64(math.MinInt64)
	first := true
	for {
		pagenum := leaf.page.GetPageNum()
		for i := int64(0); i < leaf.getSize(); i++ {
			key := leaf.keyAt(i)
			if !first && key <= prev {
				tree.pool.UnpinPage(pagenum, false)
				return 0, fmt.Errorf("leaf chain out of order at key %d in page %d", key, pagenum)
			}
			prev = key
			first = false
			count++
		}
		nextPN := leaf.getNextPageNum()
		tree.pool.UnpinPage(pagenum, false)
		if nextPN == page.NoPage {
			return count, nil
		}
		nextPage, err := tree.pool.FetchPage(nextPN)
		if err != nil {
			return 0, err
		}
		leaf = asLeafNode(nextPage)
	}
}
