package btree

import (
	"testing"

	"pinedb/pkg/page"
)

// newTestLeaf formats an in-memory page as a leaf without going through a
// buffer pool.
func newTestLeaf(pagenum int64, maxSize int64) *leafNode {
	p := page.New(make([]byte, page.Pagesize))
	p.Init(pagenum)
	leaf := asLeafNode(p)
	leaf.init(pagenum, page.NoPage, maxSize)
	return leaf
}

// newTestInternal formats an in-memory page as an internal node.
func newTestInternal(pagenum int64, maxSize int64) *internalNode {
	p := page.New(make([]byte, page.Pagesize))
	p.Init(pagenum)
	n := asInternalNode(p)
	n.init(pagenum, page.NoPage, maxSize)
	return n
}

func TestLeafInsertKeepsKeysOrdered(t *testing.T) {
	t.Parallel()
	leaf := newTestLeaf(1, 10)
	for _, key := range []int64{30, 10, 50, 20, 40} {
		leaf.insert(key, key*2)
	}
	if leaf.getSize() != 5 {
		t.Fatalf("expected size 5, got %d", leaf.getSize())
	}
	for i, want := range []int64{10, 20, 30, 40, 50} {
		if got := leaf.keyAt(int64(i)); got != want {
			t.Errorf("slot %d holds key %d, want %d", i, got, want)
		}
	}
	if value, ok := leaf.lookup(40); !ok || value != 80 {
		t.Errorf("lookup(40) = (%d, %v), want (80, true)", value, ok)
	}
	if _, ok := leaf.lookup(35); ok {
		t.Error("lookup of an absent key reported a hit")
	}
}

func TestLeafRemoveAndDeleteRecord(t *testing.T) {
	t.Parallel()
	leaf := newTestLeaf(1, 10)
	for _, key := range []int64{10, 20, 30} {
		leaf.insert(key, key)
	}
	if size := leaf.removeAndDeleteRecord(20); size != 2 {
		t.Fatalf("expected size 2 after delete, got %d", size)
	}
	if size := leaf.removeAndDeleteRecord(99); size != 2 {
		t.Fatalf("deleting an absent key should be a no-op, size %d", size)
	}
	if _, ok := leaf.lookup(20); ok {
		t.Error("deleted key still present")
	}
	if leaf.keyAt(0) != 10 || leaf.keyAt(1) != 30 {
		t.Error("remaining entries not compacted")
	}
}

func TestLeafMoveHalfTo(t *testing.T) {
	t.Parallel()
	leaf := newTestLeaf(1, 3)
	for _, key := range []int64{10, 20, 30, 40} {
		leaf.insert(key, key)
	}
	sibling := newTestLeaf(2, 3)
	leaf.moveHalfTo(sibling)
	if leaf.getSize() != 2 || sibling.getSize() != 2 {
		t.Fatalf("expected 2/2 split, got %d/%d", leaf.getSize(), sibling.getSize())
	}
	if leaf.keyAt(0) != 10 || leaf.keyAt(1) != 20 {
		t.Error("lower half changed")
	}
	if sibling.keyAt(0) != 30 || sibling.keyAt(1) != 40 {
		t.Error("upper half not moved to the sibling")
	}
}

func TestLeafMoveAllToInheritsNextPointer(t *testing.T) {
	t.Parallel()
	left := newTestLeaf(1, 4)
	right := newTestLeaf(2, 4)
	left.insert(10, 10)
	left.insert(20, 20)
	right.insert(30, 30)
	left.setNextPageNum(2)
	right.setNextPageNum(9)

	right.moveAllTo(left)
	if right.getSize() != 0 {
		t.Fatal("emptied node still holds entries")
	}
	if left.getSize() != 3 || left.keyAt(2) != 30 {
		t.Fatal("entries not appended to the left neighbor")
	}
	if left.getNextPageNum() != 9 {
		t.Errorf("recipient should inherit the next pointer, got %d", left.getNextPageNum())
	}
}

func TestLeafRedistributionRotatesSeparator(t *testing.T) {
	t.Parallel()
	parent := newTestInternal(3, 4)
	parent.populateNewRoot(1, 30, 2)
	left := newTestLeaf(1, 4)
	right := newTestLeaf(2, 4)
	left.insert(10, 10)
	left.insert(20, 20)
	right.insert(30, 30)
	right.insert(40, 40)
	right.insert(50, 50)

	// Right gives its first entry to left's end.
	right.moveFirstToEndOf(left, parent, 1)
	if left.getSize() != 3 || left.keyAt(2) != 30 {
		t.Fatal("first entry did not move to the left node's end")
	}
	if parent.keyAt(1) != 40 {
		t.Errorf("separator should follow the right node's new first key, got %d", parent.keyAt(1))
	}

	// Left gives its last entry back to right's front.
	left.moveLastToFrontOf(right, parent, 1)
	if right.getSize() != 3 || right.keyAt(0) != 30 {
		t.Fatal("last entry did not move to the right node's front")
	}
	if parent.keyAt(1) != 30 {
		t.Errorf("separator should follow the moved key, got %d", parent.keyAt(1))
	}
}

func TestInternalLookupBoundaries(t *testing.T) {
	t.Parallel()
	n := newTestInternal(9, 4)
	n.populateNewRoot(100, 10, 200)
	n.insertNodeAfter(200, 20, 300)
	if n.getSize() != 3 {
		t.Fatalf("expected 3 children, got %d", n.getSize())
	}
	cases := map[int64]int64{
		5:  100, // below every separator
		10: 200, // equal to a separator descends right of it
		15: 200,
		20: 300,
		25: 300,
	}
	for key, want := range cases {
		if got := n.lookup(key); got != want {
			t.Errorf("lookup(%d) = %d, want %d", key, got, want)
		}
	}
}

func TestInternalValueIndexAndRemove(t *testing.T) {
	t.Parallel()
	n := newTestInternal(9, 4)
	n.populateNewRoot(100, 10, 200)
	n.insertNodeAfter(200, 20, 300)
	if idx := n.valueIndex(200); idx != 1 {
		t.Fatalf("valueIndex(200) = %d, want 1", idx)
	}
	if idx := n.valueIndex(999); idx != -1 {
		t.Fatalf("valueIndex of an absent child should be -1, got %d", idx)
	}
	n.remove(1)
	if n.getSize() != 2 || n.valueAt(1) != 300 || n.keyAt(1) != 20 {
		t.Error("remove did not compact the remaining pairs")
	}
}
