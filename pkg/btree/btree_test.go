package btree_test

import (
	"math/rand"
	"os"
	"sort"
	"testing"

	"pinedb/pkg/btree"
	"pinedb/pkg/buffer"
	"pinedb/pkg/concurrency"
	"pinedb/pkg/disk"
	"pinedb/pkg/entry"

	"github.com/otiai10/copy"
	"golang.org/x/sync/errgroup"
)

// Mod vals by this value to prevent hardcoding tests
var btreeSalt = rand.Int63n(1000) + 1

// Given a key, deterministically generates a "random" value based on a salt.
func generateValue(key int64) int64 {
	return key*btreeSalt + 1
}

// testDB bundles the storage stack a tree under test runs on.
type testDB struct {
	tree *btree.BPlusTree
	pool *buffer.Manager
	disk *disk.Manager
	path string
}

// setupBTree creates an empty B+Tree named "test" over a fresh database file.
func setupBTree(t *testing.T, opts *btree.Options) *testDB {
	t.Parallel()
	tmpfile, err := os.CreateTemp("", "*.db")
	if err != nil {
		t.Fatal(err)
	}
	_ = tmpfile.Close()
	t.Cleanup(func() { _ = os.Remove(tmpfile.Name()) })
	return openBTree(t, tmpfile.Name(), opts)
}

// openBTree opens the "test" index stored in the given database file.
func openBTree(t *testing.T, path string, opts *btree.Options) *testDB {
	diskManager, err := disk.NewManager(path, nil)
	if err != nil {
		t.Fatal("Failed to open disk manager:", err)
	}
	t.Cleanup(func() { _ = diskManager.Close() })
	pool := buffer.NewManager(32, diskManager, nil, nil)
	tree, err := btree.New("test", pool, opts)
	if err != nil {
		t.Fatal("Failed to open BTree index:", err)
	}
	return &testDB{tree: tree, pool: pool, disk: diskManager, path: path}
}

// insertEntry inserts (key, generateValue(key)), failing the test on error
// or duplicate.
func insertEntry(t *testing.T, tree *btree.BPlusTree, key int64) {
	t.Helper()
	inserted, err := tree.Insert(key, generateValue(key), concurrency.NewTransaction())
	if err != nil {
		t.Fatalf("Failed to insert key %d: %s", key, err)
	}
	if !inserted {
		t.Fatalf("Insert of key %d reported a duplicate", key)
	}
}

// checkFind verifies that the entry for key is present with its expected value.
func checkFind(t *testing.T, tree *btree.BPlusTree, key int64) {
	t.Helper()
	values, err := tree.GetValue(key, concurrency.NewTransaction())
	if err != nil {
		t.Fatalf("GetValue(%d) failed: %s", key, err)
	}
	if len(values) != 1 || values[0] != generateValue(key) {
		t.Fatalf("GetValue(%d) = %v, want [%d]", key, values, generateValue(key))
	}
}

// checkAbsent verifies that no entry for key is present.
func checkAbsent(t *testing.T, tree *btree.BPlusTree, key int64) {
	t.Helper()
	values, err := tree.GetValue(key, concurrency.NewTransaction())
	if err != nil {
		t.Fatalf("GetValue(%d) failed: %s", key, err)
	}
	if len(values) != 0 {
		t.Fatalf("GetValue(%d) = %v, want no results", key, values)
	}
}

// collectEntries drains a cursor opened at the start of the tree.
func collectEntries(t *testing.T, tree *btree.BPlusTree) []entry.Entry {
	t.Helper()
	c, err := tree.CursorAtStart()
	if err != nil {
		t.Fatal("Failed to open cursor:", err)
	}
	defer c.Close()
	entries := make([]entry.Entry, 0)
	for {
		e, err := c.GetEntry()
		if err != nil {
			t.Fatal("Cursor returned an invalid entry:", err)
		}
		entries = append(entries, e)
		if c.Next() {
			return entries
		}
	}
}

// verifyTree runs the tree's structural invariant checks.
func verifyTree(t *testing.T, tree *btree.BPlusTree) {
	t.Helper()
	if err := tree.Verify(); err != nil {
		t.Fatal("Tree invariants violated:", err)
	}
}

func TestBTreeInsertAndGet(t *testing.T) {
	db := setupBTree(t, nil)
	keys := rand.Perm(1000)
	for _, key := range keys {
		insertEntry(t, db.tree, int64(key))
	}
	verifyTree(t, db.tree)
	for _, key := range keys {
		checkFind(t, db.tree, int64(key))
	}
	checkAbsent(t, db.tree, 5000)
}

func TestBTreeDuplicateInsertIsRejected(t *testing.T) {
	db := setupBTree(t, nil)
	insertEntry(t, db.tree, 42)
	inserted, err := db.tree.Insert(42, 999, concurrency.NewTransaction())
	if err != nil {
		t.Fatal("Duplicate insert should not error:", err)
	}
	if inserted {
		t.Fatal("Duplicate insert reported success")
	}
	// The original value survives.
	checkFind(t, db.tree, 42)
}

func TestBTreeLeafSplit(t *testing.T) {
	db := setupBTree(t, &btree.Options{LeafMaxSize: 3, InternalMaxSize: 3})
	for _, key := range []int64{10, 20, 30, 40} {
		insertEntry(t, db.tree, key)
	}
	verifyTree(t, db.tree)
	entries := collectEntries(t, db.tree)
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries after split, got %d", len(entries))
	}
	for i, want := range []int64{10, 20, 30, 40} {
		if entries[i].Key != want {
			t.Errorf("entry %d has key %d, want %d", i, entries[i].Key, want)
		}
	}
}

func TestBTreeDeleteCoalescesIntoRoot(t *testing.T) {
	db := setupBTree(t, &btree.Options{LeafMaxSize: 3, InternalMaxSize: 3})
	txn := concurrency.NewTransaction()
	for _, key := range []int64{10, 20, 30, 40} {
		insertEntry(t, db.tree, key)
	}
	if err := db.tree.Remove(30, txn); err != nil {
		t.Fatal(err)
	}
	if err := db.tree.Remove(40, txn); err != nil {
		t.Fatal(err)
	}
	verifyTree(t, db.tree)
	checkFind(t, db.tree, 10)
	checkFind(t, db.tree, 20)
	checkAbsent(t, db.tree, 30)
	checkAbsent(t, db.tree, 40)

	// Emptying the tree entirely resets the root.
	if err := db.tree.Remove(10, txn); err != nil {
		t.Fatal(err)
	}
	if err := db.tree.Remove(20, txn); err != nil {
		t.Fatal(err)
	}
	if !db.tree.IsEmpty() {
		t.Fatal("tree should be empty after removing every key")
	}
}

func TestBTreeRemoveAbsentKeyIsNoop(t *testing.T) {
	db := setupBTree(t, nil)
	for key := int64(0); key < 50; key++ {
		insertEntry(t, db.tree, key)
	}
	if err := db.tree.Remove(500, concurrency.NewTransaction()); err != nil {
		t.Fatal("Removing an absent key should not error:", err)
	}
	verifyTree(t, db.tree)
	if got := len(collectEntries(t, db.tree)); got != 50 {
		t.Fatalf("entry count changed after a no-op remove: %d", got)
	}
}

func TestBTreeRemoveFromEmptyTree(t *testing.T) {
	db := setupBTree(t, nil)
	if err := db.tree.Remove(1, concurrency.NewTransaction()); err != nil {
		t.Fatal("Removing from an empty tree should not error:", err)
	}
	if _, err := db.tree.CursorAtStart(); err == nil {
		t.Fatal("cursor over an empty tree should fail")
	}
}

func TestBTreeRandomOperations(t *testing.T) {
	// Small nodes force deep trees and heavy eviction through the pool.
	db := setupBTree(t, &btree.Options{LeafMaxSize: 4, InternalMaxSize: 4})
	txn := concurrency.NewTransaction()
	oracle := make(map[int64]bool)
	for i, key := range rand.Perm(800) {
		insertEntry(t, db.tree, int64(key))
		oracle[int64(key)] = true
		if i%100 == 99 {
			verifyTree(t, db.tree)
		}
	}
	for key := int64(0); key < 800; key += 2 {
		if err := db.tree.Remove(key, txn); err != nil {
			t.Fatalf("Remove(%d) failed: %s", key, err)
		}
		delete(oracle, key)
		if key%100 == 98 {
			verifyTree(t, db.tree)
		}
	}
	verifyTree(t, db.tree)

	want := make([]int64, 0, len(oracle))
	for key := range oracle {
		want = append(want, key)
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	entries := collectEntries(t, db.tree)
	if len(entries) != len(want) {
		t.Fatalf("tree holds %d entries, oracle holds %d", len(entries), len(want))
	}
	for i, key := range want {
		if entries[i].Key != key || entries[i].Value != generateValue(key) {
			t.Fatalf("entry %d = (%d, %d), want (%d, %d)",
				i, entries[i].Key, entries[i].Value, key, generateValue(key))
		}
	}
}

func TestBTreeCursorAt(t *testing.T) {
	db := setupBTree(t, &btree.Options{LeafMaxSize: 4, InternalMaxSize: 4})
	for key := int64(0); key < 100; key += 2 {
		insertEntry(t, db.tree, key)
	}
	// Start at a present key.
	c, err := db.tree.CursorAt(40)
	if err != nil {
		t.Fatal(err)
	}
	e, err := c.GetEntry()
	c.Close()
	if err != nil || e.Key != 40 {
		t.Fatalf("cursor at existing key points at %d (%v), want 40", e.Key, err)
	}
	// Start at an absent key lands on its successor.
	c, err = db.tree.CursorAt(41)
	if err != nil {
		t.Fatal(err)
	}
	e, err = c.GetEntry()
	c.Close()
	if err != nil || e.Key != 42 {
		t.Fatalf("cursor at absent key points at %d (%v), want 42", e.Key, err)
	}
}

func TestBTreeRootChangePersistence(t *testing.T) {
	db := setupBTree(t, &btree.Options{LeafMaxSize: 3, InternalMaxSize: 3})
	for key := int64(0); key < 40; key++ {
		insertEntry(t, db.tree, key)
	}
	if err := db.pool.FlushAllPages(); err != nil {
		t.Fatal(err)
	}

	// A fresh index instance against the same pool observes the current root
	// through the header page.
	reopened, err := btree.New("test", db.pool, &btree.Options{LeafMaxSize: 3, InternalMaxSize: 3})
	if err != nil {
		t.Fatal(err)
	}
	for key := int64(0); key < 40; key++ {
		checkFind(t, reopened, key)
	}
}

func TestBTreePersistsAcrossFileCopy(t *testing.T) {
	db := setupBTree(t, nil)
	for key := int64(0); key < 500; key++ {
		insertEntry(t, db.tree, key)
	}
	if err := db.pool.FlushAllPages(); err != nil {
		t.Fatal(err)
	}

	// Clone the database file and open a brand new stack against the clone.
	clonePath := db.path + ".clone"
	if err := copy.Copy(db.path, clonePath); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(clonePath) })
	cloned := openBTree(t, clonePath, nil)
	verifyTree(t, cloned.tree)
	for key := int64(0); key < 500; key++ {
		checkFind(t, cloned.tree, key)
	}
}

func TestBTreeConcurrentReads(t *testing.T) {
	db := setupBTree(t, nil)
	const numKeys = 400
	for key := int64(0); key < numKeys; key++ {
		insertEntry(t, db.tree, key)
	}
	var group errgroup.Group
	for w := 0; w < 4; w++ {
		group.Go(func() error {
			for key := int64(0); key < numKeys; key++ {
				values, err := db.tree.GetValue(key, concurrency.NewTransaction())
				if err != nil {
					return err
				}
				if len(values) != 1 || values[0] != generateValue(key) {
					t.Errorf("concurrent GetValue(%d) = %v", key, values)
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		t.Fatal(err)
	}
}
