package buffer

import (
	"math/rand"
	"os"
	"testing"

	"pinedb/pkg/disk"
	"pinedb/pkg/page"
)

// checkFrameInvariant verifies that every frame is accounted for exactly
// once: on the free list, in the replacer, or pinned.
func checkFrameInvariant(t *testing.T, manager *Manager) {
	t.Helper()
	pinned := int64(0)
	resident := int64(0)
	for _, frame := range manager.frames {
		if frame.GetPageNum() == page.NoPage {
			continue
		}
		resident++
		if frame.GetPinCount() > 0 {
			pinned++
		}
	}
	free := manager.freeList.Size()
	evictable := manager.replacer.Size()
	if free+evictable+pinned != int64(len(manager.frames)) {
		t.Fatalf("frames unaccounted for: free=%d evictable=%d pinned=%d pool=%d",
			free, evictable, pinned, len(manager.frames))
	}
	// The page table holds exactly the resident frames.
	tracked := int64(0)
	for _, frame := range manager.frames {
		if frame.GetPageNum() == page.NoPage {
			continue
		}
		mapped, ok := manager.pageTable.Find(frame.GetPageNum())
		if !ok || mapped != frame {
			t.Fatalf("resident page %d not mapped to its frame", frame.GetPageNum())
		}
		tracked++
	}
	if tracked != resident {
		t.Fatalf("page table tracks %d frames, %d are resident", tracked, resident)
	}
}

func TestPoolFrameAccounting(t *testing.T) {
	t.Parallel()
	tmpfile, err := os.CreateTemp("", "*.db")
	if err != nil {
		t.Fatal(err)
	}
	_ = tmpfile.Close()
	t.Cleanup(func() { _ = os.Remove(tmpfile.Name()) })
	diskManager, err := disk.NewManager(tmpfile.Name(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = diskManager.Close() })

	manager := NewManager(8, diskManager, nil, nil)
	checkFrameInvariant(t, manager)

	// Random mix of news, fetches, unpins and deletes.
	live := make(map[int64]int) // pagenum -> pins held by the test
	released := []int64{}       // pages the test no longer pins
	for i := 0; i < 2000; i++ {
		switch rand.Intn(4) {
		case 0:
			p, err := manager.NewPage()
			if err == nil {
				live[p.GetPageNum()]++
			}
		case 1:
			if len(released) > 0 {
				idx := rand.Intn(len(released))
				p, err := manager.FetchPage(released[idx])
				if err == nil {
					live[p.GetPageNum()]++
					released = append(released[:idx], released[idx+1:]...)
				}
			}
		case 2:
			for pagenum, pins := range live {
				if err := manager.UnpinPage(pagenum, rand.Intn(2) == 0); err != nil {
					t.Fatal(err)
				}
				if pins == 1 {
					delete(live, pagenum)
					released = append(released, pagenum)
				} else {
					live[pagenum]--
				}
				break
			}
		case 3:
			if len(released) > 0 {
				idx := rand.Intn(len(released))
				_ = manager.DeletePage(released[idx])
				released = append(released[:idx], released[idx+1:]...)
			}
		}
		checkFrameInvariant(t, manager)
	}
}
