package buffer

import (
	"errors"
	"sync"

	"pinedb/pkg/config"
	"pinedb/pkg/disk"
	"pinedb/pkg/hash"
	"pinedb/pkg/list"
	"pinedb/pkg/logger"
	"pinedb/pkg/page"
	"pinedb/pkg/wal"

	"github.com/ncw/directio"
)

// Error for when there are no free frames and every frame is pinned.
var ErrNoFreeFrames = errors.New("no available frames")

// Error for when the requested page is not resident in the pool.
var ErrPageNotFound = errors.New("page not found in buffer pool")

// Error for unpinning a page whose pin count is already zero.
var ErrBadUnpin = errors.New("pin count is already zero")

// Error for deleting a page that is still pinned.
var ErrPagePinned = errors.New("page is pinned")

// Manager is the buffer pool manager. It caches disk pages in a fixed array
// of frames, loaning them out under pin-based leases. Every frame is on the
// free list, in the replacer, or pinned; the page table maps the pagenum of
// each resident page to its frame.
type Manager struct {
	frames      []*page.Page                  // The fixed array of frames owned by the pool.
	diskManager *disk.Manager                 // Byte-level page I/O.
	logManager  *wal.LogManager               // Optional; flushed before any dirty page write.
	pageTable   *hash.Table[int64, *page.Page] // Maps resident pagenums to their frames.
	replacer    *LRUReplacer[*page.Page]      // Unpinned frames, in eviction order.
	freeList    *list.List[*page.Page]        // Frames not holding any page.
	log         logger.Logger
	mtx         sync.Mutex // Guards the page table, free list and replacer together.
}

// NewManager constructs a buffer pool with poolSize frames carved from a
// single aligned allocation. A non-positive poolSize selects the configured
// default; logManager and log may be nil.
func NewManager(poolSize int, diskManager *disk.Manager, logManager *wal.LogManager, log logger.Logger) *Manager {
	if poolSize <= 0 {
		poolSize = config.MaxPagesInBuffer
	}
	if log == nil {
		log = logger.Discard{}
	}
	manager := &Manager{
		frames:      make([]*page.Page, 0, poolSize),
		diskManager: diskManager,
		logManager:  logManager,
		pageTable:   hash.NewTable[int64, *page.Page](hash.DefaultBucketSize, hash.XxHasher),
		replacer:    NewLRUReplacer[*page.Page](),
		freeList:    list.NewList[*page.Page](),
		log:         log,
	}
	block := directio.AlignedBlock(int(page.Pagesize) * poolSize)
	for i := 0; i < poolSize; i++ {
		frame := page.New(block[int64(i)*page.Pagesize : int64(i+1)*page.Pagesize])
		manager.frames = append(manager.frames, frame)
		manager.freeList.PushTail(frame)
	}
	return manager
}

// PoolSize returns the number of frames owned by the pool.
func (manager *Manager) PoolSize() int {
	return len(manager.frames)
}

// FetchPage returns a pinned frame holding the given pagenum, reading it from
// disk if it is not already resident. Returns ErrNoFreeFrames when every
// frame is pinned.
func (manager *Manager) FetchPage(pagenum int64) (*page.Page, error) {
	manager.mtx.Lock()
	defer manager.mtx.Unlock()
	if resident, ok := manager.pageTable.Find(pagenum); ok {
		if resident.GetPinCount() == 0 {
			manager.replacer.Erase(resident)
		}
		resident.Get()
		return resident, nil
	}
	frame, err := manager.freeFrame()
	if err != nil {
		return nil, err
	}
	frame.Init(pagenum)
	if err := manager.diskManager.ReadPage(pagenum, frame.GetData()); err != nil {
		frame.Reset()
		manager.freeList.PushTail(frame)
		return nil, err
	}
	manager.pageTable.Insert(pagenum, frame)
	return frame, nil
}

// UnpinPage releases one pin on the given pagenum, OR-ing dirty into the
// frame's dirty flag. When the pin count reaches zero the frame becomes
// evictable. Fails if the page is not resident or not pinned.
func (manager *Manager) UnpinPage(pagenum int64, dirty bool) error {
	manager.mtx.Lock()
	defer manager.mtx.Unlock()
	resident, ok := manager.pageTable.Find(pagenum)
	if !ok {
		return ErrPageNotFound
	}
	if resident.GetPinCount() <= 0 {
		return ErrBadUnpin
	}
	if dirty {
		resident.SetDirty(true)
	}
	if resident.Put() == 0 {
		manager.replacer.Insert(resident)
	}
	return nil
}

// FlushPage writes the given pagenum's bytes to disk if it is resident,
// clearing the dirty flag. The pin count is unchanged.
func (manager *Manager) FlushPage(pagenum int64) error {
	manager.mtx.Lock()
	defer manager.mtx.Unlock()
	resident, ok := manager.pageTable.Find(pagenum)
	if !ok {
		return ErrPageNotFound
	}
	return manager.flushFrame(resident)
}

// FlushAllPages writes every resident dirty page to disk.
func (manager *Manager) FlushAllPages() error {
	manager.mtx.Lock()
	defer manager.mtx.Unlock()
	for _, frame := range manager.frames {
		if frame.GetPageNum() == page.NoPage {
			continue
		}
		if err := manager.flushFrame(frame); err != nil {
			return err
		}
	}
	return nil
}

// NewPage allocates a fresh pagenum and returns a pinned, zeroed frame for
// it. Returns ErrNoFreeFrames when every frame is pinned.
func (manager *Manager) NewPage() (*page.Page, error) {
	manager.mtx.Lock()
	defer manager.mtx.Unlock()
	frame, err := manager.freeFrame()
	if err != nil {
		return nil, err
	}
	pagenum := manager.diskManager.AllocatePage()
	frame.Init(pagenum)
	frame.Zero()
	manager.pageTable.Insert(pagenum, frame)
	return frame, nil
}

// DeletePage releases the given pagenum back to the disk manager. If the
// page is resident its frame returns to the free list; a pinned page cannot
// be deleted.
func (manager *Manager) DeletePage(pagenum int64) error {
	manager.mtx.Lock()
	defer manager.mtx.Unlock()
	resident, ok := manager.pageTable.Find(pagenum)
	if !ok {
		manager.diskManager.DeallocatePage(pagenum)
		return nil
	}
	if resident.GetPinCount() > 0 {
		return ErrPagePinned
	}
	manager.replacer.Erase(resident)
	manager.pageTable.Remove(pagenum)
	resident.Reset()
	manager.freeList.PushTail(resident)
	manager.diskManager.DeallocatePage(pagenum)
	return nil
}

// Close flushes all resident pages. Fails if any page is still pinned.
func (manager *Manager) Close() error {
	manager.mtx.Lock()
	defer manager.mtx.Unlock()
	for _, frame := range manager.frames {
		if frame.GetPageNum() != page.NoPage && frame.GetPinCount() > 0 {
			return errors.New("pages are still pinned on close")
		}
	}
	for _, frame := range manager.frames {
		if frame.GetPageNum() == page.NoPage {
			continue
		}
		if err := manager.flushFrame(frame); err != nil {
			return err
		}
	}
	return nil
}

// freeFrame obtains an unused frame from the free list, or by evicting the
// LRU victim. A dirty victim is written back before its frame is reused.
// Expects the pool mutex to be locked.
func (manager *Manager) freeFrame() (*page.Page, error) {
	if freeLink := manager.freeList.PeekHead(); freeLink != nil {
		freeLink.PopSelf()
		return freeLink.GetValue(), nil
	}
	victim, ok := manager.replacer.Victim()
	if !ok {
		manager.log.Warn("no evictable frames", "pool_size", len(manager.frames))
		return nil, ErrNoFreeFrames
	}
	if err := manager.flushFrame(victim); err != nil {
		// Put the victim back rather than lose its bytes.
		manager.replacer.Insert(victim)
		return nil, err
	}
	manager.pageTable.Remove(victim.GetPageNum())
	manager.log.Debug("evicted page", "pagenum", victim.GetPageNum())
	return victim, nil
}

// flushFrame writes a frame's bytes to disk if dirty, flushing the log
// first. Expects the pool mutex to be locked.
func (manager *Manager) flushFrame(frame *page.Page) error {
	if !frame.IsDirty() {
		return nil
	}
	if manager.logManager != nil {
		if err := manager.logManager.Flush(); err != nil {
			return err
		}
	}
	if err := manager.diskManager.WritePage(frame.GetPageNum(), frame.GetData()); err != nil {
		return err
	}
	frame.SetDirty(false)
	return nil
}
