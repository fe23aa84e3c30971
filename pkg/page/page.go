// Package page implements the fixed-size page abstraction shared by the
// buffer pool and the typed page layouts built on top of it.
package page

import (
	"sync"
	"sync/atomic"

	"github.com/ncw/directio"
)

// Pagesize is the size of an individual page (ie the maximum number of bytes
// that the page can hold) - defaults to 4kb.
const Pagesize int64 = directio.BlockSize

// NoPage is the pagenum for when there is no page being held.
const NoPage int64 = -1

// HeaderPageID is the reserved pagenum of the header page, which stores the
// root page id of every index in the database.
const HeaderPageID int64 = 0

// Page caches a page from disk and stores additional metadata.
type Page struct {
	pagenum  int64        // Unique identifier for the page, also its position in the backing file
	pinCount atomic.Int64 // The number of active references to this page
	dirty    bool         // Whether the page's data has changed and needs to be written to disk
	rwlock   sync.RWMutex // Reader-writer lock on the page contents
	data     []byte       // Serialized data (the actual 4096 bytes of the page)
}

// New wraps the given frame buffer in a Page holding no data.
// The frame must be Pagesize bytes long.
func New(frame []byte) *Page {
	return &Page{pagenum: NoPage, data: frame}
}

// GetPageNum returns the page's pagenum (unique identifier).
func (page *Page) GetPageNum() int64 {
	return page.pagenum
}

// IsDirty reports whether the page's data has changed and needs to be written to disk.
func (page *Page) IsDirty() bool {
	return page.dirty
}

// SetDirty changes the dirty status of a page.
func (page *Page) SetDirty(dirty bool) {
	page.dirty = dirty
}

// GetData returns the byte data held by the page.
func (page *Page) GetData() []byte {
	return page.data
}

// Get increments the pin count, indicating that another process is using this page.
func (page *Page) Get() {
	page.pinCount.Add(1)
}

// Put decrements the pin count, indicating that a process is done using this
// page, and returns the resulting count.
func (page *Page) Put() int64 {
	return page.pinCount.Add(-1)
}

// GetPinCount returns the number of active references to this page.
func (page *Page) GetPinCount() int64 {
	return page.pinCount.Load()
}

// Init prepares the page to hold the given pagenum: pinned once, clean.
func (page *Page) Init(pagenum int64) {
	page.pagenum = pagenum
	page.dirty = false
	page.pinCount.Store(1)
}

// Reset returns the page to its unused state. The frame data is not cleared.
func (page *Page) Reset() {
	page.pagenum = NoPage
	page.dirty = false
	page.pinCount.Store(0)
}

// Zero clears the page's data.
func (page *Page) Zero() {
	for i := range page.data {
		page.data[i] = 0
	}
}

// Update updates this page with `size` bytes of the given data slice at the
// specified offset, marking the page dirty.
func (page *Page) Update(data []byte, offset int64, size int64) {
	page.dirty = true
	copy(page.data[offset:offset+size], data)
}

// WLock grabs a writers lock on the page contents.
func (page *Page) WLock() {
	page.rwlock.Lock()
}

// WUnlock releases a writers lock.
func (page *Page) WUnlock() {
	page.rwlock.Unlock()
}

// RLock grabs a readers lock on the page contents.
func (page *Page) RLock() {
	page.rwlock.RLock()
}

// RUnlock releases a readers lock.
func (page *Page) RUnlock() {
	page.rwlock.RUnlock()
}
