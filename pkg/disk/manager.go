// Package disk implements the disk manager, which performs byte-level page
// I/O against the database file and hands out page numbers.
package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"pinedb/pkg/logger"
	"pinedb/pkg/page"

	"github.com/bits-and-blooms/bitset"
	"github.com/ncw/directio"
)

// Error for when the backing file's size is not page-aligned.
var ErrCorruptFile = errors.New("DB file has been corrupted")

// Manager reads and writes fixed-size pages against a single backing file and
// allocates page numbers, reusing deallocated ones before growing the file.
// Pagenum 0 is reserved for the header page and is never handed out.
type Manager struct {
	file        *os.File       // File descriptor for the backing database file.
	numPages    int64          // One past the highest pagenum ever allocated.
	deallocated *bitset.BitSet // Pagenums below numPages that have been released.
	log         logger.Logger
	mtx         sync.Mutex
}

// NewManager opens (or creates) the database file at the specified filePath
// and returns a Manager for it.
//
// If the database file exists but its contents are not aligned to Pagesize,
// returns an error. Pass a nil log to discard diagnostics.
func NewManager(filePath string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.Discard{}
	}
	// Create the necessary prerequisite directories.
	if idx := strings.LastIndex(filePath, "/"); idx != -1 {
		err := os.MkdirAll(filePath[:idx], 0775)
		if err != nil {
			return nil, err
		}
	}
	// Open or create the db file.
	file, err := directio.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size()%page.Pagesize != 0 {
		file.Close()
		return nil, ErrCorruptFile
	}
	numPages := info.Size() / page.Pagesize
	// A fresh file still owns the reserved header page.
	if numPages == 0 {
		numPages = 1
	}
	log.Info("opened database file", "path", filePath, "pages", numPages)
	return &Manager{
		file:        file,
		numPages:    numPages,
		deallocated: bitset.New(uint(numPages)),
		log:         log,
	}, nil
}

// GetFileName returns the file name/path of the manager's backing file.
func (manager *Manager) GetFileName() string {
	return manager.file.Name()
}

// NumPages returns one past the highest pagenum allocated so far. The header
// page always counts, so a fresh file reports 1. Allocated pages that were
// never written are counted even though the file does not span them yet.
func (manager *Manager) NumPages() int64 {
	manager.mtx.Lock()
	defer manager.mtx.Unlock()
	return manager.numPages
}

// ReadPage fills buf with the on-disk contents of the given pagenum.
// A page that was allocated but never written reads as zeroes.
func (manager *Manager) ReadPage(pagenum int64, buf []byte) error {
	manager.mtx.Lock()
	defer manager.mtx.Unlock()
	if err := manager.checkPagenum(pagenum); err != nil {
		return err
	}
	if int64(len(buf)) != page.Pagesize {
		return fmt.Errorf("read buffer is %d bytes, expected %d", len(buf), page.Pagesize)
	}
	for i := range buf {
		buf[i] = 0
	}
	_, err := manager.file.ReadAt(buf, pagenum*page.Pagesize)
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

// WritePage writes buf as the on-disk contents of the given pagenum.
func (manager *Manager) WritePage(pagenum int64, buf []byte) error {
	manager.mtx.Lock()
	defer manager.mtx.Unlock()
	if err := manager.checkPagenum(pagenum); err != nil {
		return err
	}
	if int64(len(buf)) != page.Pagesize {
		return fmt.Errorf("write buffer is %d bytes, expected %d", len(buf), page.Pagesize)
	}
	_, err := manager.file.WriteAt(buf, pagenum*page.Pagesize)
	return err
}

// AllocatePage hands out an unused pagenum, preferring previously
// deallocated ones over extending the file.
func (manager *Manager) AllocatePage() int64 {
	manager.mtx.Lock()
	defer manager.mtx.Unlock()
	if reused, ok := manager.deallocated.NextSet(0); ok {
		manager.deallocated.Clear(reused)
		return int64(reused)
	}
	pagenum := manager.numPages
	manager.numPages++
	return pagenum
}

// DeallocatePage releases a pagenum so a later AllocatePage may reuse it.
// The reserved header page cannot be deallocated.
func (manager *Manager) DeallocatePage(pagenum int64) {
	manager.mtx.Lock()
	defer manager.mtx.Unlock()
	if pagenum <= page.HeaderPageID || pagenum >= manager.numPages {
		return
	}
	manager.deallocated.Set(uint(pagenum))
	manager.log.Debug("deallocated page", "pagenum", pagenum)
}

// Close closes the backing file.
func (manager *Manager) Close() error {
	manager.mtx.Lock()
	defer manager.mtx.Unlock()
	return manager.file.Close()
}

// checkPagenum validates that the given pagenum could have been allocated.
func (manager *Manager) checkPagenum(pagenum int64) error {
	if pagenum < 0 || pagenum >= manager.numPages {
		return fmt.Errorf("invalid pagenum %d", pagenum)
	}
	return nil
}
